package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/storefront/internal/crud"
	"github.com/example/storefront/internal/model"
)

// mapping describes how an entity is laid out in its table
type mapping[T any] struct {
	table   string
	columns []string // every column except id, in scan order
	orderBy string
	id      func(item *T) *string
	values  func(item *T) []any
	scan    func(row scanner) (T, error)
	stamp   func(item *T, now time.Time, created bool)
}

// Table implements crud.Repository for one mapped entity
type Table[T any] struct {
	q DBTX
	m mapping[T]
}

var _ crud.Repository[model.Product] = (*Table[model.Product])(nil)

func (t *Table[T]) selectSQL() string {
	return fmt.Sprintf("SELECT id, %s FROM %s", strings.Join(t.m.columns, ", "), t.m.table)
}

func (t *Table[T]) Create(ctx context.Context, item *T) error {
	id := t.m.id(item)
	if *id == "" {
		*id = uuid.New().String()
	}
	if t.m.stamp != nil {
		t.m.stamp(item, time.Now().UTC(), true)
	}

	placeholders := make([]string, len(t.m.columns)+1)
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (id, %s) VALUES (%s)",
		t.m.table, strings.Join(t.m.columns, ", "), strings.Join(placeholders, ", "))

	args := append([]any{*id}, t.m.values(item)...)
	if _, err := t.q.ExecContext(ctx, query, args...); err != nil {
		return translateError(err)
	}
	return nil
}

func (t *Table[T]) List(ctx context.Context) ([]T, error) {
	query := t.selectSQL()
	if t.m.orderBy != "" {
		query += " ORDER BY " + t.m.orderBy
	}

	rows, err := t.q.QueryContext(ctx, query)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	items := make([]T, 0)
	for rows.Next() {
		item, err := t.m.scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (t *Table[T]) Get(ctx context.Context, id string) (*T, error) {
	item, err := t.m.scan(t.q.QueryRowContext(ctx, t.selectSQL()+" WHERE id = $1", id))
	if err != nil {
		return nil, translateError(err)
	}
	return &item, nil
}

func (t *Table[T]) Update(ctx context.Context, item *T) error {
	if t.m.stamp != nil {
		t.m.stamp(item, time.Now().UTC(), false)
	}

	sets := make([]string, len(t.m.columns))
	for i, col := range t.m.columns {
		sets[i] = fmt.Sprintf("%s = $%d", col, i+2)
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $1", t.m.table, strings.Join(sets, ", "))

	args := append([]any{*t.m.id(item)}, t.m.values(item)...)
	return expectOne(t.q.ExecContext(ctx, query, args...))
}

func (t *Table[T]) Delete(ctx context.Context, id string) error {
	return expectOne(t.q.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", t.m.table), id))
}

// ============================================
// Entity mappings
// ============================================

const productColumns = "p.id, p.category_id, p.name, p.description, p.kind, p.price, p.image_url, p.is_active, p.created_at, p.updated_at"

func scanProduct(row scanner) (model.Product, error) {
	var p model.Product
	err := row.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Description, &p.Kind, &p.Price,
		&p.ImageURL, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

var productMapping = mapping[model.Product]{
	table:   "products",
	columns: []string{"category_id", "name", "description", "kind", "price", "image_url", "is_active", "created_at", "updated_at"},
	orderBy: "created_at DESC",
	id:      func(p *model.Product) *string { return &p.ID },
	values: func(p *model.Product) []any {
		return []any{p.CategoryID, p.Name, p.Description, p.Kind, p.Price, p.ImageURL, p.IsActive, p.CreatedAt, p.UpdatedAt}
	},
	scan: scanProduct,
	stamp: func(p *model.Product, now time.Time, created bool) {
		if created {
			p.CreatedAt = now
		}
		p.UpdatedAt = now
	},
}

var categoryMapping = mapping[model.Category]{
	table:   "categories",
	columns: []string{"name", "slug", "description", "created_at"},
	orderBy: "name",
	id:      func(c *model.Category) *string { return &c.ID },
	values: func(c *model.Category) []any {
		return []any{c.Name, c.Slug, c.Description, c.CreatedAt}
	},
	scan: func(row scanner) (model.Category, error) {
		var c model.Category
		err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.CreatedAt)
		return c, err
	},
	stamp: func(c *model.Category, now time.Time, created bool) {
		if created {
			c.CreatedAt = now
		}
	},
}

func scanAccount(row scanner) (model.Account, error) {
	var a model.Account
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.FirstName, &a.LastName,
		&a.Role, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

var accountMapping = mapping[model.Account]{
	table:   "accounts",
	columns: []string{"email", "password_hash", "first_name", "last_name", "role", "is_active", "created_at", "updated_at"},
	orderBy: "created_at DESC",
	id:      func(a *model.Account) *string { return &a.ID },
	values: func(a *model.Account) []any {
		return []any{a.Email, a.PasswordHash, a.FirstName, a.LastName, a.Role, a.IsActive, a.CreatedAt, a.UpdatedAt}
	},
	scan: scanAccount,
	stamp: func(a *model.Account, now time.Time, created bool) {
		if created {
			a.CreatedAt = now
		}
		a.UpdatedAt = now
	},
}

func (s *PostgresStore) Products() crud.Repository[model.Product] {
	return &Table[model.Product]{q: s.q, m: productMapping}
}

func (s *PostgresStore) Categories() crud.Repository[model.Category] {
	return &Table[model.Category]{q: s.q, m: categoryMapping}
}

func (s *PostgresStore) Accounts() crud.Repository[model.Account] {
	return &Table[model.Account]{q: s.q, m: accountMapping}
}
