package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/storefront/internal/model"
)

func (s *PostgresStore) ListProducts(ctx context.Context, filter ProductFilter) ([]model.Product, error) {
	var (
		where []string
		args  []any
	)
	query := "SELECT " + productColumns + " FROM products p"
	if filter.CategorySlug != "" {
		query += " JOIN categories c ON c.id = p.category_id"
		args = append(args, filter.CategorySlug)
		where = append(where, fmt.Sprintf("c.slug = $%d", len(args)))
	}
	if filter.ActiveOnly {
		where = append(where, "p.is_active")
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY p.created_at DESC, p.id"

	return s.queryProducts(ctx, query, args...)
}

func (s *PostgresStore) queryProducts(ctx context.Context, query string, args ...any) ([]model.Product, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	products := make([]model.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *PostgresStore) GetCategoryBySlug(ctx context.Context, slug string) (*model.Category, error) {
	c, err := categoryMapping.scan(s.q.QueryRowContext(ctx,
		"SELECT id, name, slug, description, created_at FROM categories WHERE slug = $1", slug))
	if err != nil {
		return nil, translateError(err)
	}
	return &c, nil
}

func (s *PostgresStore) AddFavorite(ctx context.Context, accountID, productID string) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO favorites (account_id, product_id, created_at) VALUES ($1, $2, NOW())
		 ON CONFLICT DO NOTHING`, accountID, productID)
	return translateError(err)
}

func (s *PostgresStore) RemoveFavorite(ctx context.Context, accountID, productID string) error {
	return expectOne(s.q.ExecContext(ctx,
		"DELETE FROM favorites WHERE account_id = $1 AND product_id = $2", accountID, productID))
}

func (s *PostgresStore) IsFavorite(ctx context.Context, accountID, productID string) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM favorites WHERE account_id = $1 AND product_id = $2)",
		accountID, productID,
	).Scan(&exists)
	if err != nil {
		return false, translateError(err)
	}
	return exists, nil
}

func (s *PostgresStore) ListFavorites(ctx context.Context, accountID string) ([]model.Product, error) {
	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM favorites f JOIN products p ON p.id = f.product_id
		 WHERE f.account_id = $1 ORDER BY f.created_at DESC`, accountID)
}

func (s *PostgresStore) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	a, err := scanAccount(s.q.QueryRowContext(ctx,
		`SELECT id, email, password_hash, first_name, last_name, role, is_active, created_at, updated_at
		 FROM accounts WHERE lower(email) = lower($1)`, email))
	if err != nil {
		return nil, translateError(err)
	}
	return &a, nil
}

const profileColumns = `account_id, phone, document_type, document_number, birth_date, address,
	city, region, postal_code, country, newsletter, email_notifications, updated_at`

func (s *PostgresStore) CreateProfile(ctx context.Context, p *model.Profile) error {
	p.UpdatedAt = time.Now().UTC()
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO profiles (`+profileColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		profileArgs(p)...,
	)
	return translateError(err)
}

func (s *PostgresStore) GetProfile(ctx context.Context, accountID string) (*model.Profile, error) {
	var (
		p         model.Profile
		birthDate sql.NullTime
	)
	err := s.q.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM profiles WHERE account_id = $1", accountID,
	).Scan(&p.AccountID, &p.Phone, &p.DocumentType, &p.DocumentNumber, &birthDate, &p.Address,
		&p.City, &p.Region, &p.PostalCode, &p.Country, &p.Newsletter, &p.EmailNotifications, &p.UpdatedAt)
	if err != nil {
		return nil, translateError(err)
	}
	if birthDate.Valid {
		p.BirthDate = &birthDate.Time
	}
	return &p, nil
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, p *model.Profile) error {
	p.UpdatedAt = time.Now().UTC()
	return expectOne(s.q.ExecContext(ctx,
		`UPDATE profiles SET phone = $2, document_type = $3, document_number = $4, birth_date = $5,
			address = $6, city = $7, region = $8, postal_code = $9, country = $10,
			newsletter = $11, email_notifications = $12, updated_at = $13
		 WHERE account_id = $1`,
		profileArgs(p)...,
	))
}

func profileArgs(p *model.Profile) []any {
	var birthDate sql.NullTime
	if p.BirthDate != nil {
		birthDate = sql.NullTime{Time: *p.BirthDate, Valid: true}
	}
	return []any{p.AccountID, p.Phone, p.DocumentType, p.DocumentNumber, birthDate, p.Address,
		p.City, p.Region, p.PostalCode, p.Country, p.Newsletter, p.EmailNotifications, p.UpdatedAt}
}
