package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/example/storefront/internal/model"
)

const cartColumns = "id, account_id, session_key, created_at, updated_at"

func scanCart(row scanner) (*model.Cart, error) {
	var (
		c          model.Cart
		accountID  sql.NullString
		sessionKey sql.NullString
	)
	if err := row.Scan(&c.ID, &accountID, &sessionKey, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, translateError(err)
	}
	c.AccountID = accountID.String
	c.SessionKey = sessionKey.String
	return &c, nil
}

func ownerClause(owner CartOwner) (string, string, error) {
	switch {
	case owner.AccountID != "" && owner.SessionKey == "":
		return "account_id", owner.AccountID, nil
	case owner.SessionKey != "" && owner.AccountID == "":
		return "session_key", owner.SessionKey, nil
	default:
		return "", "", fmt.Errorf("cart owner must be exactly one of account or session: %+v", owner)
	}
}

func (s *PostgresStore) FindCart(ctx context.Context, owner CartOwner) (*model.Cart, error) {
	column, value, err := ownerClause(owner)
	if err != nil {
		return nil, err
	}
	return scanCart(s.q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM carts WHERE %s = $1", cartColumns, column), value))
}

func (s *PostgresStore) EnsureCart(ctx context.Context, owner CartOwner) (*model.Cart, error) {
	column, value, err := ownerClause(owner)
	if err != nil {
		return nil, err
	}

	// Concurrent first requests race on the unique owner column; the loser
	// falls through to the read below.
	_, err = s.q.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO carts (id, %s, created_at, updated_at)
		 VALUES ($1, $2, NOW(), NOW())
		 ON CONFLICT (%s) DO NOTHING`, column, column),
		uuid.New().String(), value,
	)
	if err != nil {
		return nil, translateError(err)
	}
	return s.FindCart(ctx, owner)
}

func (s *PostgresStore) DeleteCart(ctx context.Context, cartID string) error {
	return expectOne(s.q.ExecContext(ctx, "DELETE FROM carts WHERE id = $1", cartID))
}

const cartLineSelect = `SELECT l.id, l.cart_id, l.product_id, l.quantity, l.created_at, ` + productColumns + `
	FROM cart_lines l JOIN products p ON p.id = l.product_id`

func scanCartLine(row scanner) (*model.CartLine, error) {
	var (
		l model.CartLine
		p model.Product
	)
	err := row.Scan(&l.ID, &l.CartID, &l.ProductID, &l.Quantity, &l.CreatedAt,
		&p.ID, &p.CategoryID, &p.Name, &p.Description, &p.Kind, &p.Price,
		&p.ImageURL, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, translateError(err)
	}
	l.Product = p
	return &l, nil
}

func (s *PostgresStore) ListCartLines(ctx context.Context, cartID string) ([]model.CartLine, error) {
	rows, err := s.q.QueryContext(ctx, cartLineSelect+" WHERE l.cart_id = $1 ORDER BY l.created_at, l.id", cartID)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	lines := make([]model.CartLine, 0)
	for rows.Next() {
		line, err := scanCartLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, *line)
	}
	return lines, rows.Err()
}

func (s *PostgresStore) GetCartLine(ctx context.Context, cartID, lineID string) (*model.CartLine, error) {
	return scanCartLine(s.q.QueryRowContext(ctx,
		cartLineSelect+" WHERE l.cart_id = $1 AND l.id = $2", cartID, lineID))
}

func (s *PostgresStore) AddCartLine(ctx context.Context, cartID, productID string, quantity int) (*model.CartLine, error) {
	var lineID string
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO cart_lines (id, cart_id, product_id, quantity, created_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (cart_id, product_id)
		 DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity
		 RETURNING id`,
		uuid.New().String(), cartID, productID, quantity,
	).Scan(&lineID)
	if err != nil {
		return nil, translateError(err)
	}
	if err := s.touchCart(ctx, cartID); err != nil {
		return nil, err
	}
	return s.GetCartLine(ctx, cartID, lineID)
}

func (s *PostgresStore) AdjustCartLine(ctx context.Context, cartID, lineID string, delta int) (*model.CartLine, error) {
	err := expectOne(s.q.ExecContext(ctx,
		`UPDATE cart_lines SET quantity = quantity + $3
		 WHERE cart_id = $1 AND id = $2 AND quantity + $3 >= 1`,
		cartID, lineID, delta,
	))
	if err != nil {
		return nil, err
	}
	if err := s.touchCart(ctx, cartID); err != nil {
		return nil, err
	}
	return s.GetCartLine(ctx, cartID, lineID)
}

func (s *PostgresStore) DeleteCartLine(ctx context.Context, cartID, lineID string) error {
	return expectOne(s.q.ExecContext(ctx,
		"DELETE FROM cart_lines WHERE cart_id = $1 AND id = $2", cartID, lineID))
}

func (s *PostgresStore) ClearCart(ctx context.Context, cartID string) error {
	if _, err := s.q.ExecContext(ctx, "DELETE FROM cart_lines WHERE cart_id = $1", cartID); err != nil {
		return translateError(err)
	}
	return s.touchCart(ctx, cartID)
}

func (s *PostgresStore) touchCart(ctx context.Context, cartID string) error {
	err := expectOne(s.q.ExecContext(ctx, "UPDATE carts SET updated_at = NOW() WHERE id = $1", cartID))
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
