package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/storefront/internal/model"
)

const orderColumns = `id, account_id, shipping_name, shipping_email, shipping_phone, shipping_address,
	shipping_city, shipping_region, shipping_postal_code, payment_method, payment_status, transaction_id,
	status, subtotal, tax, shipping_cost, discount, total, notes, admin_notes, created_at, updated_at`

func scanOrder(row scanner) (*model.Order, error) {
	var o model.Order
	err := row.Scan(&o.ID, &o.AccountID,
		&o.Shipping.Name, &o.Shipping.Email, &o.Shipping.Phone, &o.Shipping.Address,
		&o.Shipping.City, &o.Shipping.Region, &o.Shipping.PostalCode,
		&o.PaymentMethod, &o.PaymentStatus, &o.TransactionID, &o.Status,
		&o.Subtotal, &o.Tax, &o.ShippingCost, &o.Discount, &o.Total,
		&o.Notes, &o.AdminNotes, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, translateError(err)
	}
	return &o, nil
}

func (s *PostgresStore) CreateOrder(ctx context.Context, o *model.Order) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now

	_, err := s.q.ExecContext(ctx,
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		o.ID, o.AccountID,
		o.Shipping.Name, o.Shipping.Email, o.Shipping.Phone, o.Shipping.Address,
		o.Shipping.City, o.Shipping.Region, o.Shipping.PostalCode,
		o.PaymentMethod, o.PaymentStatus, o.TransactionID, o.Status,
		o.Subtotal, o.Tax, o.ShippingCost, o.Discount, o.Total,
		o.Notes, o.AdminNotes, o.CreatedAt, o.UpdatedAt,
	)
	return translateError(err)
}

func (s *PostgresStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	return scanOrder(s.q.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id))
}

func (s *PostgresStore) UpdateOrder(ctx context.Context, o *model.Order) error {
	o.UpdatedAt = time.Now().UTC()
	return expectOne(s.q.ExecContext(ctx,
		`UPDATE orders SET
			shipping_name = $2, shipping_email = $3, shipping_phone = $4, shipping_address = $5,
			shipping_city = $6, shipping_region = $7, shipping_postal_code = $8,
			payment_method = $9, payment_status = $10, transaction_id = $11, status = $12,
			subtotal = $13, tax = $14, shipping_cost = $15, discount = $16, total = $17,
			notes = $18, admin_notes = $19, updated_at = $20
		 WHERE id = $1`,
		o.ID,
		o.Shipping.Name, o.Shipping.Email, o.Shipping.Phone, o.Shipping.Address,
		o.Shipping.City, o.Shipping.Region, o.Shipping.PostalCode,
		o.PaymentMethod, o.PaymentStatus, o.TransactionID, o.Status,
		o.Subtotal, o.Tax, o.ShippingCost, o.Discount, o.Total,
		o.Notes, o.AdminNotes, o.UpdatedAt,
	))
}

func (s *PostgresStore) DeleteOrder(ctx context.Context, id string) error {
	return expectOne(s.q.ExecContext(ctx, "DELETE FROM orders WHERE id = $1", id))
}

func (s *PostgresStore) ListOrders(ctx context.Context, filter OrderFilter) ([]model.Order, error) {
	var (
		where []string
		args  []any
	)
	if filter.AccountID != "" {
		args = append(args, filter.AccountID)
		where = append(where, fmt.Sprintf("account_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := "SELECT " + orderColumns + " FROM orders"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	orders := make([]model.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func (s *PostgresStore) CreateOrderLine(ctx context.Context, l *model.OrderLine) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO order_lines (id, order_id, product_id, product_name, price, quantity)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		l.ID, l.OrderID, l.ProductID, l.ProductName, l.Price, l.Quantity,
	)
	return translateError(err)
}

func (s *PostgresStore) ListOrderLines(ctx context.Context, orderID string) ([]model.OrderLine, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, order_id, product_id, product_name, price, quantity
		 FROM order_lines WHERE order_id = $1 ORDER BY product_name, id`, orderID)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	lines := make([]model.OrderLine, 0)
	for rows.Next() {
		var l model.OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.ProductName, &l.Price, &l.Quantity); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
