package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/example/storefront/internal/model"
)

func (s *PostgresStore) CreateTransaction(ctx context.Context, t *model.Transaction) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.CreatedAt = time.Now().UTC()

	_, err := s.q.ExecContext(ctx,
		`INSERT INTO payment_transactions (id, external_order_id, order_id, amount, currency, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.ExternalOrderID, nullString(t.OrderID), t.Amount, t.Currency, t.Status, t.CreatedAt,
	)
	return translateError(err)
}

func (s *PostgresStore) GetTransactionByExternalID(ctx context.Context, externalOrderID string) (*model.Transaction, error) {
	var (
		t       model.Transaction
		orderID sql.NullString
	)
	err := s.q.QueryRowContext(ctx,
		`SELECT id, external_order_id, order_id, amount, currency, status, created_at
		 FROM payment_transactions WHERE external_order_id = $1`, externalOrderID,
	).Scan(&t.ID, &t.ExternalOrderID, &orderID, &t.Amount, &t.Currency, &t.Status, &t.CreatedAt)
	if err != nil {
		return nil, translateError(err)
	}
	t.OrderID = orderID.String
	return &t, nil
}

const reconciliationColumns = "id, external_order_id, account_id, amount, currency, reason, status, created_at, resolved_at"

func scanReconciliation(row scanner) (*model.Reconciliation, error) {
	var (
		r          model.Reconciliation
		resolvedAt sql.NullTime
	)
	err := row.Scan(&r.ID, &r.ExternalOrderID, &r.AccountID, &r.Amount, &r.Currency,
		&r.Reason, &r.Status, &r.CreatedAt, &resolvedAt)
	if err != nil {
		return nil, translateError(err)
	}
	if resolvedAt.Valid {
		r.ResolvedAt = &resolvedAt.Time
	}
	return &r, nil
}

func (s *PostgresStore) CreateReconciliation(ctx context.Context, r *model.Reconciliation) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Status == "" {
		r.Status = model.ReconciliationOpen
	}
	r.CreatedAt = time.Now().UTC()

	_, err := s.q.ExecContext(ctx,
		`INSERT INTO payment_reconciliations (id, external_order_id, account_id, amount, currency, reason, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.ExternalOrderID, r.AccountID, r.Amount, r.Currency, r.Reason, r.Status, r.CreatedAt,
	)
	return translateError(err)
}

func (s *PostgresStore) ListReconciliations(ctx context.Context, status string) ([]model.Reconciliation, error) {
	query := "SELECT " + reconciliationColumns + " FROM payment_reconciliations"
	var args []any
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	recs := make([]model.Reconciliation, 0)
	for rows.Next() {
		r, err := scanReconciliation(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *r)
	}
	return recs, rows.Err()
}

func (s *PostgresStore) ResolveReconciliation(ctx context.Context, id string) (*model.Reconciliation, error) {
	return scanReconciliation(s.q.QueryRowContext(ctx,
		`UPDATE payment_reconciliations SET status = 'resolved', resolved_at = NOW()
		 WHERE id = $1 RETURNING `+reconciliationColumns, id))
}

func (s *PostgresStore) DashboardTotals(ctx context.Context) (*DashboardTotals, error) {
	var t DashboardTotals
	err := s.q.QueryRowContext(ctx,
		`SELECT
			(SELECT COALESCE(SUM(total), 0) FROM orders WHERE payment_status),
			(SELECT COUNT(*) FROM orders),
			(SELECT COUNT(*) FROM accounts),
			(SELECT COUNT(*) FROM products),
			(SELECT COUNT(*) FROM payment_reconciliations WHERE status = 'open')`,
	).Scan(&t.PaidRevenue, &t.Orders, &t.Accounts, &t.Products, &t.OpenReconciliations)
	if err != nil {
		return nil, translateError(err)
	}
	return &t, nil
}
