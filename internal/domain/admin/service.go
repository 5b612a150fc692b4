package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/tealeg/xlsx"

	"github.com/example/storefront/internal/infrastructure/store"
	"github.com/example/storefront/internal/model"
)

const recentOrdersLimit = 10

var ErrReconciliationNotFound = errors.New("reconciliation not found")

// Service serves the staff back office
type Service struct {
	store store.Store
}

func NewService(s store.Store) *Service {
	return &Service{store: s}
}

// Dashboard aggregates totals over the full tables on every call, together
// with the newest orders
func (s *Service) Dashboard(ctx context.Context) (*model.DashboardStats, error) {
	totals, err := s.store.DashboardTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute dashboard totals: %w", err)
	}
	recent, err := s.store.ListOrders(ctx, store.OrderFilter{Limit: recentOrdersLimit})
	if err != nil {
		return nil, fmt.Errorf("failed to list recent orders: %w", err)
	}

	return &model.DashboardStats{
		TotalRevenue:        totals.PaidRevenue,
		TotalOrders:         totals.Orders,
		TotalUsers:          totals.Accounts,
		TotalProducts:       totals.Products,
		RecentOrders:        recent,
		OpenReconciliations: totals.OpenReconciliations,
	}, nil
}

var exportHeaders = []string{
	"ID", "Created", "Customer", "Email", "Phone", "City",
	"Status", "Payment Method", "Paid", "Transaction",
	"Subtotal", "Tax", "Shipping", "Discount", "Total",
}

// ExportOrders writes the filtered orders as an xlsx workbook
func (s *Service) ExportOrders(ctx context.Context, filter store.OrderFilter, w io.Writer) error {
	orders, err := s.store.ListOrders(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to list orders: %w", err)
	}

	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Orders")
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	header := sheet.AddRow()
	for _, h := range exportHeaders {
		header.AddCell().SetString(h)
	}

	for _, o := range orders {
		row := sheet.AddRow()
		row.AddCell().SetString(o.ID)
		row.AddCell().SetString(o.CreatedAt.Format("2006-01-02 15:04:05"))
		row.AddCell().SetString(o.Shipping.Name)
		row.AddCell().SetString(o.Shipping.Email)
		row.AddCell().SetString(o.Shipping.Phone)
		row.AddCell().SetString(o.Shipping.City)
		row.AddCell().SetString(string(o.Status))
		row.AddCell().SetString(string(o.PaymentMethod))
		row.AddCell().SetBool(o.PaymentStatus)
		row.AddCell().SetString(o.TransactionID)
		row.AddCell().SetString(o.Subtotal.StringFixed(2))
		row.AddCell().SetString(o.Tax.StringFixed(2))
		row.AddCell().SetString(o.ShippingCost.StringFixed(2))
		row.AddCell().SetString(o.Discount.StringFixed(2))
		row.AddCell().SetString(o.Total.StringFixed(2))
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	log.Printf("[Admin] Exported %d orders", len(orders))
	return nil
}

// Reconciliations lists captures without a local order; an empty status
// lists all of them
func (s *Service) Reconciliations(ctx context.Context, status string) ([]model.Reconciliation, error) {
	recs, err := s.store.ListReconciliations(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list reconciliations: %w", err)
	}
	return recs, nil
}

// ResolveReconciliation marks a reconciliation as handled by staff
func (s *Service) ResolveReconciliation(ctx context.Context, id string) (*model.Reconciliation, error) {
	rec, err := s.store.ResolveReconciliation(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrReconciliationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve reconciliation: %w", err)
	}
	log.Printf("[Admin] Resolved reconciliation %s for gateway order %s", rec.ID, rec.ExternalOrderID)
	return rec, nil
}
