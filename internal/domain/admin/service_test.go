package admin

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx"

	"github.com/example/storefront/internal/infrastructure/store"
	"github.com/example/storefront/internal/infrastructure/store/mocks"
	"github.com/example/storefront/internal/model"
)

func newTestAdminService() (*Service, *mocks.MemoryStore) {
	ms := mocks.NewMemoryStore()
	return NewService(ms), ms
}

func seedOrders(ms *mocks.MemoryStore, accountID string, n int, paid bool, total string) []model.Order {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	orders := make([]model.Order, 0, n)
	for i := 0; i < n; i++ {
		orders = append(orders, ms.SeedOrder(model.Order{
			AccountID:     accountID,
			Status:        model.OrderPending,
			PaymentStatus: paid,
			Total:         decimal.RequireFromString(total),
			CreatedAt:     base.Add(time.Duration(ms.OrderCount()) * time.Minute),
		}))
	}
	return orders
}

// ============================================
// Dashboard Tests
// ============================================

func TestService_Dashboard_Totals(t *testing.T) {
	service, ms := newTestAdminService()
	buyer := ms.SeedAccount(model.Account{Email: "buyer@example.com"})
	ms.SeedAccount(model.Account{Email: "staff@example.com", Role: model.RoleStaff})
	cat := ms.SeedCategory(model.Category{Name: "Unlocks", Slug: "unlocks"})
	ms.SeedProduct(model.Product{CategoryID: cat.ID, Name: "A", Price: decimal.NewFromInt(10), IsActive: true})

	seedOrders(ms, buyer.ID, 3, true, "40.00")
	seedOrders(ms, buyer.ID, 2, false, "99.99")
	require.NoError(t, ms.CreateReconciliation(context.Background(), &model.Reconciliation{ExternalOrderID: "PP-1"}))

	stats, err := service.Dashboard(context.Background())

	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("120.00").Equal(stats.TotalRevenue), "only paid orders count, got %s", stats.TotalRevenue)
	assert.Equal(t, 5, stats.TotalOrders)
	assert.Equal(t, 2, stats.TotalUsers)
	assert.Equal(t, 1, stats.TotalProducts)
	assert.Equal(t, 1, stats.OpenReconciliations)
	assert.Len(t, stats.RecentOrders, 5)
}

func TestService_Dashboard_RecentOrdersNewestFirst(t *testing.T) {
	service, ms := newTestAdminService()
	buyer := ms.SeedAccount(model.Account{Email: "buyer@example.com"})
	orders := seedOrders(ms, buyer.ID, 12, true, "1.00")

	stats, err := service.Dashboard(context.Background())

	require.NoError(t, err)
	require.Len(t, stats.RecentOrders, recentOrdersLimit)
	assert.Equal(t, orders[11].ID, stats.RecentOrders[0].ID)
	assert.Equal(t, orders[2].ID, stats.RecentOrders[9].ID)
	assert.Equal(t, 12, stats.TotalOrders)
}

func TestService_Dashboard_Empty(t *testing.T) {
	service, _ := newTestAdminService()

	stats, err := service.Dashboard(context.Background())

	require.NoError(t, err)
	assert.True(t, stats.TotalRevenue.IsZero())
	assert.Empty(t, stats.RecentOrders)
}

func TestService_Dashboard_StoreError(t *testing.T) {
	service, ms := newTestAdminService()
	ms.FailOn("DashboardTotals", errors.New("timeout"))

	_, err := service.Dashboard(context.Background())

	assert.Error(t, err)
}

// ============================================
// Export Tests
// ============================================

func TestService_ExportOrders(t *testing.T) {
	service, ms := newTestAdminService()
	buyer := ms.SeedAccount(model.Account{Email: "buyer@example.com"})
	ms.SeedOrder(model.Order{
		AccountID:     buyer.ID,
		Shipping:      model.Shipping{Name: "Ana", Email: "buyer@example.com", City: "Bogotá"},
		Status:        model.OrderShipped,
		PaymentMethod: model.PaymentCash,
		Subtotal:      decimal.RequireFromString("45"),
		Total:         decimal.RequireFromString("45"),
	})
	ms.SeedOrder(model.Order{AccountID: buyer.ID, Status: model.OrderPending})

	var buf bytes.Buffer
	err := service.ExportOrders(context.Background(), store.OrderFilter{Status: model.OrderShipped}, &buf)
	require.NoError(t, err)

	file, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, file.Sheets, 1)

	rows := file.Sheets[0].Rows
	require.Len(t, rows, 2)
	assert.Equal(t, "ID", rows[0].Cells[0].Value)
	assert.Equal(t, "Ana", rows[1].Cells[2].Value)
	assert.Equal(t, "SHIPPED", rows[1].Cells[6].Value)
	assert.Equal(t, "CASH", rows[1].Cells[7].Value)
	assert.Equal(t, "45.00", rows[1].Cells[14].Value)
}

func TestService_ExportOrders_StoreError(t *testing.T) {
	service, ms := newTestAdminService()
	ms.FailOn("ListOrders", errors.New("timeout"))

	var buf bytes.Buffer
	err := service.ExportOrders(context.Background(), store.OrderFilter{}, &buf)

	assert.Error(t, err)
	assert.Zero(t, buf.Len())
}

// ============================================
// Reconciliation Tests
// ============================================

func TestService_Reconciliations_ResolveFlow(t *testing.T) {
	service, ms := newTestAdminService()
	ctx := context.Background()
	rec := &model.Reconciliation{ExternalOrderID: "PP-9", Amount: decimal.NewFromInt(45), Currency: "USD"}
	require.NoError(t, ms.CreateReconciliation(ctx, rec))

	open, err := service.Reconciliations(ctx, model.ReconciliationOpen)
	require.NoError(t, err)
	require.Len(t, open, 1)

	resolved, err := service.ResolveReconciliation(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReconciliationResolved, resolved.Status)
	assert.NotNil(t, resolved.ResolvedAt)

	open, err = service.Reconciliations(ctx, model.ReconciliationOpen)
	require.NoError(t, err)
	assert.Empty(t, open)

	all, err := service.Reconciliations(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestService_ResolveReconciliation_NotFound(t *testing.T) {
	service, _ := newTestAdminService()

	_, err := service.ResolveReconciliation(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrReconciliationNotFound)
}
