package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/example/storefront/internal/model"
)

func setupTestDB(t *testing.T) (*PostgresStore, func()) {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := ConnectPostgres(connStr)
	require.NoError(t, err)
	require.NoError(t, RunMigrations(db))

	cleanup := func() {
		db.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return NewPostgresStore(db), cleanup
}

type fixture struct {
	account  model.Account
	category model.Category
	productA model.Product
	productB model.Product
}

func seed(t *testing.T, s *PostgresStore) fixture {
	ctx := context.Background()
	f := fixture{
		account:  model.Account{Email: "buyer@example.com", PasswordHash: "x", Role: model.RoleCustomer, IsActive: true},
		category: model.Category{Name: "Cases", Slug: "cases"},
	}
	require.NoError(t, s.Accounts().Create(ctx, &f.account))
	require.NoError(t, s.Categories().Create(ctx, &f.category))

	f.productA = model.Product{CategoryID: f.category.ID, Name: "Case A", Kind: model.KindProduct, Price: decimal.RequireFromString("10.00"), IsActive: true}
	f.productB = model.Product{CategoryID: f.category.ID, Name: "Unlock B", Kind: model.KindService, Price: decimal.RequireFromString("25.00"), IsActive: true}
	require.NoError(t, s.Products().Create(ctx, &f.productA))
	require.NoError(t, s.Products().Create(ctx, &f.productB))
	return f
}

func newOrder(accountID string) *model.Order {
	return &model.Order{
		AccountID:     accountID,
		Shipping:      model.Shipping{Name: "Ana", Email: "ana@example.com", Phone: "555", Address: "Street 1", City: "Bogota"},
		PaymentMethod: model.PaymentCash,
		Status:        model.OrderPending,
	}
}

// ============================================
// Cart Tests
// ============================================

func TestPostgresStore_EnsureCart_Idempotent(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	first, err := s.EnsureCart(ctx, CartOwner{SessionKey: "sess-1"})
	require.NoError(t, err)
	second, err := s.EnsureCart(ctx, CartOwner{SessionKey: "sess-1"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Empty(t, first.AccountID)
}

func TestPostgresStore_EnsureCart_RejectsAmbiguousOwner(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := s.EnsureCart(context.Background(), CartOwner{AccountID: "a", SessionKey: "b"})
	assert.Error(t, err)
}

func TestPostgresStore_AddCartLine_ConcurrentAddsShareOneLine(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	f := seed(t, s)

	cart, err := s.EnsureCart(ctx, CartOwner{AccountID: f.account.ID})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AddCartLine(ctx, cart.ID, f.productA.ID, 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	lines, err := s.ListCartLines(ctx, cart.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 10, lines[0].Quantity)
	assert.True(t, lines[0].Product.Price.Equal(decimal.RequireFromString("10.00")))
}

func TestPostgresStore_AdjustCartLine_NeverBelowOne(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	f := seed(t, s)

	cart, err := s.EnsureCart(ctx, CartOwner{AccountID: f.account.ID})
	require.NoError(t, err)
	line, err := s.AddCartLine(ctx, cart.ID, f.productA.ID, 2)
	require.NoError(t, err)

	updated, err := s.AdjustCartLine(ctx, cart.ID, line.ID, -1)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Quantity)

	_, err = s.AdjustCartLine(ctx, cart.ID, line.ID, -1)
	assert.ErrorIs(t, err, ErrNotFound)
}

// ============================================
// Order Tests
// ============================================

func TestPostgresStore_WithinTx_RollsBack(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	f := seed(t, s)

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(tx Store) error {
		require.NoError(t, tx.CreateOrder(ctx, newOrder(f.account.ID)))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	orders, err := s.ListOrders(ctx, OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestPostgresStore_OrderLine_ProtectsProduct(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	f := seed(t, s)

	order := newOrder(f.account.ID)
	require.NoError(t, s.CreateOrder(ctx, order))
	require.NoError(t, s.CreateOrderLine(ctx, &model.OrderLine{
		OrderID: order.ID, ProductID: f.productA.ID, ProductName: f.productA.Name,
		Price: f.productA.Price, Quantity: 1,
	}))

	err := s.Products().Delete(ctx, f.productA.ID)
	assert.ErrorIs(t, err, ErrReferenced)
}

func TestPostgresStore_CreateTransaction_UniqueExternalID(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	txn := &model.Transaction{ExternalOrderID: "PAY-1", Amount: decimal.RequireFromString("45.00"), Currency: "USD", Status: model.TransactionCompleted}
	require.NoError(t, s.CreateTransaction(ctx, txn))

	dup := &model.Transaction{ExternalOrderID: "PAY-1", Amount: decimal.RequireFromString("45.00"), Currency: "USD", Status: model.TransactionCompleted}
	assert.ErrorIs(t, s.CreateTransaction(ctx, dup), ErrConflict)

	found, err := s.GetTransactionByExternalID(ctx, "PAY-1")
	require.NoError(t, err)
	assert.Equal(t, txn.ID, found.ID)
	assert.Empty(t, found.OrderID)
}

func TestPostgresStore_GetOrder_MalformedID(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := s.GetOrder(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
}

// ============================================
// Dashboard Tests
// ============================================

func TestPostgresStore_DashboardTotals_OnlyPaidRevenue(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	f := seed(t, s)

	paid := newOrder(f.account.ID)
	paid.PaymentStatus = true
	paid.Total = decimal.RequireFromString("45.00")
	require.NoError(t, s.CreateOrder(ctx, paid))

	unpaid := newOrder(f.account.ID)
	unpaid.Status = model.OrderDelivered
	unpaid.Total = decimal.RequireFromString("99.00")
	require.NoError(t, s.CreateOrder(ctx, unpaid))

	totals, err := s.DashboardTotals(ctx)
	require.NoError(t, err)
	assert.True(t, totals.PaidRevenue.Equal(decimal.RequireFromString("45.00")), totals.PaidRevenue.String())
	assert.Equal(t, 2, totals.Orders)
	assert.Equal(t, 1, totals.Accounts)
	assert.Equal(t, 2, totals.Products)
}

// ============================================
// Profile Tests
// ============================================

func TestPostgresStore_Profile_RoundTrip(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	f := seed(t, s)

	require.NoError(t, s.CreateProfile(ctx, &model.Profile{AccountID: f.account.ID, Country: "Colombia"}))

	profile, err := s.GetProfile(ctx, f.account.ID)
	require.NoError(t, err)
	profile.City = "Medellin"
	require.NoError(t, s.UpdateProfile(ctx, profile))

	reloaded, err := s.GetProfile(ctx, f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, "Medellin", reloaded.City)
	assert.Nil(t, reloaded.BirthDate)
}
