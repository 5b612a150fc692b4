package payment

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/storefront/internal/crud"
	"github.com/example/storefront/internal/domain/order"
	"github.com/example/storefront/internal/events"
	"github.com/example/storefront/internal/infrastructure/paypal"
	"github.com/example/storefront/internal/infrastructure/store"
	"github.com/example/storefront/internal/infrastructure/store/mocks"
	"github.com/example/storefront/internal/model"
	"github.com/example/storefront/internal/session"
)

// mockGateway records calls and returns canned results
type mockGateway struct {
	mu sync.Mutex

	createID   string
	createErr  error
	capture    *paypal.Capture
	captureErr error

	// when set, CaptureOrder signals entered and waits for release
	entered chan struct{}
	release chan struct{}

	CreateCalls  []decimal.Decimal
	CaptureCalls []string
}

func newMockGateway() *mockGateway {
	return &mockGateway{
		createID: "PAY-1",
		capture: &paypal.Capture{
			ID:       "PAY-1",
			Status:   paypal.StatusCompleted,
			Amount:   decimal.RequireFromString("45.00"),
			Currency: "USD",
		},
	}
}

func (g *mockGateway) CreateOrder(_ context.Context, amount decimal.Decimal, _, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CreateCalls = append(g.CreateCalls, amount)
	return g.createID, g.createErr
}

func (g *mockGateway) CaptureOrder(_ context.Context, id string) (*paypal.Capture, error) {
	if g.release != nil {
		g.entered <- struct{}{}
		<-g.release
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CaptureCalls = append(g.CaptureCalls, id)
	if g.captureErr != nil {
		return nil, g.captureErr
	}
	c := *g.capture
	return &c, nil
}

func (g *mockGateway) Currency() string { return "USD" }

func (g *mockGateway) captureCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.CaptureCalls)
}

type fixture struct {
	store     *mocks.MemoryStore
	gateway   *mockGateway
	publisher *mocks.MockPublisher
	service   *Service
	staging   session.Staging
	account   model.Account
	cart      *model.Cart
}

func newTestPaymentService(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ms := mocks.NewMemoryStore()
	gw := newMockGateway()
	pub := mocks.NewMockPublisher()
	f := &fixture{
		store:     ms,
		gateway:   gw,
		publisher: pub,
		service:   NewService(ms, gw, pub),
		staging:   session.NewRedisStaging(client, 0),
		account:   ms.SeedAccount(model.Account{Email: "buyer@example.com", IsActive: true}),
	}

	ctx := context.Background()
	cat := ms.SeedCategory(model.Category{Name: "Unlocks", Slug: "unlocks"})
	a := ms.SeedProduct(model.Product{CategoryID: cat.ID, Name: "A", Price: decimal.RequireFromString("10.00"), IsActive: true})
	b := ms.SeedProduct(model.Product{CategoryID: cat.ID, Name: "B", Price: decimal.RequireFromString("25.00"), IsActive: true})
	c, err := ms.EnsureCart(ctx, store.CartOwner{AccountID: f.account.ID})
	require.NoError(t, err)
	_, err = ms.AddCartLine(ctx, c.ID, a.ID, 2)
	require.NoError(t, err)
	_, err = ms.AddCartLine(ctx, c.ID, b.ID, 1)
	require.NoError(t, err)
	f.cart = c
	return f
}

func (f *fixture) session() *session.Context {
	return session.New("sess-1", f.staging).WithIdentity(f.account.ID, f.account.Email, model.RoleCustomer)
}

func shippingForm() *order.ShippingForm {
	return &order.ShippingForm{
		Name:    "Ana Gómez",
		Email:   "ana@example.com",
		Phone:   "3001234567",
		Address: "Calle 1 # 2-3",
		City:    "Medellín",
	}
}

func (f *fixture) created(t *testing.T) *session.Context {
	t.Helper()
	sc := f.session()
	_, err := f.service.CreatePayment(context.Background(), sc, shippingForm())
	require.NoError(t, err)
	return sc
}

func (f *fixture) cartCount(t *testing.T) int {
	t.Helper()
	lines, err := f.store.ListCartLines(context.Background(), f.cart.ID)
	require.NoError(t, err)
	return len(lines)
}

func eventTypes(calls []mocks.PublishCall) []string {
	types := make([]string, 0, len(calls))
	for _, c := range calls {
		types = append(types, c.Event.(events.Event).Type)
	}
	return types
}

// ============================================
// CreatePayment Tests
// ============================================

func TestService_CreatePayment_StagesForm(t *testing.T) {
	f := newTestPaymentService(t)
	ctx := context.Background()
	sc := f.session()

	created, err := f.service.CreatePayment(ctx, sc, shippingForm())

	require.NoError(t, err)
	assert.Equal(t, "PAY-1", created.ExternalOrderID)
	assert.True(t, created.Amount.Equal(decimal.RequireFromString("45")))
	require.Len(t, f.gateway.CreateCalls, 1)

	var staged StagedCheckout
	found, err := sc.Load(ctx, session.KeyCheckoutData, &staged)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "PAY-1", staged.ExternalOrderID)
	assert.Equal(t, model.PaymentPayPal, staged.Form.PaymentMethod)
	assert.Equal(t, "Medellín", staged.Form.City)
	assert.Equal(t, 0, f.store.OrderCount())
}

func TestService_CreatePayment_RetryReusesStagedForm(t *testing.T) {
	f := newTestPaymentService(t)
	sc := f.created(t)
	f.gateway.createID = "PAY-2"

	created, err := f.service.CreatePayment(context.Background(), sc, nil)

	require.NoError(t, err)
	assert.Equal(t, "PAY-2", created.ExternalOrderID)
	var staged StagedCheckout
	_, err = sc.Load(context.Background(), session.KeyCheckoutData, &staged)
	require.NoError(t, err)
	assert.Equal(t, "PAY-2", staged.ExternalOrderID)
	assert.Equal(t, "Ana Gómez", staged.Form.Name)
}

func TestService_CreatePayment_NoFormNoStagedData(t *testing.T) {
	f := newTestPaymentService(t)

	_, err := f.service.CreatePayment(context.Background(), f.session(), nil)

	assert.ErrorIs(t, err, ErrNoCheckoutData)
	assert.Empty(t, f.gateway.CreateCalls)
}

func TestService_CreatePayment_InvalidForm(t *testing.T) {
	f := newTestPaymentService(t)
	form := shippingForm()
	form.Phone = ""

	_, err := f.service.CreatePayment(context.Background(), f.session(), form)

	var vErr *crud.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Fields, "shipping_phone")
	assert.Empty(t, f.gateway.CreateCalls)
}

func TestService_CreatePayment_RequiresLogin(t *testing.T) {
	f := newTestPaymentService(t)

	_, err := f.service.CreatePayment(context.Background(), session.New("anon", f.staging), shippingForm())

	assert.ErrorIs(t, err, order.ErrLoginRequired)
}

func TestService_CreatePayment_EmptyCart(t *testing.T) {
	f := newTestPaymentService(t)
	require.NoError(t, f.store.ClearCart(context.Background(), f.cart.ID))

	_, err := f.service.CreatePayment(context.Background(), f.session(), shippingForm())

	assert.ErrorIs(t, err, order.ErrEmptyCart)
}

func TestService_CreatePayment_GatewayError(t *testing.T) {
	f := newTestPaymentService(t)
	f.gateway.createErr = &paypal.GatewayError{StatusCode: 401, Body: `{"error_description":"bad client"}`}
	sc := f.session()

	_, err := f.service.CreatePayment(context.Background(), sc, shippingForm())

	var gwErr *paypal.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, 0, f.store.OrderCount())
	found, err := sc.Load(context.Background(), session.KeyCheckoutData, &StagedCheckout{})
	require.NoError(t, err)
	assert.False(t, found)
}

// ============================================
// CapturePayment Tests
// ============================================

func TestService_CapturePayment_Success(t *testing.T) {
	f := newTestPaymentService(t)
	ctx := context.Background()
	sc := f.created(t)

	result, err := f.service.CapturePayment(ctx, sc, "PAY-1")

	require.NoError(t, err)
	assert.False(t, result.AlreadyCaptured)
	o := result.Order
	assert.True(t, o.PaymentStatus)
	assert.Equal(t, "PAY-1", o.TransactionID)
	assert.Equal(t, model.OrderProcessing, o.Status)
	assert.Equal(t, model.PaymentPayPal, o.PaymentMethod)
	assert.True(t, o.Total.Equal(decimal.RequireFromString("45")))
	assert.Len(t, o.Lines, 2)

	assert.Equal(t, 1, f.store.TransactionCount())
	txn, err := f.store.GetTransactionByExternalID(ctx, "PAY-1")
	require.NoError(t, err)
	assert.Equal(t, o.ID, txn.OrderID)
	assert.Equal(t, model.TransactionCompleted, txn.Status)
	assert.Equal(t, 0, f.cartCount(t))

	found, err := sc.Load(ctx, session.KeyCheckoutData, &StagedCheckout{})
	require.NoError(t, err)
	assert.False(t, found)
	var orderID string
	_, err = sc.Load(ctx, session.KeyOrderID, &orderID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, orderID)

	assert.Equal(t, []string{events.TypePaymentCaptured, events.TypeOrderPlaced}, eventTypes(f.publisher.Calls()))
}

func TestService_CapturePayment_NotCompleted(t *testing.T) {
	f := newTestPaymentService(t)
	ctx := context.Background()
	sc := f.created(t)
	f.gateway.capture.Status = "PAYER_ACTION_REQUIRED"

	_, err := f.service.CapturePayment(ctx, sc, "PAY-1")

	assert.ErrorIs(t, err, ErrCaptureNotCompleted)
	assert.Equal(t, 0, f.store.OrderCount())
	assert.Equal(t, 0, f.store.TransactionCount())
	assert.Equal(t, 2, f.cartCount(t))

	var staged StagedCheckout
	found, err := sc.Load(ctx, session.KeyCheckoutData, &staged)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "PAY-1", staged.ExternalOrderID)
}

func TestService_CapturePayment_GatewayErrorKeepsStagedData(t *testing.T) {
	f := newTestPaymentService(t)
	ctx := context.Background()
	sc := f.created(t)
	f.gateway.captureErr = &paypal.GatewayError{StatusCode: 422, Body: `{"message":"ORDER_NOT_APPROVED"}`}

	_, err := f.service.CapturePayment(ctx, sc, "PAY-1")

	var gwErr *paypal.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "ORDER_NOT_APPROVED", gwErr.Message())
	assert.Equal(t, 0, f.store.OrderCount())
	found, err := sc.Load(ctx, session.KeyCheckoutData, &StagedCheckout{})
	require.NoError(t, err)
	assert.True(t, found)
}

func TestService_CapturePayment_NoStagedData(t *testing.T) {
	f := newTestPaymentService(t)

	_, err := f.service.CapturePayment(context.Background(), f.session(), "PAY-1")

	assert.ErrorIs(t, err, ErrNoCheckoutData)
	assert.Equal(t, 0, f.gateway.captureCount())
}

func TestService_CapturePayment_Mismatch(t *testing.T) {
	f := newTestPaymentService(t)
	sc := f.created(t)

	_, err := f.service.CapturePayment(context.Background(), sc, "PAY-OTHER")

	assert.ErrorIs(t, err, ErrCheckoutMismatch)
	assert.Equal(t, 0, f.gateway.captureCount())
}

func TestService_CapturePayment_MissingID(t *testing.T) {
	f := newTestPaymentService(t)

	_, err := f.service.CapturePayment(context.Background(), f.session(), "")

	assert.ErrorIs(t, err, ErrMissingOrderID)
}

func TestService_CapturePayment_TwiceCreatesOneOrder(t *testing.T) {
	f := newTestPaymentService(t)
	ctx := context.Background()
	sc := f.created(t)

	first, err := f.service.CapturePayment(ctx, sc, "PAY-1")
	require.NoError(t, err)
	second, err := f.service.CapturePayment(ctx, sc, "PAY-1")
	require.NoError(t, err)

	assert.True(t, second.AlreadyCaptured)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, 1, f.store.OrderCount())
	assert.Equal(t, 1, f.store.TransactionCount())
	assert.Equal(t, 1, f.gateway.captureCount())
}

func TestService_CapturePayment_ConcurrentCreatesOneOrder(t *testing.T) {
	f := newTestPaymentService(t)
	ctx := context.Background()
	sc := f.created(t)

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := f.service.CapturePayment(ctx, sc, "PAY-1")
			if assert.NoError(t, err) {
				ids[i] = result.Order.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, f.store.OrderCount())
	assert.Equal(t, 1, f.store.TransactionCount())
	assert.Equal(t, 1, f.gateway.captureCount())
}

func TestService_CapturePayment_ConcurrentOtherAccountGetsNoResult(t *testing.T) {
	f := newTestPaymentService(t)
	ctx := context.Background()
	sc := f.created(t)
	f.gateway.entered = make(chan struct{}, 1)
	f.gateway.release = make(chan struct{})

	other := f.store.SeedAccount(model.Account{Email: "other@example.com", IsActive: true})
	otherSession := session.New("sess-2", f.staging).WithIdentity(other.ID, other.Email, model.RoleCustomer)

	done := make(chan error, 1)
	go func() {
		_, err := f.service.CapturePayment(ctx, sc, "PAY-1")
		done <- err
	}()
	<-f.gateway.entered

	result, err := f.service.CapturePayment(ctx, otherSession, "PAY-1")
	close(f.gateway.release)

	assert.ErrorIs(t, err, ErrNoCheckoutData)
	assert.Nil(t, result)
	require.NoError(t, <-done)
	assert.Equal(t, 1, f.gateway.captureCount())
	assert.Equal(t, 1, f.store.OrderCount())
}

func TestService_CapturePayment_EmptiedCartIsNotCharged(t *testing.T) {
	f := newTestPaymentService(t)
	ctx := context.Background()
	sc := f.created(t)
	require.NoError(t, f.store.ClearCart(ctx, f.cart.ID))

	_, err := f.service.CapturePayment(ctx, sc, "PAY-1")

	assert.ErrorIs(t, err, order.ErrEmptyCart)
	assert.Equal(t, 0, f.gateway.captureCount())
	assert.Equal(t, 0, f.store.OrderCount())
	recs, err := f.store.ListReconciliations(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestService_CapturePayment_ChangedCartIsNotCharged(t *testing.T) {
	f := newTestPaymentService(t)
	ctx := context.Background()
	sc := f.created(t)
	lines, err := f.store.ListCartLines(ctx, f.cart.ID)
	require.NoError(t, err)
	_, err = f.store.AddCartLine(ctx, f.cart.ID, lines[0].ProductID, 1)
	require.NoError(t, err)

	_, err = f.service.CapturePayment(ctx, sc, "PAY-1")

	assert.ErrorIs(t, err, ErrCartChanged)
	assert.Equal(t, 0, f.gateway.captureCount())
	found, err := sc.Load(ctx, session.KeyCheckoutData, &StagedCheckout{})
	require.NoError(t, err)
	assert.True(t, found)

	// a fresh create stages the new total and capture goes through
	created, err := f.service.CreatePayment(ctx, sc, nil)
	require.NoError(t, err)
	assert.True(t, created.Amount.GreaterThan(decimal.RequireFromString("45")))
	result, err := f.service.CapturePayment(ctx, sc, "PAY-1")
	require.NoError(t, err)
	assert.True(t, result.Order.Total.Equal(created.Amount))
}

func TestService_CapturePayment_OrphanWhenLedgerWriteFails(t *testing.T) {
	f := newTestPaymentService(t)
	ctx := context.Background()
	sc := f.created(t)
	f.store.FailOn("CreateTransaction", errors.New("disk full"))

	_, err := f.service.CapturePayment(ctx, sc, "PAY-1")

	assert.ErrorIs(t, err, ErrCaptureNotRecorded)
	assert.Equal(t, 0, f.store.OrderCount())
	assert.Equal(t, 2, f.cartCount(t))

	recs, err := f.store.ListReconciliations(ctx, model.ReconciliationOpen)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "PAY-1", recs[0].ExternalOrderID)
	assert.True(t, recs[0].Amount.Equal(decimal.RequireFromString("45")))
	assert.Equal(t, []string{events.TypeCaptureOrphaned}, eventTypes(f.publisher.Calls()))
}

func TestService_CapturePayment_OrphanWhenCommitFails(t *testing.T) {
	f := newTestPaymentService(t)
	ctx := context.Background()
	sc := f.created(t)
	f.store.FailOn("Commit", errors.New("connection reset"))

	_, err := f.service.CapturePayment(ctx, sc, "PAY-1")

	assert.ErrorIs(t, err, ErrCaptureNotRecorded)
	assert.Equal(t, 0, f.store.OrderCount())
	assert.Equal(t, 0, f.store.TransactionCount())
	recs, err := f.store.ListReconciliations(ctx, "")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestService_CapturePayment_RequiresLogin(t *testing.T) {
	f := newTestPaymentService(t)

	_, err := f.service.CapturePayment(context.Background(), session.New("anon", f.staging), "PAY-1")

	assert.ErrorIs(t, err, order.ErrLoginRequired)
}

// ============================================
// End-to-end with the REST adapter
// ============================================

func TestService_WithPayPalClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/oauth2/token":
			_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":3600}`))
		case "/v2/checkout/orders":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"PAY-9","status":"CREATED"}`))
		case "/v2/checkout/orders/PAY-9/capture":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"PAY-9","status":"COMPLETED","purchase_units":[{"payments":{"captures":[{"amount":{"currency_code":"USD","value":"45.00"}}]}}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := newTestPaymentService(t)
	client := paypal.NewClient(paypal.Config{ClientID: "id", Secret: "secret", BaseURL: srv.URL})
	svc := NewService(f.store, client, nil)
	ctx := context.Background()
	sc := f.session()

	created, err := svc.CreatePayment(ctx, sc, shippingForm())
	require.NoError(t, err)
	result, err := svc.CapturePayment(ctx, sc, created.ExternalOrderID)

	require.NoError(t, err)
	assert.Equal(t, "PAY-9", result.Order.TransactionID)
	assert.Equal(t, 1, f.store.OrderCount())
}
