package payment

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/example/storefront/internal/domain/cart"
	"github.com/example/storefront/internal/domain/order"
	"github.com/example/storefront/internal/events"
	"github.com/example/storefront/internal/infrastructure/paypal"
	"github.com/example/storefront/internal/infrastructure/store"
	"github.com/example/storefront/internal/model"
	"github.com/example/storefront/internal/session"
)

var (
	ErrMissingOrderID      = errors.New("external order id is required")
	ErrNoCheckoutData      = errors.New("no checkout data in session")
	ErrCheckoutMismatch    = errors.New("checkout data belongs to another payment")
	ErrCartChanged         = errors.New("cart changed since the payment was created")
	ErrCaptureNotCompleted = errors.New("payment was not completed")
	ErrCaptureNotRecorded  = errors.New("payment captured but order could not be recorded")
)

// Gateway is the two-phase payment processor
type Gateway interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency, description string) (string, error)
	CaptureOrder(ctx context.Context, orderID string) (*paypal.Capture, error)
	Currency() string
}

// StagedCheckout is held in the session between create and capture
type StagedCheckout struct {
	Form            order.ShippingForm `json:"form"`
	ExternalOrderID string             `json:"external_order_id,omitempty"`
	Amount          decimal.Decimal    `json:"amount"`
	Currency        string             `json:"currency,omitempty"`
}

type Created struct {
	ExternalOrderID string          `json:"order_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
}

type CaptureResult struct {
	Order           *model.Order
	Capture         *paypal.Capture
	AlreadyCaptured bool
}

type Service struct {
	store     store.Store
	gateway   Gateway
	publisher events.Publisher
	inflight  singleflight.Group
}

func NewService(s store.Store, gw Gateway, p events.Publisher) *Service {
	return &Service{store: s, gateway: gw, publisher: p}
}

func (s *Service) cartSummary(ctx context.Context, accountID string) (*cart.Summary, error) {
	c, err := s.store.FindCart(ctx, store.CartOwner{AccountID: accountID})
	if errors.Is(err, store.ErrNotFound) {
		return nil, order.ErrEmptyCart
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find cart: %w", err)
	}
	lines, err := s.store.ListCartLines(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart lines: %w", err)
	}
	sum := cart.Summarize(c.ID, lines)
	if sum.IsEmpty() {
		return nil, order.ErrEmptyCart
	}
	return sum, nil
}

// CreatePayment opens a gateway order for the cart total. A submitted form
// is validated and staged; without one the previously staged form is reused.
func (s *Service) CreatePayment(ctx context.Context, sc *session.Context, form *order.ShippingForm) (*Created, error) {
	if !sc.IsAuthenticated() {
		return nil, order.ErrLoginRequired
	}

	sum, err := s.cartSummary(ctx, sc.UserID)
	if err != nil {
		return nil, err
	}

	var staged StagedCheckout
	if form != nil {
		form.Normalize()
		form.PaymentMethod = model.PaymentPayPal
		if err := form.Validate(); err != nil {
			return nil, err
		}
		staged.Form = *form
	} else {
		found, err := sc.Load(ctx, session.KeyCheckoutData, &staged)
		if err != nil {
			return nil, fmt.Errorf("failed to load checkout data: %w", err)
		}
		if !found {
			return nil, ErrNoCheckoutData
		}
	}

	currency := s.gateway.Currency()
	externalID, err := s.gateway.CreateOrder(ctx, sum.Total, currency, fmt.Sprintf("Storefront purchase - %d items", sum.Count))
	if err != nil {
		log.Printf("[Payment] Failed to create gateway order for account %s: %v", sc.UserID, err)
		return nil, err
	}

	staged.ExternalOrderID = externalID
	staged.Amount = sum.Total
	staged.Currency = currency
	if err := sc.Stage(ctx, session.KeyCheckoutData, staged); err != nil {
		return nil, fmt.Errorf("failed to stage checkout data: %w", err)
	}

	log.Printf("[Payment] Created gateway order %s for account %s, amount %s %s", externalID, sc.UserID, sum.Total.StringFixed(2), currency)
	return &Created{ExternalOrderID: externalID, Amount: sum.Total, Currency: currency}, nil
}

// CapturePayment charges an approved gateway order and materializes the
// local order. Concurrent and repeated captures of one external id yield a
// single order.
func (s *Service) CapturePayment(ctx context.Context, sc *session.Context, externalID string) (*CaptureResult, error) {
	if !sc.IsAuthenticated() {
		return nil, order.ErrLoginRequired
	}
	if externalID == "" {
		return nil, ErrMissingOrderID
	}

	// keyed per account so a caller never shares another account's result
	v, err, _ := s.inflight.Do(sc.UserID+":"+externalID, func() (any, error) {
		return s.capture(ctx, sc, externalID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*CaptureResult), nil
}

func (s *Service) capture(ctx context.Context, sc *session.Context, externalID string) (*CaptureResult, error) {
	if result, err := s.alreadyCaptured(ctx, sc, externalID); result != nil || err != nil {
		return result, err
	}

	var staged StagedCheckout
	found, err := sc.Load(ctx, session.KeyCheckoutData, &staged)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkout data: %w", err)
	}
	if !found {
		return nil, ErrNoCheckoutData
	}
	if staged.ExternalOrderID != "" && staged.ExternalOrderID != externalID {
		return nil, ErrCheckoutMismatch
	}

	// money must not move for a cart that can no longer become this order
	sum, err := s.cartSummary(ctx, sc.UserID)
	if err != nil {
		return nil, err
	}
	if !staged.Amount.IsZero() && !sum.Total.Equal(staged.Amount) {
		log.Printf("[Payment] Cart total %s for %s differs from staged %s, not capturing", sum.Total, externalID, staged.Amount)
		return nil, ErrCartChanged
	}

	capture, err := s.gateway.CaptureOrder(ctx, externalID)
	if err != nil {
		log.Printf("[Payment] Capture of %s failed: %v", externalID, err)
		return nil, err
	}
	if capture.Status != paypal.StatusCompleted {
		log.Printf("[Payment] Capture of %s returned status %s", externalID, capture.Status)
		return nil, fmt.Errorf("%w: status %s", ErrCaptureNotCompleted, capture.Status)
	}

	amount, currency := capture.Amount, capture.Currency
	if amount.IsZero() {
		amount = staged.Amount
	}
	if currency == "" {
		currency = staged.Currency
	}
	if !staged.Amount.IsZero() && !amount.Equal(staged.Amount) {
		log.Printf("[Payment] Captured amount %s for %s differs from staged %s", amount, externalID, staged.Amount)
	}

	var placed *model.Order
	err = s.store.WithinTx(ctx, func(tx store.Store) error {
		c, err := tx.FindCart(ctx, store.CartOwner{AccountID: sc.UserID})
		if err != nil {
			return fmt.Errorf("failed to find cart: %w", err)
		}
		o, err := order.PlaceFromCart(ctx, tx, order.PlaceParams{
			AccountID:     sc.UserID,
			CartID:        c.ID,
			Form:          staged.Form,
			Status:        model.OrderProcessing,
			PaymentStatus: true,
			TransactionID: externalID,
		})
		if err != nil {
			return err
		}
		if err := tx.CreateTransaction(ctx, &model.Transaction{
			ExternalOrderID: externalID,
			OrderID:         o.ID,
			Amount:          amount,
			Currency:        currency,
			Status:          model.TransactionCompleted,
		}); err != nil {
			return fmt.Errorf("failed to record transaction: %w", err)
		}
		placed = o
		return nil
	})
	if errors.Is(err, store.ErrConflict) {
		// another request recorded this capture first
		result, lookupErr := s.alreadyCaptured(ctx, sc, externalID)
		if result != nil {
			return result, nil
		}
		if lookupErr != nil {
			err = lookupErr
		}
	}
	if err != nil {
		s.reportOrphan(ctx, sc.UserID, externalID, amount, currency, err)
		return nil, fmt.Errorf("%w: %v", ErrCaptureNotRecorded, err)
	}

	if err := sc.Discard(ctx, session.KeyCheckoutData); err != nil {
		log.Printf("[Payment] Failed to discard checkout data: %v", err)
	}
	if err := sc.Stage(ctx, session.KeyOrderID, placed.ID); err != nil {
		log.Printf("[Payment] Failed to stage order %s for success page: %v", placed.ID, err)
	}

	log.Printf("[Payment] Captured %s %s for gateway order %s, order %s", amount.StringFixed(2), currency, externalID, placed.ID)
	events.Emit(ctx, s.publisher, events.TypePaymentCaptured, placed.ID, events.PaymentCaptured{
		OrderID:         placed.ID,
		ExternalOrderID: externalID,
		Amount:          amount,
		Currency:        currency,
	})
	events.Emit(ctx, s.publisher, events.TypeOrderPlaced, placed.ID, events.OrderPlaced{
		OrderID:       placed.ID,
		AccountID:     placed.AccountID,
		PaymentMethod: string(placed.PaymentMethod),
		Total:         placed.Total,
		Lines:         len(placed.Lines),
	})
	return &CaptureResult{Order: placed, Capture: capture}, nil
}

// alreadyCaptured returns the order recorded for externalID, or nil when
// the id has no ledger row yet
func (s *Service) alreadyCaptured(ctx context.Context, sc *session.Context, externalID string) (*CaptureResult, error) {
	txn, err := s.store.GetTransactionByExternalID(ctx, externalID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check transaction: %w", err)
	}
	if txn.OrderID == "" {
		return nil, fmt.Errorf("%w: order for %s was deleted", order.ErrOrderNotFound, externalID)
	}

	o, err := s.store.GetOrder(ctx, txn.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", txn.OrderID, err)
	}
	if o.AccountID != sc.UserID {
		return nil, ErrCheckoutMismatch
	}
	lines, err := s.store.ListOrderLines(ctx, o.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order lines: %w", err)
	}
	o.Lines = lines

	log.Printf("[Payment] Gateway order %s already captured as order %s", externalID, o.ID)
	return &CaptureResult{Order: o, AlreadyCaptured: true}, nil
}

// reportOrphan records a capture that has money but no order. The row is
// written directly when the store is reachable and the event lets the
// reconciler retry when it is not.
func (s *Service) reportOrphan(ctx context.Context, accountID, externalID string, amount decimal.Decimal, currency string, cause error) {
	log.Printf("[Payment] ALERT: gateway order %s captured %s %s for account %s but was not recorded: %v",
		externalID, amount.StringFixed(2), currency, accountID, cause)

	rec := &model.Reconciliation{
		ExternalOrderID: externalID,
		AccountID:       accountID,
		Amount:          amount,
		Currency:        currency,
		Reason:          cause.Error(),
		Status:          model.ReconciliationOpen,
	}
	if err := s.store.CreateReconciliation(ctx, rec); err != nil && !errors.Is(err, store.ErrConflict) {
		log.Printf("[Payment] Failed to record reconciliation for %s: %v", externalID, err)
	}

	events.Emit(ctx, s.publisher, events.TypeCaptureOrphaned, externalID, events.CaptureOrphaned{
		ExternalOrderID: externalID,
		AccountID:       accountID,
		Amount:          amount,
		Currency:        currency,
		Reason:          cause.Error(),
	})
}
