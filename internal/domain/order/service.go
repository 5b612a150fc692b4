package order

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"github.com/example/storefront/internal/crud"
	"github.com/example/storefront/internal/events"
	"github.com/example/storefront/internal/infrastructure/store"
	"github.com/example/storefront/internal/model"
	"github.com/example/storefront/internal/session"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrEmptyCart     = errors.New("cart is empty")
	ErrLoginRequired = errors.New("login required")
)

type Service struct {
	store     store.Store
	publisher events.Publisher
}

func NewService(s store.Store, p events.Publisher) *Service {
	return &Service{store: s, publisher: p}
}

// PlaceParams describes an order to materialize from a cart
type PlaceParams struct {
	AccountID     string
	CartID        string
	Form          ShippingForm
	Status        model.OrderStatus
	PaymentStatus bool
	TransactionID string
}

// PlaceFromCart copies the cart into a new order at current prices,
// persists totals and empties the cart. Call it with a transactional
// store; a failure leaves partial writes that the caller must roll back.
func PlaceFromCart(ctx context.Context, tx store.Store, p PlaceParams) (*model.Order, error) {
	cartLines, err := tx.ListCartLines(ctx, p.CartID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart lines: %w", err)
	}
	if len(cartLines) == 0 {
		return nil, ErrEmptyCart
	}

	status := p.Status
	if status == "" {
		status = model.OrderPending
	}
	o := &model.Order{
		AccountID:     p.AccountID,
		Shipping:      p.Form.Shipping(),
		PaymentMethod: p.Form.PaymentMethod,
		PaymentStatus: p.PaymentStatus,
		TransactionID: p.TransactionID,
		Status:        status,
		Subtotal:      decimal.Zero,
		Tax:           decimal.Zero,
		ShippingCost:  decimal.Zero,
		Discount:      decimal.Zero,
		Total:         decimal.Zero,
		Notes:         p.Form.Notes,
	}
	if err := tx.CreateOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	for _, cl := range cartLines {
		line := &model.OrderLine{
			OrderID:     o.ID,
			ProductID:   cl.ProductID,
			ProductName: cl.Product.Name,
			Price:       cl.Product.Price,
			Quantity:    cl.Quantity,
		}
		if err := tx.CreateOrderLine(ctx, line); err != nil {
			return nil, fmt.Errorf("failed to create order line for product %s: %w", cl.ProductID, err)
		}
	}

	placed, err := Recalculate(ctx, tx, o.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.ClearCart(ctx, p.CartID); err != nil {
		return nil, fmt.Errorf("failed to clear cart: %w", err)
	}
	return placed, nil
}

// Checkout turns the caller's cart into a PENDING, unpaid order in one
// transaction. PayPal orders go through the payment flow instead.
func (s *Service) Checkout(ctx context.Context, sc *session.Context, form ShippingForm) (*model.Order, error) {
	if !sc.IsAuthenticated() {
		return nil, ErrLoginRequired
	}

	c, err := s.store.FindCart(ctx, store.CartOwner{AccountID: sc.UserID})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrEmptyCart
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find cart: %w", err)
	}
	lines, err := s.store.ListCartLines(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart lines: %w", err)
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	form.Normalize()
	if err := validateCheckout(&form); err != nil {
		return nil, err
	}

	var placed *model.Order
	err = s.store.WithinTx(ctx, func(tx store.Store) error {
		o, err := PlaceFromCart(ctx, tx, PlaceParams{
			AccountID: sc.UserID,
			CartID:    c.ID,
			Form:      form,
			Status:    model.OrderPending,
		})
		if err != nil {
			return err
		}
		placed = o
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrEmptyCart) {
			log.Printf("[Order] Checkout failed for account %s: %v", sc.UserID, err)
		}
		return nil, err
	}

	if err := sc.Stage(ctx, session.KeyOrderID, placed.ID); err != nil {
		log.Printf("[Order] Failed to stage order %s for success page: %v", placed.ID, err)
	}

	log.Printf("[Order] Placed order %s for account %s, total %s", placed.ID, sc.UserID, placed.Total.StringFixed(2))
	events.Emit(ctx, s.publisher, events.TypeOrderPlaced, placed.ID, events.OrderPlaced{
		OrderID:       placed.ID,
		AccountID:     placed.AccountID,
		PaymentMethod: string(placed.PaymentMethod),
		Total:         placed.Total,
		Lines:         len(placed.Lines),
	})
	return placed, nil
}

func validateCheckout(form *ShippingForm) error {
	err := form.Validate()
	if err == nil && form.PaymentMethod == model.PaymentPayPal {
		v := crud.NewValidationError()
		v.Add("payment_method", "PayPal payments are completed through the PayPal button")
		return v.Err()
	}
	return err
}

// UpdateStatus moves the order to raw. An unknown status string is ignored
// and reported as unchanged; a known but disallowed target is an error.
func (s *Service) UpdateStatus(ctx context.Context, orderID, raw string) (bool, error) {
	target, ok := ParseStatus(raw)
	if !ok {
		log.Printf("[Order] Ignoring unknown status %q for order %s", raw, orderID)
		return false, nil
	}

	var from model.OrderStatus
	err := s.store.WithinTx(ctx, func(tx store.Store) error {
		o, err := tx.GetOrder(ctx, orderID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get order: %w", err)
		}
		from = o.Status
		if from == target {
			return nil
		}
		if !CanTransition(from, target) {
			return transitionError(from, target)
		}
		o.Status = target
		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		return false, err
	}
	if from == target {
		return false, nil
	}

	events.Emit(ctx, s.publisher, events.TypeOrderStatusChanged, orderID, events.OrderStatusChanged{
		OrderID: orderID,
		From:    string(from),
		To:      string(target),
	})
	return true, nil
}

// Get returns the order with its lines
func (s *Service) Get(ctx context.Context, orderID string) (*model.Order, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	lines, err := s.store.ListOrderLines(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order lines: %w", err)
	}
	o.Lines = lines
	return o, nil
}

// GetFor returns the order if the caller owns it or is staff
func (s *Service) GetFor(ctx context.Context, sc *session.Context, orderID string) (*model.Order, error) {
	if !sc.IsAuthenticated() {
		return nil, ErrLoginRequired
	}
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.AccountID != sc.UserID && !sc.IsStaff() {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

// CompletedOrder returns the order just placed in this session, for the
// success page
func (s *Service) CompletedOrder(ctx context.Context, sc *session.Context) (*model.Order, error) {
	var orderID string
	found, err := sc.Load(ctx, session.KeyOrderID, &orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order id: %w", err)
	}
	if !found || orderID == "" {
		return nil, ErrOrderNotFound
	}
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if sc.IsAuthenticated() && o.AccountID != sc.UserID {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (s *Service) ListForAccount(ctx context.Context, accountID string) ([]model.Order, error) {
	return s.List(ctx, store.OrderFilter{AccountID: accountID})
}

func (s *Service) List(ctx context.Context, filter store.OrderFilter) ([]model.Order, error) {
	orders, err := s.store.ListOrders(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// AdminEdit holds the fields staff may change; nil means unchanged
type AdminEdit struct {
	ShippingCost *decimal.Decimal `json:"shipping_cost,omitempty"`
	Discount     *decimal.Decimal `json:"discount,omitempty"`
	Notes        *string          `json:"notes,omitempty"`
	AdminNotes   *string          `json:"admin_notes,omitempty"`
}

func (e AdminEdit) validate() error {
	v := crud.NewValidationError()
	if e.ShippingCost != nil && e.ShippingCost.IsNegative() {
		v.Add("shipping_cost", "must be zero or more")
	}
	if e.Discount != nil && e.Discount.IsNegative() {
		v.Add("discount", "must be zero or more")
	}
	return v.Err()
}

// Edit applies staff changes and recalculates totals in one transaction
func (s *Service) Edit(ctx context.Context, orderID string, edit AdminEdit) (*model.Order, error) {
	if err := edit.validate(); err != nil {
		return nil, err
	}

	var updated *model.Order
	err := s.store.WithinTx(ctx, func(tx store.Store) error {
		o, err := tx.GetOrder(ctx, orderID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get order: %w", err)
		}
		if edit.ShippingCost != nil {
			o.ShippingCost = *edit.ShippingCost
		}
		if edit.Discount != nil {
			o.Discount = *edit.Discount
		}
		if edit.Notes != nil {
			o.Notes = *edit.Notes
		}
		if edit.AdminNotes != nil {
			o.AdminNotes = *edit.AdminNotes
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}
		updated, err = Recalculate(ctx, tx, orderID)
		return err
	})
	if errors.Is(err, ErrNegativeTotal) {
		v := crud.NewValidationError()
		v.Add("discount", "discount exceeds order amount")
		return nil, v.Err()
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete force-removes an order and its lines
func (s *Service) Delete(ctx context.Context, orderID string) error {
	err := s.store.DeleteOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	log.Printf("[Order] Deleted order %s", orderID)
	return nil
}
