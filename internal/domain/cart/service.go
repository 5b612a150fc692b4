package cart

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"github.com/example/storefront/internal/infrastructure/store"
	"github.com/example/storefront/internal/model"
	"github.com/example/storefront/internal/session"
)

// miniCartLines caps the lines shown in the header mini-cart
const miniCartLines = 5

var (
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrProductNotFound = errors.New("product not found")
	ErrLineNotFound    = errors.New("cart line not found")
)

type Service struct {
	store store.Store
}

func NewService(s store.Store) *Service {
	return &Service{store: s}
}

// Owner maps the session to the cart owner: the account when logged in,
// otherwise the anonymous session key
func Owner(sc *session.Context) (store.CartOwner, error) {
	if sc.IsAuthenticated() {
		return store.CartOwner{AccountID: sc.UserID}, nil
	}
	if sc == nil || sc.SessionKey == "" {
		return store.CartOwner{}, session.ErrNoSession
	}
	return store.CartOwner{SessionKey: sc.SessionKey}, nil
}

// Resolve finds or creates the caller's cart
func (s *Service) Resolve(ctx context.Context, sc *session.Context) (*model.Cart, error) {
	owner, err := Owner(sc)
	if err != nil {
		return nil, err
	}
	c, err := s.store.EnsureCart(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cart: %w", err)
	}
	return c, nil
}

// find returns the caller's existing cart without creating one
func (s *Service) find(ctx context.Context, sc *session.Context) (*model.Cart, error) {
	owner, err := Owner(sc)
	if err != nil {
		return nil, err
	}
	c, err := s.store.FindCart(ctx, owner)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrLineNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find cart: %w", err)
	}
	return c, nil
}

// Add puts quantity units of the product in the cart, merging with an
// existing line for the same product
func (s *Service) Add(ctx context.Context, sc *session.Context, productID string, quantity int) (*model.CartLine, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	product, err := s.store.Products().Get(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	if !product.IsActive {
		return nil, ErrProductNotFound
	}

	c, err := s.Resolve(ctx, sc)
	if err != nil {
		return nil, err
	}

	line, err := s.store.AddCartLine(ctx, c.ID, product.ID, quantity)
	if errors.Is(err, store.ErrReferenced) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add to cart: %w", err)
	}
	return line, nil
}

func (s *Service) Increase(ctx context.Context, sc *session.Context, lineID string, amount int) (*model.CartLine, error) {
	if amount <= 0 {
		return nil, ErrInvalidQuantity
	}
	c, err := s.find(ctx, sc)
	if err != nil {
		return nil, err
	}

	line, err := s.store.AdjustCartLine(ctx, c.ID, lineID, amount)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrLineNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to increase quantity: %w", err)
	}
	return line, nil
}

// Decrease lowers the quantity. A line that would reach zero or below is
// deleted and a nil line is returned.
func (s *Service) Decrease(ctx context.Context, sc *session.Context, lineID string, amount int) (*model.CartLine, error) {
	if amount <= 0 {
		return nil, ErrInvalidQuantity
	}
	c, err := s.find(ctx, sc)
	if err != nil {
		return nil, err
	}

	line, err := s.store.AdjustCartLine(ctx, c.ID, lineID, -amount)
	if err == nil {
		return line, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to decrease quantity: %w", err)
	}

	// the guarded update refused: either the line is gone or it would drop below one
	if err := s.store.DeleteCartLine(ctx, c.ID, lineID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrLineNotFound
		}
		return nil, fmt.Errorf("failed to remove line: %w", err)
	}
	return nil, nil
}

func (s *Service) Remove(ctx context.Context, sc *session.Context, lineID string) error {
	c, err := s.find(ctx, sc)
	if err != nil {
		return err
	}
	if err := s.store.DeleteCartLine(ctx, c.ID, lineID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrLineNotFound
		}
		return fmt.Errorf("failed to remove line: %w", err)
	}
	return nil
}

func (s *Service) Clear(ctx context.Context, sc *session.Context) error {
	c, err := s.Resolve(ctx, sc)
	if err != nil {
		return err
	}
	if err := s.store.ClearCart(ctx, c.ID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

// Summary returns the cart priced at live catalog prices
func (s *Service) Summary(ctx context.Context, sc *session.Context) (*Summary, error) {
	c, err := s.Resolve(ctx, sc)
	if err != nil {
		return nil, err
	}
	lines, err := s.store.ListCartLines(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart lines: %w", err)
	}
	return Summarize(c.ID, lines), nil
}

// MergeGuestCart moves the lines of the session's guest cart into the
// account's cart, summing quantities per product, then deletes the guest cart.
func (s *Service) MergeGuestCart(ctx context.Context, sessionKey, accountID string) error {
	if sessionKey == "" || accountID == "" {
		return nil
	}

	merged := 0
	err := s.store.WithinTx(ctx, func(tx store.Store) error {
		guest, err := tx.FindCart(ctx, store.CartOwner{SessionKey: sessionKey})
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to find guest cart: %w", err)
		}

		lines, err := tx.ListCartLines(ctx, guest.ID)
		if err != nil {
			return fmt.Errorf("failed to list guest cart: %w", err)
		}

		if len(lines) > 0 {
			target, err := tx.EnsureCart(ctx, store.CartOwner{AccountID: accountID})
			if err != nil {
				return fmt.Errorf("failed to resolve account cart: %w", err)
			}
			for _, l := range lines {
				if _, err := tx.AddCartLine(ctx, target.ID, l.ProductID, l.Quantity); err != nil {
					return fmt.Errorf("failed to merge line %s: %w", l.ID, err)
				}
			}
			merged = len(lines)
		}

		if err := tx.DeleteCart(ctx, guest.ID); err != nil {
			return fmt.Errorf("failed to delete guest cart: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if merged > 0 {
		log.Printf("[Cart] Merged %d guest lines into cart of account %s", merged, accountID)
	}
	return nil
}

// LineView is a cart line priced for display
type LineView struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	ImageURL  string          `json:"image_url,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Total     decimal.Decimal `json:"total"`
}

type Summary struct {
	CartID   string          `json:"cart_id"`
	Count    int             `json:"count"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
	Lines    []LineView      `json:"lines"`
}

// MiniCart is the compact projection shown in the page header
type MiniCart struct {
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
	Lines []LineView      `json:"lines"`
}

// Summarize prices lines at their live product price. Tax is always zero.
func Summarize(cartID string, lines []model.CartLine) *Summary {
	sum := &Summary{
		CartID:   cartID,
		Subtotal: decimal.Zero,
		Tax:      decimal.Zero,
		Lines:    make([]LineView, 0, len(lines)),
	}
	for _, l := range lines {
		total := l.Total()
		sum.Count += l.Quantity
		sum.Subtotal = sum.Subtotal.Add(total)
		sum.Lines = append(sum.Lines, LineView{
			ID:        l.ID,
			ProductID: l.ProductID,
			Name:      l.Product.Name,
			ImageURL:  l.Product.ImageURL,
			Price:     l.Product.Price,
			Quantity:  l.Quantity,
			Total:     total,
		})
	}
	sum.Total = sum.Subtotal.Add(sum.Tax)
	return sum
}

func (s *Summary) IsEmpty() bool {
	return s.Count == 0
}

func (s *Summary) Mini() MiniCart {
	lines := s.Lines
	if len(lines) > miniCartLines {
		lines = lines[:miniCartLines]
	}
	return MiniCart{Count: s.Count, Total: s.Total, Lines: lines}
}
