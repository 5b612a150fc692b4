package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/example/storefront/internal/api/middleware"
	"github.com/example/storefront/internal/domain/cart"
	"github.com/example/storefront/internal/model"
)

// CartResponse is the shape every cart mutation answers with
type CartResponse struct {
	Success   bool            `json:"success"`
	CartCount int             `json:"cart_count"`
	ItemTotal decimal.Decimal `json:"item_total"`
	Subtotal  decimal.Decimal `json:"cart_subtotal"`
	Tax       decimal.Decimal `json:"cart_tax"`
	Total     decimal.Decimal `json:"cart_total"`
	Cart      *cart.Summary   `json:"cart"`
	MiniCart  cart.MiniCart   `json:"mini_cart"`
	Message   string          `json:"message,omitempty"`
}

func newCartResponse(sum *cart.Summary, line *model.CartLine, message string) CartResponse {
	resp := CartResponse{
		Success:   true,
		CartCount: sum.Count,
		ItemTotal: decimal.Zero,
		Subtotal:  sum.Subtotal,
		Tax:       sum.Tax,
		Total:     sum.Total,
		Cart:      sum,
		MiniCart:  sum.Mini(),
		Message:   message,
	}
	if line != nil {
		for _, l := range sum.Lines {
			if l.ID == line.ID {
				resp.ItemTotal = l.Total
			}
		}
	}
	return resp
}

// positiveInt reads an optional positive integer form value
func positiveInt(r *http.Request, key string, fallback int) (int, bool) {
	raw := r.FormValue(key)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// GetCart renders the current cart
func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	sc := middleware.GetSession(r)
	sum, err := h.carts.Summary(r.Context(), sc)
	if err != nil {
		respondError(w, r, err)
		return
	}

	flashes, err := sc.PopFlashes(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"cart":      sum,
		"mini_cart": sum.Mini(),
		"messages":  flashes,
	})
}

// AddToCart adds one unit, or ?quantity=n units, of a product
func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	sc := middleware.GetSession(r)
	quantity, ok := positiveInt(r, "quantity", 1)
	if !ok {
		respondError(w, r, cart.ErrInvalidQuantity)
		return
	}

	line, err := h.carts.Add(r.Context(), sc, chi.URLParam(r, "productID"), quantity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	sum, err := h.carts.Summary(r.Context(), sc)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newCartResponse(sum, line, line.Product.Name+" added to cart"))
}

// UpdateCartItem applies action=increase|decrease to a line
func (h *Handlers) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	sc := middleware.GetSession(r)
	lineID := chi.URLParam(r, "lineID")
	amount, ok := positiveInt(r, "amount", 1)
	if !ok {
		respondError(w, r, cart.ErrInvalidQuantity)
		return
	}

	var (
		line *model.CartLine
		err  error
	)
	switch r.FormValue("action") {
	case "increase":
		line, err = h.carts.Increase(r.Context(), sc, lineID, amount)
	case "decrease":
		line, err = h.carts.Decrease(r.Context(), sc, lineID, amount)
	default:
		respondJSONError(w, "action must be increase or decrease", http.StatusBadRequest)
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}

	sum, err := h.carts.Summary(r.Context(), sc)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newCartResponse(sum, line, ""))
}

// RemoveCartItem deletes a line
func (h *Handlers) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	sc := middleware.GetSession(r)
	if err := h.carts.Remove(r.Context(), sc, chi.URLParam(r, "lineID")); err != nil {
		respondError(w, r, err)
		return
	}

	sum, err := h.carts.Summary(r.Context(), sc)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newCartResponse(sum, nil, "Item removed"))
}

// ClearCart empties the cart
func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	sc := middleware.GetSession(r)
	if err := h.carts.Clear(r.Context(), sc); err != nil {
		respondError(w, r, err)
		return
	}

	sum, err := h.carts.Summary(r.Context(), sc)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newCartResponse(sum, nil, "Cart cleared"))
}
