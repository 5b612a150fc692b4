package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/example/storefront/internal/api/middleware"
	"github.com/example/storefront/internal/domain/order"
	"github.com/example/storefront/internal/model"
	"github.com/example/storefront/internal/session"
)

const (
	cartPath         = "/cart"
	orderSuccessPath = "/order/success"
	homePath         = "/"

	emptyCartWarning = "Your cart is empty"
)

// shippingForm reads the checkout form from a JSON or urlencoded body.
// It reports false when the request carried no form at all.
func shippingForm(r *http.Request) (order.ShippingForm, bool, error) {
	var f order.ShippingForm
	if isJSON(r) {
		found, err := decodeJSON(r, &f)
		return f, found, err
	}
	if err := r.ParseForm(); err != nil {
		return f, false, err
	}
	if len(r.PostForm) == 0 {
		return f, false, nil
	}
	f = order.ShippingForm{
		Name:          r.PostForm.Get("shipping_name"),
		Email:         r.PostForm.Get("shipping_email"),
		Phone:         r.PostForm.Get("shipping_phone"),
		Address:       r.PostForm.Get("shipping_address"),
		City:          r.PostForm.Get("shipping_city"),
		Region:        r.PostForm.Get("shipping_region"),
		PostalCode:    r.PostForm.Get("shipping_postal_code"),
		PaymentMethod: model.PaymentMethod(r.PostForm.Get("payment_method")),
		Notes:         r.PostForm.Get("notes"),
	}
	return f, true, nil
}

// warnEmptyCart sends the shopper back to the cart with a warning
func warnEmptyCart(w http.ResponseWriter, r *http.Request, sc *session.Context) {
	if err := sc.AddFlash(r.Context(), "warning", emptyCartWarning); err != nil {
		log.Printf("[API] Failed to queue flash: %v", err)
	}
	redirect(w, r, cartPath)
}

// CheckoutForm renders the shipping form pre-filled from the profile
func (h *Handlers) CheckoutForm(w http.ResponseWriter, r *http.Request) {
	sc := middleware.GetSession(r)
	sum, err := h.carts.Summary(r.Context(), sc)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if sum.IsEmpty() {
		warnEmptyCart(w, r, sc)
		return
	}

	account, err := h.users.Get(r.Context(), sc.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	profile, err := h.users.GetProfile(r.Context(), sc.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"form":            order.Prefill(account, profile),
		"cart":            sum,
		"payment_methods": model.PaymentMethods,
	})
}

// Checkout places a non-PayPal order and redirects to the success page
func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	sc := middleware.GetSession(r)
	form, _, err := shippingForm(r)
	if err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	_, err = h.orders.Checkout(r.Context(), sc, form)
	if errors.Is(err, order.ErrEmptyCart) {
		warnEmptyCart(w, r, sc)
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	redirect(w, r, orderSuccessPath)
}

// CreatePayment opens a PayPal order for the cart total
func (h *Handlers) CreatePayment(w http.ResponseWriter, r *http.Request) {
	sc := middleware.GetSession(r)
	form, submitted, err := shippingForm(r)
	if err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var formPtr *order.ShippingForm
	if submitted {
		formPtr = &form
	}
	created, err := h.payments.CreatePayment(r.Context(), sc, formPtr)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"order_id": created.ExternalOrderID,
		"amount":   created.Amount,
		"currency": created.Currency,
	})
}

// CapturePayment charges an approved PayPal order and records the local order
func (h *Handlers) CapturePayment(w http.ResponseWriter, r *http.Request) {
	sc := middleware.GetSession(r)

	var req struct {
		OrderID string `json:"order_id"`
	}
	if isJSON(r) {
		if _, err := decodeJSON(r, &req); err != nil {
			respondJSONError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	} else {
		req.OrderID = r.FormValue("order_id")
	}

	result, err := h.payments.CapturePayment(r.Context(), sc, req.OrderID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	resp := map[string]any{
		"success":          true,
		"status":           "success",
		"transaction_id":   req.OrderID,
		"order_id":         result.Order.ID,
		"redirect_url":     orderSuccessPath,
		"already_captured": result.AlreadyCaptured,
	}
	if result.Capture != nil {
		resp["capture"] = map[string]any{
			"id":       result.Capture.ID,
			"status":   result.Capture.Status,
			"amount":   result.Capture.Amount,
			"currency": result.Capture.Currency,
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// OrderSuccess shows the order just placed in this session
func (h *Handlers) OrderSuccess(w http.ResponseWriter, r *http.Request) {
	sc := middleware.GetSession(r)
	o, err := h.orders.CompletedOrder(r.Context(), sc)
	if errors.Is(err, order.ErrOrderNotFound) {
		redirect(w, r, homePath)
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"order": o})
}
