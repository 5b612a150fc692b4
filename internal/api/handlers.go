package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/sony/gobreaker/v2"

	"github.com/example/storefront/internal/api/middleware"
	"github.com/example/storefront/internal/auth"
	"github.com/example/storefront/internal/crud"
	"github.com/example/storefront/internal/domain/admin"
	"github.com/example/storefront/internal/domain/cart"
	"github.com/example/storefront/internal/domain/catalog"
	"github.com/example/storefront/internal/domain/order"
	"github.com/example/storefront/internal/domain/payment"
	"github.com/example/storefront/internal/domain/user"
	"github.com/example/storefront/internal/infrastructure/paypal"
	"github.com/example/storefront/internal/infrastructure/store"
	"github.com/example/storefront/internal/session"
)

const maxBodyBytes = 1 << 20

// Services bundles the domain services the HTTP layer drives
type Services struct {
	Cart    *cart.Service
	Order   *order.Service
	Payment *payment.Service
	Catalog *catalog.Service
	User    *user.Service
	Admin   *admin.Service
	JWT     *auth.JWTService
}

type Handlers struct {
	carts    *cart.Service
	orders   *order.Service
	payments *payment.Service
	catalog  *catalog.Service
	users    *user.Service
	admin    *admin.Service
	jwt      *auth.JWTService

	secureCookies bool
}

func NewHandlers(s Services, secureCookies bool) *Handlers {
	return &Handlers{
		carts:         s.Cart,
		orders:        s.Order,
		payments:      s.Payment,
		catalog:       s.Catalog,
		users:         s.User,
		admin:         s.Admin,
		jwt:           s.JWT,
		secureCookies: secureCookies,
	}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[API] Failed to encode response: %v", err)
	}
}

// respondJSONError writes the {"success":false,"error":...} failure shape
func respondJSONError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, status, map[string]any{"success": false, "error": message})
}

// respondError maps a domain error to its HTTP form. Unexpected errors are
// logged and reported with a generic message.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr    *crud.ValidationError
		gateway *paypal.GatewayError
	)
	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "validation_failed",
			"fields":  verr.Fields,
		})

	case errors.Is(err, order.ErrLoginRequired), errors.Is(err, session.ErrNoSession):
		respondJSONError(w, middleware.ErrLoginRequired, http.StatusForbidden)

	case isNotFound(err):
		respondJSON(w, http.StatusNotFound, map[string]any{"success": false})

	case errors.As(err, &gateway):
		log.Printf("[API] %s %s: gateway error: %v", r.Method, r.URL.Path, err)
		respondJSON(w, http.StatusBadGateway, map[string]any{
			"success": false,
			"error":   gateway.Message(),
			"details": json.RawMessage(gatewayDetails([]byte(gateway.Body))),
		})
	case errors.Is(err, paypal.ErrNotConfigured), errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		log.Printf("[API] %s %s: gateway unavailable: %v", r.Method, r.URL.Path, err)
		respondJSONError(w, "payment gateway unavailable", http.StatusServiceUnavailable)

	case errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, payment.ErrMissingOrderID),
		errors.Is(err, payment.ErrNoCheckoutData),
		errors.Is(err, payment.ErrCaptureNotCompleted):
		respondJSONError(w, err.Error(), http.StatusBadRequest)

	case errors.Is(err, user.ErrInvalidCredentials):
		respondJSONError(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, user.ErrUserDeactivated):
		respondJSONError(w, err.Error(), http.StatusForbidden)

	case errors.Is(err, order.ErrInvalidTransition), errors.Is(err, order.ErrOrderClosed):
		respondJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, user.ErrEmailTaken), errors.Is(err, payment.ErrCheckoutMismatch), errors.Is(err, payment.ErrCartChanged):
		respondJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, store.ErrConflict):
		respondJSONError(w, "record already exists", http.StatusConflict)
	case errors.Is(err, store.ErrReferenced):
		respondJSONError(w, "record is in use", http.StatusConflict)

	case errors.Is(err, context.DeadlineExceeded):
		log.Printf("[API] %s %s: timeout: %v", r.Method, r.URL.Path, err)
		respondJSONError(w, "request timed out", http.StatusGatewayTimeout)
	case errors.Is(err, paypal.ErrUnavailable):
		log.Printf("[API] %s %s: gateway unreachable: %v", r.Method, r.URL.Path, err)
		respondJSONError(w, "payment gateway unavailable", http.StatusBadGateway)

	default:
		log.Printf("[API] %s %s: %v", r.Method, r.URL.Path, err)
		respondJSONError(w, "internal server error", http.StatusInternalServerError)
	}
}

func isNotFound(err error) bool {
	for _, target := range []error{
		store.ErrNotFound,
		cart.ErrLineNotFound,
		cart.ErrProductNotFound,
		catalog.ErrProductNotFound,
		catalog.ErrCategoryNotFound,
		order.ErrOrderNotFound,
		user.ErrUserNotFound,
		admin.ErrReconciliationNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// gatewayDetails passes through a JSON gateway body and quotes anything else
func gatewayDetails(body []byte) []byte {
	if json.Valid(body) {
		return body
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}

// decodeJSON reads a JSON body. An empty body leaves v untouched and
// reports false.
func decodeJSON(r *http.Request, v any) (bool, error) {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func isJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

// redirect answers browser form posts with 303 See Other
func redirect(w http.ResponseWriter, r *http.Request, target string) {
	http.Redirect(w, r, target, http.StatusSeeOther)
}
