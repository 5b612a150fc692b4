package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/storefront/internal/crud"
	"github.com/example/storefront/internal/domain/order"
	"github.com/example/storefront/internal/domain/user"
	"github.com/example/storefront/internal/infrastructure/store"
	"github.com/example/storefront/internal/model"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Dashboard returns the back office landing aggregates
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Dashboard(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// ============================================
// Generic entity handlers
// ============================================

// entityHandlers exposes a crud.Service over REST. setID pins the path id so
// a body cannot redirect an update to another row.
type entityHandlers[T any] struct {
	svc   *crud.Service[T]
	setID func(item *T, id string)
}

func (e entityHandlers[T]) list(w http.ResponseWriter, r *http.Request) {
	items, err := e.svc.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (e entityHandlers[T]) create(w http.ResponseWriter, r *http.Request) {
	var item T
	if _, err := decodeJSON(r, &item); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	e.setID(&item, "")
	if err := e.svc.Create(r.Context(), &item); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

func (e entityHandlers[T]) get(w http.ResponseWriter, r *http.Request) {
	item, err := e.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (e entityHandlers[T]) update(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || !json.Valid(bytes.TrimSpace(body)) {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	id := chi.URLParam(r, "id")
	item, err := e.svc.Update(r.Context(), id, func(item *T) error {
		if err := json.Unmarshal(body, item); err != nil {
			v := crud.NewValidationError()
			v.Add("body", err.Error())
			return v.Err()
		}
		e.setID(item, id)
		return nil
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (e entityHandlers[T]) remove(w http.ResponseWriter, r *http.Request) {
	if err := e.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (e entityHandlers[T]) routes(r chi.Router) {
	r.Get("/", e.list)
	r.Post("/", e.create)
	r.Get("/{id}", e.get)
	r.Put("/{id}", e.update)
	r.Delete("/{id}", e.remove)
}

func (h *Handlers) productAdmin() entityHandlers[model.Product] {
	return entityHandlers[model.Product]{
		svc:   h.catalog.Products,
		setID: func(p *model.Product, id string) { p.ID = id },
	}
}

func (h *Handlers) categoryAdmin() entityHandlers[model.Category] {
	return entityHandlers[model.Category]{
		svc:   h.catalog.Categories,
		setID: func(c *model.Category, id string) { c.ID = id },
	}
}

func (h *Handlers) accountAdmin() entityHandlers[model.Account] {
	return entityHandlers[model.Account]{
		svc:   h.users.Accounts,
		setID: func(a *model.Account, id string) { a.ID = id },
	}
}

// CreateUser lets staff create an account with any role
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		user.RegisterInput
		Role string `json:"role"`
	}
	if _, err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Role == "" {
		req.Role = model.RoleCustomer
	}

	account, profile, err := h.users.RegisterWithRole(r.Context(), req.RegisterInput, req.Role)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"user": account, "profile": profile})
}

// ============================================
// Orders
// ============================================

func orderFilter(r *http.Request) store.OrderFilter {
	q := r.URL.Query()
	filter := store.OrderFilter{AccountID: q.Get("user")}
	if status, ok := order.ParseStatus(q.Get("status")); ok {
		filter.Status = status
	}
	return filter
}

func (h *Handlers) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context(), orderFilter(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) AdminGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// AdminEditOrder changes costs and notes, then recalculates totals
func (h *Handlers) AdminEditOrder(w http.ResponseWriter, r *http.Request) {
	var edit order.AdminEdit
	if _, err := decodeJSON(r, &edit); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	o, err := h.orders.Edit(r.Context(), chi.URLParam(r, "orderID"), edit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// UpdateOrderStatus applies the posted status; unknown values are ignored
func (h *Handlers) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if isJSON(r) {
		if _, err := decodeJSON(r, &req); err != nil {
			respondJSONError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	} else {
		req.Status = r.FormValue("status")
	}

	orderID := chi.URLParam(r, "orderID")
	changed, err := h.orders.UpdateStatus(r.Context(), orderID, req.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	o, err := h.orders.Get(r.Context(), orderID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"changed": changed,
		"status":  o.Status,
	})
}

func (h *Handlers) AdminDeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Delete(r.Context(), chi.URLParam(r, "orderID")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportOrders downloads the filtered orders as a spreadsheet
func (h *Handlers) ExportOrders(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.admin.ExportOrders(r.Context(), orderFilter(r), &buf); err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Disposition", "attachment; filename=orders.xlsx")
	w.Header().Set("Content-Type", xlsxContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// ============================================
// Reconciliations
// ============================================

func (h *Handlers) ListReconciliations(w http.ResponseWriter, r *http.Request) {
	recs, err := h.admin.Reconciliations(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, recs)
}

func (h *Handlers) ResolveReconciliation(w http.ResponseWriter, r *http.Request) {
	rec, err := h.admin.ResolveReconciliation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}
