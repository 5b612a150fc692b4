package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/storefront/internal/api/middleware"
)

// ListProducts lists active products, optionally ?category=<slug>
func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.GetProduct(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (h *Handlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, categories)
}

// ToggleFavorite flips the product in the caller's favorites
func (h *Handlers) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	favorite, err := h.catalog.ToggleFavorite(r.Context(), middleware.GetUserID(r), chi.URLParam(r, "productID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "favorite": favorite})
}

func (h *Handlers) ListFavorites(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListFavorites(r.Context(), middleware.GetUserID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}
