package api

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/storefront/internal/api/middleware"
	"github.com/example/storefront/internal/domain/user"
	"github.com/example/storefront/internal/model"
)

const (
	refreshTokenCookie = "refresh_token"
	refreshCookiePath  = "/auth/refresh"
)

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse represents the authentication response
type AuthResponse struct {
	User        UserResponse `json:"user"`
	AccessToken string       `json:"access_token,omitempty"`
	Message     string       `json:"message,omitempty"`
}

// UserResponse represents user data in responses
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserResponse(a *model.Account) UserResponse {
	return UserResponse{
		ID:        a.ID,
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Role:      a.Role,
		CreatedAt: a.CreatedAt,
	}
}

// Register handles user registration
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req user.RegisterInput
	if _, err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	account, _, err := h.users.Register(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}

	token, ok := h.setAuthCookies(w, account)
	if !ok {
		respondJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.mergeGuestCart(r, account.ID)

	respondJSON(w, http.StatusCreated, AuthResponse{
		User:        newUserResponse(account),
		AccessToken: token,
		Message:     "Registration successful",
	})
}

// Login authenticates and moves the guest cart into the account cart
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if _, err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	account, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}

	token, ok := h.setAuthCookies(w, account)
	if !ok {
		respondJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.mergeGuestCart(r, account.ID)

	respondJSON(w, http.StatusOK, AuthResponse{
		User:        newUserResponse(account),
		AccessToken: token,
		Message:     "Login successful",
	})
}

// mergeGuestCart is best-effort; a failed merge leaves the guest cart intact
func (h *Handlers) mergeGuestCart(r *http.Request, accountID string) {
	sc := middleware.GetSession(r)
	if err := h.carts.MergeGuestCart(r.Context(), sc.SessionKey, accountID); err != nil {
		log.Printf("[API] Failed to merge guest cart for account %s: %v", accountID, err)
	}
}

// Logout handles user logout
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearAuthCookies(w)
	respondJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

// Refresh issues a new token pair from the refresh cookie
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshCookie, err := r.Cookie(refreshTokenCookie)
	if err != nil {
		respondJSONError(w, "No refresh token", http.StatusUnauthorized)
		return
	}

	userID, err := h.jwt.ValidateRefreshToken(refreshCookie.Value)
	if err != nil {
		h.clearAuthCookies(w)
		respondJSONError(w, "Invalid refresh token", http.StatusUnauthorized)
		return
	}

	account, err := h.users.Get(r.Context(), userID)
	if err != nil {
		h.clearAuthCookies(w)
		respondJSONError(w, "User not found", http.StatusUnauthorized)
		return
	}
	if !account.IsActive {
		h.clearAuthCookies(w)
		respondJSONError(w, "Account is deactivated", http.StatusForbidden)
		return
	}

	token, ok := h.setAuthCookies(w, account)
	if !ok {
		respondJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, AuthResponse{
		User:        newUserResponse(account),
		AccessToken: token,
		Message:     "Token refreshed",
	})
}

// Me returns the current authenticated user's information
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	account, err := h.users.Get(r.Context(), middleware.GetUserID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newUserResponse(account))
}

// GetProfile returns the account and its profile
func (h *Handlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	account, err := h.users.Get(r.Context(), userID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	profile, err := h.users.GetProfile(r.Context(), userID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user":    newUserResponse(account),
		"profile": profile,
	})
}

// UpdateProfile saves the profile form
func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req user.ProfileUpdate
	if _, err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	account, profile, err := h.users.UpdateProfile(r.Context(), middleware.GetUserID(r), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user":    newUserResponse(account),
		"profile": profile,
	})
}

// ChangePassword handles password change requests
func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if _, err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.users.ChangePassword(r.Context(), middleware.GetUserID(r), req.CurrentPassword, req.NewPassword); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully"})
}

// MyOrders lists the caller's orders, newest first
func (h *Handlers) MyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListForAccount(r.Context(), middleware.GetUserID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

// GetOrder returns one of the caller's orders
func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetFor(r.Context(), middleware.GetSession(r), chi.URLParam(r, "orderID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// Helper methods

func (h *Handlers) setAuthCookies(w http.ResponseWriter, account *model.Account) (string, bool) {
	pair, err := h.jwt.Issue(account.ID, account.Email, account.Role)
	if err != nil {
		log.Printf("[API] Failed to issue tokens for %s: %v", account.ID, err)
		return "", false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    pair.AccessToken,
		Path:     "/",
		Expires:  pair.AccessExpiry,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    pair.RefreshToken,
		Path:     refreshCookiePath,
		Expires:  pair.RefreshExpiry,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	return pair.AccessToken, true
}

func (h *Handlers) clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
	})
}
