package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/example/storefront/internal/auth"
	"github.com/example/storefront/internal/model"
	"github.com/example/storefront/internal/session"
)

const (
	SessionCookieName = "sessionid"
	AccessTokenCookie = "access_token"

	// ErrLoginRequired is the error code sent to anonymous purchase attempts
	ErrLoginRequired = "login_required"
)

// respondError writes a JSON error response
func respondError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": message})
}

// ExtractToken extracts JWT token from cookie or Authorization header
func ExtractToken(r *http.Request) string {
	// Try cookie first (for browser)
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil {
		return cookie.Value
	}
	// Fall back to Authorization header (for API clients)
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// sessionKey returns the request's session key, issuing a new cookie when
// the browser has none or sent one we did not mint
func sessionKey(w http.ResponseWriter, r *http.Request, secure bool) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if _, err := uuid.Parse(cookie.Value); err == nil {
			return cookie.Value
		}
	}
	key := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    key,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return key
}

// Session attaches a session.Context to every request. The session key
// comes from the sessionid cookie; a valid access token adds the identity.
func Session(jwtService *auth.JWTService, staging session.Staging, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sc := session.New(sessionKey(w, r, secure), staging)
			if tokenString := ExtractToken(r); tokenString != "" {
				if claims, err := jwtService.ValidateAccessToken(tokenString); err == nil {
					sc = sc.WithIdentity(claims.UserID, claims.Email, claims.Role)
				}
			}
			next.ServeHTTP(w, r.WithContext(session.Into(r.Context(), sc)))
		})
	}
}

// RequireAuth rejects anonymous callers with 403 login_required
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !GetSession(r).IsAuthenticated() {
			respondError(w, ErrLoginRequired, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole checks if the user has one of the required roles
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sc := GetSession(r)
			if !sc.IsAuthenticated() {
				respondError(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			for _, role := range roles {
				if sc.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			respondError(w, "forbidden", http.StatusForbidden)
		})
	}
}

// RequireStaff admits staff and admin accounts
func RequireStaff(next http.Handler) http.Handler {
	return RequireRole(model.RoleStaff, model.RoleAdmin)(next)
}

// GetSession returns the request's session context. Requests that bypassed
// the Session middleware get an anonymous context without staging.
func GetSession(r *http.Request) *session.Context {
	if sc, ok := session.From(r.Context()); ok {
		return sc
	}
	return session.New("", nil)
}

// GetUserID is a helper to get just the user ID from the request
func GetUserID(r *http.Request) string {
	return GetSession(r).UserID
}
