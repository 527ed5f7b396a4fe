package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/crewbase/internal/auth"
)

type contextKey string

const principalKey contextKey = "principal"

// TokenCookieName is the cookie carrying the session token for browser clients.
const TokenCookieName = "token"

// Principal is the validated identity of the caller.
type Principal struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
	Email    string
	Role     string
}

// TokenValidator checks a session token and returns its claims.
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.Claims, error)
}

// Auth rejects requests without a valid session token and stores the
// validated Principal on the request context.
func Auth(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			claims, err := tokens.ValidateToken(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			ctx := WithPrincipal(r.Context(), Principal{
				UserID:   claims.UserID,
				TenantID: claims.TenantID,
				Email:    claims.Email,
				Role:     claims.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFromRequest(r *http.Request) string {
	// 1. Authorization header (API clients)
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		if token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer ")); token != "" {
			return token
		}
	}

	// 2. Cookie set by the auth endpoints
	if cookie, err := r.Cookie(TokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	// 3. X-Auth-Token header (localStorage fallback for AJAX)
	return r.Header.Get("X-Auth-Token")
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func GetPrincipal(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// Helper functions to extract values from context
func GetUserID(ctx context.Context) uuid.UUID {
	p, _ := GetPrincipal(ctx)
	return p.UserID
}

func GetUserRole(ctx context.Context) string {
	p, _ := GetPrincipal(ctx)
	return p.Role
}

// RequireRole middleware ensures user has specific role
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userRole := GetUserRole(r.Context())

			for _, role := range roles {
				if userRole == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeError(w, http.StatusForbidden, "Forbidden")
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
