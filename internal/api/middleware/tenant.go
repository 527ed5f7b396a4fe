package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hugh/crewbase/internal/tenancy"
)

// TenantContext binds the caller's tenant to the request context.
//
// Precondition: Auth has already run and stored a validated Principal.
// Requests without a Principal are anonymous and pass through untouched. A
// Principal without a tenant is an internal inconsistency: it is logged and
// the request continues unbound, so tenant-scoped code refuses to run
// (see tenancy.Run) instead of reading unscoped data.
func TenantContext(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := GetPrincipal(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx := tenancy.WithTenant(r.Context(), p.TenantID)
			if _, bound := tenancy.FromContext(ctx); !bound {
				logger.Warn("authenticated request without tenant",
					"error", tenancy.ErrTenantContextMissing,
					"user_id", p.UserID,
					"path", r.URL.Path,
				)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Authenticated is the ordered chain every tenant-scoped route sits behind:
// token validation first, then tenant binding.
func Authenticated(tokens TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	authenticate := Auth(tokens)
	bindTenant := TenantContext(logger)
	return func(next http.Handler) http.Handler {
		return authenticate(bindTenant(next))
	}
}
