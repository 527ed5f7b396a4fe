package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hugh/crewbase/internal/api/handlers"
	"github.com/hugh/crewbase/internal/api/middleware"
	"github.com/hugh/crewbase/internal/auth"
	"github.com/hugh/crewbase/internal/database/models"
	"github.com/hugh/crewbase/internal/metrics"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
	stop func()
}

type RouterConfig struct {
	DB             *gorm.DB
	Redis          *redis.Client
	Logger         *slog.Logger
	JWTService     *auth.JWTService
	AuthService    auth.Authenticator
	Metrics        *metrics.Metrics
	AllowedOrigins []string // CORS allowed origins
	RateLimitReqs  int      // Rate limit requests per window on /api/v1/auth
	RateLimitSecs  int      // Rate limit window in seconds
	SecureCookies  bool
	TrustProxy     bool // only behind a proxy that overwrites forwarding headers
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()
	router := &Router{Router: r, stop: func() {}}

	// Global middleware
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimw.RequestID)
	if cfg.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.Logging(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}

	// CORS - restrict to configured origins
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		// Default to the local SPA dev server
		allowedOrigins = []string{"http://localhost:4200"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Auth-Token", "X-Request-Id"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	authHandler := handlers.NewAuthHandler(cfg.AuthService, cfg.Metrics, cfg.Logger, cfg.SecureCookies)
	workspaceHandler := handlers.NewWorkspaceHandler(cfg.DB, cfg.Logger)

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public auth endpoints
		r.Route("/auth", func(r chi.Router) {
			if cfg.RateLimitReqs > 0 {
				r.Use(middleware.RateLimit(router.authLimiter(cfg), middleware.ByIP, authHandler.RateLimited))
			}
			r.Post("/login", authHandler.Login)
			r.Post("/register", authHandler.Register)
			r.Post("/demo", authHandler.Demo)
			r.Post("/refresh", authHandler.Refresh)
			r.Post("/federated-login", authHandler.FederatedLogin)
			r.Post("/federated-provision", authHandler.FederatedProvision)
			r.Post("/logout", authHandler.Logout)
		})

		// Tenant-scoped routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticated(cfg.JWTService, cfg.Logger))

			r.Get("/me", workspaceHandler.Me)
			r.Get("/branding", workspaceHandler.Branding)
			r.Get("/roles", workspaceHandler.Roles)
			r.With(middleware.RequireRole(models.RoleAdmin)).Get("/audit", workspaceHandler.Audit)
		})
	})

	return router
}

// Close releases background resources held by the router.
func (rt *Router) Close() {
	rt.stop()
}

// authLimiter shares the budget through Redis when it is available so every
// replica counts the same attempts.
func (rt *Router) authLimiter(cfg RouterConfig) middleware.Limiter {
	if cfg.Redis != nil {
		return middleware.NewRedisRateLimiter(cfg.Redis, "crewbase:ratelimit:auth:", cfg.RateLimitReqs, cfg.RateLimitSecs)
	}
	rl := middleware.NewRateLimiter(cfg.RateLimitReqs, cfg.RateLimitSecs)
	rt.stop = rl.Stop
	return rl
}
