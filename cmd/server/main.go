package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hugh/crewbase/internal/api"
	"github.com/hugh/crewbase/internal/auth"
	"github.com/hugh/crewbase/internal/database"
	"github.com/hugh/crewbase/internal/metrics"
	"github.com/hugh/crewbase/internal/seed"
	"github.com/hugh/crewbase/internal/tasks"
	"github.com/hugh/crewbase/pkg/config"
	"github.com/hugh/crewbase/pkg/queue"
	"github.com/hugh/crewbase/pkg/util"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := util.NewLogger(cfg.Server.Env, cfg.Server.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting crewbase server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
	)

	// The signing key is fixed for the life of the process.
	signingKey, generated, err := auth.LoadSigningKey(cfg.JWT.Secret, cfg.Server.Env)
	if err != nil {
		logger.Error("invalid JWT signing key", "error", err)
		os.Exit(1)
	}
	if generated {
		logger.Warn("JWT_SECRET not set, using a generated key - sessions will not survive a restart")
	}

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.AutoMigrate(db); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	if cfg.Seed.DemoData {
		if _, err := seed.Run(context.Background(), db, auth.HashPassword, logger); err != nil {
			logger.Error("failed to seed demo data", "error", err)
			os.Exit(1)
		}
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("failed to connect to Redis, audit events and shared rate limits are disabled", "error", err)
		redisClient.Close()
		redisClient = nil
	}

	// Initialize services
	jwtService := auth.NewJWTService(signingKey, cfg.JWT.Issuer, cfg.JWT.Audience, cfg.JWT.Expiry())

	var federated auth.FederatedVerifier
	if cfg.Federated.Enabled() {
		federated = auth.NewOIDCVerifier(cfg.Federated.Authority(), cfg.Federated.ExpectedAudience(),
			auth.WithTimeout(cfg.Federated.Timeout()),
		)
		logger.Info("federated sign-in enabled", "authority", cfg.Federated.Authority())
	}

	authOpts := []auth.Option{}
	if redisClient != nil {
		asynqClient := queue.NewClient(&cfg.Redis)
		defer asynqClient.Close()
		authOpts = append(authOpts, auth.WithEventPublisher(tasks.NewPublisher(asynqClient)))
	}
	authService := auth.NewService(db, jwtService, federated, logger, authOpts...)

	// Create router
	router := api.NewRouter(api.RouterConfig{
		DB:             db,
		Redis:          redisClient,
		Logger:         logger,
		JWTService:     jwtService,
		AuthService:    authService,
		Metrics:        metrics.NewDefault(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimitReqs:  cfg.RateLimit.Requests,
		RateLimitSecs:  cfg.RateLimit.WindowSeconds,
		SecureCookies:  cfg.Server.IsProduction(),
		TrustProxy:     cfg.Server.TrustProxy,
	})
	defer router.Close()

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Close Redis connection
	if redisClient != nil {
		redisClient.Close()
	}

	// Close database connection
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	logger.Info("server stopped")
}
