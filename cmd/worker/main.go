package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/crewbase/internal/database"
	"github.com/hugh/crewbase/internal/tasks"
	"github.com/hugh/crewbase/pkg/config"
	"github.com/hugh/crewbase/pkg/queue"
	"github.com/hugh/crewbase/pkg/util"
	"github.com/joho/godotenv"
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

	logger.Info("starting crewbase worker")

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	// Create Asynq server
	srv := queue.NewServer(&cfg.Redis, 10, tasks.QueueWeights(), logger)

	// Create task handler
	retention := time.Duration(cfg.Audit.RetentionDays) * 24 * time.Hour
	handler := tasks.NewHandler(db, logger, retention)

	// Register handlers
	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	// Periodic pruning of the audit trail
	if cfg.Audit.PruneCron != "" {
		if err := util.ValidateCronExpr(cfg.Audit.PruneCron); err != nil {
			logger.Error("invalid AUDIT_PRUNE_CRON", "cron", cfg.Audit.PruneCron, "error", err)
			os.Exit(1)
		}
		next, _ := util.NextCronTime(cfg.Audit.PruneCron, time.Now())
		logger.Info("auth event pruning scheduled",
			"cron", cfg.Audit.PruneCron,
			"retention_days", cfg.Audit.RetentionDays,
			"next_run", next,
		)
	}
	scheduler := queue.NewScheduler(&cfg.Redis, logger)
	if err := tasks.RegisterSchedules(scheduler, cfg.Audit.PruneCron); err != nil {
		logger.Error("failed to register schedules", "error", err)
		os.Exit(1)
	}
	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	if err := srv.Start(mux); err != nil {
		logger.Error("worker error", "error", err)
		scheduler.Shutdown()
		os.Exit(1)
	}

	logger.Info("worker started, waiting for tasks...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker...")
	scheduler.Shutdown()
	srv.Shutdown()

	// Close database connection
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	logger.Info("worker stopped")
}
