package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/crewbase/pkg/config"
)

func redisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
	}
}

func NewClient(cfg *config.RedisConfig) *asynq.Client {
	return asynq.NewClient(redisOpt(cfg))
}

// NewServer processes the given queues, each with its priority weight.
func NewServer(cfg *config.RedisConfig, concurrency int, queues map[string]int, logger *slog.Logger) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 10
	}

	return asynq.NewServer(
		redisOpt(cfg),
		asynq.Config{
			Concurrency: concurrency,
			Queues:      queues,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task failed", "type", task.Type(), "error", err)
			}),
		},
	)
}

// NewScheduler enqueues periodic tasks. Cron specs are read in UTC.
func NewScheduler(cfg *config.RedisConfig, logger *slog.Logger) *asynq.Scheduler {
	return asynq.NewScheduler(redisOpt(cfg), &asynq.SchedulerOpts{
		Location: time.UTC,
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				logger.Error("scheduled enqueue failed", "error", err)
				return
			}
			logger.Debug("scheduled task enqueued", "type", info.Type, "id", info.ID)
		},
	})
}
