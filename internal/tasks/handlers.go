package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/crewbase/internal/database/models"
	"github.com/hugh/crewbase/internal/directory"
	"gorm.io/gorm"
)

const defaultRetention = 90 * 24 * time.Hour

type Handler struct {
	db        *gorm.DB
	logger    *slog.Logger
	retention time.Duration
	now       func() time.Time
}

// NewHandler builds the audit task handlers. A non-positive retention keeps
// events for 90 days.
func NewHandler(db *gorm.DB, logger *slog.Logger, retention time.Duration) *Handler {
	if retention <= 0 {
		retention = defaultRetention
	}
	return &Handler{
		db:        db,
		logger:    logger,
		retention: retention,
		now:       time.Now,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeAuthEvent, h.HandleAuthEvent)
	mux.HandleFunc(TypeAuthEventPrune, h.HandlePrune)
}

func (h *Handler) HandleAuthEvent(ctx context.Context, t *asynq.Task) error {
	var payload AuthEventPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		// Retrying a malformed payload can never succeed.
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	event := &models.AuthEvent{
		TenantID:   payload.TenantID,
		UserID:     payload.UserID,
		Kind:       payload.Kind,
		OccurredAt: payload.OccurredAt,
	}
	if err := directory.New(h.db).RecordAuthEvent(ctx, event); err != nil {
		return err
	}

	h.logger.Debug("auth event recorded",
		"tenant_id", payload.TenantID,
		"user_id", payload.UserID,
		"kind", payload.Kind,
	)
	return nil
}

func (h *Handler) HandlePrune(ctx context.Context, t *asynq.Task) error {
	cutoff := h.now().Add(-h.retention)

	n, err := directory.New(h.db).PruneAuthEvents(ctx, cutoff)
	if err != nil {
		return err
	}

	h.logger.Info("pruned auth events", "deleted", n, "before", cutoff)
	return nil
}

// RegisterSchedules adds the periodic prune to scheduler. An empty cronspec
// disables it.
func RegisterSchedules(scheduler *asynq.Scheduler, cronspec string) error {
	if cronspec == "" {
		return nil
	}
	if _, err := scheduler.Register(cronspec, NewPruneTask()); err != nil {
		return fmt.Errorf("registering prune schedule %q: %w", cronspec, err)
	}
	return nil
}
