package tasks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hugh/crewbase/internal/database/models"
)

// Task type names
const (
	TypeAuthEvent      = "audit:auth_event"
	TypeAuthEventPrune = "audit:prune"
)

// Queue names
const (
	QueueDefault = "default"
	QueueLow     = "low"
)

// QueueWeights is the priority of every queue a task is enqueued on.
func QueueWeights() map[string]int {
	return map[string]int{
		QueueDefault: 3,
		QueueLow:     1,
	}
}

// AuthEventPayload carries one sign-in to the audit trail.
type AuthEventPayload struct {
	TenantID   uuid.UUID            `json:"tenant_id"`
	UserID     uuid.UUID            `json:"user_id"`
	Kind       models.AuthEventKind `json:"kind"`
	OccurredAt time.Time            `json:"occurred_at"`
}

func NewAuthEventTask(payload AuthEventPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeAuthEvent, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// NewPruneTask is enqueued by the scheduler; retention comes from the worker's config.
func NewPruneTask() *asynq.Task {
	return asynq.NewTask(TypeAuthEventPrune, nil, asynq.Queue(QueueLow), asynq.MaxRetry(1))
}
