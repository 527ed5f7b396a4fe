package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/crewbase/internal/database/models"
)

// Event records a successful authentication for the audit trail.
type Event struct {
	Kind       models.AuthEventKind `json:"kind"`
	TenantID   uuid.UUID            `json:"tenant_id"`
	UserID     uuid.UUID            `json:"user_id"`
	OccurredAt time.Time            `json:"occurred_at"`
}

// EventPublisher hands events to whatever persists them. Publishing is best
// effort; a failure never fails the sign-in that produced the event.
type EventPublisher interface {
	PublishAuthEvent(ctx context.Context, event Event) error
}

type noopPublisher struct{}

func (noopPublisher) PublishAuthEvent(context.Context, Event) error { return nil }
