package tasks

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/hugh/crewbase/internal/auth"
)

// Enqueuer is the part of *asynq.Client the publisher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Publisher hands auth events to the worker through asynq.
type Publisher struct {
	client Enqueuer
}

func NewPublisher(client Enqueuer) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) PublishAuthEvent(ctx context.Context, event auth.Event) error {
	task, err := NewAuthEventTask(AuthEventPayload{
		TenantID:   event.TenantID,
		UserID:     event.UserID,
		Kind:       event.Kind,
		OccurredAt: event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("building auth event task: %w", err)
	}

	if _, err := p.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueueing auth event: %w", err)
	}
	return nil
}

var _ auth.EventPublisher = (*Publisher)(nil)
