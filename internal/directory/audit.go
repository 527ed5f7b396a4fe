package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/crewbase/internal/database/models"
	"github.com/hugh/crewbase/internal/tenancy"
)

// RecordAuthEvent appends one entry to the audit trail.
func (d *Directory) RecordAuthEvent(ctx context.Context, event *models.AuthEvent) error {
	if event.TenantID == uuid.Nil || event.UserID == uuid.Nil {
		return fmt.Errorf("recording auth event: tenant and user are required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	event.OccurredAt = event.OccurredAt.UTC()
	if err := d.create(ctx, event); err != nil {
		return fmt.Errorf("recording auth event: %w", err)
	}
	return nil
}

// RecentAuthEvents lists a tenant's newest audit entries first.
func (d *Directory) RecentAuthEvents(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.AuthEvent, error) {
	var events []models.AuthEvent
	err := d.db.WithContext(ctx).
		Scopes(tenancy.ForTenant(tenantID)).
		Order("occurred_at DESC, id DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("listing auth events: %w", err)
	}
	return events, nil
}

// PruneAuthEvents deletes audit entries older than before across all tenants.
func (d *Directory) PruneAuthEvents(ctx context.Context, before time.Time) (int64, error) {
	result := d.db.WithContext(ctx).Where("occurred_at < ?", before.UTC()).Delete(&models.AuthEvent{})
	if result.Error != nil {
		return 0, fmt.Errorf("pruning auth events: %w", result.Error)
	}
	return result.RowsAffected, nil
}
