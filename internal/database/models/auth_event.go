package models

import (
	"time"

	"github.com/google/uuid"
)

type AuthEventKind string

const (
	AuthEventLogin                AuthEventKind = "login"
	AuthEventDemoLogin            AuthEventKind = "demo_login"
	AuthEventRegistered           AuthEventKind = "registered"
	AuthEventRefreshed            AuthEventKind = "refreshed"
	AuthEventFederatedLogin       AuthEventKind = "federated_login"
	AuthEventFederatedProvisioned AuthEventKind = "federated_provisioned"
)

// AuthEvent is the audit trail of issued sessions, written by the worker.
type AuthEvent struct {
	Base
	TenantID   uuid.UUID     `gorm:"type:uuid;not null;index" json:"tenant_id"`
	UserID     uuid.UUID     `gorm:"type:uuid;not null;index" json:"user_id"`
	Kind       AuthEventKind `gorm:"size:50;not null" json:"kind"`
	OccurredAt time.Time     `gorm:"not null;index" json:"occurred_at"`
}

func (AuthEvent) TableName() string {
	return "auth_events"
}
