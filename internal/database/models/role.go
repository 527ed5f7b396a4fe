package models

import (
	"time"

	"github.com/google/uuid"
)

// Structurally significant role names. Other roles ("Lead", ...) are data.
const (
	RoleAdmin  = "Admin"
	RoleMember = "Member"
)

type Role struct {
	Base
	TenantID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_roles_tenant_name,priority:1" json:"tenant_id"`
	Name        string    `gorm:"size:50;not null;uniqueIndex:idx_roles_tenant_name,priority:2" json:"name"`
	Description *string   `gorm:"size:200" json:"description,omitempty"`
}

func (Role) TableName() string {
	return "roles"
}

type UserRole struct {
	Base
	UserID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_user_roles_user_role,priority:1" json:"user_id"`
	RoleID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_user_roles_user_role,priority:2" json:"role_id"`
	TenantID   uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`
	AssignedAt time.Time `gorm:"not null" json:"assigned_at"`
}

func (UserRole) TableName() string {
	return "user_roles"
}
