package models

import (
	"time"

	"github.com/google/uuid"
)

// AuthMethods is the set of ways a user can prove their identity. Both
// credential columns are nullable, so a user may have none, one, or both.
type AuthMethods uint8

const (
	AuthPassword AuthMethods = 1 << iota
	AuthFederated
)

func (m AuthMethods) Has(method AuthMethods) bool {
	return m&method != 0
}

type User struct {
	Base
	TenantID         uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_users_tenant_email,priority:1" json:"tenant_id"`
	Email            string     `gorm:"size:100;not null;index;uniqueIndex:idx_users_tenant_email,priority:2" json:"email"`
	DisplayName      string     `gorm:"size:100;not null" json:"display_name"`
	PasswordHash     *string    `json:"-"`
	FederatedSubject *string    `gorm:"size:200;uniqueIndex" json:"-"`
	IsActive         bool       `gorm:"default:true" json:"is_active"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// Methods reports which credentials are usable for this user.
func (u *User) Methods() AuthMethods {
	var m AuthMethods
	if u.PasswordHash != nil && *u.PasswordHash != "" {
		m |= AuthPassword
	}
	if u.FederatedSubject != nil && *u.FederatedSubject != "" {
		m |= AuthFederated
	}
	return m
}
