package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/crewbase/internal/database/models"
	"github.com/hugh/crewbase/internal/tenancy"
	"gorm.io/gorm"
)

var ErrDuplicate = errors.New("duplicate")

// NormalizeEmail is applied to every email before it is stored or looked up.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FindByCredentials returns the user that can sign in with a password for
// email. Users without a password hash are never returned. If several tenants
// share the email the earliest created account wins.
func (d *Directory) FindByCredentials(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := d.db.WithContext(ctx).
		Where("email = ? AND password_hash IS NOT NULL", NormalizeEmail(email)).
		Order("created_at ASC, id ASC").
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("finding user by email: %w", err)
	}
	return &user, nil
}

// EmailInUse reports whether any tenant already has a user with email.
func (d *Directory) EmailInUse(ctx context.Context, email string) (bool, error) {
	var n int64
	err := d.db.WithContext(ctx).
		Model(&models.User{}).
		Where("email = ?", NormalizeEmail(email)).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("checking email: %w", err)
	}
	return n > 0, nil
}

func (d *Directory) FindByFederatedSubject(ctx context.Context, subject string) (*models.User, error) {
	var user models.User
	err := d.db.WithContext(ctx).Where("federated_subject = ?", subject).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("finding user by federated subject: %w", err)
	}
	return &user, nil
}

func (d *Directory) FindActiveByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := d.db.WithContext(ctx).Where("id = ? AND is_active = ?", id, true).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}
	return &user, nil
}

// FirstActiveUserOf returns the earliest created active user of a tenant.
func (d *Directory) FirstActiveUserOf(ctx context.Context, tenantID uuid.UUID) (*models.User, error) {
	var user models.User
	err := d.db.WithContext(ctx).
		Scopes(tenancy.ForTenant(tenantID)).
		Where("is_active = ?", true).
		Order("created_at ASC, id ASC").
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading first user of tenant: %w", err)
	}
	return &user, nil
}

// CreatePasswordUser inserts a user that signs in with passwordHash.
func (d *Directory) CreatePasswordUser(ctx context.Context, tenantID uuid.UUID, email, displayName, passwordHash string) (*models.User, error) {
	user := &models.User{
		TenantID:     tenantID,
		Email:        NormalizeEmail(email),
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: &passwordHash,
		IsActive:     true,
	}
	if err := d.create(ctx, user); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return user, nil
}

// ProvisionFederatedUser inserts a user with no password bound to an external
// subject and assigns it role.
func (d *Directory) ProvisionFederatedUser(ctx context.Context, tenantID uuid.UUID, subject, email, displayName string, role *models.Role) (*models.User, error) {
	user := &models.User{
		TenantID:         tenantID,
		Email:            NormalizeEmail(email),
		DisplayName:      strings.TrimSpace(displayName),
		FederatedSubject: &subject,
		IsActive:         true,
	}
	if err := d.create(ctx, user); err != nil {
		return nil, fmt.Errorf("creating federated user: %w", err)
	}
	if err := d.AssignRole(ctx, user, role); err != nil {
		return nil, err
	}
	return user, nil
}

func (d *Directory) AssignRole(ctx context.Context, user *models.User, role *models.Role) error {
	if role.TenantID != user.TenantID {
		return fmt.Errorf("assigning role %s: role belongs to another tenant", role.Name)
	}
	assignment := &models.UserRole{
		UserID:     user.ID,
		RoleID:     role.ID,
		TenantID:   user.TenantID,
		AssignedAt: time.Now().UTC(),
	}
	if err := d.create(ctx, assignment); err != nil {
		return fmt.Errorf("assigning role %s: %w", role.Name, err)
	}
	return nil
}

// EffectiveRole is the name of the user's earliest assigned role, or Member
// when the user has none.
func (d *Directory) EffectiveRole(ctx context.Context, userID uuid.UUID) (string, error) {
	var names []string
	err := d.db.WithContext(ctx).
		Table("user_roles").
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("user_roles.user_id = ?", userID).
		Order("user_roles.assigned_at ASC, user_roles.id ASC").
		Limit(1).
		Pluck("roles.name", &names).Error
	if err != nil {
		return "", fmt.Errorf("loading effective role: %w", err)
	}
	if len(names) == 0 {
		return models.RoleMember, nil
	}
	return names[0], nil
}

func (d *Directory) TouchLastLogin(ctx context.Context, userID uuid.UUID, at time.Time) error {
	err := d.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_login_at", at.UTC()).Error
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return nil
}

func (d *Directory) create(ctx context.Context, v interface{}) error {
	err := d.db.WithContext(ctx).Create(v).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}
