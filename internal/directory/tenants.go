// Package directory holds the store-side lookups behind authentication: the
// tenant directory and the identity resolver. Every method works against the
// handle it was built with, so callers that need atomicity pass a transaction
// through WithTx.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/crewbase/internal/database/models"
	"github.com/hugh/crewbase/internal/tenancy"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("not found")

type Directory struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// WithTx returns a Directory bound to tx.
func (d *Directory) WithTx(tx *gorm.DB) *Directory {
	return &Directory{db: tx}
}

// NewTenant is everything created alongside a tenant.
type NewTenant struct {
	Tenant     *models.Tenant
	Branding   *models.Branding
	AdminRole  *models.Role
	MemberRole *models.Role
}

var defaultRoles = []struct {
	name        string
	description string
}{
	{models.RoleAdmin, "Full access to all features"},
	{models.RoleMember, "Standard team member access"},
}

// ResolveByName returns the active tenant whose company name matches exactly.
// When there is none it falls back to the earliest created active tenant.
func (d *Directory) ResolveByName(ctx context.Context, name string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := d.db.WithContext(ctx).
		Where("company_name = ? AND is_active = ?", name, true).
		Order("created_at ASC, id ASC").
		First(&tenant).Error
	if err == nil {
		return &tenant, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("resolving tenant by name: %w", err)
	}

	err = d.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at ASC, id ASC").
		First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("resolving fallback tenant: %w", err)
	}
	return &tenant, nil
}

// CreateTenant inserts a tenant with its default branding and the Admin and
// Member roles. Call it on a transaction handle; a tenant must never exist
// without the rest.
func (d *Directory) CreateTenant(ctx context.Context, companyName string) (*NewTenant, error) {
	companyName = strings.TrimSpace(companyName)
	if companyName == "" {
		return nil, errors.New("company name is required")
	}

	db := d.db.WithContext(ctx)

	tenant := &models.Tenant{CompanyName: companyName, IsActive: true}
	if err := db.Create(tenant).Error; err != nil {
		return nil, fmt.Errorf("creating tenant: %w", err)
	}

	branding := models.NewDefaultBranding(tenant.ID)
	if err := db.Create(branding).Error; err != nil {
		return nil, fmt.Errorf("creating branding: %w", err)
	}

	out := &NewTenant{Tenant: tenant, Branding: branding}
	for _, r := range defaultRoles {
		desc := r.description
		role := &models.Role{TenantID: tenant.ID, Name: r.name, Description: &desc}
		if err := db.Create(role).Error; err != nil {
			return nil, fmt.Errorf("creating role %s: %w", r.name, err)
		}
		switch r.name {
		case models.RoleAdmin:
			out.AdminRole = role
		case models.RoleMember:
			out.MemberRole = role
		}
	}

	return out, nil
}

func (d *Directory) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := d.db.WithContext(ctx).First(&tenant, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading tenant: %w", err)
	}
	return &tenant, nil
}

func (d *Directory) GetBranding(ctx context.Context, tenantID uuid.UUID) (*models.Branding, error) {
	var branding models.Branding
	err := d.db.WithContext(ctx).Scopes(tenancy.ForTenant(tenantID)).First(&branding).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading branding: %w", err)
	}
	return &branding, nil
}

func (d *Directory) ListRoles(ctx context.Context, tenantID uuid.UUID) ([]models.Role, error) {
	var roles []models.Role
	err := d.db.WithContext(ctx).
		Scopes(tenancy.ForTenant(tenantID)).
		Order("name ASC").
		Find(&roles).Error
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	return roles, nil
}

func (d *Directory) CountTenants(ctx context.Context) (int64, error) {
	var n int64
	if err := d.db.WithContext(ctx).Model(&models.Tenant{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting tenants: %w", err)
	}
	return n, nil
}

// CreateRole adds a role beyond the defaults to a tenant.
func (d *Directory) CreateRole(ctx context.Context, tenantID uuid.UUID, name, description string) (*models.Role, error) {
	role := &models.Role{TenantID: tenantID, Name: strings.TrimSpace(name)}
	if description != "" {
		role.Description = &description
	}
	if err := d.create(ctx, role); err != nil {
		return nil, fmt.Errorf("creating role %s: %w", role.Name, err)
	}
	return role, nil
}
