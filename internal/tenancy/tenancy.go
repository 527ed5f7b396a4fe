// Package tenancy binds a request to exactly one tenant and runs data access
// inside that binding.
//
// The binding lives on the context.Context. Code that reads or writes
// tenant-owned rows goes through Run, which refuses to start without a bound
// tenant and, on PostgreSQL, sets the app.current_tenant session variable
// consumed by row-level security policies before handing out the transaction.
package tenancy

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionVariable is the PostgreSQL setting read by row-level security policies.
const SessionVariable = "app.current_tenant"

var ErrTenantContextMissing = errors.New("tenant context missing")

type contextKey struct{}

// WithTenant returns a copy of ctx bound to tenantID. A nil id is never bound.
func WithTenant(ctx context.Context, tenantID uuid.UUID) context.Context {
	if tenantID == uuid.Nil {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, tenantID)
}

// FromContext returns the bound tenant, if any.
func FromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(contextKey{}).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// Run executes fn in a transaction scoped to the tenant bound on ctx.
func Run(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB, tenantID uuid.UUID) error) error {
	tenantID, ok := FromContext(ctx)
	if !ok {
		return ErrTenantContextMissing
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := bindSession(tx, tenantID); err != nil {
			return err
		}
		return fn(tx, tenantID)
	})
}

// ForTenant restricts a query to rows owned by tenantID.
func ForTenant(tenantID uuid.UUID) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("tenant_id = ?", tenantID)
	}
}

// bindSession sets the transaction-local tenant variable. Transaction scope
// keeps the setting from leaking to the next borrower of a pooled connection.
// Other dialects (sqlite in tests) have no session variables and rely on
// ForTenant alone.
func bindSession(tx *gorm.DB, tenantID uuid.UUID) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	if err := tx.Exec("SELECT set_config(?, ?, true)", SessionVariable, tenantID.String()).Error; err != nil {
		return fmt.Errorf("setting tenant session context: %w", err)
	}
	return nil
}
