package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/hugh/crewbase/internal/api/dto"
	"github.com/hugh/crewbase/internal/api/middleware"
	"github.com/hugh/crewbase/internal/database/models"
	"github.com/hugh/crewbase/internal/directory"
	"github.com/hugh/crewbase/internal/tenancy"
	"gorm.io/gorm"
)

// WorkspaceHandler serves the read-only views of the caller's own tenant.
// Every query runs through tenancy.Run, so a request without a bound tenant
// never reaches the store.
type WorkspaceHandler struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewWorkspaceHandler(db *gorm.DB, logger *slog.Logger) *WorkspaceHandler {
	return &WorkspaceHandler{db: db, logger: logger}
}

func (h *WorkspaceHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var resp dto.MeResponse
	err := tenancy.Run(r.Context(), h.db, func(tx *gorm.DB, tenantID uuid.UUID) error {
		dir := directory.New(tx)

		user, err := dir.FindActiveByID(r.Context(), userID)
		if err != nil {
			return err
		}
		if user.TenantID != tenantID {
			return directory.ErrNotFound
		}
		tenant, err := dir.GetTenant(r.Context(), tenantID)
		if err != nil {
			return err
		}
		role, err := dir.EffectiveRole(r.Context(), user.ID)
		if err != nil {
			return err
		}

		resp = dto.MeResponse{
			ID:          user.ID.String(),
			Email:       user.Email,
			DisplayName: user.DisplayName,
			Role:        role,
			TenantID:    tenant.ID.String(),
			TenantName:  tenant.CompanyName,
			LastLoginAt: user.LastLoginAt,
		}
		return nil
	})
	if err != nil {
		h.fail(w, "user", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *WorkspaceHandler) Branding(w http.ResponseWriter, r *http.Request) {
	var branding *models.Branding
	err := tenancy.Run(r.Context(), h.db, func(tx *gorm.DB, tenantID uuid.UUID) error {
		var err error
		branding, err = directory.New(tx).GetBranding(r.Context(), tenantID)
		return err
	})
	if err != nil {
		h.fail(w, "branding", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.NewBrandingResponse(branding))
}

func (h *WorkspaceHandler) Roles(w http.ResponseWriter, r *http.Request) {
	var roles []models.Role
	err := tenancy.Run(r.Context(), h.db, func(tx *gorm.DB, tenantID uuid.UUID) error {
		var err error
		roles, err = directory.New(tx).ListRoles(r.Context(), tenantID)
		return err
	})
	if err != nil {
		h.fail(w, "roles", err)
		return
	}

	data := dto.NewRoleResponses(roles)
	writeJSON(w, http.StatusOK, dto.ListResponse{Data: data, Total: len(data)})
}

// Audit lists the tenant's most recent sign-in events. Admin only.
func (h *WorkspaceHandler) Audit(w http.ResponseWriter, r *http.Request) {
	params := dto.LimitParams{}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		params.Limit = n
	}
	params.Normalize()

	var events []models.AuthEvent
	err := tenancy.Run(r.Context(), h.db, func(tx *gorm.DB, tenantID uuid.UUID) error {
		var err error
		events, err = directory.New(tx).RecentAuthEvents(r.Context(), tenantID, params.Limit)
		return err
	})
	if err != nil {
		h.fail(w, "audit events", err)
		return
	}

	data := dto.NewAuthEventResponses(events)
	writeJSON(w, http.StatusOK, dto.ListResponse{Data: data, Total: len(data)})
}

func (h *WorkspaceHandler) fail(w http.ResponseWriter, what string, err error) {
	switch {
	case errors.Is(err, tenancy.ErrTenantContextMissing):
		writeError(w, http.StatusForbidden, "Tenant context missing")
	case errors.Is(err, directory.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	default:
		h.logger.Error("workspace query failed", "resource", what, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load "+what)
	}
}
