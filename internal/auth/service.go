package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/crewbase/internal/database/models"
	"github.com/hugh/crewbase/internal/directory"
	"gorm.io/gorm"
)

// DefaultDemoTenant is used when a demo login request carries no tenant name
// at all.
const DefaultDemoTenant = "Acme Corp"

// Service issues sessions. It keeps no state between calls.
type Service struct {
	db        *gorm.DB
	dir       *directory.Directory
	jwt       *JWTService
	federated FederatedVerifier
	events    EventPublisher
	hasher    *BcryptHasher
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithPasswordHasher(h *BcryptHasher) Option {
	return func(s *Service) { s.hasher = h }
}

func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

func NewService(db *gorm.DB, jwt *JWTService, federated FederatedVerifier, logger *slog.Logger, opts ...Option) *Service {
	if federated == nil {
		federated = DisabledVerifier{}
	}
	s := &Service{
		db:        db,
		dir:       directory.New(db),
		jwt:       jwt,
		federated: federated,
		events:    noopPublisher{},
		hasher:    defaultHasher,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type LoginInput struct {
	Email    string
	Password string
}

type RegisterInput struct {
	CompanyName string
	Email       string
	DisplayName string
	Password    string
}

type FederatedProvisionInput struct {
	ExternalToken string
	CompanyName   string
	DisplayName   string
}

// AuthResult is what every successful flow hands back to the client.
type AuthResult struct {
	Token       string
	Email       string
	DisplayName string
	TenantID    uuid.UUID
	TenantName  string
	Role        string
	Expiration  time.Time
}

// FederatedLoginResult reports whether the external identity already has an
// account. When it does not, PendingToken is the caller's own external token,
// to be presented again for provisioning.
type FederatedLoginResult struct {
	Provisioned  bool
	Auth         *AuthResult
	PendingToken string
}

func (s *Service) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	user, err := s.dir.FindByCredentials(ctx, input.Email)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			s.logger.Warn("failed login attempt", "email", directory.NormalizeEmail(input.Email))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.IsActive || !user.Methods().Has(models.AuthPassword) ||
		!s.hasher.Check(input.Password, *user.PasswordHash) {
		s.logger.Warn("failed login attempt", "email", user.Email)
		return nil, ErrInvalidCredentials
	}

	tenant, err := s.dir.GetTenant(ctx, user.TenantID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	return s.issueExisting(ctx, user, tenant, models.AuthEventLogin)
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	inUse, err := s.dir.EmailInUse(ctx, input.Email)
	if err != nil {
		return nil, err
	}
	if inUse {
		return nil, ErrEmailTaken
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistrationFailed, err)
	}

	var (
		created *directory.NewTenant
		user    *models.User
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dir := s.dir.WithTx(tx)

		var err error
		created, err = dir.CreateTenant(ctx, input.CompanyName)
		if err != nil {
			return err
		}

		user, err = dir.CreatePasswordUser(ctx, created.Tenant.ID, input.Email, input.DisplayName, hash)
		if err != nil {
			return err
		}
		if err := dir.AssignRole(ctx, user, created.AdminRole); err != nil {
			return err
		}
		return dir.TouchLastLogin(ctx, user.ID, s.now())
	})
	if err != nil {
		if errors.Is(err, directory.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		s.logger.Error("registration failed", "company", input.CompanyName, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrRegistrationFailed, err)
	}

	s.logger.Info("tenant registered", "tenant_id", created.Tenant.ID, "company", created.Tenant.CompanyName, "email", user.Email)
	return s.issue(ctx, user, created.Tenant, models.RoleAdmin, models.AuthEventRegistered)
}

// DemoLogin signs in as the first active user of the named tenant. Unknown
// and blank names fall back to the earliest created active tenant.
func (s *Service) DemoLogin(ctx context.Context, tenantName string) (*AuthResult, error) {
	tenant, err := s.dir.ResolveByName(ctx, tenantName)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, ErrNoDemoTenant
		}
		return nil, err
	}

	user, err := s.dir.FirstActiveUserOf(ctx, tenant.ID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, ErrNoDemoTenant
		}
		return nil, err
	}

	return s.issueExisting(ctx, user, tenant, models.AuthEventDemoLogin)
}

// Refresh mints a new token from the current store state for the holder of a
// token we issued, expired or not.
func (s *Service) Refresh(ctx context.Context, token string) (*AuthResult, error) {
	claims, err := s.jwt.ValidateForRefresh(token)
	if err != nil {
		return nil, ErrInvalidOrExpiredToken
	}

	user, err := s.dir.FindActiveByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, err
	}
	if user.TenantID != claims.TenantID {
		s.logger.Warn("refresh token tenant mismatch", "user_id", user.ID, "claimed_tenant", claims.TenantID)
		return nil, ErrInvalidOrExpiredToken
	}

	tenant, err := s.dir.GetTenant(ctx, user.TenantID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, err
	}

	role, err := s.dir.EffectiveRole(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return s.issue(ctx, user, tenant, role, models.AuthEventRefreshed)
}

func (s *Service) FederatedLogin(ctx context.Context, externalToken string) (*FederatedLoginResult, error) {
	identity, err := s.verifyFederated(ctx, externalToken)
	if err != nil {
		return nil, err
	}

	user, err := s.dir.FindByFederatedSubject(ctx, identity.SubjectID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return &FederatedLoginResult{Provisioned: false, PendingToken: externalToken}, nil
		}
		return nil, err
	}
	if !user.IsActive {
		s.logger.Warn("federated login for inactive user", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	tenant, err := s.dir.GetTenant(ctx, user.TenantID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	result, err := s.issueExisting(ctx, user, tenant, models.AuthEventFederatedLogin)
	if err != nil {
		return nil, err
	}
	return &FederatedLoginResult{Provisioned: true, Auth: result}, nil
}

// FederatedProvision creates a new tenant owned by the external identity. The
// token is always verified again here.
func (s *Service) FederatedProvision(ctx context.Context, input FederatedProvisionInput) (*AuthResult, error) {
	identity, err := s.verifyFederated(ctx, input.ExternalToken)
	if err != nil {
		return nil, err
	}

	if _, err := s.dir.FindByFederatedSubject(ctx, identity.SubjectID); err == nil {
		return nil, ErrFederatedSubjectTaken
	} else if !errors.Is(err, directory.ErrNotFound) {
		return nil, err
	}

	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		displayName = identity.DisplayName
	}

	var (
		created *directory.NewTenant
		user    *models.User
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dir := s.dir.WithTx(tx)

		var err error
		created, err = dir.CreateTenant(ctx, input.CompanyName)
		if err != nil {
			return err
		}

		user, err = dir.ProvisionFederatedUser(ctx, created.Tenant.ID, identity.SubjectID, identity.Email, displayName, created.AdminRole)
		if err != nil {
			return err
		}
		return dir.TouchLastLogin(ctx, user.ID, s.now())
	})
	if err != nil {
		if errors.Is(err, directory.ErrDuplicate) {
			return nil, ErrFederatedSubjectTaken
		}
		s.logger.Error("federated provisioning failed", "company", input.CompanyName, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrRegistrationFailed, err)
	}

	s.logger.Info("federated tenant provisioned", "tenant_id", created.Tenant.ID, "company", created.Tenant.CompanyName, "email", user.Email)
	return s.issue(ctx, user, created.Tenant, models.RoleAdmin, models.AuthEventFederatedProvisioned)
}

func (s *Service) verifyFederated(ctx context.Context, externalToken string) (*FederatedIdentity, error) {
	identity, err := s.federated.Verify(ctx, externalToken)
	if err != nil {
		s.logger.Warn("federated token rejected", "error", err)
		if !errors.Is(err, ErrInvalidFederatedToken) {
			err = fmt.Errorf("%w: %v", ErrInvalidFederatedToken, err)
		}
		return nil, err
	}
	return identity, nil
}

// issueExisting finishes a sign-in for a stored user: current role, last
// login timestamp, token.
func (s *Service) issueExisting(ctx context.Context, user *models.User, tenant *models.Tenant, kind models.AuthEventKind) (*AuthResult, error) {
	role, err := s.dir.EffectiveRole(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	if err := s.dir.TouchLastLogin(ctx, user.ID, s.now()); err != nil {
		s.logger.Warn("failed to record last login", "user_id", user.ID, "error", err)
	}

	return s.issue(ctx, user, tenant, role, kind)
}

func (s *Service) issue(ctx context.Context, user *models.User, tenant *models.Tenant, role string, kind models.AuthEventKind) (*AuthResult, error) {
	token, expiresAt, err := s.jwt.GenerateToken(user.ID, tenant.ID, user.Email, role)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}

	event := Event{Kind: kind, TenantID: tenant.ID, UserID: user.ID, OccurredAt: s.now().UTC()}
	if err := s.events.PublishAuthEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish auth event", "kind", kind, "user_id", user.ID, "error", err)
	}

	return &AuthResult{
		Token:       token,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		TenantID:    tenant.ID,
		TenantName:  tenant.CompanyName,
		Role:        role,
		Expiration:  expiresAt,
	}, nil
}
