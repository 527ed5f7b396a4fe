package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Authenticator defines the session-issuing flows exposed over HTTP.
type Authenticator interface {
	Login(ctx context.Context, input LoginInput) (*AuthResult, error)
	Register(ctx context.Context, input RegisterInput) (*AuthResult, error)
	DemoLogin(ctx context.Context, tenantName string) (*AuthResult, error)
	Refresh(ctx context.Context, token string) (*AuthResult, error)
	FederatedLogin(ctx context.Context, externalToken string) (*FederatedLoginResult, error)
	FederatedProvision(ctx context.Context, input FederatedProvisionInput) (*AuthResult, error)
}

// TokenService defines the interface for JWT token operations.
type TokenService interface {
	GenerateToken(userID, tenantID uuid.UUID, email, role string) (string, time.Time, error)
	ValidateToken(tokenString string) (*Claims, error)
	ValidateForRefresh(tokenString string) (*Claims, error)
}

// Compile-time interface satisfaction checks
var (
	_ Authenticator     = (*Service)(nil)
	_ TokenService      = (*JWTService)(nil)
	_ FederatedVerifier = (*OIDCVerifier)(nil)
	_ FederatedVerifier = DisabledVerifier{}
)
