package auth

import "errors"

var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrRegistrationFailed    = errors.New("registration failed")
	ErrEmailTaken            = errors.New("email already registered")
	ErrFederatedSubjectTaken = errors.New("federated identity already provisioned")
	ErrNoDemoTenant          = errors.New("no demo tenant available")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrInvalidFederatedToken = errors.New("invalid federated token")
	ErrFederationDisabled    = errors.New("federated sign-in is not configured")
)
