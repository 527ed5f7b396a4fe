package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const defaultFederatedTimeout = 10 * time.Second

// Claim names accepted for the external subject, in priority order. Only the
// directory object id qualifies; sub is pairwise per application.
var subjectClaims = []string{
	"oid",
	"http://schemas.microsoft.com/identity/claims/objectidentifier",
}

// FederatedIdentity is the verified identity carried by an external access token.
type FederatedIdentity struct {
	SubjectID   string
	Email       string
	DisplayName string
}

// FederatedVerifier validates an externally issued access token.
type FederatedVerifier interface {
	Verify(ctx context.Context, rawToken string) (*FederatedIdentity, error)
}

// OIDCVerifier validates tokens against an OpenID Connect issuer. Discovery
// runs on first use and the resulting provider is shared; go-oidc caches the
// signing keys and refetches them when it sees an unknown key id.
type OIDCVerifier struct {
	authority string
	audience  string
	client    *http.Client
	timeout   time.Duration
	now       func() time.Time

	mu       sync.Mutex
	verifier *oidc.IDTokenVerifier
}

type OIDCOption func(*OIDCVerifier)

func WithHTTPClient(c *http.Client) OIDCOption {
	return func(v *OIDCVerifier) { v.client = c }
}

func WithTimeout(d time.Duration) OIDCOption {
	return func(v *OIDCVerifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

func WithVerifierClock(now func() time.Time) OIDCOption {
	return func(v *OIDCVerifier) { v.now = now }
}

// NewOIDCVerifier builds a verifier for the issuer at authority. Tokens must
// list audience in their aud claim.
func NewOIDCVerifier(authority, audience string, opts ...OIDCOption) *OIDCVerifier {
	v := &OIDCVerifier{
		authority: strings.TrimSuffix(authority, "/"),
		audience:  audience,
		client:    &http.Client{Timeout: defaultFederatedTimeout},
		timeout:   defaultFederatedTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*FederatedIdentity, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidFederatedToken)
	}

	ctx, cancel := context.WithTimeout(v.clientContext(ctx), v.timeout)
	defer cancel()

	verifier, err := v.idTokenVerifier(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: discovery: %v", ErrInvalidFederatedToken, err)
	}

	token, err := verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFederatedToken, err)
	}

	var claims map[string]interface{}
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: decode claims: %v", ErrInvalidFederatedToken, err)
	}

	return identityFromClaims(claims)
}

func (v *OIDCVerifier) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, v.client)
}

// idTokenVerifier performs discovery once. A failed discovery is not cached so
// the next request retries it.
func (v *OIDCVerifier) idTokenVerifier(ctx context.Context) (*oidc.IDTokenVerifier, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.verifier != nil {
		return v.verifier, nil
	}

	provider, err := oidc.NewProvider(ctx, v.authority)
	if err != nil {
		return nil, err
	}

	v.verifier = provider.Verifier(&oidc.Config{
		ClientID: v.audience,
		Now:      v.now,
	})
	return v.verifier, nil
}

func identityFromClaims(claims map[string]interface{}) (*FederatedIdentity, error) {
	subject := firstClaim(claims, subjectClaims...)
	if subject == "" {
		return nil, fmt.Errorf("%w: missing oid claim", ErrInvalidFederatedToken)
	}

	email := firstClaim(claims, "preferred_username", "email")
	if email == "" {
		return nil, fmt.Errorf("%w: missing email claim", ErrInvalidFederatedToken)
	}

	name := firstClaim(claims, "name")
	if name == "" {
		name = email
	}

	return &FederatedIdentity{
		SubjectID:   subject,
		Email:       email,
		DisplayName: name,
	}, nil
}

func firstClaim(claims map[string]interface{}, names ...string) string {
	for _, n := range names {
		if s, ok := claims[n].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

// DisabledVerifier rejects every token. It stands in when no identity
// provider is configured.
type DisabledVerifier struct{}

func (DisabledVerifier) Verify(context.Context, string) (*FederatedIdentity, error) {
	return nil, fmt.Errorf("%w: %w", ErrInvalidFederatedToken, ErrFederationDisabled)
}
