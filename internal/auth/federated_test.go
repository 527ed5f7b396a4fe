package auth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/hugh/crewbase/internal/auth"
	"github.com/hugh/crewbase/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOIDCVerifier_Verify(t *testing.T) {
	issuer := testutil.NewFakeIssuer(t)
	verifier := auth.NewOIDCVerifier(issuer.URL(), testutil.FakeIssuerAudience, auth.WithTimeout(5*time.Second))
	ctx := context.Background()

	t.Run("accepts valid token", func(t *testing.T) {
		claims := issuer.Claims("dana@contoso.com", "Dana Scully")
		raw := issuer.Sign(t, claims)

		identity, err := verifier.Verify(ctx, raw)
		require.NoError(t, err)
		assert.Equal(t, claims["oid"], identity.SubjectID)
		assert.Equal(t, "dana@contoso.com", identity.Email)
		assert.Equal(t, "Dana Scully", identity.DisplayName)
	})

	t.Run("discovery runs once", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			raw, _ := issuer.Token(t, "x@contoso.com", "X")
			_, err := verifier.Verify(ctx, raw)
			require.NoError(t, err)
		}
		assert.Equal(t, 1, issuer.DiscoveryHits())
	})

	t.Run("falls back to objectidentifier claim", func(t *testing.T) {
		claims := issuer.Claims("a@contoso.com", "A")
		delete(claims, "oid")
		claims["http://schemas.microsoft.com/identity/claims/objectidentifier"] = "object-123"

		identity, err := verifier.Verify(ctx, issuer.Sign(t, claims))
		require.NoError(t, err)
		assert.Equal(t, "object-123", identity.SubjectID)
	})

	t.Run("rejects sub without oid", func(t *testing.T) {
		claims := issuer.Claims("a@contoso.com", "A")
		delete(claims, "oid")
		claims["sub"] = "pairwise-sub-456"

		identity, err := verifier.Verify(ctx, issuer.Sign(t, claims))
		assert.Nil(t, identity)
		assert.True(t, errors.Is(err, auth.ErrInvalidFederatedToken))
		assert.Contains(t, err.Error(), "missing oid claim")
	})

	t.Run("email falls back to email claim", func(t *testing.T) {
		claims := issuer.Claims("", "B")
		delete(claims, "preferred_username")
		claims["email"] = "b@contoso.com"

		identity, err := verifier.Verify(ctx, issuer.Sign(t, claims))
		require.NoError(t, err)
		assert.Equal(t, "b@contoso.com", identity.Email)
	})

	t.Run("display name falls back to email", func(t *testing.T) {
		claims := issuer.Claims("c@contoso.com", "")
		delete(claims, "name")

		identity, err := verifier.Verify(ctx, issuer.Sign(t, claims))
		require.NoError(t, err)
		assert.Equal(t, "c@contoso.com", identity.DisplayName)
	})

	t.Run("rejects missing subject", func(t *testing.T) {
		claims := issuer.Claims("d@contoso.com", "D")
		delete(claims, "oid")

		_, err := verifier.Verify(ctx, issuer.Sign(t, claims))
		assert.True(t, errors.Is(err, auth.ErrInvalidFederatedToken))
	})

	t.Run("rejects missing email", func(t *testing.T) {
		claims := issuer.Claims("", "E")
		delete(claims, "preferred_username")

		_, err := verifier.Verify(ctx, issuer.Sign(t, claims))
		assert.True(t, errors.Is(err, auth.ErrInvalidFederatedToken))
	})

	t.Run("rejects expired token", func(t *testing.T) {
		claims := issuer.Claims("f@contoso.com", "F")
		claims["iat"] = time.Now().Add(-2 * time.Hour).Unix()
		claims["nbf"] = time.Now().Add(-2 * time.Hour).Unix()
		claims["exp"] = time.Now().Add(-time.Hour).Unix()

		_, err := verifier.Verify(ctx, issuer.Sign(t, claims))
		assert.True(t, errors.Is(err, auth.ErrInvalidFederatedToken))
	})

	t.Run("rejects wrong audience", func(t *testing.T) {
		claims := issuer.Claims("g@contoso.com", "G")
		claims["aud"] = "api://someone-else"

		_, err := verifier.Verify(ctx, issuer.Sign(t, claims))
		assert.True(t, errors.Is(err, auth.ErrInvalidFederatedToken))
	})

	t.Run("rejects wrong issuer", func(t *testing.T) {
		claims := issuer.Claims("h@contoso.com", "H")
		claims["iss"] = "https://login.example.com/other/v2.0"

		_, err := verifier.Verify(ctx, issuer.Sign(t, claims))
		assert.True(t, errors.Is(err, auth.ErrInvalidFederatedToken))
	})

	t.Run("rejects token signed by unknown key", func(t *testing.T) {
		other, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		raw := testutil.SignRS256(t, other, "rogue-key", issuer.Claims("i@contoso.com", "I"))

		_, err = verifier.Verify(ctx, raw)
		assert.True(t, errors.Is(err, auth.ErrInvalidFederatedToken))
	})

	t.Run("rejects garbage and empty tokens", func(t *testing.T) {
		_, err := verifier.Verify(ctx, "not-a-token")
		assert.True(t, errors.Is(err, auth.ErrInvalidFederatedToken))

		_, err = verifier.Verify(ctx, "")
		assert.True(t, errors.Is(err, auth.ErrInvalidFederatedToken))
	})
}

func TestOIDCVerifier_UnreachableIssuer(t *testing.T) {
	issuer := testutil.NewFakeIssuer(t)
	raw, _ := issuer.Token(t, "a@contoso.com", "A")
	url := issuer.URL()
	issuer.Server.Close()

	verifier := auth.NewOIDCVerifier(url, testutil.FakeIssuerAudience, auth.WithTimeout(2*time.Second))
	_, err := verifier.Verify(context.Background(), raw)
	assert.True(t, errors.Is(err, auth.ErrInvalidFederatedToken))
}

func TestDisabledVerifier(t *testing.T) {
	_, err := auth.DisabledVerifier{}.Verify(context.Background(), "anything")
	assert.True(t, errors.Is(err, auth.ErrInvalidFederatedToken))
	assert.True(t, errors.Is(err, auth.ErrFederationDisabled))
}
