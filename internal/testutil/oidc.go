package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	FakeIssuerAudience = "api://crewbase-test"
	fakeIssuerKeyID    = "test-key-1"
)

// FakeIssuer is a minimal OpenID Connect issuer serving discovery and a JWKS
// for a single RSA key.
type FakeIssuer struct {
	Server *httptest.Server
	key    *rsa.PrivateKey

	discoveryHits atomic.Int32
}

func NewFakeIssuer(t *testing.T) *FakeIssuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate issuer key: %v", err)
	}

	fi := &FakeIssuer{key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		fi.discoveryHits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"issuer":                                fi.Server.URL,
			"jwks_uri":                              fi.Server.URL + "/keys",
			"authorization_endpoint":                fi.Server.URL + "/authorize",
			"token_endpoint":                        fi.Server.URL + "/token",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"keys": []map[string]string{{
				"kty": "RSA",
				"use": "sig",
				"alg": "RS256",
				"kid": fakeIssuerKeyID,
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		})
	})

	fi.Server = httptest.NewServer(mux)
	t.Cleanup(fi.Server.Close)
	return fi
}

func (fi *FakeIssuer) URL() string {
	return fi.Server.URL
}

func (fi *FakeIssuer) DiscoveryHits() int {
	return int(fi.discoveryHits.Load())
}

// Claims returns a valid claim set for a fresh external identity.
func (fi *FakeIssuer) Claims(email, name string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":                fi.Server.URL,
		"aud":                FakeIssuerAudience,
		"iat":                now.Unix(),
		"nbf":                now.Unix(),
		"exp":                now.Add(time.Hour).Unix(),
		"oid":                uuid.NewString(),
		"preferred_username": email,
		"name":               name,
	}
}

// Sign signs claims with the issuer's published key.
func (fi *FakeIssuer) Sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	return SignRS256(t, fi.key, fakeIssuerKeyID, claims)
}

// Token issues a valid token for email and returns it along with its subject.
func (fi *FakeIssuer) Token(t *testing.T, email, name string) (string, string) {
	t.Helper()
	claims := fi.Claims(email, name)
	return fi.Sign(t, claims), claims["oid"].(string)
}

func SignRS256(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign external token: %v", err)
	}
	return signed
}
