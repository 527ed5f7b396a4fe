package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// DefaultSessionTTL is the fixed validity window of a session token.
const DefaultSessionTTL = 8 * time.Hour

const clockSkew = time.Minute

// Claims is the complete, fixed set of session claims.
type Claims struct {
	UserID   uuid.UUID `json:"user_id"`
	TenantID uuid.UUID `json:"tenant_id"`
	Email    string    `json:"email"`
	Role     string    `json:"role"`
	jwt.RegisteredClaims
}

type JWTService struct {
	secret   []byte
	issuer   string
	audience string
	expiry   time.Duration
	now      func() time.Time
}

func NewJWTService(secret []byte, issuer, audience string, expiry time.Duration) *JWTService {
	if expiry <= 0 {
		expiry = DefaultSessionTTL
	}
	return &JWTService{
		secret:   secret,
		issuer:   issuer,
		audience: audience,
		expiry:   expiry,
		now:      time.Now,
	}
}

// GenerateToken signs a new session token. The returned expiry is the
// absolute end of the token's window; it is never extended.
func (s *JWTService) GenerateToken(userID, tenantID uuid.UUID, email, role string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.expiry)
	claims := Claims{
		UserID:   userID,
		TenantID: tenantID,
		Email:    email,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			Subject:   userID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	// NumericDate has second precision; report what the token actually says.
	return signed, claims.ExpiresAt.Time, nil
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && s.signatureAndIssuerValid(tokenString) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// ValidateForRefresh accepts an expired token whose signature, algorithm,
// issuer, and audience are still valid. It is the only place an expired token
// is accepted and must only be used to mint a replacement.
func (s *JWTService) ValidateForRefresh(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != s.issuer || !audienceContains(claims.Audience, s.audience) {
		return nil, ErrInvalidToken
	}
	if claims.UserID == uuid.Nil {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// WithClock returns a copy of the service that reads time from now.
func (s *JWTService) WithClock(now func() time.Time) *JWTService {
	cp := *s
	cp.now = now
	return &cp
}

func (s *JWTService) Expiry() time.Duration {
	return s.expiry
}

func (s *JWTService) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, ErrInvalidToken
	}
	return s.secret, nil
}

// signatureAndIssuerValid distinguishes "expired" from "expired and forged":
// only a token we actually issued is reported as expired.
func (s *JWTService) signatureAndIssuerValid(tokenString string) bool {
	_, err := s.ValidateForRefresh(tokenString)
	return err == nil
}

func audienceContains(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}
