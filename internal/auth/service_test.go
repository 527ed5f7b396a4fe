package auth_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/crewbase/internal/auth"
	"github.com/hugh/crewbase/internal/database/models"
	"github.com/hugh/crewbase/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []auth.Event
	err    error
}

func (p *recordingPublisher) PublishAuthEvent(_ context.Context, e auth.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) kinds() []models.AuthEventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.AuthEventKind, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Kind)
	}
	return out
}

type serviceFixture struct {
	db     *gorm.DB
	jwt    *auth.JWTService
	svc    *auth.Service
	issuer *testutil.FakeIssuer
	events *recordingPublisher
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	issuer := testutil.NewFakeIssuer(t)
	verifier := auth.NewOIDCVerifier(issuer.URL(), testutil.FakeIssuerAudience, auth.WithTimeout(5*time.Second))
	jwtService := testutil.CreateTestJWTService()
	events := &recordingPublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := auth.NewService(db, jwtService, verifier, logger,
		auth.WithPasswordHasher(auth.NewBcryptHasher(bcrypt.MinCost)),
		auth.WithEventPublisher(events),
	)

	return &serviceFixture{db: db, jwt: jwtService, svc: svc, issuer: issuer, events: events}
}

func (f *serviceFixture) register(t *testing.T, company, email string) *auth.AuthResult {
	t.Helper()
	result, err := f.svc.Register(context.Background(), auth.RegisterInput{
		CompanyName: company,
		Email:       email,
		DisplayName: "Owner of " + company,
		Password:    "longenough1",
	})
	require.NoError(t, err)
	return result
}

func (f *serviceFixture) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func TestService_RegisterThenLogin(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	registered, err := f.svc.Register(ctx, auth.RegisterInput{
		CompanyName: "Acme",
		Email:       "a@acme.com",
		DisplayName: "Alice",
		Password:    "longenough1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, registered.Role)
	assert.Equal(t, "Acme", registered.TenantName)
	assert.Equal(t, "Alice", registered.DisplayName)
	assert.Equal(t, "a@acme.com", registered.Email)
	assert.NotEqual(t, uuid.Nil, registered.TenantID)

	loggedIn, err := f.svc.Login(ctx, auth.LoginInput{Email: "a@acme.com", Password: "longenough1"})
	require.NoError(t, err)
	assert.Equal(t, registered.TenantID, loggedIn.TenantID)
	assert.Equal(t, models.RoleAdmin, loggedIn.Role)

	claims, err := f.jwt.ValidateToken(loggedIn.Token)
	require.NoError(t, err)
	assert.Equal(t, registered.TenantID, claims.TenantID)
	assert.Equal(t, models.RoleAdmin, claims.Role)

	assert.Equal(t, []models.AuthEventKind{models.AuthEventRegistered, models.AuthEventLogin}, f.events.kinds())
}

func TestService_Login(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.register(t, "Login Co", "owner@login.co")

	t.Run("token tenant matches user tenant", func(t *testing.T) {
		result, err := f.svc.Login(ctx, auth.LoginInput{Email: "owner@login.co", Password: "longenough1"})
		require.NoError(t, err)

		var user models.User
		require.NoError(t, f.db.Where("email = ?", "owner@login.co").First(&user).Error)

		claims, err := f.jwt.ValidateToken(result.Token)
		require.NoError(t, err)
		assert.Equal(t, user.TenantID, claims.TenantID)
		assert.Equal(t, user.ID, claims.UserID)
		assert.Equal(t, claims.ExpiresAt.Unix(), result.Expiration.Unix())
	})

	t.Run("email is case insensitive", func(t *testing.T) {
		_, err := f.svc.Login(ctx, auth.LoginInput{Email: "  OWNER@Login.Co ", Password: "longenough1"})
		assert.NoError(t, err)
	})

	t.Run("records last login", func(t *testing.T) {
		var user models.User
		require.NoError(t, f.db.Where("email = ?", "owner@login.co").First(&user).Error)
		assert.NotNil(t, user.LastLoginAt)
	})

	cases := []struct {
		name     string
		email    string
		password string
	}{
		{"wrong password", "owner@login.co", "not-the-password"},
		{"unknown email", "nobody@login.co", "longenough1"},
		{"empty password", "owner@login.co", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := f.svc.Login(ctx, auth.LoginInput{Email: tc.email, Password: tc.password})
			assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
			assert.Nil(t, result)
		})
	}

	t.Run("inactive user", func(t *testing.T) {
		f.register(t, "Dormant Co", "gone@dormant.co")
		require.NoError(t, f.db.Model(&models.User{}).Where("email = ?", "gone@dormant.co").Update("is_active", false).Error)

		_, err := f.svc.Login(ctx, auth.LoginInput{Email: "gone@dormant.co", Password: "longenough1"})
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("federated-only user cannot use a password", func(t *testing.T) {
		raw, _ := f.issuer.Token(t, "fed@login.co", "Fed")
		_, err := f.svc.FederatedProvision(ctx, auth.FederatedProvisionInput{ExternalToken: raw, CompanyName: "Fed Co"})
		require.NoError(t, err)

		_, err = f.svc.Login(ctx, auth.LoginInput{Email: "fed@login.co", Password: ""})
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})
}

func TestService_Register(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	t.Run("creates tenant, branding, roles and admin user", func(t *testing.T) {
		result := f.register(t, "Fresh Co", "owner@fresh.co")

		var tenant models.Tenant
		require.NoError(t, f.db.First(&tenant, "id = ?", result.TenantID).Error)
		assert.Equal(t, "Fresh Co", tenant.CompanyName)

		var branding models.Branding
		require.NoError(t, f.db.Where("tenant_id = ?", result.TenantID).First(&branding).Error)
		assert.Equal(t, models.DefaultPrimaryColor, branding.PrimaryColor)

		var roles []models.Role
		require.NoError(t, f.db.Where("tenant_id = ?", result.TenantID).Order("name").Find(&roles).Error)
		require.Len(t, roles, 2)

		var user models.User
		require.NoError(t, f.db.Where("email = ?", "owner@fresh.co").First(&user).Error)
		require.NotNil(t, user.PasswordHash)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte("longenough1")))
		assert.Nil(t, user.FederatedSubject)
	})

	t.Run("duplicate email is a conflict", func(t *testing.T) {
		tenantsBefore := f.count(t, &models.Tenant{})

		_, err := f.svc.Register(ctx, auth.RegisterInput{
			CompanyName: "Copycat Co",
			Email:       "Owner@Fresh.co",
			DisplayName: "Copycat",
			Password:    "longenough1",
		})
		assert.ErrorIs(t, err, auth.ErrEmailTaken)
		assert.Equal(t, tenantsBefore, f.count(t, &models.Tenant{}))
	})

	t.Run("distinct tenants get distinct ids and branding", func(t *testing.T) {
		a := f.register(t, "Twin A", "a@twins.co")
		b := f.register(t, "Twin B", "b@twins.co")
		assert.NotEqual(t, a.TenantID, b.TenantID)

		var brandA, brandB models.Branding
		require.NoError(t, f.db.Where("tenant_id = ?", a.TenantID).First(&brandA).Error)
		require.NoError(t, f.db.Where("tenant_id = ?", b.TenantID).First(&brandB).Error)
		assert.NotEqual(t, brandA.ID, brandB.ID)
	})
}

func TestService_RegisterIsAtomic(t *testing.T) {
	f := newServiceFixture(t)

	forced := errors.New("forced user insert failure")
	err := f.db.Callback().Create().Before("gorm:create").Register("test:fail_user_insert", func(tx *gorm.DB) {
		if tx.Statement.Table == "users" {
			tx.AddError(forced)
		}
	})
	require.NoError(t, err)

	_, err = f.svc.Register(context.Background(), auth.RegisterInput{
		CompanyName: "Halfway Co",
		Email:       "owner@halfway.co",
		DisplayName: "Owner",
		Password:    "longenough1",
	})
	assert.ErrorIs(t, err, auth.ErrRegistrationFailed)

	assert.Zero(t, f.count(t, &models.Tenant{}))
	assert.Zero(t, f.count(t, &models.Branding{}))
	assert.Zero(t, f.count(t, &models.Role{}))
	assert.Zero(t, f.count(t, &models.User{}))
	assert.Zero(t, f.count(t, &models.UserRole{}))
	assert.Empty(t, f.events.kinds())
}

func TestService_FederatedProvisionIsAtomic(t *testing.T) {
	f := newServiceFixture(t)

	forced := errors.New("forced role assignment failure")
	err := f.db.Callback().Create().Before("gorm:create").Register("test:fail_user_role_insert", func(tx *gorm.DB) {
		if tx.Statement.Table == "user_roles" {
			tx.AddError(forced)
		}
	})
	require.NoError(t, err)

	raw, subject := f.issuer.Token(t, "walter@contoso.com", "Walter Skinner")
	_, err = f.svc.FederatedProvision(context.Background(), auth.FederatedProvisionInput{
		ExternalToken: raw,
		CompanyName:   "Halfway Federated",
	})
	assert.ErrorIs(t, err, auth.ErrRegistrationFailed)

	assert.Zero(t, f.count(t, &models.Tenant{}))
	assert.Zero(t, f.count(t, &models.Branding{}))
	assert.Zero(t, f.count(t, &models.Role{}))
	assert.Zero(t, f.count(t, &models.User{}))
	assert.Zero(t, f.count(t, &models.UserRole{}))
	assert.Empty(t, f.events.kinds())

	var n int64
	require.NoError(t, f.db.Model(&models.User{}).Where("federated_subject = ?", subject).Count(&n).Error)
	assert.Zero(t, n)
}

func TestService_DemoLogin(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	t.Run("no tenants", func(t *testing.T) {
		_, err := f.svc.DemoLogin(ctx, "Acme Corp")
		assert.ErrorIs(t, err, auth.ErrNoDemoTenant)
	})

	acme := f.register(t, "Acme Corp", "admin@acme.com")
	time.Sleep(5 * time.Millisecond)
	pixel := f.register(t, "Pixel Studio", "admin@pixelstudio.com")

	t.Run("known tenants yield different sessions", func(t *testing.T) {
		a, err := f.svc.DemoLogin(ctx, "Acme Corp")
		require.NoError(t, err)
		p, err := f.svc.DemoLogin(ctx, "Pixel Studio")
		require.NoError(t, err)

		assert.Equal(t, acme.TenantID, a.TenantID)
		assert.Equal(t, pixel.TenantID, p.TenantID)
		assert.NotEqual(t, a.TenantID, p.TenantID)
		assert.NotEqual(t, a.TenantName, p.TenantName)

		ac, err := f.jwt.ValidateToken(a.Token)
		require.NoError(t, err)
		pc, err := f.jwt.ValidateToken(p.Token)
		require.NoError(t, err)
		assert.NotEqual(t, ac.TenantID, pc.TenantID)
	})

	t.Run("unknown name falls back deterministically", func(t *testing.T) {
		first, err := f.svc.DemoLogin(ctx, "Nonexistent Ltd")
		require.NoError(t, err)
		second, err := f.svc.DemoLogin(ctx, "Also Missing")
		require.NoError(t, err)

		assert.Equal(t, first.TenantID, second.TenantID)
		assert.Equal(t, acme.TenantID, first.TenantID)
	})

	t.Run("empty name uses the fallback tenant", func(t *testing.T) {
		result, err := f.svc.DemoLogin(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, acme.TenantID, result.TenantID)
	})

	t.Run("tenant without active users", func(t *testing.T) {
		require.NoError(t, f.db.Model(&models.User{}).Where("tenant_id = ?", pixel.TenantID).Update("is_active", false).Error)

		_, err := f.svc.DemoLogin(ctx, "Pixel Studio")
		assert.ErrorIs(t, err, auth.ErrNoDemoTenant)
	})
}

func TestService_Refresh(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	registered := f.register(t, "Refresh Co", "owner@refresh.co")

	claims, err := f.jwt.ValidateToken(registered.Token)
	require.NoError(t, err)

	expiredToken := func(t *testing.T) string {
		t.Helper()
		past := f.jwt.WithClock(func() time.Time { return time.Now().Add(-9 * time.Hour) })
		token, _, err := past.GenerateToken(claims.UserID, claims.TenantID, claims.Email, claims.Role)
		require.NoError(t, err)
		_, err = f.jwt.ValidateToken(token)
		require.ErrorIs(t, err, auth.ErrExpiredToken)
		return token
	}

	t.Run("accepts expired token and extends expiration", func(t *testing.T) {
		token := expiredToken(t)
		oldClaims, err := f.jwt.ValidateForRefresh(token)
		require.NoError(t, err)

		result, err := f.svc.Refresh(ctx, token)
		require.NoError(t, err)
		assert.True(t, result.Expiration.After(oldClaims.ExpiresAt.Time))
		assert.Equal(t, registered.TenantID, result.TenantID)

		_, err = f.jwt.ValidateToken(result.Token)
		assert.NoError(t, err)
	})

	t.Run("rejects tampered signature regardless of expiry", func(t *testing.T) {
		for _, token := range []string{expiredToken(t), registered.Token} {
			parts := strings.Split(token, ".")
			require.Len(t, parts, 3)
			forged := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

			_, err := f.svc.Refresh(ctx, forged)
			assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
		}
	})

	t.Run("rejects token from another signer", func(t *testing.T) {
		other := auth.NewJWTService([]byte("another-secret"), testutil.TestIssuer, testutil.TestAudience, time.Hour)
		token, _, err := other.GenerateToken(claims.UserID, claims.TenantID, claims.Email, claims.Role)
		require.NoError(t, err)

		_, err = f.svc.Refresh(ctx, token)
		assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
	})

	t.Run("reflects current role", func(t *testing.T) {
		require.NoError(t, f.db.Model(&models.Role{}).
			Where("tenant_id = ? AND name = ?", registered.TenantID, models.RoleAdmin).
			Update("name", "Owner").Error)

		result, err := f.svc.Refresh(ctx, registered.Token)
		require.NoError(t, err)
		assert.Equal(t, "Owner", result.Role)
	})

	t.Run("rejects inactive user", func(t *testing.T) {
		require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", claims.UserID).Update("is_active", false).Error)

		_, err := f.svc.Refresh(ctx, registered.Token)
		assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
	})
}

func TestService_Federated(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	raw, subject := f.issuer.Token(t, "dana@contoso.com", "Dana Scully")

	t.Run("unknown subject is not provisioned", func(t *testing.T) {
		result, err := f.svc.FederatedLogin(ctx, raw)
		require.NoError(t, err)
		assert.False(t, result.Provisioned)
		assert.Nil(t, result.Auth)
		assert.Equal(t, raw, result.PendingToken)
	})

	t.Run("provisioning with the same token creates one tenant and one user", func(t *testing.T) {
		tenantsBefore := f.count(t, &models.Tenant{})
		usersBefore := f.count(t, &models.User{})

		result, err := f.svc.FederatedProvision(ctx, auth.FederatedProvisionInput{
			ExternalToken: raw,
			CompanyName:   "Contoso",
			DisplayName:   "Dana",
		})
		require.NoError(t, err)
		assert.Equal(t, models.RoleAdmin, result.Role)
		assert.Equal(t, "Contoso", result.TenantName)
		assert.Equal(t, "Dana", result.DisplayName)
		assert.Equal(t, "dana@contoso.com", result.Email)

		assert.Equal(t, tenantsBefore+1, f.count(t, &models.Tenant{}))
		assert.Equal(t, usersBefore+1, f.count(t, &models.User{}))

		var user models.User
		require.NoError(t, f.db.Where("federated_subject = ?", subject).First(&user).Error)
		assert.Nil(t, user.PasswordHash)
		assert.Equal(t, result.TenantID, user.TenantID)
		assert.False(t, user.Methods().Has(models.AuthPassword))
	})

	t.Run("login after provisioning issues a session", func(t *testing.T) {
		result, err := f.svc.FederatedLogin(ctx, raw)
		require.NoError(t, err)
		require.True(t, result.Provisioned)
		require.NotNil(t, result.Auth)
		assert.Empty(t, result.PendingToken)
		assert.Equal(t, "Contoso", result.Auth.TenantName)

		claims, err := f.jwt.ValidateToken(result.Auth.Token)
		require.NoError(t, err)
		assert.Equal(t, result.Auth.TenantID, claims.TenantID)
	})

	t.Run("provisioning twice is a conflict", func(t *testing.T) {
		tenantsBefore := f.count(t, &models.Tenant{})

		_, err := f.svc.FederatedProvision(ctx, auth.FederatedProvisionInput{ExternalToken: raw, CompanyName: "Contoso Again"})
		assert.ErrorIs(t, err, auth.ErrFederatedSubjectTaken)
		assert.Equal(t, tenantsBefore, f.count(t, &models.Tenant{}))
	})

	t.Run("display name defaults to the external name", func(t *testing.T) {
		token, _ := f.issuer.Token(t, "fox@contoso.com", "Fox Mulder")
		result, err := f.svc.FederatedProvision(ctx, auth.FederatedProvisionInput{ExternalToken: token, CompanyName: "Spooky"})
		require.NoError(t, err)
		assert.Equal(t, "Fox Mulder", result.DisplayName)
	})

	t.Run("inactive federated user is refused", func(t *testing.T) {
		require.NoError(t, f.db.Model(&models.User{}).Where("federated_subject = ?", subject).Update("is_active", false).Error)

		_, err := f.svc.FederatedLogin(ctx, raw)
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})
}

func TestService_FederatedInvalidTokenHasNoSideEffects(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	claims := f.issuer.Claims("eve@contoso.com", "Eve")
	claims["exp"] = time.Now().Add(-time.Hour).Unix()
	claims["iat"] = time.Now().Add(-2 * time.Hour).Unix()
	claims["nbf"] = time.Now().Add(-2 * time.Hour).Unix()
	expired := f.issuer.Sign(t, claims)

	for _, token := range []string{expired, "garbage", ""} {
		_, err := f.svc.FederatedProvision(ctx, auth.FederatedProvisionInput{ExternalToken: token, CompanyName: "Evil Corp"})
		assert.ErrorIs(t, err, auth.ErrInvalidFederatedToken)

		_, err = f.svc.FederatedLogin(ctx, token)
		assert.ErrorIs(t, err, auth.ErrInvalidFederatedToken)
	}

	assert.Zero(t, f.count(t, &models.Tenant{}))
	assert.Zero(t, f.count(t, &models.User{}))
	assert.Empty(t, f.events.kinds())
}

func TestService_FederationDisabled(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	svc := auth.NewService(db, testutil.CreateTestJWTService(), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := svc.FederatedLogin(context.Background(), "any-token")
	assert.ErrorIs(t, err, auth.ErrInvalidFederatedToken)
}

func TestService_PublishFailureDoesNotFailSignIn(t *testing.T) {
	f := newServiceFixture(t)
	f.events.err = errors.New("queue down")

	result, err := f.svc.Register(context.Background(), auth.RegisterInput{
		CompanyName: "Resilient Co",
		Email:       "owner@resilient.co",
		DisplayName: "Owner",
		Password:    "longenough1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
}
