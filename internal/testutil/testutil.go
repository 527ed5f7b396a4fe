package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/crewbase/internal/auth"
	"github.com/hugh/crewbase/internal/database"
	"github.com/hugh/crewbase/internal/database/models"
	"github.com/hugh/crewbase/internal/directory"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	TestPassword = "testpassword123"
	TestIssuer   = "crewbase"
	TestAudience = "crewbase-client"
)

// SetupTestDB creates an in-memory SQLite database for testing. The pool is
// pinned to one connection because every :memory: connection is its own
// database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// CleanupTestDB closes the test database connection
func CleanupTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Logf("warning: failed to get sql.DB: %v", err)
		return
	}
	sqlDB.Close()
}

// CreateTestTenant creates a tenant with default branding and roles.
func CreateTestTenant(t *testing.T, db *gorm.DB, name string) *directory.NewTenant {
	t.Helper()

	var created *directory.NewTenant
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		created, err = directory.New(tx).CreateTenant(context.Background(), name)
		return err
	})
	if err != nil {
		t.Fatalf("failed to create test tenant: %v", err)
	}

	return created
}

// CreateTestUser creates a password user in tenant holding role.
func CreateTestUser(t *testing.T, db *gorm.DB, tenant *directory.NewTenant, role *models.Role) *models.User {
	t.Helper()

	hash, err := auth.HashPassword(TestPassword)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	dir := directory.New(db)
	email := "test-" + uuid.New().String()[:8] + "@example.com"
	user, err := dir.CreatePasswordUser(context.Background(), tenant.Tenant.ID, email, "Test User", hash)
	if err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	if role != nil {
		if err := dir.AssignRole(context.Background(), user, role); err != nil {
			t.Fatalf("failed to assign role: %v", err)
		}
	}

	return user
}

// CreateTestJWTService creates a JWT service for testing
func CreateTestJWTService() *auth.JWTService {
	return auth.NewJWTService([]byte("test-secret-key-for-testing"), TestIssuer, TestAudience, 8*time.Hour)
}

// GenerateTestToken generates a valid JWT token for the given user
func GenerateTestToken(t *testing.T, jwtService *auth.JWTService, user *models.User, role string) string {
	t.Helper()

	token, _, err := jwtService.GenerateToken(user.ID, user.TenantID, user.Email, role)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}

	return token
}

// AuthenticatedRequest creates an HTTP request with authentication
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// UnauthenticatedRequest creates an HTTP request without authentication
func UnauthenticatedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	return AuthenticatedRequest(t, method, path, body, "")
}

// AssertStatus checks if the response has the expected status code
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, rr.Code, rr.Body.String())
	}
}

// ParseJSONResponse parses the response body into the given struct
func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}

// TestContext creates a context with a timeout for tests
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestSetup holds all the common test dependencies
type TestSetup struct {
	DB         *gorm.DB
	JWTService *auth.JWTService
	Tenant     *directory.NewTenant
	User       *models.User
	Token      string
}

// NewTestContext creates a complete test setup with DB, tenant, admin user, and token
func NewTestContext(t *testing.T) *TestSetup {
	t.Helper()

	db := SetupTestDB(t)
	jwtService := CreateTestJWTService()
	tenant := CreateTestTenant(t, db, "Test Company")
	user := CreateTestUser(t, db, tenant, tenant.AdminRole)
	token := GenerateTestToken(t, jwtService, user, models.RoleAdmin)

	return &TestSetup{
		DB:         db,
		JWTService: jwtService,
		Tenant:     tenant,
		User:       user,
		Token:      token,
	}
}

// Cleanup closes the test database
func (ts *TestSetup) Cleanup() {
	if ts.DB != nil {
		sqlDB, err := ts.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}
