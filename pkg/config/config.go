package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Federated FederatedConfig
	RateLimit RateLimitConfig
	Seed      SeedConfig
	Audit     AuditConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustProxy     bool // take the client address from X-Forwarded-For/X-Real-IP
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type JWTConfig struct {
	Secret      string
	Issuer      string
	Audience    string
	ExpiryHours int
}

// FederatedConfig describes the external identity provider whose access
// tokens can be exchanged for a session.
type FederatedConfig struct {
	Instance       string
	TenantID       string
	ClientID       string
	Audience       string
	IssuerURL      string // overrides the authority derived from Instance/TenantID
	TimeoutSeconds int
}

type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
}

type SeedConfig struct {
	DemoData bool
}

// AuditConfig controls the auth event retention job run by the worker.
type AuditConfig struct {
	RetentionDays int
	PruneCron     string
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (j *JWTConfig) Expiry() time.Duration {
	return time.Duration(j.ExpiryHours) * time.Hour
}

// Authority returns the issuer URL of the federated identity provider, or ""
// when federated sign-in is not configured.
func (f *FederatedConfig) Authority() string {
	if f.IssuerURL != "" {
		return strings.TrimSuffix(f.IssuerURL, "/")
	}
	if f.TenantID == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/v2.0", strings.TrimSuffix(f.Instance, "/"), f.TenantID)
}

// ExpectedAudience falls back to the api:// URI of the client id.
func (f *FederatedConfig) ExpectedAudience() string {
	if f.Audience != "" {
		return f.Audience
	}
	if f.ClientID == "" {
		return ""
	}
	return "api://" + f.ClientID
}

func (f *FederatedConfig) Enabled() bool {
	return f.Authority() != "" && f.ExpectedAudience() != ""
}

func (f *FederatedConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

func (s *ServerConfig) IsProduction() bool {
	return s.Env == "production"
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:4200")
	v.SetDefault("SERVER_TRUST_PROXY", false)
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "crewbase")
	v.SetDefault("DATABASE_PASSWORD", "crewbase_secret")
	v.SetDefault("DATABASE_NAME", "crewbase")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "crewbase")
	v.SetDefault("JWT_AUDIENCE", "crewbase-client")
	v.SetDefault("JWT_EXPIRY_HOURS", 8)
	v.SetDefault("FEDERATED_INSTANCE", "https://login.microsoftonline.com/")
	v.SetDefault("FEDERATED_TENANT_ID", "")
	v.SetDefault("FEDERATED_CLIENT_ID", "")
	v.SetDefault("FEDERATED_AUDIENCE", "")
	v.SetDefault("FEDERATED_ISSUER_URL", "")
	v.SetDefault("FEDERATED_TIMEOUT_SECONDS", 10)
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("AUDIT_RETENTION_DAYS", 90)
	v.SetDefault("AUDIT_PRUNE_CRON", "0 3 * * *")

	// Load from .env file if present
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	env := v.GetString("SERVER_ENV")
	// Demo tenants are seeded in development unless explicitly disabled.
	v.SetDefault("SEED_DEMO_DATA", env == "development")

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("SERVER_HOST"),
			Port:           v.GetInt("SERVER_PORT"),
			Env:            env,
			LogLevel:       v.GetString("LOG_LEVEL"),
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
			TrustProxy:     v.GetBool("SERVER_TRUST_PROXY"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DATABASE_HOST"),
			Port:     v.GetInt("DATABASE_PORT"),
			User:     v.GetString("DATABASE_USER"),
			Password: v.GetString("DATABASE_PASSWORD"),
			Name:     v.GetString("DATABASE_NAME"),
			SSLMode:  v.GetString("DATABASE_SSLMODE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		JWT: JWTConfig{
			Secret:      v.GetString("JWT_SECRET"),
			Issuer:      v.GetString("JWT_ISSUER"),
			Audience:    v.GetString("JWT_AUDIENCE"),
			ExpiryHours: v.GetInt("JWT_EXPIRY_HOURS"),
		},
		Federated: FederatedConfig{
			Instance:       v.GetString("FEDERATED_INSTANCE"),
			TenantID:       v.GetString("FEDERATED_TENANT_ID"),
			ClientID:       v.GetString("FEDERATED_CLIENT_ID"),
			Audience:       v.GetString("FEDERATED_AUDIENCE"),
			IssuerURL:      v.GetString("FEDERATED_ISSUER_URL"),
			TimeoutSeconds: v.GetInt("FEDERATED_TIMEOUT_SECONDS"),
		},
		RateLimit: RateLimitConfig{
			Requests:      v.GetInt("RATE_LIMIT_REQUESTS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Seed: SeedConfig{
			DemoData: v.GetBool("SEED_DEMO_DATA"),
		},
		Audit: AuditConfig{
			RetentionDays: v.GetInt("AUDIT_RETENTION_DAYS"),
			PruneCron:     v.GetString("AUDIT_PRUNE_CRON"),
		},
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
