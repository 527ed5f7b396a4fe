package dto

import (
	"strings"
	"time"

	"github.com/hugh/crewbase/internal/api/validation"
	"github.com/hugh/crewbase/internal/auth"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if strings.TrimSpace(r.Email) == "" {
		errors["email"] = "Email is required"
	}
	if r.Password == "" {
		errors["password"] = "Password is required"
	}

	return errors
}

type RegisterRequest struct {
	CompanyName string `json:"companyName"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
}

func (r RegisterRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if ok, msg := validation.IsValidName(r.CompanyName, validation.MaxCompanyNameLength); !ok {
		errors["companyName"] = "Company name " + msg
	}
	if strings.TrimSpace(r.Email) == "" {
		errors["email"] = "Email is required"
	} else if !validation.IsValidEmail(strings.TrimSpace(r.Email)) {
		errors["email"] = "Email is invalid"
	}
	if ok, msg := validation.IsValidName(r.DisplayName, validation.MaxDisplayNameLength); !ok {
		errors["displayName"] = "Display name " + msg
	}
	if r.Password == "" {
		errors["password"] = "Password is required"
	} else if ok, msg := validation.IsValidPassword(r.Password); !ok {
		errors["password"] = msg
	}

	return errors
}

// DemoLoginRequest may be omitted entirely. Only a missing tenant name selects
// the default demo tenant; an explicit "" is passed through.
type DemoLoginRequest struct {
	TenantName *string `json:"tenantName"`
}

func (r DemoLoginRequest) Tenant() string {
	if r.TenantName == nil {
		return auth.DefaultDemoTenant
	}
	return *r.TenantName
}

func (r DemoLoginRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.TenantName != nil && len(*r.TenantName) > validation.MaxCompanyNameLength {
		errors["tenantName"] = "Tenant name is too long"
	}

	return errors
}

type RefreshRequest struct {
	Token string `json:"token"`
}

func (r RefreshRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if strings.TrimSpace(r.Token) == "" {
		errors["token"] = "Token is required"
	}

	return errors
}

type FederatedLoginRequest struct {
	ExternalAccessToken string `json:"externalAccessToken"`
}

func (r FederatedLoginRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if strings.TrimSpace(r.ExternalAccessToken) == "" {
		errors["externalAccessToken"] = "External access token is required"
	}

	return errors
}

type FederatedProvisionRequest struct {
	ExternalAccessToken string `json:"externalAccessToken"`
	CompanyName         string `json:"companyName"`
	DisplayName         string `json:"displayName,omitempty"`
}

func (r FederatedProvisionRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if strings.TrimSpace(r.ExternalAccessToken) == "" {
		errors["externalAccessToken"] = "External access token is required"
	}
	if ok, msg := validation.IsValidName(r.CompanyName, validation.MaxCompanyNameLength); !ok {
		errors["companyName"] = "Company name " + msg
	}
	// The display name is optional and defaults to the name on the external identity.
	if strings.TrimSpace(r.DisplayName) != "" {
		if ok, msg := validation.IsValidName(r.DisplayName, validation.MaxDisplayNameLength); !ok {
			errors["displayName"] = "Display name " + msg
		}
	}

	return errors
}

type AuthResponse struct {
	Token       string `json:"token"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	TenantID    string `json:"tenantId"`
	TenantName  string `json:"tenantName"`
	Role        string `json:"role"`
	Expiration  string `json:"expiration"`
}

func NewAuthResponse(r *auth.AuthResult) AuthResponse {
	return AuthResponse{
		Token:       r.Token,
		Email:       r.Email,
		DisplayName: r.DisplayName,
		TenantID:    r.TenantID.String(),
		TenantName:  r.TenantName,
		Role:        r.Role,
		Expiration:  r.Expiration.UTC().Format(time.RFC3339),
	}
}

type FederatedLoginResponse struct {
	IsProvisioned bool          `json:"isProvisioned"`
	Auth          *AuthResponse `json:"auth,omitempty"`
	PendingToken  string        `json:"pendingToken,omitempty"`
}

func NewFederatedLoginResponse(r *auth.FederatedLoginResult) FederatedLoginResponse {
	resp := FederatedLoginResponse{
		IsProvisioned: r.Provisioned,
		PendingToken:  r.PendingToken,
	}
	if r.Auth != nil {
		a := NewAuthResponse(r.Auth)
		resp.Auth = &a
	}
	return resp
}
