package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hugh/crewbase/internal/api/dto"
	"github.com/hugh/crewbase/internal/api/middleware"
	"github.com/hugh/crewbase/internal/auth"
	"github.com/hugh/crewbase/internal/metrics"
)

type AuthHandler struct {
	authService   auth.Authenticator
	metrics       *metrics.Metrics
	logger        *slog.Logger
	secureCookies bool
}

// NewAuthHandler wires the session flows to HTTP. secureCookies marks the
// token cookie Secure and should be set whenever the API is served over TLS.
func NewAuthHandler(authService auth.Authenticator, m *metrics.Metrics, logger *slog.Logger, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		authService:   authService,
		metrics:       m,
		logger:        logger,
		secureCookies: secureCookies,
	}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !h.decode(w, r, &req, false, metrics.FlowLogin) {
		return
	}
	if !h.validate(w, req.Validate(), metrics.FlowLogin) {
		return
	}

	result, err := h.authService.Login(r.Context(), auth.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.fail(w, metrics.FlowLogin, err)
		return
	}

	h.succeed(w, http.StatusOK, metrics.FlowLogin, result)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if !h.decode(w, r, &req, false, metrics.FlowRegister) {
		return
	}
	if !h.validate(w, req.Validate(), metrics.FlowRegister) {
		return
	}

	result, err := h.authService.Register(r.Context(), auth.RegisterInput{
		CompanyName: req.CompanyName,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Password:    req.Password,
	})
	if err != nil {
		h.fail(w, metrics.FlowRegister, err)
		return
	}

	h.succeed(w, http.StatusCreated, metrics.FlowRegister, result)
}

// Demo signs in as the first user of the named tenant. The body is optional.
func (h *AuthHandler) Demo(w http.ResponseWriter, r *http.Request) {
	var req dto.DemoLoginRequest
	if !h.decode(w, r, &req, true, metrics.FlowDemo) {
		return
	}
	if !h.validate(w, req.Validate(), metrics.FlowDemo) {
		return
	}

	result, err := h.authService.DemoLogin(r.Context(), req.Tenant())
	if err != nil {
		h.fail(w, metrics.FlowDemo, err)
		return
	}

	h.succeed(w, http.StatusOK, metrics.FlowDemo, result)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req dto.RefreshRequest
	if !h.decode(w, r, &req, false, metrics.FlowRefresh) {
		return
	}
	if !h.validate(w, req.Validate(), metrics.FlowRefresh) {
		return
	}

	result, err := h.authService.Refresh(r.Context(), req.Token)
	if err != nil {
		h.fail(w, metrics.FlowRefresh, err)
		return
	}

	h.succeed(w, http.StatusOK, metrics.FlowRefresh, result)
}

func (h *AuthHandler) FederatedLogin(w http.ResponseWriter, r *http.Request) {
	var req dto.FederatedLoginRequest
	if !h.decode(w, r, &req, false, metrics.FlowFederatedLogin) {
		return
	}
	if !h.validate(w, req.Validate(), metrics.FlowFederatedLogin) {
		return
	}

	result, err := h.authService.FederatedLogin(r.Context(), req.ExternalAccessToken)
	if err != nil {
		h.fail(w, metrics.FlowFederatedLogin, err)
		return
	}

	if !result.Provisioned {
		h.observe(metrics.FlowFederatedLogin, metrics.OutcomePending)
		writeJSON(w, http.StatusOK, dto.NewFederatedLoginResponse(result))
		return
	}

	h.observe(metrics.FlowFederatedLogin, metrics.OutcomeSuccess)
	h.setTokenCookie(w, result.Auth)
	writeJSON(w, http.StatusOK, dto.NewFederatedLoginResponse(result))
}

func (h *AuthHandler) FederatedProvision(w http.ResponseWriter, r *http.Request) {
	var req dto.FederatedProvisionRequest
	if !h.decode(w, r, &req, false, metrics.FlowFederatedProvision) {
		return
	}
	if !h.validate(w, req.Validate(), metrics.FlowFederatedProvision) {
		return
	}

	result, err := h.authService.FederatedProvision(r.Context(), auth.FederatedProvisionInput{
		ExternalToken: req.ExternalAccessToken,
		CompanyName:   req.CompanyName,
		DisplayName:   req.DisplayName,
	})
	if err != nil {
		h.fail(w, metrics.FlowFederatedProvision, err)
		return
	}

	h.succeed(w, http.StatusCreated, metrics.FlowFederatedProvision, result)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Logged out"})
}

// RateLimited counts a throttled auth request against the flow its path names.
func (h *AuthHandler) RateLimited(r *http.Request) {
	if flow, ok := flowByPath[r.URL.Path]; ok {
		h.observe(flow, metrics.OutcomeRateLimited)
	}
}

var flowByPath = map[string]string{
	"/api/v1/auth/login":               metrics.FlowLogin,
	"/api/v1/auth/register":            metrics.FlowRegister,
	"/api/v1/auth/demo":                metrics.FlowDemo,
	"/api/v1/auth/refresh":             metrics.FlowRefresh,
	"/api/v1/auth/federated-login":     metrics.FlowFederatedLogin,
	"/api/v1/auth/federated-provision": metrics.FlowFederatedProvision,
}

func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}, allowEmpty bool, flow string) bool {
	if err := decodeJSON(w, r, v, allowEmpty); err != nil {
		h.observe(flow, metrics.OutcomeRejected)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (h *AuthHandler) validate(w http.ResponseWriter, errs map[string]string, flow string) bool {
	if len(errs) > 0 {
		h.observe(flow, metrics.OutcomeRejected)
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return false
	}
	return true
}

func (h *AuthHandler) succeed(w http.ResponseWriter, status int, flow string, result *auth.AuthResult) {
	h.observe(flow, metrics.OutcomeSuccess)
	h.setTokenCookie(w, result)
	writeJSON(w, status, dto.NewAuthResponse(result))
}

// fail maps a flow error to its response. Causes stay in the log.
func (h *AuthHandler) fail(w http.ResponseWriter, flow string, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.observe(flow, metrics.OutcomeRejected)
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, auth.ErrInvalidOrExpiredToken):
		h.observe(flow, metrics.OutcomeRejected)
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
	case errors.Is(err, auth.ErrInvalidFederatedToken):
		h.observe(flow, metrics.OutcomeRejected)
		writeError(w, http.StatusUnauthorized, "Invalid external access token")
	case errors.Is(err, auth.ErrEmailTaken):
		h.observe(flow, metrics.OutcomeConflict)
		writeError(w, http.StatusConflict, "Email is already registered")
	case errors.Is(err, auth.ErrFederatedSubjectTaken):
		h.observe(flow, metrics.OutcomeConflict)
		writeError(w, http.StatusConflict, "External identity is already provisioned")
	case errors.Is(err, auth.ErrNoDemoTenant):
		h.observe(flow, metrics.OutcomeNotFound)
		writeError(w, http.StatusNotFound, "No demo tenant available")
	default:
		h.observe(flow, metrics.OutcomeError)
		h.logger.Error("auth flow failed", "flow", flow, "error", err)
		if errors.Is(err, auth.ErrRegistrationFailed) {
			writeError(w, http.StatusInternalServerError, "Registration failed")
			return
		}
		writeError(w, http.StatusInternalServerError, "Authentication failed")
	}
}

// setTokenCookie mirrors the issued token into an HttpOnly cookie for
// browser clients; it expires with the token.
func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, result *auth.AuthResult) {
	maxAge := int(time.Until(result.Expiration).Seconds())
	if maxAge <= 0 {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookieName,
		Value:    result.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func (h *AuthHandler) observe(flow, outcome string) {
	if h.metrics != nil {
		h.metrics.ObserveAuth(flow, outcome)
	}
}
