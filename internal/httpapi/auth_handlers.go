package httpapi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"authghost.org/internal/audit"
	"authghost.org/internal/auth"
	"authghost.org/internal/obs"
	"authghost.org/internal/stream"
)

type registerRequest struct {
	OrganizationID string `json:"organization_id"`
	Email          string `json:"email"`
	Password       string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Service  string `json:"service"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type revokeTokenRequest struct {
	TokenID string `json:"token_id"`
	UserID  string `json:"user_id"`
}

type authorizeRequest struct {
	Token      string `json:"token"`
	ServiceID  string `json:"service_id"`
	Permission string `json:"permission"`
	Feature    string `json:"feature,omitempty"`
}

type authorizeResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.authn.Register(r.Context(), auth.RegisterInput{
		OrganizationID: req.OrganizationID,
		Email:          req.Email,
		Password:       req.Password,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	audit.Event(r.Context(), "user.registered",
		zap.String("user_id", user.ID),
		zap.String("organization_id", user.OrganizationID))
	a.publish(stream.SecurityEvent{
		Type:           stream.EventUserRegistered,
		UserID:         user.ID,
		OrganizationID: user.OrganizationID,
		Email:          user.Email,
	})
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	pair, user, err := a.authn.Login(r.Context(), req.Email, req.Password, req.Service)
	if err != nil {
		obs.ObserveLogin(loginOutcome(err))
		a.auditLoginFailure(r, req.Email, err)
		handleDomainError(w, r, err)
		return
	}
	obs.ObserveLogin("success")
	audit.Event(r.Context(), "login.success",
		zap.String("user_id", user.ID),
		zap.String("organization_id", user.OrganizationID))
	a.publish(stream.SecurityEvent{
		Type:           stream.EventLoginSuccess,
		UserID:         user.ID,
		OrganizationID: user.OrganizationID,
		Email:          user.Email,
	})
	writeJSON(w, http.StatusOK, pair)
}

func (a *API) auditLoginFailure(r *http.Request, email string, err error) {
	if errors.Is(err, auth.ErrAccountLocked) {
		audit.Event(r.Context(), "account.locked", zap.String("email", email))
		a.publish(stream.SecurityEvent{Type: stream.EventAccountLocked, Email: email})
		return
	}
	audit.Event(r.Context(), "login.failure", zap.String("email", email))
	a.publish(stream.SecurityEvent{Type: stream.EventLoginFailure, Email: email})
}

func loginOutcome(err error) string {
	switch {
	case errors.Is(err, auth.ErrAccountLocked):
		return "locked"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, auth.ErrSubscriptionInactive):
		return "subscription_inactive"
	default:
		return "error"
	}
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	pair, err := a.authn.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	audit.Event(r.Context(), "token.refreshed")
	a.publish(stream.SecurityEvent{Type: stream.EventTokenRefreshed})
	writeJSON(w, http.StatusOK, pair)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	token, ok := auth.TokenFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := a.authn.Logout(r.Context(), token); err != nil {
		handleDomainError(w, r, err)
		return
	}
	audit.Event(r.Context(), "token.revoked", zap.String("cause", "logout"))
	a.publish(stream.SecurityEvent{Type: stream.EventTokenRevoked, Detail: "logout"})
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.authn.ChangePassword(r.Context(), principal.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		handleDomainError(w, r, err)
		return
	}
	audit.Event(r.Context(), "password.changed")
	writeJSON(w, http.StatusOK, map[string]any{"status": "password_changed"})
}

// handleAuthorize is the decision endpoint downstream services call. It is
// public: the token inside the request body is the credential being judged.
func (a *API) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req authorizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	decision, err := a.authn.Authorize(r.Context(), auth.AccessRequest{
		Token:      req.Token,
		ServiceID:  req.ServiceID,
		Permission: req.Permission,
		Feature:    req.Feature,
	})
	if err != nil {
		obs.ObserveAuthorization("error")
		handleDomainError(w, r, err)
		return
	}
	resp := authorizeResponse{Allowed: decision.Allowed}
	if decision.Allowed {
		obs.ObserveAuthorization("allowed")
	} else {
		obs.ObserveAuthorization("denied")
		resp.Reason = denialReason(decision.Reason)
	}
	writeJSON(w, http.StatusOK, resp)
}

// denialReason folds a denial into a stable machine-readable label.
func denialReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpired):
		return "token_expired"
	case errors.Is(err, auth.ErrRevoked):
		return "token_revoked"
	case errors.Is(err, auth.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, auth.ErrMalformed):
		return "malformed_token"
	case errors.Is(err, auth.ErrServiceMismatch):
		return "service_mismatch"
	case errors.Is(err, auth.ErrInsufficientPermission):
		return "insufficient_permission"
	case errors.Is(err, auth.ErrSubscriptionInactive):
		return "subscription_inactive"
	default:
		return "denied"
	}
}

func (a *API) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requirePermission(w, r, auth.PermRevokeTokens) {
		return
	}
	var req revokeTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.authn.RevokeToken(r.Context(), req.TokenID, req.UserID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	audit.Event(r.Context(), "token.revoked",
		zap.String("token_id", req.TokenID),
		zap.String("cause", "admin"))
	a.publish(stream.SecurityEvent{Type: stream.EventTokenRevoked, UserID: req.UserID, Detail: "admin"})
	writeJSON(w, http.StatusOK, map[string]any{"status": "revoked"})
}
