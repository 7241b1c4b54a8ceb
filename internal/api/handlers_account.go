// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/warden/internal/audit"
	"github.com/tomtom215/warden/internal/auth"
	"github.com/tomtom215/warden/internal/authz"
	"github.com/tomtom215/warden/internal/database"
	"github.com/tomtom215/warden/internal/logging"
)

// ObjectUsers is the object account deletion is authorized against.
const ObjectUsers = "mra_users"

// RoleLister lists a user's grants. *authz.RoleResolver implements it.
type RoleLister interface {
	ListRolesForUserInDomains(ctx context.Context, user string) ([]authz.RoleGrant, error)
}

// AccountHandlers serves registration, activation, login and password
// endpoints.
type AccountHandlers struct {
	svc          *auth.Service
	roles        RoleLister
	events       authz.EventLogger
	globalDomain string
	secureCookie bool
}

// NewAccountHandlers creates the account handlers. events may be nil.
func NewAccountHandlers(svc *auth.Service, roles RoleLister, events authz.EventLogger, globalDomain string, secureCookie bool) *AccountHandlers {
	return &AccountHandlers{
		svc:          svc,
		roles:        roles,
		events:       events,
		globalDomain: globalDomain,
		secureCookie: secureCookie,
	}
}

type accountResponse struct {
	User  *database.User    `json:"user"`
	Roles []authz.RoleGrant `json:"roles"`
}

type loginResponse struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
	User      *database.User    `json:"user"`
	Roles     []authz.RoleGrant `json:"roles"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Register handles POST /v1/register.
func (h *AccountHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	u, err := h.svc.Register(r.Context(), auth.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	h.record(r, audit.EventRegister, req.Username, err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Created(accountResponse{User: u, Roles: []authz.RoleGrant{}})
}

// Activate handles POST /v1/activate.
func (h *AccountHandlers) Activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	err := h.svc.Activate(r.Context(), req.Username, req.Code)
	h.record(r, audit.EventActivate, req.Username, err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Success(messageResponse{Message: "Account activated"})
}

// ResendActivation handles POST /v1/activation/resend. The response is the
// same whether or not the account exists.
func (h *AccountHandlers) ResendActivation(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	err := h.svc.ResendActivation(r.Context(), req.Username)
	h.record(r, audit.EventActivationResend, req.Username, err)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to resend activation code")
	}
	NewResponseWriter(w, r).Accepted(messageResponse{Message: "If the account is awaiting activation, a new code was sent"})
}

// Login handles POST /v1/login. The token is returned in the body and set
// as an HttpOnly cookie.
func (h *AccountHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	res, err := h.svc.Login(r.Context(), req.Username, req.Password)
	h.record(r, audit.EventLogin, req.Username, err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	roles, err := h.roles.ListRolesForUserInDomains(r.Context(), res.User.Username)
	if err != nil {
		writeServiceError(w, r, fmt.Errorf("list roles at login: %w", err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    res.Token,
		Path:     "/",
		Expires:  res.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
	NewResponseWriter(w, r).Success(loginResponse{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		User:      res.User,
		Roles:     roles,
	})
}

// Logout handles POST /v1/logout.
func (h *AccountHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	err := h.svc.Logout(r.Context(), auth.GetAuthSubject(r.Context()))
	h.record(r, audit.EventLogout, "", err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.clearCookie(w)
	NewResponseWriter(w, r).NoContent()
}

// Me handles GET /v1/me.
func (h *AccountHandlers) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.User(r.Context(), auth.GetAuthSubject(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	roles, err := h.roles.ListRolesForUserInDomains(r.Context(), u.Username)
	if err != nil {
		writeServiceError(w, r, fmt.Errorf("list roles: %w", err))
		return
	}
	NewResponseWriter(w, r).Success(accountResponse{User: u, Roles: roles})
}

// ForgotPassword handles POST /v1/password/forgot. It always answers 202
// so the response does not reveal which emails are registered.
func (h *AccountHandlers) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := h.svc.ForgotPassword(r.Context(), req.Email); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).
			Str("email", logging.SanitizeEmail(req.Email)).
			Msg("Failed to issue password reset code")
	}
	NewResponseWriter(w, r).Accepted(messageResponse{Message: "If the email is registered, a reset code was sent"})
}

// ResetPassword handles POST /v1/password/reset.
func (h *AccountHandlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	err := h.svc.ResetPassword(r.Context(), req.Email, req.Code, req.Password)
	h.record(r, audit.EventPasswordReset, "", err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Success(messageResponse{Message: "Password updated"})
}

// ChangePassword handles PUT /v1/password. The token used for the request
// is revoked; the caller must log in again.
func (h *AccountHandlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	err := h.svc.ChangePassword(r.Context(), auth.GetAuthSubject(r.Context()), req.CurrentPassword, req.NewPassword)
	h.record(r, audit.EventPasswordChange, "", err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.clearCookie(w)
	NewResponseWriter(w, r).Success(messageResponse{Message: "Password updated, log in again"})
}

// DeregisterTuple builds the tuple for DELETE /v1/deregister: a delete of
// the caller's own users row. A caller holding tenant grants is checked in
// its first tenant domain with that domain as customer_id; any other
// caller in the global domain.
func (h *AccountHandlers) DeregisterTuple(r *http.Request, _ authz.Caller) (authz.Request, error) {
	u, err := h.svc.User(r.Context(), auth.GetAuthSubject(r.Context()))
	if err != nil {
		return authz.Request{}, err
	}
	grants, err := h.roles.ListRolesForUserInDomains(r.Context(), u.Username)
	if err != nil {
		return authz.Request{}, fmt.Errorf("failed to list roles: %w", err)
	}

	where := map[string]interface{}{
		"username": u.Username,
		"user_id":  u.ID,
	}
	domain := h.globalDomain
	if tenant, ok := h.tenantDomain(grants); ok {
		where["customer_id"] = tenant
		domain = tenant
	}
	return authz.Request{
		Domain: domain,
		Object: ObjectUsers,
		Action: authz.ActionDelete,
		Attrs:  authz.NewAttrs(where, nil),
	}, nil
}

// tenantDomain returns the first concrete non-global domain in grants,
// which are sorted by domain.
func (h *AccountHandlers) tenantDomain(grants []authz.RoleGrant) (string, bool) {
	for _, g := range grants {
		if g.Domain != h.globalDomain && g.Domain != authz.WildcardDomain {
			return g.Domain, true
		}
	}
	return "", false
}

// Deregister handles DELETE /v1/deregister after authorization.
func (h *AccountHandlers) Deregister(w http.ResponseWriter, r *http.Request) {
	err := h.svc.Deregister(r.Context(), auth.GetAuthSubject(r.Context()))
	h.record(r, audit.EventDeregister, "", err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.clearCookie(w)
	NewResponseWriter(w, r).NoContent()
}

func (h *AccountHandlers) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

// record writes an account event. username is empty for authenticated
// routes, where the logger takes it from the request context.
func (h *AccountHandlers) record(r *http.Request, event, username string, err error) {
	if h.events == nil {
		return
	}
	details := map[string]interface{}{
		"event":   event,
		"outcome": string(audit.OutcomeSuccess),
	}
	if username != "" {
		details["username"] = username
	}
	if err != nil {
		details["outcome"] = string(audit.OutcomeFailure)
		details["reason"] = err.Error()
	}
	h.events.UpdateEventLog(r, details)
}
