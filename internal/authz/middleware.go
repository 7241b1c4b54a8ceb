// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package authz

import (
	"context"
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/warden/internal/auth"
	"github.com/tomtom215/warden/internal/database"
	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/validation"
)

// MessageNotAuthorized is the fixed body of every denial.
const MessageNotAuthorized = "User is not authorized."

// ErrBadRequest marks tuple builder failures caused by the client.
var ErrBadRequest = errors.New("bad request")

var _ auth.NameReserver = (*Enforcer)(nil)

// EventLogger receives one event per authorization outcome.
type EventLogger interface {
	UpdateEventLog(r *http.Request, details map[string]interface{})
}

// Caller is the identity a request is evaluated for.
type Caller struct {
	Username      string
	UserID        int64
	Authenticated bool
}

// TupleBuilder derives the authorization tuple of a route from the request.
// Subject and user id are always taken from the caller.
type TupleBuilder func(r *http.Request, caller Caller) (Request, error)

type decisionKey struct{}

// ContextWithDecision stores an allowed decision for downstream handlers.
func ContextWithDecision(ctx context.Context, d *Decision) context.Context {
	return context.WithValue(ctx, decisionKey{}, d)
}

// DecisionFromContext returns the decision stored by the middleware.
func DecisionFromContext(ctx context.Context) (*Decision, bool) {
	d, ok := ctx.Value(decisionKey{}).(*Decision)
	return d, ok
}

// ConditionsFromContext returns the resolved conditions handlers must use
// for their own queries, or nil when the request was not authorized.
func ConditionsFromContext(ctx context.Context) Attrs {
	if d, ok := DecisionFromContext(ctx); ok {
		return d.Conditions
	}
	return nil
}

// Middleware authorizes requests against the enforcer.
type Middleware struct {
	enforcer *Enforcer
	events   EventLogger
}

// NewMiddleware creates the authorization middleware. events may be nil.
func NewMiddleware(enforcer *Enforcer, events EventLogger) *Middleware {
	return &Middleware{enforcer: enforcer, events: events}
}

// Caller resolves the request identity. Missing or invalid credentials
// yield the public pseudo-user with id 0.
func (m *Middleware) Caller(r *http.Request) Caller {
	if s := auth.GetAuthSubject(r.Context()); s != nil && s.Username != "" {
		return Caller{Username: s.Username, UserID: s.UserID, Authenticated: true}
	}
	return Caller{Username: m.enforcer.cfg.PublicSubject}
}

// Authorize returns chi middleware that builds the tuple with build,
// decides it, and on allow stores the decision in the request context.
// Denials get 403 with a fixed message; failures get 500.
func (m *Middleware) Authorize(build TupleBuilder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := m.Caller(r)
			req, err := build(r, caller)
			if err != nil {
				m.writeBuildError(w, r, err)
				return
			}
			d, ok := m.Check(w, r, caller, req)
			if !ok {
				return
			}
			ctx := logging.ContextWithDomain(ContextWithDecision(r.Context(), d), req.Domain)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Check decides req for caller. When the request may not proceed it writes
// the response and returns false.
func (m *Middleware) Check(w http.ResponseWriter, r *http.Request, caller Caller, req Request) (*Decision, bool) {
	req.Subject = caller.Username
	req.UserID = caller.UserID
	req.Anonymous = !caller.Authenticated

	d, err := m.enforcer.Decide(r.Context(), req)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).
			Str("sub", req.Subject).
			Str("dom", req.Domain).
			Str("obj", req.Object).
			Str("act", req.Action).
			Msg("Authorization evaluation failed")
		m.record(r, req, "error", d.UserType, err)
		WriteMessage(w, http.StatusInternalServerError, "Internal server error")
		return nil, false
	}

	if !d.Allowed {
		logging.Ctx(r.Context()).Info().
			Str("sub", req.Subject).
			Str("user_type", string(d.UserType)).
			Str("dom", req.Domain).
			Str("obj", req.Object).
			Str("act", req.Action).
			Msg("Authorization denied")
		m.record(r, req, "denied", d.UserType, nil)
		WriteMessage(w, http.StatusForbidden, MessageNotAuthorized)
		return nil, false
	}

	m.record(r, req, "allowed", d.UserType, nil)
	return &d, true
}

func (m *Middleware) writeBuildError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.RequestValidationError
	switch {
	case errors.As(err, &verr):
		apiErr := verr.ToAPIError()
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"message": apiErr.Message,
			"code":    apiErr.Code,
			"details": apiErr.Details,
		})
	case errors.Is(err, ErrBadRequest):
		WriteMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrNotFound):
		WriteMessage(w, http.StatusNotFound, "Not found")
	default:
		RecordAuthzError("tuple")
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to build authorization tuple")
		WriteMessage(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (m *Middleware) record(r *http.Request, req Request, outcome string, userType UserType, err error) {
	if m.events == nil {
		return
	}
	details := map[string]interface{}{
		"event":     "authorize",
		"sub":       req.Subject,
		"dom":       req.Domain,
		"obj":       req.Object,
		"act":       req.Action,
		"decision":  outcome,
		"user_type": string(userType),
	}
	if err != nil {
		details["error"] = err.Error()
	}
	m.events.UpdateEventLog(r, details)
}

// StaticTuple authorizes a fixed object and action. The domain comes from
// the "domain" query parameter, defaulting to the global domain.
func (m *Middleware) StaticTuple(object, action string) TupleBuilder {
	return func(r *http.Request, _ Caller) (Request, error) {
		dom := r.URL.Query().Get("domain")
		if dom == "" {
			dom = m.enforcer.cfg.GlobalDomain
		}
		return Request{Domain: dom, Object: object, Action: action, Attrs: Attrs{}}, nil
	}
}

// WriteMessage writes a {"message": ...} JSON body.
func WriteMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}
