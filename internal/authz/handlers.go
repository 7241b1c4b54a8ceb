// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package authz

import (
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/warden/internal/database"
	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/validation"
)

// ObjectRoleGrants is the object name role grants are authorized against.
const ObjectRoleGrants = "casbin_rule"

const maxBodyBytes = 1 << 20

// Handlers serves the authorization endpoints.
type Handlers struct {
	enforcer *Enforcer
	resolver *RoleResolver
	mw       *Middleware
	users    database.UserIDLookup
	events   EventLogger
}

// NewHandlers creates the authorization handlers. users is used to check
// that grant targets exist; events may be nil.
func NewHandlers(enforcer *Enforcer, resolver *RoleResolver, mw *Middleware, users database.UserIDLookup, events EventLogger) *Handlers {
	return &Handlers{
		enforcer: enforcer,
		resolver: resolver,
		mw:       mw,
		users:    users,
		events:   events,
	}
}

// authorizeRequest is the body of POST /v1/authorize.
type authorizeRequest struct {
	Dom   string `json:"dom" validate:"required,domain"`
	Obj   string `json:"obj" validate:"required,max=64"`
	Act   string `json:"act" validate:"required,crud_action"`
	Attrs Attrs  `json:"attrs"`
}

// AuthorizeTuple builds the tuple of POST /v1/authorize from its body.
func (h *Handlers) AuthorizeTuple(r *http.Request, _ Caller) (Request, error) {
	var body authorizeRequest
	if err := decodeBody(r, &body); err != nil {
		return Request{}, err
	}
	if verr := validation.ValidateStruct(&body); verr != nil {
		return Request{}, verr
	}
	if body.Attrs == nil {
		body.Attrs = Attrs{}
	}
	return Request{Domain: body.Dom, Object: body.Obj, Action: body.Act, Attrs: body.Attrs}, nil
}

// authorizeResponse is the body of a successful POST /v1/authorize.
type authorizeResponse struct {
	User       string      `json:"user"`
	UserType   UserType    `json:"user_type"`
	Roles      []RoleGrant `json:"roles"`
	Conditions Attrs       `json:"conditions"`
}

// Authorize answers POST /v1/authorize after the middleware has allowed it.
func (h *Handlers) Authorize(w http.ResponseWriter, r *http.Request) {
	d, ok := DecisionFromContext(r.Context())
	if !ok {
		WriteMessage(w, http.StatusForbidden, MessageNotAuthorized)
		return
	}
	roles := d.Roles
	if roles == nil {
		roles = []RoleGrant{}
	}
	writeJSON(w, http.StatusOK, authorizeResponse{
		User:       h.mw.Caller(r).Username,
		UserType:   d.UserType,
		Roles:      roles,
		Conditions: d.Conditions,
	})
}

// ListRoles answers GET /v1/roles?username=&domain=. Callers may always
// list their own roles; listing another user's roles is authorized as a
// read of that user's grants.
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	caller := h.mw.Caller(r)
	if !caller.Authenticated {
		WriteMessage(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	q := r.URL.Query()
	target := q.Get("username")
	domain := q.Get("domain")
	if target == "" {
		target = caller.Username
	}

	if target != caller.Username {
		dom := domain
		if dom == "" {
			dom = h.enforcer.GlobalDomain()
		}
		where := map[string]interface{}{"v0": target}
		if domain != "" {
			where["v2"] = domain
		}
		req := Request{Domain: dom, Object: ObjectRoleGrants, Action: ActionRead, Attrs: NewAttrs(where, nil)}
		if _, ok := h.mw.Check(w, r, caller, req); !ok {
			return
		}
	}

	var grants []RoleGrant
	if domain != "" {
		roles, err := h.resolver.ListRolesForUserInDomain(r.Context(), target, domain)
		if err != nil {
			h.internalError(w, r, err, "Failed to list roles")
			return
		}
		for _, role := range roles {
			grants = append(grants, RoleGrant{Role: role, Domain: domain})
		}
	} else {
		var err error
		if grants, err = h.resolver.ListRolesForUserInDomains(r.Context(), target); err != nil {
			h.internalError(w, r, err, "Failed to list roles")
			return
		}
	}

	if len(grants) == 0 {
		WriteMessage(w, http.StatusNotFound, "No roles found")
		return
	}
	writeJSON(w, http.StatusOK, grants)
}

// userRoleRequest is the body of POST and DELETE /v1/user-role.
type userRoleRequest struct {
	Username string `json:"username" validate:"omitempty,username"`
	Role     string `json:"role" validate:"required,max=64"`
	Domain   string `json:"domain" validate:"omitempty,domain"`
}

// UserRoleTuple builds the tuple for granting (C) or revoking (D) a role.
// The grant is expressed as the casbin_rule row it creates or deletes, so
// the ownership policy can pin its domain column to the request domain.
func (h *Handlers) UserRoleTuple(action string) TupleBuilder {
	return func(r *http.Request, caller Caller) (Request, error) {
		var body userRoleRequest
		if err := decodeBody(r, &body); err != nil {
			return Request{}, err
		}
		if verr := validation.ValidateStruct(&body); verr != nil {
			return Request{}, verr
		}
		if body.Username == "" {
			body.Username = caller.Username
		}
		if body.Domain == "" {
			body.Domain = h.enforcer.GlobalDomain()
		}

		row := map[string]interface{}{"v0": body.Username, "v1": body.Role, "v2": body.Domain}
		attrs := NewAttrs(row, nil)
		if action == ActionCreate {
			attrs = NewAttrs(nil, row)
		}
		return Request{Domain: body.Domain, Object: ObjectRoleGrants, Action: action, Attrs: attrs}, nil
	}
}

// userRoleResponse reports a grant change.
type userRoleResponse struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	Domain   string `json:"domain"`
	Changed  bool   `json:"changed"`
}

// AddUserRole answers POST /v1/user-role.
func (h *Handlers) AddUserRole(w http.ResponseWriter, r *http.Request) {
	h.changeUserRole(w, r, ActionCreate)
}

// RemoveUserRole answers DELETE /v1/user-role.
func (h *Handlers) RemoveUserRole(w http.ResponseWriter, r *http.Request) {
	h.changeUserRole(w, r, ActionDelete)
}

func (h *Handlers) changeUserRole(w http.ResponseWriter, r *http.Request, action string) {
	d, ok := DecisionFromContext(r.Context())
	if !ok {
		WriteMessage(w, http.StatusForbidden, MessageNotAuthorized)
		return
	}

	row := d.Conditions.Where()
	if action == ActionCreate {
		row = d.Conditions.Set()
	}
	user, _ := canonical(row["v0"])
	role, _ := canonical(row["v1"])
	domain, _ := canonical(row["v2"])

	// Only internal callers may hand out internal roles.
	if d.UserType != UserTypeInternal && h.enforcer.Classifier().IsInternalRole(role) {
		WriteMessage(w, http.StatusForbidden, MessageNotAuthorized)
		return
	}

	// Revocation stays open for any row so stray grants can be cleaned up.
	if action == ActionCreate {
		msg, err := h.checkGrant(r, user, role)
		if err != nil {
			h.internalError(w, r, err, "Failed to look up user")
			return
		}
		if msg != "" {
			WriteMessage(w, http.StatusBadRequest, msg)
			return
		}
		if h.users != nil {
			_, found, err := h.users.GetUserIDByUsername(r.Context(), user)
			if err != nil {
				h.internalError(w, r, err, "Failed to look up user")
				return
			}
			if !found {
				WriteMessage(w, http.StatusNotFound, "User not found")
				return
			}
		}
	}

	var (
		changed bool
		err     error
	)
	if action == ActionCreate {
		changed, err = h.resolver.AddRoleForUserInDomain(r.Context(), user, role, domain)
	} else {
		changed, err = h.resolver.RemoveRoleForUserInDomain(r.Context(), user, role, domain)
	}
	if err != nil {
		h.internalError(w, r, err, "Failed to update role grant")
		return
	}

	if h.events != nil {
		h.events.UpdateEventLog(r, map[string]interface{}{
			"event":   "user_role",
			"act":     action,
			"target":  user,
			"role":    role,
			"dom":     domain,
			"changed": changed,
		})
	}
	writeJSON(w, http.StatusOK, userRoleResponse{Username: user, Role: role, Domain: domain, Changed: changed})
}

// checkGrant returns a message when user and role do not form a grant of
// a known role to a user.
func (h *Handlers) checkGrant(r *http.Request, user, role string) (string, error) {
	if !h.enforcer.IsRole(role) {
		return "Unknown role", nil
	}
	if h.enforcer.IsRole(user) {
		return "Roles cannot be granted to roles", nil
	}
	if h.users == nil {
		return "", nil
	}
	_, isUser, err := h.users.GetUserIDByUsername(r.Context(), role)
	if err != nil {
		return "", err
	}
	if isUser {
		return "Unknown role", nil
	}
	return "", nil
}

func (h *Handlers) internalError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	logging.Ctx(r.Context()).Error().Err(err).Msg(msg)
	WriteMessage(w, http.StatusInternalServerError, "Internal server error")
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return fmt.Errorf("%w: request body is required", ErrBadRequest)
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", ErrBadRequest)
	}
	return nil
}
