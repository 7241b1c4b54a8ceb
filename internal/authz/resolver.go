// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package authz

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidGrant is returned for a role grant with an empty user, role
// or domain.
var ErrInvalidGrant = errors.New("invalid role grant")

// RoleResolver lists and mutates role grants. Mutations write through to
// storage synchronously and publish a new snapshot before returning, so
// the next decision sees them.
type RoleResolver struct {
	e *Enforcer
}

// NewRoleResolver creates a resolver over e.
func NewRoleResolver(e *Enforcer) *RoleResolver {
	return &RoleResolver{e: e}
}

// ListRolesForUserInDomain returns the roles user holds in exactly domain.
func (r *RoleResolver) ListRolesForUserInDomain(ctx context.Context, user, domain string) ([]string, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	roles := r.e.casbin.GetRolesForUserInDomain(user, domain)
	sort.Strings(roles)
	return roles, nil
}

// ListRolesForUserInDomains returns every grant user holds, across domains.
func (r *RoleResolver) ListRolesForUserInDomains(ctx context.Context, user string) ([]RoleGrant, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	rows, err := r.e.casbin.GetFilteredGroupingPolicy(0, user)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	grants := make([]RoleGrant, 0, len(rows))
	for _, row := range rows {
		if len(row) < 3 {
			continue
		}
		grants = append(grants, RoleGrant{Role: row[1], Domain: row[2]})
	}
	sortGrants(grants)
	return grants, nil
}

// GetUserType classifies a grant set.
func (r *RoleResolver) GetUserType(grants []RoleGrant) UserType {
	return r.e.classifier.Classify(grants)
}

// AddRoleForUserInDomain grants role to user in domain. Granting an
// existing role is a no-op and reports false.
func (r *RoleResolver) AddRoleForUserInDomain(ctx context.Context, user, role, domain string) (bool, error) {
	if err := r.check(ctx); err != nil {
		return false, err
	}
	if user == "" || role == "" || domain == "" {
		return false, ErrInvalidGrant
	}
	added, err := r.e.casbin.AddGroupingPolicy(user, role, domain)
	if err != nil {
		return false, fmt.Errorf("failed to add role: %w", err)
	}
	if err := r.e.rebuild(); err != nil {
		return added, err
	}
	if added {
		RecordRoleChange(role, "assign")
	}
	return added, nil
}

// RemoveRoleForUserInDomain revokes role from user in domain. Revoking a
// grant that does not exist is a no-op and reports false.
func (r *RoleResolver) RemoveRoleForUserInDomain(ctx context.Context, user, role, domain string) (bool, error) {
	if err := r.check(ctx); err != nil {
		return false, err
	}
	if user == "" || role == "" || domain == "" {
		return false, ErrInvalidGrant
	}
	removed, err := r.e.casbin.RemoveGroupingPolicy(user, role, domain)
	if err != nil {
		return false, fmt.Errorf("failed to remove role: %w", err)
	}
	if err := r.e.rebuild(); err != nil {
		return removed, err
	}
	if removed {
		RecordRoleChange(role, "revoke")
	}
	return removed, nil
}

// RemoveRolesForUserInAllDomains revokes every grant user holds.
func (r *RoleResolver) RemoveRolesForUserInAllDomains(ctx context.Context, user string) (bool, error) {
	if err := r.check(ctx); err != nil {
		return false, err
	}
	if user == "" {
		return false, ErrInvalidGrant
	}
	removed, err := r.e.casbin.RemoveFilteredGroupingPolicy(0, user)
	if err != nil {
		return false, fmt.Errorf("failed to remove roles: %w", err)
	}
	if err := r.e.rebuild(); err != nil {
		return removed, err
	}
	if removed {
		RecordRoleChange("*", "revoke_all")
	}
	return removed, nil
}

func (r *RoleResolver) check(ctx context.Context) error {
	if r.e.closed.Load() {
		return ErrEnforcerClosed
	}
	return ctx.Err()
}
