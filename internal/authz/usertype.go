// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package authz

import "github.com/tomtom215/warden/internal/config"

// UserType is the caller classification derived from its role set.
type UserType string

const (
	UserTypePublic   UserType = "public"
	UserTypeEnduser  UserType = "enduser"
	UserTypeCustomer UserType = "customer"
	UserTypeInternal UserType = "internal"
)

// RoleGrant is a role held in a domain.
type RoleGrant struct {
	Role   string `json:"role"`
	Domain string `json:"domain"`
}

// UserTypeClassifier maps role sets to user types using configured role
// names. It holds no per-user state, so classification always reflects
// the grants passed in.
type UserTypeClassifier struct {
	global     string
	publicRole string
	internal   map[string]bool
	customer   map[string]bool
}

// NewUserTypeClassifier builds a classifier from the authz configuration.
func NewUserTypeClassifier(cfg *config.AuthzConfig) *UserTypeClassifier {
	c := &UserTypeClassifier{
		global:     cfg.GlobalDomain,
		publicRole: cfg.PublicRole,
		internal:   make(map[string]bool, len(cfg.UserTypes.InternalRoles)),
		customer:   make(map[string]bool, len(cfg.UserTypes.CustomerRoles)),
	}
	for _, r := range cfg.UserTypes.InternalRoles {
		c.internal[r] = true
	}
	for _, r := range cfg.UserTypes.CustomerRoles {
		c.customer[r] = true
	}
	return c
}

// Classify returns the user type for grants.
//
// Internal roles count only when held in the global domain, so a tenant
// cannot mint staff by granting itself an internal role name.
func (c *UserTypeClassifier) Classify(grants []RoleGrant) UserType {
	var (
		authenticated bool
		customer      bool
	)
	for _, g := range grants {
		if g.Role == c.publicRole {
			continue
		}
		authenticated = true
		if c.internal[g.Role] && g.Domain == c.global {
			return UserTypeInternal
		}
		if c.customer[g.Role] || c.IsTenantGrant(g) {
			customer = true
		}
	}
	switch {
	case customer:
		return UserTypeCustomer
	case authenticated:
		return UserTypeEnduser
	default:
		return UserTypePublic
	}
}

// IsInternalRole reports whether role is configured as an internal role.
func (c *UserTypeClassifier) IsInternalRole(role string) bool {
	return c.internal[role]
}

// IsTenantGrant reports whether g is held in a concrete tenant domain.
// Grants in the global domain or in every domain are not.
func (c *UserTypeClassifier) IsTenantGrant(g RoleGrant) bool {
	return g.Role != c.publicRole && g.Domain != c.global && g.Domain != WildcardDomain
}
