// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package authz

import (
	"math"
	"strconv"

	"github.com/goccy/go-json"
)

// CRUD actions.
const (
	ActionCreate = "C"
	ActionRead   = "R"
	ActionUpdate = "U"
	ActionDelete = "D"
)

// Attrs carries the proposed query filter (where) and mutation payload
// (set) of an authorization request.
type Attrs map[string]interface{}

// NewAttrs builds Attrs from where and set maps. Nil maps are omitted.
func NewAttrs(where, set map[string]interface{}) Attrs {
	a := Attrs{}
	if where != nil {
		a["where"] = where
	}
	if set != nil {
		a["set"] = set
	}
	return a
}

// section returns the named clause. ok is false when the clause exists
// but is not an object.
func (a Attrs) section(name string) (clause map[string]interface{}, ok bool) {
	raw, present := a[name]
	if !present || raw == nil {
		return nil, true
	}
	switch v := raw.(type) {
	case map[string]interface{}:
		return v, true
	case Attrs:
		return v, true
	default:
		return nil, false
	}
}

// Where returns the where clause, or nil.
func (a Attrs) Where() map[string]interface{} {
	w, _ := a.section("where")
	return w
}

// Set returns the set clause, or nil.
func (a Attrs) Set() map[string]interface{} {
	s, _ := a.section("set")
	return s
}

// Clone returns a deep copy of a.
func (a Attrs) Clone() Attrs {
	if a == nil {
		return Attrs{}
	}
	out := make(Attrs, len(a))
	for k, v := range a {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch x := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(x))
		for k, e := range x {
			m[k] = cloneValue(e)
		}
		return m
	case Attrs:
		return map[string]interface{}(x.Clone())
	case []interface{}:
		s := make([]interface{}, len(x))
		for i, e := range x {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}

// OwnershipRequest is the input of an ownership evaluation. Tenant is set
// when the caller holds a grant in a tenant domain covering Domain.
type OwnershipRequest struct {
	Subject  string
	CallerID int64
	UserType UserType
	Tenant   bool
	Domain   string
	Object   string
	Action   string
	Attrs    Attrs
}

// OwnershipPolicy decides whether the attribute conditions of a request
// are satisfied. Deny is a false return; errors are reserved for failures
// that prevent a decision.
type OwnershipPolicy interface {
	Evaluate(req OwnershipRequest) (bool, error)
}

// ConditionResolver is implemented by ownership policies that narrow the
// caller's attrs into the conditions a handler must use.
type ConditionResolver interface {
	Resolve(req OwnershipRequest) Attrs
}

// IdentitySource names what an owner column is compared against.
type IdentitySource string

const (
	// IdentityUser compares the column with the caller's user id.
	IdentityUser IdentitySource = "user"

	// IdentityDomain compares the column with the request domain.
	IdentityDomain IdentitySource = "domain"
)

// OwnershipDescriptor is a table's ownership dimension for one user type.
type OwnershipDescriptor struct {
	Column   string
	Identity IdentitySource
}

// OwnerColumnPolicy enforces row ownership through configured columns.
// End users are matched on their user id column first. Customers acting
// inside one of their tenants are matched on the tenant column first, and
// on their user id anywhere else. A tenant column is only ever satisfied
// by a member of that tenant. Internal callers bypass the check and
// public callers are refused any table with an ownership dimension.
type OwnerColumnPolicy struct {
	ownerColumns  map[string]string
	domainColumns map[string]string
}

var (
	_ OwnershipPolicy   = (*OwnerColumnPolicy)(nil)
	_ ConditionResolver = (*OwnerColumnPolicy)(nil)
)

// NewOwnerColumnPolicy creates a policy from table to column maps.
func NewOwnerColumnPolicy(ownerColumns, domainColumns map[string]string) *OwnerColumnPolicy {
	p := &OwnerColumnPolicy{
		ownerColumns:  make(map[string]string, len(ownerColumns)),
		domainColumns: make(map[string]string, len(domainColumns)),
	}
	for t, c := range ownerColumns {
		p.ownerColumns[t] = c
	}
	for t, c := range domainColumns {
		p.domainColumns[t] = c
	}
	return p
}

// Descriptor returns the ownership dimension of table for userType. tenant
// reports whether the request domain is one of the caller's tenants.
func (p *OwnerColumnPolicy) Descriptor(table string, userType UserType, tenant bool) (OwnershipDescriptor, bool) {
	user, hasUser := p.ownerColumns[table]
	dom, hasDom := p.domainColumns[table]

	if userType == UserTypeCustomer && tenant && hasDom {
		return OwnershipDescriptor{Column: dom, Identity: IdentityDomain}, true
	}
	if hasUser {
		return OwnershipDescriptor{Column: user, Identity: IdentityUser}, true
	}
	if hasDom {
		return OwnershipDescriptor{Column: dom, Identity: IdentityDomain}, true
	}
	return OwnershipDescriptor{}, false
}

// Evaluate implements OwnershipPolicy.
func (p *OwnerColumnPolicy) Evaluate(req OwnershipRequest) (bool, error) {
	if req.UserType == UserTypeInternal {
		return true, nil
	}
	desc, ok := p.Descriptor(req.Object, req.UserType, req.Tenant)
	if !ok {
		return true, nil
	}
	if req.UserType == UserTypePublic {
		return false, nil
	}
	if desc.Identity == IdentityDomain && !req.Tenant {
		return false, nil
	}

	where, whereOK := req.Attrs.section("where")
	set, setOK := req.Attrs.section("set")
	if !whereOK || !setOK {
		return false, nil
	}

	identity := desc.identity(req)
	col := desc.Column

	switch req.Action {
	case ActionCreate:
		v, ok := set[col]
		return ok && sameValue(v, identity), nil
	case ActionRead:
		if v, ok := where[col]; ok {
			return sameValue(v, identity), nil
		}
		return true, nil
	case ActionUpdate:
		v, ok := where[col]
		if !ok || !sameValue(v, identity) {
			return false, nil
		}
		if v, ok := set[col]; ok && !sameValue(v, identity) {
			return false, nil
		}
		return true, nil
	case ActionDelete:
		v, ok := where[col]
		return ok && sameValue(v, identity), nil
	default:
		return false, nil
	}
}

// Resolve returns the conditions an allowed request must run with. The
// owner column is pinned to the caller's identity in every clause the
// action uses, so an unscoped read is narrowed to the caller's rows.
func (p *OwnerColumnPolicy) Resolve(req OwnershipRequest) Attrs {
	out := req.Attrs.Clone()
	if req.UserType == UserTypeInternal {
		return out
	}
	desc, ok := p.Descriptor(req.Object, req.UserType, req.Tenant)
	if !ok {
		return out
	}

	value := desc.typedIdentity(req)
	switch req.Action {
	case ActionCreate:
		clause(out, "set")[desc.Column] = value
	case ActionRead, ActionDelete:
		clause(out, "where")[desc.Column] = value
	case ActionUpdate:
		clause(out, "where")[desc.Column] = value
		if set := out.Set(); set != nil {
			if _, ok := set[desc.Column]; ok {
				set[desc.Column] = value
			}
		}
	}
	return out
}

// clause returns the named clause of a, creating it when absent.
func clause(a Attrs, name string) map[string]interface{} {
	if m, ok := a[name].(map[string]interface{}); ok {
		return m
	}
	m := map[string]interface{}{}
	a[name] = m
	return m
}

func (d OwnershipDescriptor) identity(req OwnershipRequest) string {
	if d.Identity == IdentityDomain {
		return req.Domain
	}
	return strconv.FormatInt(req.CallerID, 10)
}

// typedIdentity returns the identity as the value a database filter
// expects: an integer where the identity is numeric.
func (d OwnershipDescriptor) typedIdentity(req OwnershipRequest) interface{} {
	if d.Identity == IdentityDomain {
		if n, err := strconv.ParseInt(req.Domain, 10, 64); err == nil {
			return n
		}
		return req.Domain
	}
	return req.CallerID
}

// sameValue compares an attribute value with an identity in canonical
// string form, so the JSON number 42 and the string "42" are equal.
func sameValue(v interface{}, identity string) bool {
	s, ok := canonical(v)
	return ok && s == identity
}

func canonical(v interface{}) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return canonicalNumber(string(x))
	case float64:
		return canonicalFloat(x)
	case float32:
		return canonicalFloat(float64(x))
	case int:
		return strconv.FormatInt(int64(x), 10), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint:
		return strconv.FormatUint(uint64(x), 10), true
	case uint32:
		return strconv.FormatUint(uint64(x), 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	default:
		return "", false
	}
}

func canonicalFloat(f float64) (string, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}

func canonicalNumber(s string) (string, bool) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.FormatInt(n, 10), true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "", false
	}
	return canonicalFloat(f)
}
