// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package authz

import (
	"strings"

	"github.com/casbin/casbin/v2/util"
)

// Rule is a policy rule: Role may perform Action on Object in Domain.
// Domain and Object accept "*"; Object also accepts keyMatch patterns
// such as "mra_*". Action is "*" or a set of CRUD letters like "RU".
type Rule struct {
	Role   string `json:"role"`
	Domain string `json:"domain"`
	Object string `json:"object"`
	Action string `json:"action"`
}

// Evaluation is the per-request state every check reads. It is built
// once per decision and shared by all rules.
type Evaluation struct {
	Request   Request
	UserType  UserType
	CallerID  int64
	Tenant    bool
	Roles     map[string]bool
	Domains   *DomainGraph
	Ownership OwnershipPolicy
}

// OwnershipRequest returns the input handed to the ownership policy.
func (ev *Evaluation) OwnershipRequest() OwnershipRequest {
	return OwnershipRequest{
		Subject:  ev.Request.Subject,
		CallerID: ev.CallerID,
		UserType: ev.UserType,
		Tenant:   ev.Tenant,
		Domain:   ev.Request.Domain,
		Object:   ev.Request.Object,
		Action:   ev.Request.Action,
		Attrs:    ev.Request.Attrs,
	}
}

// Matcher decides whether one rule authorizes an evaluation.
type Matcher interface {
	Match(ev *Evaluation, rule Rule) (bool, error)
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(ev *Evaluation, rule Rule) (bool, error)

// Match implements Matcher.
func (f MatcherFunc) Match(ev *Evaluation, rule Rule) (bool, error) {
	return f(ev, rule)
}

// AllOf passes when every check passes. Checks run in order and stop at
// the first failure or error.
type AllOf []Matcher

// Match implements Matcher.
func (a AllOf) Match(ev *Evaluation, rule Rule) (bool, error) {
	for _, m := range a {
		ok, err := m.Match(ev, rule)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// DefaultMatcher checks role, domain, object, action and ownership.
func DefaultMatcher() Matcher {
	return AllOf{RoleCheck{}, DomainCheck{}, ObjectCheck{}, ActionCheck{}, OwnershipCheck{}}
}

// RoleCheck passes when the caller holds the rule's role in the request
// domain, through domain ancestry or role inheritance.
type RoleCheck struct{}

// Match implements Matcher.
func (RoleCheck) Match(ev *Evaluation, rule Rule) (bool, error) {
	return ev.Roles[rule.Role], nil
}

// DomainCheck passes when the rule domain is "*", the request domain, or
// one of its ancestors.
type DomainCheck struct{}

// Match implements Matcher.
func (DomainCheck) Match(ev *Evaluation, rule Rule) (bool, error) {
	return ev.Domains.Covers(rule.Domain, ev.Request.Domain), nil
}

// ObjectCheck matches the request object against the rule with keyMatch.
type ObjectCheck struct{}

// Match implements Matcher.
func (ObjectCheck) Match(ev *Evaluation, rule Rule) (bool, error) {
	if rule.Object == "*" {
		return true, nil
	}
	return util.KeyMatch(ev.Request.Object, rule.Object), nil
}

// ActionCheck passes when the request action is a single CRUD letter the
// rule allows.
type ActionCheck struct{}

// Match implements Matcher.
func (ActionCheck) Match(ev *Evaluation, rule Rule) (bool, error) {
	act := ev.Request.Action
	if !ValidAction(act) {
		return false, nil
	}
	return rule.Action == "*" || strings.Contains(rule.Action, act), nil
}

// OwnershipCheck delegates to the evaluation's ownership policy. A nil
// policy passes.
type OwnershipCheck struct{}

// Match implements Matcher.
func (OwnershipCheck) Match(ev *Evaluation, _ Rule) (bool, error) {
	if ev.Ownership == nil {
		return true, nil
	}
	return ev.Ownership.Evaluate(ev.OwnershipRequest())
}

// ValidAction reports whether act is one of C, R, U, D.
func ValidAction(act string) bool {
	switch act {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete:
		return true
	default:
		return false
	}
}
