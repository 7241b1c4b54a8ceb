// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package authz implements domain-scoped role-based access control with
// row ownership conditions.
//
// # Architecture
//
//	Request -> Auth Middleware -> Authz Middleware -> Handler
//	               |                    |                |
//	          Authenticate        Decide tuple      uses resolved
//	          (internal/auth)     (this package)    conditions
//
// A request tuple is (sub, dom, obj, act, attrs) where act is one of C, R,
// U, D and attrs carries the proposed "where" filter and "set" payload.
//
// # Model and Storage
//
// Casbin holds the model and the persisted tuples. The embedded model
// declares the request shape and two grouping types:
//
//	g  = user, role, domain     role grants (and role inheritance)
//	g2 = child, parent          domain bridges
//
// Tuples live in the casbin_rule table and are read and written through
// Adapter, a casbin persist.Adapter over internal/database. An empty
// store is seeded from the embedded policy.csv on first start.
//
// # Decisions
//
// Decisions are not made by a runtime expression. After every load and
// mutation the enforcer publishes an immutable snapshot holding the
// rules, a grant index and a DomainGraph. Decide evaluates each rule with
// a Matcher composed of typed checks:
//
//	RoleCheck       caller holds the rule role in dom or an ancestor
//	DomainCheck     rule domain is "*", dom, or an ancestor of dom
//	ObjectCheck     keyMatch(obj, rule object)
//	ActionCheck     act is a CRUD letter the rule allows
//	OwnershipCheck  the injected OwnershipPolicy accepts attrs
//
// Any matching rule allows the request. The global domain "0" is an
// ancestor of every domain, so internal grants apply everywhere.
//
// # Ownership
//
// OwnerColumnPolicy compares a table's owner column with the caller's
// user id (end users) or its tenant column with the request domain
// (customers). Internal callers bypass the check; public callers are
// refused any table with an ownership dimension. On allow the policy
// returns resolved conditions with the owner column pinned, and handlers
// must run their queries with those conditions instead of client attrs.
//
// # User Types
//
// UserTypeClassifier maps a grant set to public, enduser, customer or
// internal using configured role lists. It is evaluated on every request.
//
// # Usage
//
//	adapter := authz.NewAdapter(db, cfg.Authz.StoreTimeout)
//	enforcer, err := authz.NewEnforcer(ctx, &cfg.Authz, adapter,
//	    authz.WithUserLookup(directory))
//	if err != nil {
//	    return err
//	}
//	defer enforcer.Close()
//
//	ok, err := enforcer.Enforce(ctx, "alice", "0", "mra_users", "R", authz.Attrs{})
//
// # Thread Safety
//
// Decide reads the current snapshot through an atomic pointer and never
// blocks on writers. Role mutations go through the casbin SyncedEnforcer
// and the store's unique constraint, then publish a new snapshot.
package authz
