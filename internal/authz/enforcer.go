// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package authz

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/casbin/casbin/v2"

	"github.com/tomtom215/warden/internal/config"
	"github.com/tomtom215/warden/internal/database"
	"github.com/tomtom215/warden/internal/logging"
)

// ErrEnforcerClosed is returned by every operation after Close.
var ErrEnforcerClosed = errors.New("enforcer is closed")

// Request is an authorization request tuple. UserID may be left zero;
// the enforcer then resolves it through its user lookup. Anonymous marks
// an unauthenticated caller, which is evaluated as the public pseudo-user
// whatever Subject says.
type Request struct {
	Subject   string `json:"sub"`
	UserID    int64  `json:"-"`
	Anonymous bool   `json:"-"`
	Domain    string `json:"dom"`
	Object    string `json:"obj"`
	Action    string `json:"act"`
	Attrs     Attrs  `json:"attrs,omitempty"`
}

// Decision is the outcome of Decide. Conditions is set only when Allowed.
type Decision struct {
	Allowed    bool        `json:"allowed"`
	UserType   UserType    `json:"user_type"`
	CallerID   int64       `json:"-"`
	Roles      []RoleGrant `json:"roles"`
	Conditions Attrs       `json:"conditions,omitempty"`
	Rule       *Rule       `json:"-"`
}

// Option configures an Enforcer.
type Option func(*Enforcer)

// WithMatcher replaces the default rule matcher.
func WithMatcher(m Matcher) Option {
	return func(e *Enforcer) { e.matcher = m }
}

// WithOwnershipPolicy replaces the owner column policy built from config.
func WithOwnershipPolicy(p OwnershipPolicy) Option {
	return func(e *Enforcer) { e.ownership = p }
}

// WithUserLookup sets how caller ids are resolved from usernames.
func WithUserLookup(l database.UserIDLookup) Option {
	return func(e *Enforcer) { e.users = l }
}

// WithStoreCloser hands the enforcer the storage connection behind its
// adapter. It is closed once by Close.
func WithStoreCloser(c io.Closer) Option {
	return func(e *Enforcer) { e.store = c }
}

// Enforcer answers authorization requests. It is constructed once at
// startup and shared by all handlers.
//
// Casbin holds the model and the persisted tuples and performs all writes
// through the adapter. Decisions are evaluated by a Matcher over an
// immutable snapshot that is rebuilt after every load and mutation, so
// reads never block on writers.
type Enforcer struct {
	cfg        *config.AuthzConfig
	casbin     *casbin.SyncedEnforcer
	adapter    *Adapter
	matcher    Matcher
	ownership  OwnershipPolicy
	classifier *UserTypeClassifier
	users      database.UserIDLookup
	store      io.Closer
	links      bool

	snap      atomic.Pointer[snapshot]
	rebuildMu sync.Mutex

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewEnforcer loads the model, seeds an empty store, loads the policy and
// builds the first snapshot. It blocks until the policy is ready; any
// failure is fatal to the caller.
func NewEnforcer(ctx context.Context, cfg *config.AuthzConfig, adapter *Adapter, opts ...Option) (*Enforcer, error) {
	if adapter == nil {
		return nil, ErrNoAdapter
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m, err := LoadModel(cfg.ModelPath)
	if err != nil {
		return nil, err
	}

	seed, err := readSeedPolicy(cfg.PolicyPath)
	if err != nil {
		return nil, err
	}
	seeded, err := adapter.Seed(seed)
	if err != nil {
		return nil, err
	}
	if seeded {
		logging.Info().Int("rules", len(seed)).Msg("Seeded empty policy store")
	}

	ce, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}
	ce.EnableAutoSave(true)

	e := &Enforcer{
		cfg:        cfg,
		casbin:     ce,
		adapter:    adapter,
		matcher:    DefaultMatcher(),
		ownership:  NewOwnerColumnPolicy(cfg.OwnerColumns, cfg.DomainColumns),
		classifier: NewUserTypeClassifier(cfg),
		links:      hasDomainLinks(m),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.rebuild(); err != nil {
		return nil, err
	}
	return e, nil
}

// Enforce reports whether sub may perform act on obj in dom given attrs.
func (e *Enforcer) Enforce(ctx context.Context, sub, dom, obj, act string, attrs Attrs) (bool, error) {
	d, err := e.Decide(ctx, Request{Subject: sub, Domain: dom, Object: obj, Action: act, Attrs: attrs})
	if err != nil {
		return false, err
	}
	return d.Allowed, nil
}

// Decide evaluates req against every rule. Any matching rule allows the
// request, so the outcome does not depend on rule order. A deny is a
// Decision with Allowed false; errors mean no decision could be made.
func (e *Enforcer) Decide(ctx context.Context, req Request) (Decision, error) {
	if e.closed.Load() {
		return Decision{}, ErrEnforcerClosed
	}
	start := time.Now()
	snap := e.snap.Load()

	// The public pseudo-user holds only the implicit public role. Grants
	// stored under its name are never consulted.
	public := req.Anonymous || e.IsPublic(req.Subject)
	var grants []RoleGrant
	if public {
		req.Subject = e.cfg.PublicSubject
		req.UserID = 0
		grants = []RoleGrant{{Role: e.cfg.PublicRole, Domain: e.cfg.GlobalDomain}}
	} else {
		grants = snap.directGrants(req.Subject)
	}
	userType := e.classifier.Classify(grants)
	d := Decision{UserType: userType, Roles: grants}

	if !public && req.UserID == 0 && e.users != nil {
		id, found, err := e.users.GetUserIDByUsername(ctx, req.Subject)
		if err != nil {
			RecordAuthzError("user_lookup")
			return Decision{}, fmt.Errorf("failed to resolve caller id: %w", err)
		}
		if !found {
			RecordAuthzDecision(userType, req.Object, req.Action, false, time.Since(start))
			return d, nil
		}
		req.UserID = id
	}
	d.CallerID = req.UserID

	ev := &Evaluation{
		Request:   req,
		UserType:  userType,
		CallerID:  req.UserID,
		Tenant:    e.inTenant(snap, grants, req.Domain),
		Roles:     snap.effectiveRoles(grants, req.Domain),
		Domains:   snap.graph,
		Ownership: e.ownership,
	}

	for i := range snap.rules {
		ok, err := e.matcher.Match(ev, snap.rules[i])
		if err != nil {
			RecordAuthzError("matcher")
			return Decision{}, fmt.Errorf("failed to evaluate rule %v: %w", snap.rules[i], err)
		}
		if ok {
			rule := snap.rules[i]
			d.Allowed = true
			d.Rule = &rule
			break
		}
	}

	if d.Allowed {
		if r, ok := e.ownership.(ConditionResolver); ok {
			d.Conditions = r.Resolve(ev.OwnershipRequest())
		} else {
			d.Conditions = req.Attrs.Clone()
		}
	}

	RecordAuthzDecision(userType, req.Object, req.Action, d.Allowed, time.Since(start))
	return d, nil
}

// IsPublic reports whether sub is the unauthenticated pseudo-user.
func (e *Enforcer) IsPublic(sub string) bool {
	return sub == e.cfg.PublicSubject
}

// IsRole reports whether name is a role: the subject of a policy rule or
// a role named in the configuration.
func (e *Enforcer) IsRole(name string) bool {
	return e.snap.Load().roles[name]
}

// IsReservedName reports whether name may not be used as a username
// because it collides, ignoring case, with the public subject or a role.
func (e *Enforcer) IsReservedName(name string) bool {
	if strings.EqualFold(name, e.cfg.PublicSubject) {
		return true
	}
	for role := range e.snap.Load().roles {
		if strings.EqualFold(name, role) {
			return true
		}
	}
	return false
}

// inTenant reports whether grants include a tenant grant covering dom.
// The global domain is never a tenant.
func (e *Enforcer) inTenant(snap *snapshot, grants []RoleGrant, dom string) bool {
	if dom == e.cfg.GlobalDomain || dom == WildcardDomain {
		return false
	}
	for _, g := range grants {
		if e.classifier.IsTenantGrant(g) && snap.graph.Covers(g.Domain, dom) {
			return true
		}
	}
	return false
}

// Classifier returns the user type classifier.
func (e *Enforcer) Classifier() *UserTypeClassifier {
	return e.classifier
}

// GlobalDomain returns the configured global domain.
func (e *Enforcer) GlobalDomain() string {
	return e.cfg.GlobalDomain
}

// Rules returns the policy rules of the current snapshot.
func (e *Enforcer) Rules() []Rule {
	snap := e.snap.Load()
	out := make([]Rule, len(snap.rules))
	copy(out, snap.rules)
	return out
}

// Reload reloads the policy from storage and rebuilds the snapshot.
func (e *Enforcer) Reload(ctx context.Context) error {
	if e.closed.Load() {
		return ErrEnforcerClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.casbin.LoadPolicy(); err != nil {
		RecordPolicyReload(false)
		return fmt.Errorf("failed to reload policy: %w", err)
	}
	if err := e.rebuild(); err != nil {
		RecordPolicyReload(false)
		return err
	}
	RecordPolicyReload(true)
	return nil
}

// Closed reports whether Close has been called.
func (e *Enforcer) Closed() bool {
	return e.closed.Load()
}

// Close releases the storage connection. It is safe to call more than
// once; later calls return the first result.
func (e *Enforcer) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		if e.store != nil {
			e.closeErr = e.store.Close()
		}
	})
	return e.closeErr
}

// rebuild publishes a snapshot of the current casbin policy.
func (e *Enforcer) rebuild() error {
	e.rebuildMu.Lock()
	defer e.rebuildMu.Unlock()

	policies, err := e.casbin.GetPolicy()
	if err != nil {
		return fmt.Errorf("failed to read policy: %w", err)
	}
	grouping, err := e.casbin.GetNamedGroupingPolicy("g")
	if err != nil {
		return fmt.Errorf("failed to read role grants: %w", err)
	}
	var links [][]string
	if e.links {
		if links, err = e.casbin.GetNamedGroupingPolicy("g2"); err != nil {
			return fmt.Errorf("failed to read domain links: %w", err)
		}
	}

	snap := newSnapshot(e.cfg.GlobalDomain, e.configuredRoles(), policies, grouping, links)
	e.snap.Store(snap)
	SetPolicySize(len(snap.rules), len(grouping)+len(links))
	return nil
}

func (e *Enforcer) configuredRoles() []string {
	roles := []string{e.cfg.PublicRole, e.cfg.DefaultRole}
	roles = append(roles, e.cfg.UserTypes.InternalRoles...)
	return append(roles, e.cfg.UserTypes.CustomerRoles...)
}

// snapshot is an immutable view of the policy used for decisions.
//
// Users and roles share the first field of g rows. A row whose first
// field is a known role is role inheritance; any other row is a grant
// to a user.
type snapshot struct {
	rules   []Rule
	roles   map[string]bool
	grants  map[string][]RoleGrant
	parents map[string][]RoleGrant
	graph   *DomainGraph
}

func newSnapshot(global string, configured []string, policies, grouping, links [][]string) *snapshot {
	s := &snapshot{
		rules:   make([]Rule, 0, len(policies)),
		roles:   make(map[string]bool),
		grants:  make(map[string][]RoleGrant),
		parents: make(map[string][]RoleGrant),
	}
	for _, r := range configured {
		if r != "" {
			s.roles[r] = true
		}
	}
	for _, p := range policies {
		if len(p) < 4 {
			continue
		}
		s.rules = append(s.rules, Rule{Role: p[0], Domain: p[1], Object: p[2], Action: p[3]})
		s.roles[p[0]] = true
	}
	for _, g := range grouping {
		if len(g) < 3 {
			continue
		}
		grant := RoleGrant{Role: g[1], Domain: g[2]}
		if s.roles[g[0]] {
			s.parents[g[0]] = append(s.parents[g[0]], grant)
		} else {
			s.grants[g[0]] = append(s.grants[g[0]], grant)
		}
	}
	pairs := make([][2]string, 0, len(links))
	for _, l := range links {
		if len(l) >= 2 {
			pairs = append(pairs, [2]string{l[0], l[1]})
		}
	}
	s.graph = NewDomainGraph(global, pairs)
	return s
}

// directGrants returns a copy of the grants held by user sub, sorted. A
// role name holds no grants.
func (s *snapshot) directGrants(sub string) []RoleGrant {
	held := s.grants[sub]
	out := make([]RoleGrant, len(held))
	copy(out, held)
	sortGrants(out)
	return out
}

// effectiveRoles returns every role the grants confer in dom, following
// role to role inheritance whose domain covers dom. Only known roles
// inherit, so a grant naming a user confers nothing beyond that name.
func (s *snapshot) effectiveRoles(grants []RoleGrant, dom string) map[string]bool {
	roles := make(map[string]bool)
	queue := make([]RoleGrant, len(grants))
	copy(queue, grants)
	for len(queue) > 0 {
		g := queue[0]
		queue = queue[1:]
		if roles[g.Role] || !s.graph.Covers(g.Domain, dom) {
			continue
		}
		roles[g.Role] = true
		queue = append(queue, s.parents[g.Role]...)
	}
	return roles
}

func sortGrants(grants []RoleGrant) {
	sort.Slice(grants, func(i, j int) bool {
		if grants[i].Domain != grants[j].Domain {
			return grants[i].Domain < grants[j].Domain
		}
		return grants[i].Role < grants[j].Role
	})
}
