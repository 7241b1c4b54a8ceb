// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package authz

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/warden/internal/config"
	"github.com/tomtom215/warden/internal/database"
)

// =====================================================
// Test Helpers
// =====================================================

// testPolicy is the policy most tests run against.
const testPolicy = `
p, admin, *, *, *
p, enduser, *, mra_users, RU
p, enduser, *, mra_tickets, CRUD
p, customer_admin, *, casbin_rule, CRD
p, customer_admin, *, mra_customers, RU
p, public, *, mra_products, R
p, public, *, mra_users, R
g, alice, enduser, 0
g, root, admin, 0
g, carol, customer_admin, 17
g2, 17a, 17
`

// testUsers maps usernames to ids for the test user lookup.
var testUsers = map[string]int64{
	"alice": 42,
	"bob":   43,
	"root":  1,
	"carol": 7,
	"dave":  50,
}

// memStore is an in-memory RuleStore.
type memStore struct {
	mu      sync.Mutex
	rules   []database.CasbinRule
	listErr error
	addErr  error
}

func ruleKey(r database.CasbinRule) string {
	return r.PType + "|" + strings.Join(r.Values[:], "|")
}

func (s *memStore) ListRules(context.Context) ([]database.CasbinRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]database.CasbinRule, len(s.rules))
	copy(out, s.rules)
	return out, nil
}

func (s *memStore) CountRules(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rules), nil
}

func (s *memStore) InsertRules(_ context.Context, rules []database.CasbinRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addErr != nil {
		return s.addErr
	}
	for _, r := range rules {
		if !s.hasLocked(r) {
			s.rules = append(s.rules, r)
		}
	}
	return nil
}

func (s *memStore) hasLocked(r database.CasbinRule) bool {
	for _, x := range s.rules {
		if ruleKey(x) == ruleKey(r) {
			return true
		}
	}
	return false
}

func (s *memStore) DeleteRules(_ context.Context, rules []database.CasbinRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := make(map[string]bool, len(rules))
	for _, r := range rules {
		drop[ruleKey(r)] = true
	}
	kept := s.rules[:0]
	for _, r := range s.rules {
		if !drop[ruleKey(r)] {
			kept = append(kept, r)
		}
	}
	s.rules = kept
	return nil
}

func (s *memStore) DeleteFilteredRules(_ context.Context, ptype string, fieldIndex int, values ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	kept := s.rules[:0]
	for _, r := range s.rules {
		match := r.PType == ptype
		for i, v := range values {
			if v != "" && r.Values[fieldIndex+i] != v {
				match = false
			}
		}
		if match {
			n++
			continue
		}
		kept = append(kept, r)
	}
	s.rules = kept
	return n, nil
}

func (s *memStore) ReplaceRules(_ context.Context, rules []database.CasbinRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append([]database.CasbinRule(nil), rules...)
	return nil
}

// mapUsers is a UserIDLookup over a map.
type mapUsers map[string]int64

func (m mapUsers) GetUserIDByUsername(_ context.Context, username string) (int64, bool, error) {
	id, ok := m[username]
	return id, ok, nil
}

// failingUsers always fails.
type failingUsers struct{}

func (failingUsers) GetUserIDByUsername(context.Context, string) (int64, bool, error) {
	return 0, false, errors.New("database is locked")
}

// countingCloser counts Close calls.
type countingCloser struct {
	mu    sync.Mutex
	calls int
}

func (c *countingCloser) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil
}

// testAuthzConfig returns the authz configuration used in production defaults.
func testAuthzConfig() *config.AuthzConfig {
	return &config.AuthzConfig{
		GlobalDomain:   "0",
		DefaultRole:    "enduser",
		PublicSubject:  "public",
		PublicRole:     "public",
		ReloadInterval: time.Minute,
		StoreTimeout:   time.Second,
		OwnerColumns: map[string]string{
			"mra_users":   "user_id",
			"mra_tickets": "user_id",
		},
		DomainColumns: map[string]string{
			"casbin_rule":   "v2",
			"mra_customers": "customer_id",
			"mra_users":     "customer_id",
		},
		UserTypes: config.UserTypeConfig{
			InternalRoles: []string{"admin", "support"},
			CustomerRoles: []string{"customer_admin", "customer_user"},
		},
	}
}

// writePolicyFile writes policy text to a temp file and returns its path.
func writePolicyFile(t *testing.T, policy string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.csv")
	if err := os.WriteFile(path, []byte(policy), 0o600); err != nil {
		t.Fatalf("Failed to write policy file: %v", err)
	}
	return path
}

// setupEnforcerWithStore seeds store from policy and builds an enforcer.
func setupEnforcerWithStore(t *testing.T, store RuleStore, policy string, opts ...Option) *Enforcer {
	t.Helper()
	cfg := testAuthzConfig()
	cfg.PolicyPath = writePolicyFile(t, policy)

	opts = append([]Option{WithUserLookup(mapUsers(testUsers))}, opts...)
	e, err := NewEnforcer(context.Background(), cfg, NewAdapter(store, time.Second), opts...)
	if err != nil {
		t.Fatalf("NewEnforcer() error = %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// setupEnforcer builds an enforcer over testPolicy.
func setupEnforcer(t *testing.T, opts ...Option) *Enforcer {
	t.Helper()
	return setupEnforcerWithStore(t, &memStore{}, testPolicy, opts...)
}

// assertEnforce checks that enforcement returns the expected result.
func assertEnforce(t *testing.T, e *Enforcer, sub, dom, obj, act string, attrs Attrs, want bool) {
	t.Helper()
	got, err := e.Enforce(context.Background(), sub, dom, obj, act, attrs)
	if err != nil {
		t.Fatalf("Enforce(%s, %s, %s, %s) error = %v", sub, dom, obj, act, err)
	}
	if got != want {
		t.Errorf("Enforce(%s, %s, %s, %s, %v) = %v, want %v", sub, dom, obj, act, attrs, got, want)
	}
}

func where(kv ...interface{}) Attrs {
	return NewAttrs(pairs(kv), nil)
}

func set(kv ...interface{}) Attrs {
	return NewAttrs(nil, pairs(kv))
}

func pairs(kv []interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i].(string)] = kv[i+1]
	}
	return m
}
