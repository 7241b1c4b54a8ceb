// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/warden/internal/config"
	"github.com/tomtom215/warden/internal/database"
)

// setupDuckDBStore creates an in-memory DuckDB rule store.
func setupDuckDBStore(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "256MB", Threads: 1})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestAdapter_DuckDBRoundTrip(t *testing.T) {
	db := setupDuckDBStore(t)
	e := setupEnforcerWithStore(t, db, testPolicy)
	r := NewRoleResolver(e)
	ctx := context.Background()

	if _, err := r.AddRoleForUserInDomain(ctx, "bob", "customer_admin", "18"); err != nil {
		t.Fatalf("AddRoleForUserInDomain() error = %v", err)
	}
	if _, err := r.RemoveRoleForUserInDomain(ctx, "alice", "enduser", "0"); err != nil {
		t.Fatalf("RemoveRoleForUserInDomain() error = %v", err)
	}

	// A second enforcer over the same database sees the writes.
	cfg := testAuthzConfig()
	cfg.PolicyPath = writePolicyFile(t, testPolicy)
	e2, err := NewEnforcer(ctx, cfg, NewAdapter(db, time.Second), WithUserLookup(mapUsers(testUsers)))
	if err != nil {
		t.Fatalf("NewEnforcer() error = %v", err)
	}
	t.Cleanup(func() { _ = e2.Close() })

	assertEnforce(t, e2, "bob", "18", "casbin_rule", "D", where("v2", "18"), true)
	assertEnforce(t, e2, "alice", "0", "mra_users", "R", Attrs{}, false)
	assertEnforce(t, e2, "carol", "17a", "mra_customers", "R", Attrs{}, true)

	if len(e2.Rules()) != len(e.Rules()) {
		t.Errorf("Rules() = %d, want %d", len(e2.Rules()), len(e.Rules()))
	}
}

func TestAdapter_SavePolicy(t *testing.T) {
	store := &memStore{}
	e := setupEnforcerWithStore(t, store, testPolicy)

	store.mu.Lock()
	store.rules = nil
	store.mu.Unlock()

	if err := e.casbin.SavePolicy(); err != nil {
		t.Fatalf("SavePolicy() error = %v", err)
	}
	n, _ := store.CountRules(context.Background())
	if n != len(e.Rules())+4 {
		t.Errorf("CountRules() = %d, want %d policy plus 4 grouping", n, len(e.Rules()))
	}
}

func TestAdapter_RemoveFilteredPolicy(t *testing.T) {
	store := &memStore{}
	a := NewAdapter(store, 0)

	rules := [][]string{
		{"g", "bob", "enduser", "0"},
		{"g", "bob", "customer_user", "17"},
		{"g", "eve", "enduser", "0"},
	}
	if _, err := a.Seed(rules); err != nil {
		t.Fatal(err)
	}
	if err := a.RemoveFilteredPolicy("g", "g", 0, "bob"); err != nil {
		t.Fatal(err)
	}
	n, _ := store.CountRules(context.Background())
	if n != 1 {
		t.Errorf("CountRules() = %d, want 1", n)
	}
}

func TestAdapter_Errors(t *testing.T) {
	store := &memStore{addErr: errors.New("read only")}
	a := NewAdapter(store, time.Second)

	if err := a.AddPolicy("p", "p", []string{"admin", "*", "*", "*"}); err == nil {
		t.Error("AddPolicy() expected error")
	}
	if _, err := a.Seed([][]string{{"p", "admin", "*", "*", "*"}}); err == nil {
		t.Error("Seed() expected error")
	}
	if err := a.AddPolicy("p", "p", []string{"1", "2", "3", "4", "5", "6", "7", "8"}); err == nil {
		t.Error("AddPolicy() expected error for oversized rule")
	}
}

func TestAdapter_SeedSkipsPopulatedStore(t *testing.T) {
	store := &memStore{}
	a := NewAdapter(store, time.Second)

	seeded, err := a.Seed([][]string{{"p", "admin", "*", "*", "*"}})
	if err != nil || !seeded {
		t.Fatalf("Seed() = %v, %v; want true", seeded, err)
	}
	seeded, err = a.Seed([][]string{{"p", "other", "*", "*", "*"}})
	if err != nil || seeded {
		t.Errorf("Seed() = %v, %v; want false", seeded, err)
	}
}
