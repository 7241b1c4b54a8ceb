// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package authz

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
)

func TestRoleResolver_ListRoles(t *testing.T) {
	e := setupEnforcer(t)
	r := NewRoleResolver(e)
	ctx := context.Background()

	roles, err := r.ListRolesForUserInDomain(ctx, "carol", "17")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(roles, []string{"customer_admin"}) {
		t.Errorf("ListRolesForUserInDomain(carol, 17) = %v", roles)
	}

	roles, err = r.ListRolesForUserInDomain(ctx, "carol", "18")
	if err != nil {
		t.Fatal(err)
	}
	if len(roles) != 0 {
		t.Errorf("ListRolesForUserInDomain(carol, 18) = %v, want none", roles)
	}

	grants, err := r.ListRolesForUserInDomains(ctx, "root")
	if err != nil {
		t.Fatal(err)
	}
	if want := []RoleGrant{{Role: "admin", Domain: "0"}}; !reflect.DeepEqual(grants, want) {
		t.Errorf("ListRolesForUserInDomains(root) = %v, want %v", grants, want)
	}
	if ut := r.GetUserType(grants); ut != UserTypeInternal {
		t.Errorf("GetUserType() = %s, want internal", ut)
	}
}

func TestRoleResolver_AddIsIdempotent(t *testing.T) {
	store := &memStore{}
	e := setupEnforcerWithStore(t, store, testPolicy)
	r := NewRoleResolver(e)
	ctx := context.Background()
	before, _ := store.CountRules(ctx)

	added, err := r.AddRoleForUserInDomain(ctx, "bob", "enduser", "0")
	if err != nil || !added {
		t.Fatalf("first add = %v, %v; want true", added, err)
	}
	added, err = r.AddRoleForUserInDomain(ctx, "bob", "enduser", "0")
	if err != nil || added {
		t.Fatalf("second add = %v, %v; want false", added, err)
	}

	after, _ := store.CountRules(ctx)
	if after != before+1 {
		t.Errorf("stored rules = %d, want %d", after, before+1)
	}
	assertEnforce(t, e, "bob", "0", "mra_users", "R", Attrs{}, true)
}

func TestRoleResolver_RemoveIsVisibleImmediately(t *testing.T) {
	e := setupEnforcer(t)
	r := NewRoleResolver(e)
	ctx := context.Background()

	assertEnforce(t, e, "alice", "0", "mra_users", "R", Attrs{}, true)

	removed, err := r.RemoveRoleForUserInDomain(ctx, "alice", "enduser", "0")
	if err != nil || !removed {
		t.Fatalf("remove = %v, %v; want true", removed, err)
	}
	assertEnforce(t, e, "alice", "0", "mra_users", "R", Attrs{}, false)

	removed, err = r.RemoveRoleForUserInDomain(ctx, "alice", "enduser", "0")
	if err != nil || removed {
		t.Errorf("second remove = %v, %v; want false", removed, err)
	}
}

func TestRoleResolver_RemoveAllDomains(t *testing.T) {
	store := &memStore{}
	e := setupEnforcerWithStore(t, store, testPolicy)
	r := NewRoleResolver(e)
	ctx := context.Background()

	for _, dom := range []string{"0", "17", "18"} {
		if _, err := r.AddRoleForUserInDomain(ctx, "bob", "enduser", dom); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := r.RemoveRolesForUserInAllDomains(ctx, "bob")
	if err != nil || !removed {
		t.Fatalf("RemoveRolesForUserInAllDomains() = %v, %v", removed, err)
	}
	grants, _ := r.ListRolesForUserInDomains(ctx, "bob")
	if len(grants) != 0 {
		t.Errorf("grants after remove = %v", grants)
	}
	for _, rule := range store.rules {
		if rule.PType == "g" && rule.Values[0] == "bob" {
			t.Errorf("stored grant survived: %v", rule)
		}
	}

	// Other users keep their grants.
	assertEnforce(t, e, "alice", "0", "mra_users", "R", Attrs{}, true)

	removed, err = r.RemoveRolesForUserInAllDomains(ctx, "bob")
	if err != nil || removed {
		t.Errorf("second RemoveRolesForUserInAllDomains() = %v, %v; want false", removed, err)
	}
}

func TestRoleResolver_InvalidGrant(t *testing.T) {
	r := NewRoleResolver(setupEnforcer(t))
	ctx := context.Background()

	if _, err := r.AddRoleForUserInDomain(ctx, "", "enduser", "0"); !errors.Is(err, ErrInvalidGrant) {
		t.Errorf("empty user error = %v", err)
	}
	if _, err := r.RemoveRoleForUserInDomain(ctx, "bob", "", "0"); !errors.Is(err, ErrInvalidGrant) {
		t.Errorf("empty role error = %v", err)
	}
	if _, err := r.RemoveRolesForUserInAllDomains(ctx, ""); !errors.Is(err, ErrInvalidGrant) {
		t.Errorf("empty user error = %v", err)
	}
}

func TestRoleResolver_StoreFailure(t *testing.T) {
	store := &memStore{}
	e := setupEnforcerWithStore(t, store, testPolicy)
	r := NewRoleResolver(e)

	store.mu.Lock()
	store.addErr = errors.New("disk full")
	store.mu.Unlock()

	if _, err := r.AddRoleForUserInDomain(context.Background(), "bob", "enduser", "0"); err == nil {
		t.Fatal("expected store error")
	}
	assertEnforce(t, e, "bob", "0", "mra_users", "R", Attrs{}, false)
}

func TestRoleResolver_Closed(t *testing.T) {
	e := setupEnforcer(t)
	r := NewRoleResolver(e)
	_ = e.Close()

	if _, err := r.ListRolesForUserInDomains(context.Background(), "alice"); !errors.Is(err, ErrEnforcerClosed) {
		t.Errorf("error = %v, want ErrEnforcerClosed", err)
	}
	if _, err := r.AddRoleForUserInDomain(context.Background(), "bob", "enduser", "0"); !errors.Is(err, ErrEnforcerClosed) {
		t.Errorf("error = %v, want ErrEnforcerClosed", err)
	}
}

func TestRoleResolver_ConcurrentMutationsAndDecisions(t *testing.T) {
	e := setupEnforcer(t)
	r := NewRoleResolver(e)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, _ = r.AddRoleForUserInDomain(ctx, "bob", "enduser", "0")
				_, _ = r.RemoveRoleForUserInDomain(ctx, "bob", "enduser", "0")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if _, err := e.Enforce(ctx, "alice", "0", "mra_users", "R", Attrs{}); err != nil {
					t.Errorf("Enforce() error = %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	assertEnforce(t, e, "alice", "0", "mra_users", "R", Attrs{}, true)
}
