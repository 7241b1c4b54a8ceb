// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package authz

import (
	"math"
	"testing"

	"github.com/goccy/go-json"
)

func testOwnershipPolicy() *OwnerColumnPolicy {
	cfg := testAuthzConfig()
	return NewOwnerColumnPolicy(cfg.OwnerColumns, cfg.DomainColumns)
}

func TestOwnerColumnPolicy_Descriptor(t *testing.T) {
	p := testOwnershipPolicy()

	tests := []struct {
		table    string
		userType UserType
		tenant   bool
		want     OwnershipDescriptor
		ok       bool
	}{
		{"mra_users", UserTypeEnduser, false, OwnershipDescriptor{"user_id", IdentityUser}, true},
		{"mra_users", UserTypeCustomer, true, OwnershipDescriptor{"customer_id", IdentityDomain}, true},
		{"mra_users", UserTypeCustomer, false, OwnershipDescriptor{"user_id", IdentityUser}, true},
		{"mra_tickets", UserTypeCustomer, true, OwnershipDescriptor{"user_id", IdentityUser}, true},
		{"mra_customers", UserTypeEnduser, false, OwnershipDescriptor{"customer_id", IdentityDomain}, true},
		{"casbin_rule", UserTypeCustomer, true, OwnershipDescriptor{"v2", IdentityDomain}, true},
		{"casbin_rule", UserTypeCustomer, false, OwnershipDescriptor{"v2", IdentityDomain}, true},
		{"mra_products", UserTypeEnduser, false, OwnershipDescriptor{}, false},
	}
	for _, tt := range tests {
		name := tt.table + "/" + string(tt.userType)
		if tt.tenant {
			name += "/tenant"
		}
		t.Run(name, func(t *testing.T) {
			got, ok := p.Descriptor(tt.table, tt.userType, tt.tenant)
			if ok != tt.ok || got != tt.want {
				t.Errorf("Descriptor() = %v, %v; want %v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestOwnerColumnPolicy_Evaluate(t *testing.T) {
	p := testOwnershipPolicy()

	req := func(userType UserType, obj, act string, attrs Attrs) OwnershipRequest {
		return OwnershipRequest{Subject: "u", CallerID: 42, UserType: userType, Domain: "17", Object: obj, Action: act, Attrs: attrs}
	}
	member := func(r OwnershipRequest) OwnershipRequest {
		r.Tenant = true
		return r
	}
	global := func(r OwnershipRequest) OwnershipRequest {
		r.Domain = "0"
		return r
	}

	tests := []struct {
		name string
		req  OwnershipRequest
		want bool
	}{
		{"internal bypasses", req(UserTypeInternal, "mra_users", "D", Attrs{}), true},
		{"unowned table", req(UserTypePublic, "mra_products", "R", Attrs{}), true},
		{"public owned table", req(UserTypePublic, "mra_users", "R", Attrs{}), false},
		{"json number owner", req(UserTypeEnduser, "mra_users", "D", where("user_id", json.Number("42"))), true},
		{"float owner", req(UserTypeEnduser, "mra_users", "D", where("user_id", 42.0)), true},
		{"fractional owner", req(UserTypeEnduser, "mra_users", "D", where("user_id", 42.5)), false},
		{"bool owner", req(UserTypeEnduser, "mra_users", "D", where("user_id", true)), false},
		{"nil owner", req(UserTypeEnduser, "mra_users", "D", where("user_id", nil)), false},
		{"customer tenant create", member(req(UserTypeCustomer, "mra_users", "C", set("customer_id", 17))), true},
		{"customer other tenant", member(req(UserTypeCustomer, "mra_users", "C", set("customer_id", 18))), false},
		{"customer tenant string", member(req(UserTypeCustomer, "casbin_rule", "D", where("v2", "17"))), true},
		{"customer outside tenant uses user id", req(UserTypeCustomer, "mra_users", "D", where("user_id", 42)), true},
		{"customer outside tenant domain column", req(UserTypeCustomer, "mra_users", "D", where("customer_id", "17")), false},
		{"customer global domain as tenant", global(req(UserTypeCustomer, "mra_users", "D", where("customer_id", "0"))), false},
		{"domain only table without membership", req(UserTypeCustomer, "casbin_rule", "D", where("v2", "17")), false},
		{"enduser domain only table", req(UserTypeEnduser, "mra_customers", "R", Attrs{}), false},
		{"unknown action", req(UserTypeEnduser, "mra_users", "X", where("user_id", 42)), false},
		{"nil attrs read", req(UserTypeEnduser, "mra_users", "R", nil), true},
		{"nil attrs delete", req(UserTypeEnduser, "mra_users", "D", nil), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Evaluate(tt.req)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOwnerColumnPolicy_Resolve(t *testing.T) {
	p := testOwnershipPolicy()

	t.Run("update pins where and set", func(t *testing.T) {
		in := NewAttrs(map[string]interface{}{"user_id": "42"}, map[string]interface{}{"user_id": 42.0, "name": "x"})
		out := p.Resolve(OwnershipRequest{CallerID: 42, UserType: UserTypeEnduser, Domain: "0", Object: "mra_users", Action: "U", Attrs: in})
		if out.Where()["user_id"] != int64(42) || out.Set()["user_id"] != int64(42) {
			t.Errorf("Resolve() = %v", out)
		}
		if out.Set()["name"] != "x" {
			t.Errorf("Resolve() dropped set.name: %v", out)
		}
	})

	t.Run("update without owner in set leaves set alone", func(t *testing.T) {
		in := NewAttrs(map[string]interface{}{"user_id": 42}, map[string]interface{}{"name": "x"})
		out := p.Resolve(OwnershipRequest{CallerID: 42, UserType: UserTypeEnduser, Object: "mra_users", Action: "U", Attrs: in})
		if _, ok := out.Set()["user_id"]; ok {
			t.Errorf("Resolve() added owner to set: %v", out)
		}
	})

	t.Run("non numeric domain stays a string", func(t *testing.T) {
		out := p.Resolve(OwnershipRequest{UserType: UserTypeCustomer, Tenant: true, Domain: "acme", Object: "casbin_rule", Action: "R", Attrs: nil})
		if out.Where()["v2"] != "acme" {
			t.Errorf("Resolve() = %v", out)
		}
	})

	t.Run("customer outside tenant narrowed to user id", func(t *testing.T) {
		out := p.Resolve(OwnershipRequest{CallerID: 7, UserType: UserTypeCustomer, Domain: "0", Object: "mra_users", Action: "R", Attrs: nil})
		if out.Where()["user_id"] != int64(7) {
			t.Errorf("Resolve() = %v, want where.user_id = 7", out)
		}
		if _, ok := out.Where()["customer_id"]; ok {
			t.Errorf("Resolve() pinned customer_id outside a tenant: %v", out)
		}
	})

	t.Run("unowned table is a copy", func(t *testing.T) {
		in := where("sku", "A1")
		out := p.Resolve(OwnershipRequest{UserType: UserTypePublic, Object: "mra_products", Action: "R", Attrs: in})
		out.Where()["sku"] = "B2"
		if in.Where()["sku"] != "A1" {
			t.Error("Resolve() aliased the request attrs")
		}
	})
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
		ok   bool
	}{
		{"abc", "abc", true},
		{42, "42", true},
		{int64(-3), "-3", true},
		{uint32(9), "9", true},
		{42.0, "42", true},
		{float32(1.5), "1.5", true},
		{json.Number("0042"), "42", true},
		{json.Number("1e2"), "100", true},
		{json.Number("abc"), "", false},
		{math.NaN(), "", false},
		{math.Inf(1), "", false},
		{[]int{1}, "", false},
	}
	for _, tt := range tests {
		got, ok := canonical(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("canonical(%v) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestAttrs_Clone(t *testing.T) {
	a := Attrs{
		"where": map[string]interface{}{"ids": []interface{}{1, 2}},
		"set":   Attrs{"name": "x"},
	}
	c := a.Clone()
	c.Where()["ids"].([]interface{})[0] = 9
	c.Set()["name"] = "y"

	if a.Where()["ids"].([]interface{})[0] != 1 {
		t.Error("Clone() shares slices")
	}
	if a.Set()["name"] != "x" {
		t.Error("Clone() shares maps")
	}
	if Attrs(nil).Clone() == nil {
		t.Error("Clone() of nil returned nil")
	}
}
