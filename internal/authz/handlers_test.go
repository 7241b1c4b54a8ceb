// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package authz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/warden/internal/auth"
)

// recordingEvents collects event log entries.
type recordingEvents struct {
	mu     sync.Mutex
	events []map[string]interface{}
}

func (r *recordingEvents) UpdateEventLog(_ *http.Request, details map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, details)
}

func (r *recordingEvents) last() map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

type handlerFixture struct {
	enforcer *Enforcer
	resolver *RoleResolver
	events   *recordingEvents
	router   http.Handler
}

// testSubjectHeader stands in for the bearer token in handler tests.
const testSubjectHeader = "X-Test-User"

// fakeAuthenticate sets the auth subject from testSubjectHeader.
func fakeAuthenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if name := r.Header.Get(testSubjectHeader); name != "" {
			s := &auth.AuthSubject{Username: name, UserID: testUsers[name]}
			r = r.WithContext(auth.ContextWithAuthSubject(r.Context(), s))
		}
		next.ServeHTTP(w, r)
	})
}

func setupHandlers(t *testing.T, opts ...Option) *handlerFixture {
	t.Helper()
	f := &handlerFixture{events: &recordingEvents{}}
	f.enforcer = setupEnforcer(t, opts...)
	f.resolver = NewRoleResolver(f.enforcer)

	mw := NewMiddleware(f.enforcer, f.events)
	h := NewHandlers(f.enforcer, f.resolver, mw, mapUsers(testUsers), f.events)

	r := chi.NewRouter()
	r.Use(fakeAuthenticate)
	r.With(mw.Authorize(h.AuthorizeTuple)).Post("/v1/authorize", h.Authorize)
	r.Get("/v1/roles", h.ListRoles)
	r.With(mw.Authorize(h.UserRoleTuple(ActionCreate))).Post("/v1/user-role", h.AddUserRole)
	r.With(mw.Authorize(h.UserRoleTuple(ActionDelete))).Delete("/v1/user-role", h.RemoveUserRole)
	f.router = r
	return f
}

func (f *handlerFixture) do(t *testing.T, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(testSubjectHeader, user)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func assertMessage(t *testing.T, rec *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	var body map[string]interface{}
	decodeJSON(t, rec, &body)
	if body["message"] != message {
		t.Errorf("message = %v, want %q", body["message"], message)
	}
}

func TestHandlers_Authorize(t *testing.T) {
	f := setupHandlers(t)

	t.Run("allowed with resolved conditions", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/authorize", "alice", `{"dom":"0","obj":"mra_users","act":"R"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		var resp struct {
			User       string                            `json:"user"`
			UserType   string                            `json:"user_type"`
			Roles      []RoleGrant                       `json:"roles"`
			Conditions map[string]map[string]interface{} `json:"conditions"`
		}
		decodeJSON(t, rec, &resp)
		if resp.User != "alice" || resp.UserType != "enduser" {
			t.Errorf("user = %s/%s, want alice/enduser", resp.User, resp.UserType)
		}
		if len(resp.Roles) != 1 || resp.Roles[0] != (RoleGrant{Role: "enduser", Domain: "0"}) {
			t.Errorf("roles = %v", resp.Roles)
		}
		if got := resp.Conditions["where"]["user_id"]; got != float64(42) {
			t.Errorf("conditions.where.user_id = %v, want 42", got)
		}

		ev := f.events.last()
		if ev["event"] != "authorize" || ev["decision"] != "allowed" || ev["sub"] != "alice" {
			t.Errorf("event = %v", ev)
		}
	})

	t.Run("attrs from another owner are denied", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/authorize", "alice",
			`{"dom":"0","obj":"mra_users","act":"U","attrs":{"where":{"user_id":43},"set":{"email":"x@example.com"}}}`)
		assertMessage(t, rec, http.StatusForbidden, MessageNotAuthorized)
		if f.events.last()["decision"] != "denied" {
			t.Errorf("event = %v, want denied", f.events.last())
		}
	})

	t.Run("no grant", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/authorize", "alice", `{"dom":"0","obj":"mra_customers","act":"U"}`)
		assertMessage(t, rec, http.StatusForbidden, MessageNotAuthorized)
	})

	t.Run("public caller on public object", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/authorize", "", `{"dom":"0","obj":"mra_products","act":"R"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		var resp map[string]interface{}
		decodeJSON(t, rec, &resp)
		if resp["user"] != "public" || resp["user_type"] != "public" {
			t.Errorf("resp = %v", resp)
		}
	})

	t.Run("public caller on owned object", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/authorize", "", `{"dom":"0","obj":"mra_users","act":"R"}`)
		assertMessage(t, rec, http.StatusForbidden, MessageNotAuthorized)
	})

	t.Run("subject in body is ignored", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/authorize", "alice", `{"sub":"root","dom":"0","obj":"mra_customers","act":"D"}`)
		assertMessage(t, rec, http.StatusForbidden, MessageNotAuthorized)
	})
}

func TestHandlers_Authorize_BadRequests(t *testing.T) {
	f := setupHandlers(t)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"invalid action", `{"dom":"0","obj":"mra_users","act":"W"}`, "VALIDATION_FAILED"},
		{"missing domain", `{"obj":"mra_users","act":"R"}`, "VALIDATION_FAILED"},
		{"malformed json", `{"dom":`, ""},
		{"attrs not an object", `{"dom":"0","obj":"mra_users","act":"R","attrs":[1]}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/v1/authorize", "alice", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
			}
			var body map[string]interface{}
			decodeJSON(t, rec, &body)
			if body["message"] == nil || body["message"] == "" {
				t.Error("missing message")
			}
			if tt.code != "" && body["code"] != tt.code {
				t.Errorf("code = %v, want %s", body["code"], tt.code)
			}
		})
	}
}

func TestHandlers_Authorize_LookupFailure(t *testing.T) {
	f := setupHandlers(t, WithUserLookup(failingUsers{}))

	// The fake authenticator sets user ids, so use an unknown name whose id
	// must be looked up.
	rec := f.do(t, http.MethodPost, "/v1/authorize", "mallory", `{"dom":"0","obj":"mra_users","act":"R"}`)
	assertMessage(t, rec, http.StatusInternalServerError, "Internal server error")
	if f.events.last()["decision"] != "error" {
		t.Errorf("event = %v, want error", f.events.last())
	}
}

func TestHandlers_ListRoles(t *testing.T) {
	f := setupHandlers(t)

	tests := []struct {
		name   string
		user   string
		query  string
		status int
		want   []RoleGrant
	}{
		{"anonymous", "", "", http.StatusUnauthorized, nil},
		{"self", "alice", "", http.StatusOK, []RoleGrant{{Role: "enduser", Domain: "0"}}},
		{"self in domain", "carol", "?domain=17", http.StatusOK, []RoleGrant{{Role: "customer_admin", Domain: "17"}}},
		{"self in other domain", "carol", "?domain=18", http.StatusNotFound, nil},
		{"no roles", "dave", "", http.StatusNotFound, nil},
		{"other user without rights", "alice", "?username=carol", http.StatusForbidden, nil},
		{"other user as internal", "root", "?username=carol", http.StatusOK, []RoleGrant{{Role: "customer_admin", Domain: "17"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/v1/roles"+tt.query, tt.user, "")
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
			if tt.want == nil {
				return
			}
			var got []RoleGrant
			decodeJSON(t, rec, &got)
			if len(got) != len(tt.want) {
				t.Fatalf("roles = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("roles[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestHandlers_UserRole_CustomerScope(t *testing.T) {
	f := setupHandlers(t)
	ctx := context.Background()

	t.Run("grant in own domain", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/user-role", "carol", `{"username":"dave","role":"customer_user","domain":"17"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		var resp userRoleResponse
		decodeJSON(t, rec, &resp)
		if resp != (userRoleResponse{Username: "dave", Role: "customer_user", Domain: "17", Changed: true}) {
			t.Errorf("response = %+v", resp)
		}
		roles, _ := f.resolver.ListRolesForUserInDomain(ctx, "dave", "17")
		if len(roles) != 1 || roles[0] != "customer_user" {
			t.Errorf("dave roles in 17 = %v", roles)
		}
		if ev := f.events.last(); ev["event"] != "user_role" || ev["changed"] != true {
			t.Errorf("event = %v", ev)
		}
	})

	t.Run("repeat grant is a no-op", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/user-role", "carol", `{"username":"dave","role":"customer_user","domain":"17"}`)
		var resp userRoleResponse
		decodeJSON(t, rec, &resp)
		if rec.Code != http.StatusOK || resp.Changed {
			t.Errorf("status = %d, changed = %v; want 200, false", rec.Code, resp.Changed)
		}
	})

	t.Run("grant in foreign domain", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/user-role", "carol", `{"username":"dave","role":"customer_user","domain":"18"}`)
		assertMessage(t, rec, http.StatusForbidden, MessageNotAuthorized)
	})

	t.Run("internal role escalation", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/user-role", "carol", `{"username":"dave","role":"admin","domain":"17"}`)
		assertMessage(t, rec, http.StatusForbidden, MessageNotAuthorized)
		if roles, _ := f.resolver.ListRolesForUserInDomain(ctx, "dave", "17"); len(roles) != 1 {
			t.Errorf("dave roles in 17 = %v, escalation applied", roles)
		}
	})

	t.Run("unknown target", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/user-role", "carol", `{"username":"zed","role":"customer_user","domain":"17"}`)
		assertMessage(t, rec, http.StatusNotFound, "User not found")
	})

	t.Run("revoke in own domain", func(t *testing.T) {
		rec := f.do(t, http.MethodDelete, "/v1/user-role", "carol", `{"username":"dave","role":"customer_user","domain":"17"}`)
		var resp userRoleResponse
		decodeJSON(t, rec, &resp)
		if rec.Code != http.StatusOK || !resp.Changed {
			t.Fatalf("status = %d, resp = %+v", rec.Code, resp)
		}
		if roles, _ := f.resolver.ListRolesForUserInDomain(ctx, "dave", "17"); len(roles) != 0 {
			t.Errorf("dave roles in 17 = %v, want none", roles)
		}
	})

	t.Run("revoke missing grant is a no-op", func(t *testing.T) {
		rec := f.do(t, http.MethodDelete, "/v1/user-role", "carol", `{"username":"dave","role":"customer_user","domain":"17"}`)
		var resp userRoleResponse
		decodeJSON(t, rec, &resp)
		if rec.Code != http.StatusOK || resp.Changed {
			t.Errorf("status = %d, changed = %v; want 200, false", rec.Code, resp.Changed)
		}
	})
}

func TestHandlers_UserRole_RejectsNonRoles(t *testing.T) {
	f := setupHandlers(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"username as role", `{"username":"dave","role":"root","domain":"17"}`, "Unknown role"},
		{"self grant of a username", `{"username":"carol","role":"root","domain":"17"}`, "Unknown role"},
		{"undefined role", `{"username":"dave","role":"superuser","domain":"17"}`, "Unknown role"},
		{"role as target", `{"username":"enduser","role":"customer_admin","domain":"17"}`, "Roles cannot be granted to roles"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/v1/user-role", "carol", tt.body)
			assertMessage(t, rec, http.StatusBadRequest, tt.message)
		})
	}

	for _, sub := range []string{"dave", "carol", "enduser"} {
		grants, err := f.resolver.ListRolesForUserInDomains(ctx, sub)
		if err != nil {
			t.Fatal(err)
		}
		for _, g := range grants {
			if g.Domain == "17" && g.Role != "customer_admin" {
				t.Errorf("%s holds %v after rejected grants", sub, g)
			}
		}
	}
	assertEnforce(t, f.enforcer, "dave", "17", "mra_customers", "D", Attrs{}, false)
	assertEnforce(t, f.enforcer, "carol", "17", "mra_customers", "D", Attrs{}, false)

	// Cleanup of a stray row is still allowed.
	rec := f.do(t, http.MethodDelete, "/v1/user-role", "carol", `{"username":"dave","role":"root","domain":"17"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("revoke status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
}

func TestHandlers_UserRole_Internal(t *testing.T) {
	f := setupHandlers(t)

	// Domain defaults to the global domain.
	rec := f.do(t, http.MethodPost, "/v1/user-role", "root", `{"username":"bob","role":"support"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp userRoleResponse
	decodeJSON(t, rec, &resp)
	if resp.Domain != "0" || !resp.Changed {
		t.Errorf("response = %+v", resp)
	}
	grants, _ := f.resolver.ListRolesForUserInDomains(context.Background(), "bob")
	if f.resolver.GetUserType(grants) != UserTypeInternal {
		t.Errorf("bob user type = %s, want internal", f.resolver.GetUserType(grants))
	}
}

func TestHandlers_UserRole_Denied(t *testing.T) {
	f := setupHandlers(t)

	tests := []struct {
		name string
		user string
		body string
	}{
		{"enduser grants itself", "alice", `{"role":"admin"}`},
		{"anonymous", "", `{"username":"bob","role":"enduser"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/v1/user-role", tt.user, tt.body)
			assertMessage(t, rec, http.StatusForbidden, MessageNotAuthorized)
		})
	}

	rec := f.do(t, http.MethodPost, "/v1/user-role", "root", `{"username":"bad name!","role":"enduser"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid username status = %d, want 400", rec.Code)
	}
}
