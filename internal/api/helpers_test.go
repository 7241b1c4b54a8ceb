// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/warden/internal/audit"
	"github.com/tomtom215/warden/internal/auth"
	"github.com/tomtom215/warden/internal/authz"
	"github.com/tomtom215/warden/internal/config"
	"github.com/tomtom215/warden/internal/database"
	"github.com/tomtom215/warden/internal/mail"
)

const testPassword = "password123"

func testConfig() *config.Config {
	return &config.Config{
		Security: config.SecurityConfig{
			JWTSecret:         "test-secret-with-at-least-32-characters!!",
			TokenTTL:          time.Hour,
			Issuer:            "warden-test",
			LoginRate:         60,
			LoginBurst:        5,
			RateLimitDisabled: true,
			Password: config.PasswordPolicyConfig{
				MinLength:    8,
				RequireDigit: true,
			},
		},
		Authz: config.AuthzConfig{
			GlobalDomain:   "0",
			DefaultRole:    "enduser",
			PublicSubject:  "public",
			PublicRole:     "public",
			ReloadInterval: time.Minute,
			StoreTimeout:   time.Second,
			OwnerColumns: map[string]string{
				"mra_users": "user_id",
			},
			DomainColumns: map[string]string{
				"casbin_rule":   "v2",
				"mra_customers": "customer_id",
				"mra_users":     "customer_id",
				"event_log":     "domain",
			},
			UserTypes: config.UserTypeConfig{
				InternalRoles: []string{"admin", "support"},
				CustomerRoles: []string{"customer_admin", "customer_user"},
			},
		},
		Activation: config.ActivationConfig{
			CodeLength:  6,
			CodeTTL:     time.Hour,
			ResetTTL:    time.Hour,
			MaxAttempts: 3,
		},
		Audit: config.AuditConfig{Enabled: true, BufferSize: 64},
	}
}

var testDBMutex sync.Mutex

func setupDB(t *testing.T) *database.DB {
	t.Helper()
	testDBMutex.Lock()
	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "256MB", Threads: 1})
	testDBMutex.Unlock()
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// apiFixture is the whole HTTP stack over an in-memory database.
type apiFixture struct {
	db       *database.DB
	enforcer *authz.Enforcer
	resolver *authz.RoleResolver
	svc      *auth.Service
	mailer   *mail.Recorder
	events   *audit.Logger
	store    *audit.MemoryStore
	router   http.Handler
}

func setupAPI(t *testing.T) *apiFixture {
	t.Helper()
	cfg := testConfig()
	f := &apiFixture{db: setupDB(t), mailer: &mail.Recorder{}}

	var err error
	f.enforcer, err = authz.NewEnforcer(context.Background(), &cfg.Authz,
		authz.NewAdapter(f.db, cfg.Authz.StoreTimeout), authz.WithUserLookup(f.db))
	if err != nil {
		t.Fatalf("NewEnforcer() error = %v", err)
	}
	t.Cleanup(func() { _ = f.enforcer.Close() })
	f.resolver = authz.NewRoleResolver(f.enforcer)

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		t.Fatalf("NewJWTManager() error = %v", err)
	}
	blocklist, err := auth.OpenBadgerBlocklist("")
	if err != nil {
		t.Fatalf("OpenBadgerBlocklist() error = %v", err)
	}
	t.Cleanup(func() { _ = blocklist.Close() })

	f.svc = auth.NewService(cfg, f.db, f.db, f.resolver, f.mailer, jwtManager, blocklist, auth.WithBcryptCost(4))

	f.store = audit.NewMemoryStore(0)
	f.events = audit.NewLogger(f.store, cfg.Audit)
	t.Cleanup(func() { _ = f.events.Close() })

	authzMW := authz.NewMiddleware(f.enforcer, f.events)
	f.router = NewRouter(RouterDeps{
		Health:        NewHandler(f.db, f.enforcer, "test"),
		Accounts:      NewAccountHandlers(f.svc, f.resolver, f.events, cfg.Authz.GlobalDomain, false),
		Events:        NewEventHandlers(f.events, cfg.Authz.GlobalDomain),
		AuthzHandlers: authz.NewHandlers(f.enforcer, f.resolver, authzMW, f.db, f.events),
		Authz:         authzMW,
		Auth:          auth.NewMiddleware(jwtManager, blocklist),
		ChiMiddleware: NewChiMiddleware(ChiMiddlewareConfigFromSecurity(&cfg.Security)),
	}).SetupChi()
	return f
}

// do sends a request with an optional bearer token and JSON body.
func (f *apiFixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

var codePattern = regexp.MustCompile(`code is (\d+)`)

func (f *apiFixture) mailedCode(t *testing.T, addr string) string {
	t.Helper()
	msg, ok := f.mailer.Last(addr)
	if !ok {
		t.Fatalf("no mail sent to %s", addr)
	}
	m := codePattern.FindStringSubmatch(msg.Body)
	if m == nil {
		t.Fatalf("no code in mail body %q", msg.Body)
	}
	return m[1]
}

// activeUser registers and activates username through the service.
func (f *apiFixture) activeUser(t *testing.T, username string) *database.User {
	t.Helper()
	ctx := context.Background()
	email := username + "@example.com"
	u, err := f.svc.Register(ctx, auth.RegisterInput{Username: username, Email: email, Password: testPassword})
	if err != nil {
		t.Fatalf("Register(%s) error = %v", username, err)
	}
	if err := f.svc.Activate(ctx, username, f.mailedCode(t, email)); err != nil {
		t.Fatalf("Activate(%s) error = %v", username, err)
	}
	return u
}

// grant adds a role for username in domain.
func (f *apiFixture) grant(t *testing.T, username, role, domain string) {
	t.Helper()
	if _, err := f.resolver.AddRoleForUserInDomain(context.Background(), username, role, domain); err != nil {
		t.Fatalf("AddRoleForUserInDomain(%s, %s, %s) error = %v", username, role, domain, err)
	}
}

// login returns a bearer token for username.
func (f *apiFixture) login(t *testing.T, username string) string {
	t.Helper()
	res, err := f.svc.Login(context.Background(), username, testPassword)
	if err != nil {
		t.Fatalf("Login(%s) error = %v", username, err)
	}
	return res.Token
}

// waitForEvents waits until the async event writer has stored n events.
func (f *apiFixture) waitForEvents(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for f.store.Len() < n {
		if time.Now().After(deadline) {
			t.Fatalf("event log has %d events, want at least %d", f.store.Len(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// envelope is the decoded APIResponse with raw data.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
	Meta *APIMeta `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, status int) envelope {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return env
}

func decodeData(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
}

func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	env := decodeEnvelope(t, rec, status)
	if env.Success || env.Error == nil {
		t.Fatalf("body = %s, want error envelope", rec.Body.String())
	}
	if env.Error.Code != code {
		t.Errorf("error code = %s, want %s", env.Error.Code, code)
	}
}

// requestWithSubject returns a request authenticated as subject. A nil
// subject leaves the request anonymous.
func requestWithSubject(subject *auth.AuthSubject) *http.Request {
	req := httptest.NewRequest(http.MethodDelete, "/v1/deregister", nil)
	if subject != nil {
		req = req.WithContext(auth.ContextWithAuthSubject(req.Context(), subject))
	}
	return req
}
