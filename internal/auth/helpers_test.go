// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package auth

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/warden/internal/config"
	"github.com/tomtom215/warden/internal/database"
	"github.com/tomtom215/warden/internal/mail"
)

const testSecret = "test-secret-with-at-least-32-characters!!"

// testBcryptCost keeps hashing fast in tests.
const testBcryptCost = 4

func testConfig() *config.Config {
	return &config.Config{
		Security: config.SecurityConfig{
			JWTSecret:  testSecret,
			TokenTTL:   time.Hour,
			Issuer:     "warden-test",
			LoginRate:  60,
			LoginBurst: 3,
			Password: config.PasswordPolicyConfig{
				MinLength:        8,
				RequireLowercase: true,
				RequireDigit:     true,
			},
		},
		Authz: config.AuthzConfig{
			GlobalDomain:  "0",
			DefaultRole:   "enduser",
			PublicSubject: "public",
		},
		Activation: config.ActivationConfig{
			CodeLength:  6,
			CodeTTL:     time.Hour,
			ResetTTL:    time.Hour,
			MaxAttempts: 3,
		},
	}
}

func setupJWT(t *testing.T) *JWTManager {
	t.Helper()
	m, err := NewJWTManager(&testConfig().Security)
	if err != nil {
		t.Fatalf("NewJWTManager() error = %v", err)
	}
	return m
}

func setupBlocklist(t *testing.T) *BadgerBlocklist {
	t.Helper()
	bl, err := OpenBadgerBlocklist("")
	if err != nil {
		t.Fatalf("OpenBadgerBlocklist() error = %v", err)
	}
	t.Cleanup(func() { _ = bl.Close() })
	return bl
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

// fakeGranter records role grants in memory.
type fakeGranter struct {
	mu     sync.Mutex
	grants map[string]map[string]string // user -> domain -> role
	err    error
}

func newFakeGranter() *fakeGranter {
	return &fakeGranter{grants: make(map[string]map[string]string)}
}

func (g *fakeGranter) AddRoleForUserInDomain(_ context.Context, user, role, domain string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return false, g.err
	}
	if g.grants[user] == nil {
		g.grants[user] = make(map[string]string)
	}
	if g.grants[user][domain] == role {
		return false, nil
	}
	g.grants[user][domain] = role
	return true, nil
}

func (g *fakeGranter) RemoveRolesForUserInAllDomains(_ context.Context, user string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return false, g.err
	}
	_, ok := g.grants[user]
	delete(g.grants, user)
	return ok, nil
}

func (g *fakeGranter) role(user, domain string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.grants[user][domain]
}

// reservedNames reserves the listed names, ignoring case.
type reservedNames []string

func (r reservedNames) IsReservedName(name string) bool {
	for _, n := range r {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

type forgetRecorder struct {
	mu        sync.Mutex
	forgotten []string
}

func (f *forgetRecorder) Forget(username string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten = append(f.forgotten, username)
}

type serviceFixture struct {
	svc       *Service
	db        *database.DB
	mailer    *mail.Recorder
	roles     *fakeGranter
	blocklist *BadgerBlocklist
	jwt       *JWTManager
	cache     *forgetRecorder
}

func setupService(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		db:        setupDB(t),
		mailer:    &mail.Recorder{},
		roles:     newFakeGranter(),
		blocklist: setupBlocklist(t),
		jwt:       setupJWT(t),
		cache:     &forgetRecorder{},
	}
	f.svc = NewService(testConfig(), f.db, f.db, f.roles, f.mailer, f.jwt, f.blocklist,
		WithBcryptCost(testBcryptCost), WithUserCache(f.cache))
	return f
}

var codePattern = regexp.MustCompile(`code is (\d+)`)

// mailedCode extracts the one-time code from the last message to addr.
func (f *serviceFixture) mailedCode(t *testing.T, addr string) string {
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

// activeUser registers and activates an account.
func (f *serviceFixture) activeUser(t *testing.T, username string) *database.User {
	t.Helper()
	ctx := context.Background()
	email := username + "@example.com"
	u, err := f.svc.Register(ctx, RegisterInput{Username: username, Email: email, Password: "password123"})
	if err != nil {
		t.Fatalf("Register(%s) error = %v", username, err)
	}
	if err := f.svc.Activate(ctx, username, f.mailedCode(t, email)); err != nil {
		t.Fatalf("Activate(%s) error = %v", username, err)
	}
	return u
}
