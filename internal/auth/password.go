// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/warden/internal/config"
)

// DefaultBcryptCost is the production hashing cost.
const DefaultBcryptCost = 12

// maxPasswordBytes is bcrypt's input limit.
const maxPasswordBytes = 72

// ErrWeakPassword wraps every password policy violation.
var ErrWeakPassword = errors.New("password does not meet policy")

// PasswordPolicyError lists the rules a password failed.
type PasswordPolicyError struct {
	Violations []string
}

func (e *PasswordPolicyError) Error() string {
	return fmt.Sprintf("%s: %s", ErrWeakPassword, strings.Join(e.Violations, "; "))
}

// Unwrap makes errors.Is(err, ErrWeakPassword) hold.
func (e *PasswordPolicyError) Unwrap() error {
	return ErrWeakPassword
}

// PasswordPolicy validates and hashes passwords.
type PasswordPolicy struct {
	cfg  config.PasswordPolicyConfig
	cost int

	dummyOnce sync.Once
	dummy     string
}

// NewPasswordPolicy creates a policy. A cost of 0 means DefaultBcryptCost.
func NewPasswordPolicy(cfg config.PasswordPolicyConfig, cost int) *PasswordPolicy {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	return &PasswordPolicy{cfg: cfg, cost: cost}
}

// Validate returns a *PasswordPolicyError listing every violated rule.
func (p *PasswordPolicy) Validate(password string) error {
	var (
		violations                   []string
		upper, lower, digit, special bool
	)
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}

	if n := len([]rune(password)); n < p.cfg.MinLength {
		violations = append(violations, fmt.Sprintf("must be at least %d characters", p.cfg.MinLength))
	}
	if len(password) > maxPasswordBytes {
		violations = append(violations, fmt.Sprintf("must be at most %d bytes", maxPasswordBytes))
	}
	if p.cfg.RequireUppercase && !upper {
		violations = append(violations, "must contain an uppercase letter")
	}
	if p.cfg.RequireLowercase && !lower {
		violations = append(violations, "must contain a lowercase letter")
	}
	if p.cfg.RequireDigit && !digit {
		violations = append(violations, "must contain a digit")
	}
	if p.cfg.RequireSpecial && !special {
		violations = append(violations, "must contain a special character")
	}

	if len(violations) > 0 {
		return &PasswordPolicyError{Violations: violations}
	}
	return nil
}

// Hash validates password and returns its bcrypt hash.
func (p *PasswordPolicy) Hash(password string) (string, error) {
	if err := p.Validate(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash. The comparison is
// constant time.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// dummyHash returns a hash at the policy cost. Logins for unknown users
// compare against it so response time does not reveal whether the account
// exists.
func (p *PasswordPolicy) dummyHash() string {
	p.dummyOnce.Do(func() {
		h, _ := bcrypt.GenerateFromPassword([]byte("warden-timing-equalizer"), p.cost)
		p.dummy = string(h)
	})
	return p.dummy
}
