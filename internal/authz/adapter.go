// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"

	"github.com/tomtom215/warden/internal/database"
)

// ErrNoAdapter is returned when an enforcer is built without a rule store.
var ErrNoAdapter = errors.New("no policy adapter configured")

// RuleStore is the durable storage behind the adapter.
// *database.DB implements it.
type RuleStore interface {
	ListRules(ctx context.Context) ([]database.CasbinRule, error)
	CountRules(ctx context.Context) (int, error)
	InsertRules(ctx context.Context, rules []database.CasbinRule) error
	DeleteRules(ctx context.Context, rules []database.CasbinRule) error
	DeleteFilteredRules(ctx context.Context, ptype string, fieldIndex int, values ...string) (int64, error)
	ReplaceRules(ctx context.Context, rules []database.CasbinRule) error
}

// Adapter persists policy and role tuples in the casbin_rule table.
// Every storage call runs under the configured store timeout.
type Adapter struct {
	store   RuleStore
	timeout time.Duration
}

var (
	_ persist.Adapter      = (*Adapter)(nil)
	_ persist.BatchAdapter = (*Adapter)(nil)
)

// NewAdapter creates an adapter over store. A zero timeout means five seconds.
func NewAdapter(store RuleStore, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Adapter{store: store, timeout: timeout}
}

func (a *Adapter) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), a.timeout)
}

// LoadPolicy loads all stored rules into m.
func (a *Adapter) LoadPolicy(m model.Model) error {
	ctx, cancel := a.context()
	defer cancel()

	rules, err := a.store.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to load policy: %w", err)
	}
	for _, r := range rules {
		line := append([]string{r.PType}, r.Fields()...)
		if err := persist.LoadPolicyArray(line, m); err != nil {
			return fmt.Errorf("failed to load rule %v: %w", line, err)
		}
	}
	return nil
}

// SavePolicy replaces the stored rules with the rules held in m.
func (a *Adapter) SavePolicy(m model.Model) error {
	var rules []database.CasbinRule
	for _, sec := range []string{"p", "g"} {
		for ptype, ast := range m[sec] {
			for _, values := range ast.Policy {
				r, err := database.NewCasbinRule(ptype, values)
				if err != nil {
					return err
				}
				rules = append(rules, r)
			}
		}
	}

	ctx, cancel := a.context()
	defer cancel()
	if err := a.store.ReplaceRules(ctx, rules); err != nil {
		return fmt.Errorf("failed to save policy: %w", err)
	}
	return nil
}

// AddPolicy stores one rule. Storing an existing rule is a no-op.
func (a *Adapter) AddPolicy(_ string, ptype string, rule []string) error {
	return a.AddPolicies("", ptype, [][]string{rule})
}

// AddPolicies stores rules in one transaction.
func (a *Adapter) AddPolicies(_ string, ptype string, rules [][]string) error {
	batch, err := toCasbinRules(ptype, rules)
	if err != nil {
		return err
	}

	ctx, cancel := a.context()
	defer cancel()
	if err := a.store.InsertRules(ctx, batch); err != nil {
		return fmt.Errorf("failed to add %s rules: %w", ptype, err)
	}
	return nil
}

// RemovePolicy deletes one rule. Deleting a missing rule is a no-op.
func (a *Adapter) RemovePolicy(_ string, ptype string, rule []string) error {
	return a.RemovePolicies("", ptype, [][]string{rule})
}

// RemovePolicies deletes rules in one transaction.
func (a *Adapter) RemovePolicies(_ string, ptype string, rules [][]string) error {
	batch, err := toCasbinRules(ptype, rules)
	if err != nil {
		return err
	}

	ctx, cancel := a.context()
	defer cancel()
	if err := a.store.DeleteRules(ctx, batch); err != nil {
		return fmt.Errorf("failed to remove %s rules: %w", ptype, err)
	}
	return nil
}

// RemoveFilteredPolicy deletes rules whose fields from fieldIndex on match
// fieldValues. Empty values match anything.
func (a *Adapter) RemoveFilteredPolicy(_ string, ptype string, fieldIndex int, fieldValues ...string) error {
	ctx, cancel := a.context()
	defer cancel()
	if _, err := a.store.DeleteFilteredRules(ctx, ptype, fieldIndex, fieldValues...); err != nil {
		return fmt.Errorf("failed to remove filtered %s rules: %w", ptype, err)
	}
	return nil
}

// Seed writes rules through the adapter when the store is empty.
// It reports whether anything was written.
func (a *Adapter) Seed(rules [][]string) (bool, error) {
	ctx, cancel := a.context()
	defer cancel()

	n, err := a.store.CountRules(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to count rules: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	batch := make([]database.CasbinRule, 0, len(rules))
	for _, line := range rules {
		r, err := database.NewCasbinRule(line[0], line[1:])
		if err != nil {
			return false, err
		}
		batch = append(batch, r)
	}
	if err := a.store.InsertRules(ctx, batch); err != nil {
		return false, fmt.Errorf("failed to seed policy: %w", err)
	}
	return true, nil
}

func toCasbinRules(ptype string, rules [][]string) ([]database.CasbinRule, error) {
	out := make([]database.CasbinRule, 0, len(rules))
	for _, values := range rules {
		r, err := database.NewCasbinRule(ptype, values)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
