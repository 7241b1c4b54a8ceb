// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package authz

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// ErrInvalidModel is returned when a model file does not describe the
// domain-scoped request shape this package evaluates.
var ErrInvalidModel = errors.New("invalid authorization model")

// LoadModel compiles the policy model at path, or the embedded model when
// path is empty.
func LoadModel(path string) (model.Model, error) {
	var (
		m   model.Model
		err error
	)
	if path != "" {
		m, err = model.NewModelFromFile(path)
	} else {
		m, err = model.NewModelFromString(embeddedModel)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	if err := validateModel(m); err != nil {
		return nil, err
	}
	return m, nil
}

// validateModel checks the sections the matcher relies on:
// r = sub, dom, obj, act, attrs; p with at least four fields;
// g with a domain; optional g2 with two fields.
func validateModel(m model.Model) error {
	r, err := m.GetAssertion("r", "r")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	if len(r.Tokens) != 5 {
		return fmt.Errorf("%w: request definition needs 5 fields, has %d", ErrInvalidModel, len(r.Tokens))
	}

	p, err := m.GetAssertion("p", "p")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	if len(p.Tokens) < 4 {
		return fmt.Errorf("%w: policy definition needs 4 fields, has %d", ErrInvalidModel, len(p.Tokens))
	}

	g, err := m.GetAssertion("g", "g")
	if err != nil {
		return fmt.Errorf("%w: missing role definition g", ErrInvalidModel)
	}
	if n := strings.Count(g.Value, "_"); n != 3 {
		return fmt.Errorf("%w: role definition g must be domain scoped (_, _, _)", ErrInvalidModel)
	}

	if hasDomainLinks(m) {
		g2, _ := m.GetAssertion("g", "g2")
		if n := strings.Count(g2.Value, "_"); n != 2 {
			return fmt.Errorf("%w: role definition g2 must be (_, _)", ErrInvalidModel)
		}
	}
	return nil
}

// hasDomainLinks reports whether the model declares g2 domain bridges.
func hasDomainLinks(m model.Model) bool {
	_, ok := m["g"]["g2"]
	return ok
}

// readSeedPolicy returns the seed rules from path, or the embedded policy
// when path is empty. Each rule is returned as ptype followed by values.
func readSeedPolicy(path string) ([][]string, error) {
	text := embeddedPolicy
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read seed policy: %w", err)
		}
		text = string(data)
	}
	return parsePolicyText(text)
}

// parsePolicyText parses CSV policy lines into rules, skipping blanks and
// comments. Lines are validated against a scratch model so malformed rules
// fail before anything reaches storage.
func parsePolicyText(text string) ([][]string, error) {
	scratch, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, err
	}

	var rules [][]string
	for n, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) < 3 {
			return nil, fmt.Errorf("policy line %d: too few fields", n+1)
		}
		if err := persist.LoadPolicyArray(parts, scratch); err != nil {
			return nil, fmt.Errorf("policy line %d: %w", n+1, err)
		}
		rules = append(rules, parts)
	}
	return rules, nil
}
