// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package database

import (
	"context"
	"fmt"
	"strings"
)

// RuleFieldCount is the number of value columns (v0..v6) in casbin_rule.
const RuleFieldCount = 7

// CasbinRule is one stored policy or grouping tuple.
type CasbinRule struct {
	PType  string
	Values [RuleFieldCount]string
}

// NewCasbinRule builds a rule from a ptype and up to seven values.
// Extra values are an error rather than being silently dropped.
func NewCasbinRule(ptype string, values []string) (CasbinRule, error) {
	if len(values) > RuleFieldCount {
		return CasbinRule{}, fmt.Errorf("rule %s has %d fields, max %d", ptype, len(values), RuleFieldCount)
	}
	r := CasbinRule{PType: ptype}
	copy(r.Values[:], values)
	return r, nil
}

// Fields returns the values with trailing empty fields trimmed.
func (r CasbinRule) Fields() []string {
	n := RuleFieldCount
	for n > 0 && r.Values[n-1] == "" {
		n--
	}
	out := make([]string, n)
	copy(out, r.Values[:n])
	return out
}

func (r CasbinRule) key() string {
	return r.PType + "\x00" + strings.Join(r.Values[:], "\x00")
}

func (r CasbinRule) args() []interface{} {
	args := make([]interface{}, 0, RuleFieldCount+1)
	args = append(args, r.PType)
	for _, v := range r.Values {
		args = append(args, v)
	}
	return args
}

const (
	insertRuleSQL = `INSERT INTO casbin_rule (ptype, v0, v1, v2, v3, v4, v5, v6)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`
	deleteRuleSQL = `DELETE FROM casbin_rule
		WHERE ptype = ? AND v0 = ? AND v1 = ? AND v2 = ? AND v3 = ? AND v4 = ? AND v5 = ? AND v6 = ?`
)

// ListRules returns every stored rule in insertion order.
func (db *DB) ListRules(ctx context.Context) ([]CasbinRule, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT ptype, v0, v1, v2, v3, v4, v5, v6 FROM casbin_rule ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query casbin rules: %w", err)
	}
	defer closeWithLog(rows, "casbin rule rows")

	var rules []CasbinRule
	for rows.Next() {
		var r CasbinRule
		v := &r.Values
		if err := rows.Scan(&r.PType, &v[0], &v[1], &v[2], &v[3], &v[4], &v[5], &v[6]); err != nil {
			return nil, fmt.Errorf("failed to scan casbin rule: %w", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate casbin rules: %w", err)
	}
	return rules, nil
}

// CountRules returns the number of stored rules.
func (db *DB) CountRules(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM casbin_rule`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count casbin rules: %w", err)
	}
	return n, nil
}

// InsertRules stores rules in one transaction. Rules that already exist
// are skipped, so concurrent identical grants produce a single row.
func (db *DB) InsertRules(ctx context.Context, rules []CasbinRule) error {
	if len(rules) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	for _, r := range rules {
		if _, err := tx.ExecContext(ctx, insertRuleSQL, r.args()...); err != nil {
			return fmt.Errorf("failed to insert %s rule: %w", r.PType, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit casbin rules: %w", err)
	}
	return nil
}

// DeleteRules removes exact matches. Missing rules are not an error.
func (db *DB) DeleteRules(ctx context.Context, rules []CasbinRule) error {
	if len(rules) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	for _, r := range rules {
		if _, err := tx.ExecContext(ctx, deleteRuleSQL, r.args()...); err != nil {
			return fmt.Errorf("failed to delete %s rule: %w", r.PType, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit casbin rule deletion: %w", err)
	}
	return nil
}

// DeleteFilteredRules removes rules of ptype whose fields starting at
// fieldIndex equal values. An empty value matches any field content.
// Returns the number of rows removed.
func (db *DB) DeleteFilteredRules(ctx context.Context, ptype string, fieldIndex int, values ...string) (int64, error) {
	if fieldIndex < 0 || fieldIndex+len(values) > RuleFieldCount {
		return 0, fmt.Errorf("invalid filter: index %d with %d values", fieldIndex, len(values))
	}

	var sb strings.Builder
	sb.WriteString(`DELETE FROM casbin_rule WHERE ptype = ?`)
	args := []interface{}{ptype}
	for i, v := range values {
		if v == "" {
			continue
		}
		fmt.Fprintf(&sb, " AND v%d = ?", fieldIndex+i)
		args = append(args, v)
	}

	res, err := db.conn.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete filtered %s rules: %w", ptype, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

// ReplaceRules makes the stored rule set equal to rules. Only the
// difference is written, so unchanged rows keep their ids.
func (db *DB) ReplaceRules(ctx context.Context, rules []CasbinRule) error {
	current, err := db.ListRules(ctx)
	if err != nil {
		return err
	}

	want := make(map[string]bool, len(rules))
	for _, r := range rules {
		want[r.key()] = true
	}
	have := make(map[string]bool, len(current))
	var stale []CasbinRule
	for _, r := range current {
		have[r.key()] = true
		if !want[r.key()] {
			stale = append(stale, r)
		}
	}
	var fresh []CasbinRule
	for _, r := range rules {
		if !have[r.key()] {
			fresh = append(fresh, r)
			have[r.key()] = true
		}
	}

	if err := db.DeleteRules(ctx, stale); err != nil {
		return err
	}
	return db.InsertRules(ctx, fresh)
}
