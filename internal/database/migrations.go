// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/warden/internal/logging"
)

// Migration represents a versioned database migration.
type Migration struct {
	Version   int
	Name      string
	SQL       string
	AppliedAt time.Time
}

const schemaMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at TIMESTAMP NOT NULL
);
`

// migrations are append-only. Never edit one that has shipped.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_users",
		SQL: `
CREATE SEQUENCE IF NOT EXISTS users_id_seq START 1;
CREATE TABLE IF NOT EXISTS users (
	id BIGINT PRIMARY KEY DEFAULT nextval('users_id_seq'),
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	customer_id TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMP NOT NULL,
	activated_at TIMESTAMP,
	password_changed_at TIMESTAMP
);`,
	},
	{
		Version: 2,
		Name:    "create_casbin_rule",
		SQL: `
CREATE SEQUENCE IF NOT EXISTS casbin_rule_id_seq START 1;
CREATE TABLE IF NOT EXISTS casbin_rule (
	id BIGINT PRIMARY KEY DEFAULT nextval('casbin_rule_id_seq'),
	ptype TEXT NOT NULL,
	v0 TEXT NOT NULL DEFAULT '',
	v1 TEXT NOT NULL DEFAULT '',
	v2 TEXT NOT NULL DEFAULT '',
	v3 TEXT NOT NULL DEFAULT '',
	v4 TEXT NOT NULL DEFAULT '',
	v5 TEXT NOT NULL DEFAULT '',
	v6 TEXT NOT NULL DEFAULT '',
	UNIQUE (ptype, v0, v1, v2, v3, v4, v5, v6)
);`,
	},
	{
		Version: 3,
		Name:    "create_activation_codes",
		SQL: `
CREATE SEQUENCE IF NOT EXISTS activation_codes_id_seq START 1;
CREATE TABLE IF NOT EXISTS activation_codes (
	id BIGINT PRIMARY KEY DEFAULT nextval('activation_codes_id_seq'),
	user_id BIGINT NOT NULL,
	purpose TEXT NOT NULL,
	code_hash TEXT NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	expires_at TIMESTAMP NOT NULL,
	consumed_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_activation_codes_user ON activation_codes (user_id, purpose);`,
	},
}

// getAppliedMigrations returns the set of applied migration versions
func (db *DB) getAppliedMigrations(ctx context.Context) (map[int]bool, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer closeWithLog(rows, "migration rows")

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// runVersionedMigrations executes migrations that have not been applied yet.
func (db *DB) runVersionedMigrations(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, schemaMigrationsTable); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := db.getAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if _, err := db.conn.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("failed to execute migration v%d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := db.conn.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`, m.Version, m.Name, time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to record migration v%d: %w", m.Version, err)
		}
		logging.Info().Int("version", m.Version).Str("name", m.Name).Msg("Applied database migration")
	}
	return nil
}

// SchemaVersion returns the highest applied migration version.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := db.conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}
