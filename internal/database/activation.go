// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package database

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CodePurpose distinguishes account activation codes from password reset codes.
type CodePurpose string

const (
	PurposeActivation    CodePurpose = "activation"
	PurposePasswordReset CodePurpose = "password_reset"
)

var (
	// ErrCodeInvalid is returned when no live code matches.
	ErrCodeInvalid = errors.New("invalid code")

	// ErrCodeExpired is returned when the latest code has expired.
	ErrCodeExpired = errors.New("code expired")

	// ErrCodeLocked is returned once the attempt limit has been reached.
	ErrCodeLocked = errors.New("too many attempts")
)

// CreateCode stores a new code hash for the user and purpose. Earlier
// unconsumed codes for the same purpose are invalidated.
func (db *DB) CreateCode(ctx context.Context, userID int64, purpose CodePurpose, codeHash string, ttl time.Duration) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE activation_codes SET consumed_at = ?
		WHERE user_id = ? AND purpose = ? AND consumed_at IS NULL`, now, userID, string(purpose)); err != nil {
		return fmt.Errorf("failed to invalidate previous codes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO activation_codes (user_id, purpose, code_hash, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)`, userID, string(purpose), codeHash, now, now.Add(ttl)); err != nil {
		return fmt.Errorf("failed to store code: %w", err)
	}
	return tx.Commit()
}

// ConsumeCode checks codeHash against the user's live code for purpose.
// A match consumes the code. A mismatch counts an attempt; after
// maxAttempts the code is locked and ErrCodeLocked is returned.
func (db *DB) ConsumeCode(ctx context.Context, userID int64, purpose CodePurpose, codeHash string, maxAttempts int) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	var (
		id       int64
		stored   string
		attempts int
		expires  time.Time
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, code_hash, attempts, expires_at FROM activation_codes
		WHERE user_id = ? AND purpose = ? AND consumed_at IS NULL
		ORDER BY id DESC LIMIT 1`, userID, string(purpose)).Scan(&id, &stored, &attempts, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrCodeInvalid
	}
	if err != nil {
		return fmt.Errorf("failed to load code: %w", err)
	}

	switch {
	case attempts >= maxAttempts:
		return ErrCodeLocked
	case time.Now().UTC().After(expires):
		return ErrCodeExpired
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(codeHash)) != 1 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE activation_codes SET attempts = attempts + 1 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to record attempt: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit attempt: %w", err)
		}
		if attempts+1 >= maxAttempts {
			return ErrCodeLocked
		}
		return ErrCodeInvalid
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE activation_codes SET consumed_at = ? WHERE id = ?`, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to consume code: %w", err)
	}
	return tx.Commit()
}

// PurgeCodes deletes codes that were consumed or expired before cutoff.
func (db *DB) PurgeCodes(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		DELETE FROM activation_codes
		WHERE expires_at < ? OR (consumed_at IS NOT NULL AND consumed_at < ?)`, cutoff, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge codes: %w", err)
	}
	return res.RowsAffected()
}
