// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// User is a registered account.
type User struct {
	ID                int64      `json:"id"`
	Username          string     `json:"username"`
	Email             string     `json:"email"`
	PasswordHash      string     `json:"-"`
	CustomerID        string     `json:"customer_id,omitempty"`
	Active            bool       `json:"active"`
	CreatedAt         time.Time  `json:"created_at"`
	ActivatedAt       *time.Time `json:"activated_at,omitempty"`
	PasswordChangedAt *time.Time `json:"-"`
}

const userColumns = `id, username, email, password_hash, customer_id, active, created_at, activated_at, password_changed_at`

func scanUser(scanner interface {
	Scan(dest ...interface{}) error
}) (*User, error) {
	u := &User{}
	var activatedAt, changedAt sql.NullTime
	err := scanner.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CustomerID,
		&u.Active, &u.CreatedAt, &activatedAt, &changedAt)
	if err != nil {
		return nil, err
	}
	if activatedAt.Valid {
		u.ActivatedAt = &activatedAt.Time
	}
	if changedAt.Valid {
		u.PasswordChangedAt = &changedAt.Time
	}
	return u, nil
}

// CreateUser inserts the user and fills in ID and CreatedAt.
// Returns ErrDuplicate when the username or email is taken.
func (db *DB) CreateUser(ctx context.Context, u *User) error {
	row := db.conn.QueryRowContext(ctx, `
		INSERT INTO users (username, email, password_hash, customer_id, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id, created_at`,
		u.Username, u.Email, u.PasswordHash, u.CustomerID, u.Active, time.Now().UTC())
	if err := row.Scan(&u.ID, &u.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %q: %w", u.Username, ErrDuplicate)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (db *DB) getUserBy(ctx context.Context, column string, value interface{}) (*User, error) {
	// column is always one of the fixed names passed by the exported getters
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = ?`
	u, err := scanUser(db.conn.QueryRowContext(ctx, query, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by %s: %w", column, err)
	}
	return u, nil
}

// GetUserByID returns the user with the given id or ErrNotFound.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*User, error) {
	return db.getUserBy(ctx, "id", id)
}

// GetUserByUsername returns the user with the given username or ErrNotFound.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return db.getUserBy(ctx, "username", username)
}

// GetUserByEmail returns the user with the given email or ErrNotFound.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return db.getUserBy(ctx, "email", email)
}

// GetUserIDByUsername resolves a username to its id. found is false when
// no such user exists; err is only set for storage failures.
func (db *DB) GetUserIDByUsername(ctx context.Context, username string) (id int64, found bool, err error) {
	err = db.conn.QueryRowContext(ctx, `SELECT id FROM users WHERE username = ?`, username).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to resolve user id: %w", err)
	}
	return id, true, nil
}

// ActivateUser marks the user active. Activating an active user is a no-op.
func (db *DB) ActivateUser(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE users SET active = true, activated_at = COALESCE(activated_at, ?)
		WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to activate user: %w", err)
	}
	return requireAffected(res)
}

// UpdatePassword replaces the password hash and stamps password_changed_at.
func (db *DB) UpdatePassword(ctx context.Context, id int64, hash string) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE users SET password_hash = ?, password_changed_at = ?
		WHERE id = ?`, hash, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return requireAffected(res)
}

// DeleteUser removes the user and any outstanding codes.
func (db *DB) DeleteUser(ctx context.Context, id int64) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	if _, err := tx.ExecContext(ctx, `DELETE FROM activation_codes WHERE user_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete activation codes: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	return tx.Commit()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
