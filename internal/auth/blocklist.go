// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/warden/internal/logging"
)

// ErrBlocklistClosed is returned after Close.
var ErrBlocklistClosed = errors.New("token blocklist is closed")

// Blocklist records revoked token ids until the tokens would have expired
// anyway.
type Blocklist interface {
	// Revoke blocks jti until the given time.
	Revoke(ctx context.Context, entry RevokedToken) error

	// IsRevoked reports whether jti is blocked.
	IsRevoked(ctx context.Context, jti string) (bool, error)

	Close() error
}

// RevokedToken is a blocklist entry.
type RevokedToken struct {
	JTI       string    `json:"jti"`
	Username  string    `json:"username"`
	Reason    string    `json:"reason"`
	RevokedAt time.Time `json:"revoked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

const blocklistPrefix = "revoked:"

// BadgerBlocklist is a BadgerDB-backed blocklist. Entries carry a badger
// TTL so they disappear once the token would have expired.
type BadgerBlocklist struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
}

// OpenBadgerBlocklist opens the blocklist at path. An empty path keeps it
// in memory, which loses revocations on restart.
func OpenBadgerBlocklist(path string) (*BadgerBlocklist, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open token blocklist: %w", err)
	}
	return &BadgerBlocklist{db: db}, nil
}

func blocklistKey(jti string) []byte {
	return []byte(blocklistPrefix + jti)
}

// Revoke implements Blocklist. Tokens that have already expired are not
// stored.
func (b *BadgerBlocklist) Revoke(ctx context.Context, entry RevokedToken) error {
	if err := b.check(ctx); err != nil {
		return err
	}
	if entry.RevokedAt.IsZero() {
		entry.RevokedAt = time.Now()
	}
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal revoked token: %w", err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(blocklistKey(entry.JTI), data).WithTTL(ttl))
	})
	if err != nil {
		BlocklistOperations.WithLabelValues("revoke", "failure").Inc()
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	BlocklistOperations.WithLabelValues("revoke", "success").Inc()
	logging.Ctx(ctx).Debug().
		Str("jti", entry.JTI).
		Str("reason", entry.Reason).
		Time("until", entry.ExpiresAt).
		Msg("Token revoked")
	return nil
}

// IsRevoked implements Blocklist.
func (b *BadgerBlocklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if err := b.check(ctx); err != nil {
		return false, err
	}
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(blocklistKey(jti))
		return err
	})
	switch {
	case err == nil:
		BlocklistOperations.WithLabelValues("check", "revoked").Inc()
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		BlocklistOperations.WithLabelValues("check", "failure").Inc()
		return false, fmt.Errorf("failed to check token: %w", err)
	}
}

// Size returns the number of live entries.
func (b *BadgerBlocklist) Size(ctx context.Context) (int, error) {
	if err := b.check(ctx); err != nil {
		return 0, err
	}
	count := 0
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(blocklistPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// RunGC reclaims value log space. Expired entries are dropped by
// compaction; this only rewrites log files that are mostly garbage.
func (b *BadgerBlocklist) RunGC() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBlocklistClosed
	}
	err := b.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
		return nil
	}
	return err
}

// Close closes the database. Later calls are no-ops.
func (b *BadgerBlocklist) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

func (b *BadgerBlocklist) check(ctx context.Context) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrBlocklistClosed
	}
	return ctx.Err()
}
