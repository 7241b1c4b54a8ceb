// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package database

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// UserIDLookup resolves a username to its numeric id.
type UserIDLookup interface {
	GetUserIDByUsername(ctx context.Context, username string) (int64, bool, error)
}

// CachedDirectory memoizes username -> id lookups. Ids never change for a
// username while the account exists, so the only invalidation needed is
// on deletion. Misses are not cached.
type CachedDirectory struct {
	source UserIDLookup
	cache  *lru.Cache[string, int64]
}

// NewCachedDirectory wraps source with an LRU of the given size.
func NewCachedDirectory(source UserIDLookup, size int) (*CachedDirectory, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, int64](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create user id cache: %w", err)
	}
	return &CachedDirectory{source: source, cache: cache}, nil
}

// GetUserIDByUsername implements UserIDLookup.
func (d *CachedDirectory) GetUserIDByUsername(ctx context.Context, username string) (int64, bool, error) {
	if id, ok := d.cache.Get(username); ok {
		return id, true, nil
	}
	id, found, err := d.source.GetUserIDByUsername(ctx, username)
	if err != nil || !found {
		return id, found, err
	}
	d.cache.Add(username, id)
	return id, true, nil
}

// Forget drops a cached entry. Call after deleting the user.
func (d *CachedDirectory) Forget(username string) {
	d.cache.Remove(username)
}

// Len returns the number of cached entries.
func (d *CachedDirectory) Len() int {
	return d.cache.Len()
}
