// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LoginThrottle limits login attempts per username with a token bucket.
// It complements the per-IP limit applied by the router.
type LoginThrottle struct {
	mu       sync.Mutex
	limiters map[string]*throttleEntry
	limit    rate.Limit
	burst    int
	idle     time.Duration
}

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLoginThrottle allows perMinute sustained attempts with the given burst.
func NewLoginThrottle(perMinute float64, burst int) *LoginThrottle {
	if burst < 1 {
		burst = 1
	}
	return &LoginThrottle{
		limiters: make(map[string]*throttleEntry),
		limit:    rate.Limit(perMinute / 60),
		burst:    burst,
		idle:     30 * time.Minute,
	}
}

// Allow reports whether an attempt for username may proceed.
func (t *LoginThrottle) Allow(username string) bool {
	key := strings.ToLower(username)

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.limiters[key]
	if !ok {
		e = &throttleEntry{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.limiters[key] = e
	}
	e.lastSeen = time.Now()
	return e.limiter.Allow()
}

// Reset forgets the attempts for username after a successful login.
func (t *LoginThrottle) Reset(username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.limiters, strings.ToLower(username))
}

// Cleanup drops limiters idle for longer than the idle window and returns
// how many were dropped.
func (t *LoginThrottle) Cleanup() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-t.idle)
	n := 0
	for k, e := range t.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(t.limiters, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked usernames.
func (t *LoginThrottle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.limiters)
}

// StartCleanup runs Cleanup every interval until ctx is done.
func (t *LoginThrottle) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.Cleanup()
			}
		}
	}()
}
