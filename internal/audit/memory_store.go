// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package audit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a fixed-capacity ring of events for tests and
// single-process development. A full ring overwrites its oldest entry.
type MemoryStore struct {
	mu   sync.RWMutex
	ring []Event
	head int // index of the oldest event
	n    int
}

// NewMemoryStore creates a store holding at most capacity events.
// A non-positive capacity means 10000.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 10000
	}
	return &MemoryStore{ring: make([]Event, capacity)}
}

// at returns the i-th oldest event. Callers hold mu.
func (s *MemoryStore) at(i int) *Event {
	return &s.ring[(s.head+i)%len(s.ring)]
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.n == len(s.ring) {
		s.ring[s.head] = *event
		s.head = (s.head + 1) % len(s.ring)
		return nil
	}
	*s.at(s.n) = *event
	s.n++
	return nil
}

// Query implements Store. Events come back newest first in insertion
// order, which for the Logger is also timestamp order.
func (s *MemoryStore) Query(_ context.Context, filter QueryFilter) ([]Event, error) {
	filter.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := []Event{}
	skip := filter.Offset
	for i := s.n - 1; i >= 0 && len(results) < filter.Limit; i-- {
		e := s.at(i)
		if !filter.matches(e) {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		results = append(results, *e)
	}
	return results, nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context, filter QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for i := 0; i < s.n; i++ {
		if filter.matches(s.at(i)) {
			count++
		}
	}
	return count, nil
}

// Delete implements Store. Survivors are compacted to the front of the
// ring in their original order.
func (s *MemoryStore) Delete(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]Event, len(s.ring))
	k := 0
	for i := 0; i < s.n; i++ {
		if e := s.at(i); !e.Timestamp.Before(olderThan) {
			kept[k] = *e
			k++
		}
	}
	deleted := int64(s.n - k)
	s.ring, s.head, s.n = kept, 0, k
	return deleted, nil
}

// Len returns the number of stored events.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.n
}
