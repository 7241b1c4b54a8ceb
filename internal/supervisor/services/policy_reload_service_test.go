// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingReloader struct {
	calls atomic.Int32
	err   error
}

func (r *countingReloader) Reload(context.Context) error {
	r.calls.Add(1)
	return r.err
}

func TestNewPolicyReloadService_DefaultInterval(t *testing.T) {
	svc := NewPolicyReloadService(&countingReloader{}, 0)
	if svc.interval != time.Minute {
		t.Errorf("interval = %v, want 1m", svc.interval)
	}
	if svc.String() != "policy-reloader" {
		t.Errorf("String() = %q", svc.String())
	}
}

func TestPolicyReloadService_Serve(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"reloads on every tick", nil},
		{"keeps running after a failed reload", errors.New("store unavailable")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &countingReloader{err: tt.err}
			svc := NewPolicyReloadService(r, 10*time.Millisecond)

			ctx, cancel := context.WithCancel(context.Background())
			errCh := make(chan error, 1)
			go func() { errCh <- svc.Serve(ctx) }()

			deadline := time.Now().Add(2 * time.Second)
			for r.calls.Load() < 3 {
				if time.Now().After(deadline) {
					t.Fatalf("reloads = %d, want at least 3", r.calls.Load())
				}
				time.Sleep(5 * time.Millisecond)
			}
			cancel()

			if err := <-errCh; !errors.Is(err, context.Canceled) {
				t.Errorf("Serve() error = %v, want context.Canceled", err)
			}
		})
	}
}
