// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package services

import (
	"context"
	"time"

	"github.com/tomtom215/warden/internal/logging"
)

// PolicyReloader reloads the policy from its store. *authz.Enforcer
// implements it.
type PolicyReloader interface {
	Reload(ctx context.Context) error
}

// PolicyReloadService reloads the policy on an interval so grants written
// by other instances become visible. A failed reload keeps the previous
// policy and is retried on the next tick.
type PolicyReloadService struct {
	reloader PolicyReloader
	interval time.Duration
	name     string
}

// NewPolicyReloadService creates the reloader. A non-positive interval
// means one minute.
func NewPolicyReloadService(reloader PolicyReloader, interval time.Duration) *PolicyReloadService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &PolicyReloadService{
		reloader: reloader,
		interval: interval,
		name:     "policy-reloader",
	}
}

// Serve implements suture.Service.
func (s *PolicyReloadService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger := logging.WithComponent(s.name)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.reloader.Reload(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Warn().Err(err).Msg("Policy reload failed, keeping previous policy")
				continue
			}
			logger.Debug().Msg("Policy reloaded")
		}
	}
}

// String implements fmt.Stringer for suture's logs.
func (s *PolicyReloadService) String() string {
	return s.name
}
