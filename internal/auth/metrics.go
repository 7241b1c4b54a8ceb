// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoginAttempts counts login attempts.
	// Labels:
	//   - outcome: "success", "invalid", "inactive", "throttled", "error"
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_auth_login_attempts_total",
			Help: "Total number of login attempts",
		},
		[]string{"outcome"},
	)

	// AccountEvents counts account lifecycle operations.
	// Labels:
	//   - event: "register", "activate", "resend", "password_reset", "password_change", "deregister", "logout"
	//   - outcome: "success", "failure"
	AccountEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_auth_account_events_total",
			Help: "Total number of account lifecycle operations",
		},
		[]string{"event", "outcome"},
	)

	// TokenValidations counts bearer token checks by the middleware.
	// Labels:
	//   - outcome: "valid", "invalid", "expired", "revoked", "error"
	TokenValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_auth_token_validations_total",
			Help: "Total number of bearer token validations",
		},
		[]string{"outcome"},
	)

	// BlocklistOperations counts token blocklist operations.
	BlocklistOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_auth_blocklist_operations_total",
			Help: "Total number of token blocklist operations",
		},
		[]string{"operation", "outcome"},
	)
)

func recordAccountEvent(event string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	AccountEvents.WithLabelValues(event, outcome).Inc()
}
