// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Prometheus metrics for the authorization pipeline.
//
// Metrics Categories:
//   - Decisions: allow/deny counts and latency per user type
//   - Role Management: grants and revocations
//   - Policy: reloads and loaded rule counts
//   - Errors: evaluation failures (not denials)

package authz

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthzDecisionsTotal counts decisions by user type, object, action and outcome.
	AuthzDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_authz_decisions_total",
			Help: "Total number of authorization decisions",
		},
		[]string{"user_type", "object", "action", "decision"},
	)

	// AuthzDecisionDuration tracks decision latency.
	AuthzDecisionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "warden_authz_decision_duration_seconds",
			Help: "Duration of authorization decisions in seconds",
			// Decisions are in-memory; microseconds to milliseconds
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
		[]string{"user_type"},
	)

	// AuthzDeniedTotal tracks denials separately for alerting.
	AuthzDeniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_authz_denied_total",
			Help: "Total number of authorization denials",
		},
		[]string{"user_type", "object", "action"},
	)

	// AuthzRoleChangesTotal counts role grants and revocations.
	AuthzRoleChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_authz_role_changes_total",
			Help: "Total number of role grant changes",
		},
		[]string{"role", "action"}, // action: "assign", "revoke", "revoke_all"
	)

	// AuthzPolicyReloadsTotal counts policy reloads.
	AuthzPolicyReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_authz_policy_reloads_total",
			Help: "Total number of policy reloads",
		},
		[]string{"result"}, // "success", "failure"
	)

	// AuthzPolicyRules tracks the number of loaded policy rules.
	AuthzPolicyRules = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_authz_policy_rules",
			Help: "Current number of policy rules loaded",
		},
	)

	// AuthzGroupingRules tracks the number of loaded role grants and domain links.
	AuthzGroupingRules = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_authz_grouping_rules",
			Help: "Current number of role grants and domain links loaded",
		},
	)

	// AuthzErrorsTotal counts evaluation errors (not denials).
	AuthzErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_authz_errors_total",
			Help: "Total number of authorization evaluation errors",
		},
		[]string{"error_type"}, // "user_lookup", "matcher", "tuple"
	)
)

// RecordAuthzDecision records one decision.
func RecordAuthzDecision(userType UserType, object, action string, allowed bool, duration time.Duration) {
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	obj := normalizeObject(object)
	act := normalizeAction(action)

	AuthzDecisionsTotal.WithLabelValues(string(userType), obj, act, decision).Inc()
	AuthzDecisionDuration.WithLabelValues(string(userType)).Observe(duration.Seconds())
	if !allowed {
		AuthzDeniedTotal.WithLabelValues(string(userType), obj, act).Inc()
	}
}

// RecordAuthzError records an evaluation error.
func RecordAuthzError(errorType string) {
	AuthzErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordRoleChange records a grant change.
func RecordRoleChange(role, action string) {
	AuthzRoleChangesTotal.WithLabelValues(role, action).Inc()
}

// RecordPolicyReload records a reload attempt.
func RecordPolicyReload(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	AuthzPolicyReloadsTotal.WithLabelValues(result).Inc()
}

// SetPolicySize updates the loaded rule gauges.
func SetPolicySize(rules, grouping int) {
	AuthzPolicyRules.Set(float64(rules))
	AuthzGroupingRules.Set(float64(grouping))
}

// normalizeObject keeps label cardinality bounded: client supplied object
// names that are not plain identifiers collapse to "other".
func normalizeObject(object string) string {
	if object == "" || len(object) > 48 {
		return "other"
	}
	for _, c := range object {
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_') {
			return "other"
		}
	}
	return object
}

func normalizeAction(action string) string {
	if ValidAction(action) {
		return action
	}
	return "invalid"
}
