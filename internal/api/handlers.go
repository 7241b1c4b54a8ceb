// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package api

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/tomtom215/warden/internal/authz"
)

// Pinger checks a dependency is reachable. *database.DB implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PolicyState reports the enforcer's state. *authz.Enforcer implements it.
type PolicyState interface {
	Closed() bool
	Rules() []authz.Rule
}

// Handler serves the health endpoints.
type Handler struct {
	db        Pinger
	policy    PolicyState
	version   string
	startTime time.Time
	draining  atomic.Bool
}

// NewHandler creates the health handler.
func NewHandler(db Pinger, policy PolicyState, version string) *Handler {
	return &Handler{
		db:        db,
		policy:    policy,
		version:   version,
		startTime: time.Now(),
	}
}

// SetDraining marks the server as shutting down. Readiness fails while
// draining so load balancers stop routing new requests here.
func (h *Handler) SetDraining(draining bool) {
	h.draining.Store(draining)
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status            string  `json:"status"`
	Version           string  `json:"version"`
	DatabaseConnected bool    `json:"database_connected"`
	PolicyLoaded      bool    `json:"policy_loaded"`
	PolicyRules       int     `json:"policy_rules"`
	Uptime            float64 `json:"uptime_seconds"`
}

func (h *Handler) status(ctx context.Context) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	s := HealthStatus{
		Status:            "healthy",
		Version:           h.version,
		DatabaseConnected: h.db != nil && h.db.Ping(ctx) == nil,
		PolicyLoaded:      h.policy != nil && !h.policy.Closed(),
		Uptime:            time.Since(h.startTime).Seconds(),
	}
	if s.PolicyLoaded {
		s.PolicyRules = len(h.policy.Rules())
	}
	switch {
	case h.draining.Load():
		s.Status = "draining"
	case !s.DatabaseConnected || !s.PolicyLoaded:
		s.Status = "degraded"
	}
	return s
}

// Health handles GET /health. It always answers 200 with component state.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.status(r.Context()))
}

// HealthLive handles GET /health/live. It answers 200 while the process
// serves requests, regardless of dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"alive":          true,
		"uptime_seconds": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady handles GET /health/ready. It answers 503 until the database
// is reachable and the policy is loaded, and again once draining starts.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	s := h.status(r.Context())
	if s.Status != "healthy" {
		NewResponseWriter(w, r).FailWithDetails(ErrCodeServiceUnavailable, "Service not ready", s)
		return
	}
	NewResponseWriter(w, r).Success(s)
}
