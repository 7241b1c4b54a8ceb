// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package audit

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// Event names written by the service.
const (
	EventAuthorize        = "authorize"
	EventUserRole         = "user_role"
	EventRegister         = "register"
	EventActivate         = "activate"
	EventLogin            = "login"
	EventLogout           = "logout"
	EventPasswordReset    = "password_reset"
	EventPasswordChange   = "password_change"
	EventDeregister       = "deregister"
	EventActivationResend = "activation_resend"
)

// Outcome is the result recorded with an event.
type Outcome string

const (
	OutcomeAllowed Outcome = "allowed"
	OutcomeDenied  Outcome = "denied"
	OutcomeError   Outcome = "error"
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event is one row of the event log.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// Event names what happened, e.g. "authorize" or "login".
	Event   string  `json:"event"`
	Outcome Outcome `json:"outcome"`

	// Username is the caller; "public" for anonymous requests.
	Username string `json:"username"`

	// Domain, Object and Action are set for authorization events.
	Domain string `json:"domain,omitempty"`
	Object string `json:"object,omitempty"`
	Action string `json:"action,omitempty"`

	SourceIP  string `json:"source_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	// Details holds the remaining event fields.
	Details json.RawMessage `json:"details,omitempty"`
}

// Store defines the interface for event log persistence.
type Store interface {
	// Save persists an event.
	Save(ctx context.Context, event *Event) error

	// Query returns events matching the filter, newest first.
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)

	// Count returns the number of events matching the filter.
	Count(ctx context.Context, filter QueryFilter) (int64, error)

	// Delete removes events older than olderThan.
	Delete(ctx context.Context, olderThan time.Time) (int64, error)
}

// Query limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// QueryFilter selects events. Zero fields do not filter.
type QueryFilter struct {
	Events    []string   `json:"events,omitempty"`
	Username  string     `json:"username,omitempty"`
	Domain    string     `json:"domain,omitempty"`
	Object    string     `json:"object,omitempty"`
	Outcome   Outcome    `json:"outcome,omitempty"`
	RequestID string     `json:"request_id,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	Offset    int        `json:"offset,omitempty"`
}

// DefaultQueryFilter returns a filter for the most recent events.
func DefaultQueryFilter() QueryFilter {
	return QueryFilter{Limit: DefaultLimit}
}

// Normalize clamps Limit and Offset to their allowed ranges.
func (f *QueryFilter) Normalize() {
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultLimit
	case f.Limit > MaxLimit:
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// matches reports whether event passes every set filter field.
func (f *QueryFilter) matches(event *Event) bool {
	if len(f.Events) > 0 {
		found := false
		for _, e := range f.Events {
			if event.Event == e {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Username != "" && event.Username != f.Username {
		return false
	}
	if f.Domain != "" && event.Domain != f.Domain {
		return false
	}
	if f.Object != "" && event.Object != f.Object {
		return false
	}
	if f.Outcome != "" && event.Outcome != f.Outcome {
		return false
	}
	if f.RequestID != "" && event.RequestID != f.RequestID {
		return false
	}
	if f.StartTime != nil && event.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && event.Timestamp.After(*f.EndTime) {
		return false
	}
	return true
}
