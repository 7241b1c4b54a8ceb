// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tomtom215/warden/internal/audit"
	"github.com/tomtom215/warden/internal/authz"
)

// ObjectEventLog is the object event log reads are authorized against.
const ObjectEventLog = "event_log"

// EventStore is the read side of the event log. *audit.Logger implements it.
type EventStore interface {
	Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error)
	Count(ctx context.Context, filter audit.QueryFilter) (int64, error)
}

// EventHandlers serves the event log query endpoint.
type EventHandlers struct {
	store        EventStore
	globalDomain string
}

// NewEventHandlers creates the event log handlers.
func NewEventHandlers(store EventStore, globalDomain string) *EventHandlers {
	return &EventHandlers{store: store, globalDomain: globalDomain}
}

// ListEvents handles GET /v1/events. It runs after authorization of a
// read on event_log in the requested domain; the resolved conditions
// narrow the query further.
//
// Query parameters: event (repeatable), username, domain, outcome,
// request_id, start_time and end_time (RFC 3339), limit, offset.
func (h *EventHandlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseFilter(r.URL.Query())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	for column, v := range authz.ConditionsFromContext(r.Context()).Where() {
		switch column {
		case "domain":
			filter.Domain = fmt.Sprint(v)
		case "username":
			filter.Username = fmt.Sprint(v)
		}
	}

	events, err := h.store.Query(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, fmt.Errorf("query events: %w", err))
		return
	}
	total, err := h.store.Count(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, fmt.Errorf("count events: %w", err))
		return
	}

	NewResponseWriter(w, r).SuccessWithPagination(events, &PaginationMeta{
		Total:   total,
		Count:   len(events),
		Offset:  filter.Offset,
		Limit:   filter.Limit,
		HasMore: int64(filter.Offset+len(events)) < total,
	})
}

func (h *EventHandlers) parseFilter(q url.Values) (audit.QueryFilter, error) {
	filter := audit.DefaultQueryFilter()
	filter.Events = q["event"]
	filter.Username = q.Get("username")
	filter.Outcome = audit.Outcome(q.Get("outcome"))
	filter.RequestID = q.Get("request_id")
	if d := q.Get("domain"); d != h.globalDomain {
		filter.Domain = d
	}

	var err error
	if filter.Limit, err = intParam(q, "limit", audit.DefaultLimit); err != nil {
		return filter, err
	}
	if filter.Offset, err = intParam(q, "offset", 0); err != nil {
		return filter, err
	}
	if filter.StartTime, err = timeParam(q, "start_time"); err != nil {
		return filter, err
	}
	if filter.EndTime, err = timeParam(q, "end_time"); err != nil {
		return filter, err
	}
	filter.Normalize()
	return filter, nil
}

func intParam(q url.Values, name string, def int) (int, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", ErrBadRequest, name)
	}
	return n, nil
}

func timeParam(q url.Values, name string) (*time.Time, error) {
	v := q.Get(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an RFC 3339 timestamp", ErrBadRequest, name)
	}
	return &t, nil
}
