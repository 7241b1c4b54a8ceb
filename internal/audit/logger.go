// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package audit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tomtom215/warden/internal/config"
	"github.com/tomtom215/warden/internal/logging"
)

// EventsDroppedTotal counts events lost because the write buffer was full.
var EventsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_event_log_dropped_total",
	Help: "Total number of event log entries dropped because the buffer was full",
})

// PublicUsername is recorded for requests without an authenticated caller.
const PublicUsername = "public"

// Logger writes events to a Store through an async buffer.
type Logger struct {
	store     Store
	retention time.Duration
	enabled   atomic.Bool
	closed    atomic.Bool

	eventChan chan *Event
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewLogger creates a logger and starts its writer goroutine.
func NewLogger(store Store, cfg config.AuditConfig) *Logger {
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 1024
	}

	l := &Logger{
		store:     store,
		retention: cfg.Retention,
		eventChan: make(chan *Event, bufferSize),
		stopChan:  make(chan struct{}),
	}
	l.enabled.Store(cfg.Enabled)

	l.wg.Add(1)
	go l.asyncWriter()

	return l
}

// asyncWriter processes events from the buffer.
func (l *Logger) asyncWriter() {
	defer l.wg.Done()

	for {
		select {
		case <-l.stopChan:
			// Drain remaining events
			for {
				select {
				case event := <-l.eventChan:
					l.writeEvent(event)
				default:
					return
				}
			}
		case event := <-l.eventChan:
			l.writeEvent(event)
		}
	}
}

func (l *Logger) writeEvent(event *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.store.Save(ctx, event); err != nil {
		logging.Error().Err(err).Str("event", event.Event).Msg("Failed to save event log entry")
	}
}

// Log queues an event. ID and Timestamp are filled in when empty.
// Events are dropped when the logger is disabled or closed, or when the
// buffer is full.
func (l *Logger) Log(event *Event) {
	if !l.enabled.Load() || l.closed.Load() {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case l.eventChan <- event:
	default:
		EventsDroppedTotal.Inc()
		logging.Warn().Str("event_id", event.ID).Str("event", event.Event).Msg("Event log buffer full, dropping event")
	}
}

// UpdateEventLog records one event for the request. Well-known keys in
// details fill the event columns; the rest is stored as JSON details.
//
//	event             event name (required)
//	sub, username     caller, defaulting to the authenticated subject
//	dom, obj, act     authorization tuple
//	decision, outcome result
func (l *Logger) UpdateEventLog(r *http.Request, details map[string]interface{}) {
	if !l.enabled.Load() {
		return
	}

	rest := make(map[string]interface{}, len(details))
	for k, v := range details {
		rest[k] = v
	}

	event := &Event{
		Event:     takeString(rest, "event"),
		Username:  takeString(rest, "sub"),
		Domain:    takeString(rest, "dom"),
		Object:    takeString(rest, "obj"),
		Action:    takeString(rest, "act"),
		Outcome:   Outcome(takeString(rest, "decision")),
		SourceIP:  clientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: logging.RequestIDFromContext(r.Context()),
	}
	if event.Event == "" {
		event.Event = "request"
	}
	if u := takeString(rest, "username"); event.Username == "" {
		event.Username = u
	}
	if event.Username == "" {
		event.Username = logging.SubjectFromContext(r.Context())
	}
	if event.Username == "" {
		event.Username = PublicUsername
	}
	if o := takeString(rest, "outcome"); event.Outcome == "" {
		event.Outcome = Outcome(o)
	}
	if event.Outcome == "" {
		event.Outcome = OutcomeSuccess
	}
	if len(rest) > 0 {
		event.Details = mustJSON(rest)
	}

	l.Log(event)
}

// Query retrieves events matching the filter.
func (l *Logger) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	return l.store.Query(ctx, filter)
}

// Count returns the number of events matching the filter.
func (l *Logger) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	return l.store.Count(ctx, filter)
}

// Purge deletes events older than the configured retention. A zero
// retention keeps everything.
func (l *Logger) Purge(ctx context.Context) (int64, error) {
	if l.retention <= 0 {
		return 0, nil
	}
	deleted, err := l.store.Delete(ctx, time.Now().UTC().Add(-l.retention))
	if err != nil {
		return 0, fmt.Errorf("purge event log: %w", err)
	}
	if deleted > 0 {
		logging.Info().Int64("count", deleted).Msg("Purged old event log entries")
	}
	return deleted, nil
}

// SetEnabled enables or disables event logging.
func (l *Logger) SetEnabled(enabled bool) {
	l.enabled.Store(enabled)
}

// Enabled returns whether event logging is enabled.
func (l *Logger) Enabled() bool {
	return l.enabled.Load()
}

// Close flushes queued events and stops the writer. Safe to call more
// than once.
func (l *Logger) Close() error {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.stopChan)
		l.wg.Wait()
	})
	return nil
}

func takeString(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	delete(m, key)
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// clientIP returns the host part of RemoteAddr. Proxy headers are
// resolved earlier by the RealIP middleware.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// mustJSON converts a value to JSON, returning empty object on error.
func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}
