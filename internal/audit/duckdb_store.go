// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// DuckDBStore implements Store on the event_log table.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore creates a DuckDB-backed event store.
// Call CreateTable before the first Save.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the event_log table if it doesn't exist.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS event_log (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMP NOT NULL,
			event TEXT NOT NULL,
			outcome TEXT NOT NULL,
			username TEXT NOT NULL,
			domain TEXT,
			object TEXT,
			action TEXT,
			source_ip TEXT,
			user_agent TEXT,
			request_id TEXT,
			details TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_event_log_created_at ON event_log(created_at);
		CREATE INDEX IF NOT EXISTS idx_event_log_username ON event_log(username);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create event_log table: %w", err)
	}
	return nil
}

// Save persists an event.
func (s *DuckDBStore) Save(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO event_log (
			id, created_at, event, outcome, username, domain, object, action,
			source_ip, user_agent, request_id, details
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var details *string
	if len(event.Details) > 0 {
		d := string(event.Details)
		details = &d
	}
	_, err := s.db.ExecContext(ctx, query,
		event.ID, event.Timestamp.UTC(), event.Event, string(event.Outcome), event.Username,
		nullable(event.Domain), nullable(event.Object), nullable(event.Action),
		nullable(event.SourceIP), nullable(event.UserAgent), nullable(event.RequestID), details,
	)
	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

// Query retrieves events matching the filter, newest first.
func (s *DuckDBStore) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	filter.Normalize()

	where, args := buildFilterConditions(filter)
	query := `
		SELECT id, created_at, event, outcome, username, domain, object, action,
			source_ip, user_agent, request_id, details
		FROM event_log` + where + `
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// Count returns the number of events matching the filter.
func (s *DuckDBStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	where, args := buildFilterConditions(filter)
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM event_log"+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// Delete removes events older than the given time.
func (s *DuckDBStore) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM event_log WHERE created_at < ?", olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old events: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted count: %w", err)
	}
	return deleted, nil
}

// buildFilterConditions returns a WHERE clause (or "") and its arguments.
func buildFilterConditions(filter QueryFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if len(filter.Events) > 0 {
		placeholders := make([]string, len(filter.Events))
		for i, e := range filter.Events {
			placeholders[i] = "?"
			args = append(args, e)
		}
		conditions = append(conditions, fmt.Sprintf("event IN (%s)", strings.Join(placeholders, ",")))
	}

	conditions, args = appendStringCondition(conditions, args, "username", filter.Username)
	conditions, args = appendStringCondition(conditions, args, "domain", filter.Domain)
	conditions, args = appendStringCondition(conditions, args, "object", filter.Object)
	conditions, args = appendStringCondition(conditions, args, "outcome", string(filter.Outcome))
	conditions, args = appendStringCondition(conditions, args, "request_id", filter.RequestID)

	if filter.StartTime != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.StartTime.UTC())
	}
	if filter.EndTime != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, filter.EndTime.UTC())
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func appendStringCondition(conditions []string, args []interface{}, column, value string) ([]string, []interface{}) {
	if value == "" {
		return conditions, args
	}
	return append(conditions, column+" = ?"), append(args, value)
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var (
		event                                   Event
		outcome                                 string
		domain, object, action                  sql.NullString
		sourceIP, userAgent, requestID, details sql.NullString
	)
	err := rows.Scan(&event.ID, &event.Timestamp, &event.Event, &outcome, &event.Username,
		&domain, &object, &action, &sourceIP, &userAgent, &requestID, &details)
	if err != nil {
		return Event{}, fmt.Errorf("failed to scan event: %w", err)
	}
	event.Outcome = Outcome(outcome)
	event.Domain = domain.String
	event.Object = object.String
	event.Action = action.String
	event.SourceIP = sourceIP.String
	event.UserAgent = userAgent.String
	event.RequestID = requestID.String
	if details.Valid && details.String != "" {
		event.Details = []byte(details.String)
	}
	return event, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
