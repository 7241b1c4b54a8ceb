// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package services

import (
	"context"
	"fmt"
	"io"

	"github.com/thejerf/suture/v4"
)

// EventLogService ties the event log writer to the supervisor lifecycle.
// The writer runs from construction; on shutdown the service closes it,
// which drains buffered events to the store.
type EventLogService struct {
	writer io.Closer
	name   string
}

// NewEventLogService wraps writer, usually an *audit.Logger.
func NewEventLogService(writer io.Closer) *EventLogService {
	return &EventLogService{writer: writer, name: "event-log-writer"}
}

// Serve implements suture.Service. The writer cannot be reopened, so the
// service is not restarted once it has closed it.
func (s *EventLogService) Serve(ctx context.Context) error {
	<-ctx.Done()
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("event log close failed: %w", err)
	}
	return suture.ErrDoNotRestart
}

// String implements fmt.Stringer for suture's logs.
func (s *EventLogService) String() string {
	return s.name
}
