// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package audit records the event log: one row per authorization decision,
// role change and account operation.
//
// Events are queued by Logger and written by a single goroutine, so request
// latency never includes a database write. When the buffer is full events
// are dropped and counted in warden_event_log_dropped_total.
//
// # Storage
//
// DuckDBStore persists events in the event_log table and is used in
// production. MemoryStore keeps a bounded slice and is used in tests and
// when the service runs without a database file.
//
// # Usage
//
//	store := audit.NewDuckDBStore(db.Conn())
//	if err := store.CreateTable(ctx); err != nil {
//		return err
//	}
//	events := audit.NewLogger(store, cfg.Audit)
//	defer events.Close()
//
//	events.UpdateEventLog(r, map[string]interface{}{
//		"event":    "authorize",
//		"sub":      "alice",
//		"dom":      "17",
//		"obj":      "mra_users",
//		"act":      "R",
//		"decision": "allowed",
//	})
//
// # Retention
//
// Logger.Purge deletes events older than audit.retention. The maintenance
// job calls it on its cron schedule.
package audit
