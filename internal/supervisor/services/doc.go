// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package services adapts the service's long-running components to
// suture.Service: the HTTP server, the policy reloader, the cron
// maintenance scheduler and the event log writer.
//
// Each wrapper implements Serve(ctx) error and String(). Serve blocks
// until ctx is canceled and returns ctx.Err() after a clean stop; any
// other error makes the supervisor restart the service with backoff.
package services
