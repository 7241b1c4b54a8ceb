// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

/*
Package middleware provides infrastructure HTTP middleware shared by every
route.

Key Components:

  - RequestID: assigns or propagates X-Request-ID and stores it in the
    logging context so every log line and event log row carries it
  - PrometheusMetrics: request count, latency and in-flight gauge labeled by
    chi route pattern

Both use the chi signature func(http.Handler) http.Handler:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)

Authentication and authorization middleware live in the auth and authz
packages.
*/
package middleware
