// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

/*
Package main is the entry point for the Warden server.

Warden authenticates users and decides whether a subject may perform an
action on an object within a domain. Policies live in the casbin_rule table
of the service's DuckDB database and are seeded from an embedded policy file
on first start.

# Application Architecture

	RootSupervisor ("warden")
	├── PolicySupervisor ("policy-layer")
	│   ├── Policy reload (periodic reload from the store)
	│   ├── Event log writer (flushes on shutdown)
	│   └── Maintenance (cron: codes, event log, blocklist GC, throttle)
	└── APISupervisor ("api-layer")
	    └── HTTP Server

Component initialization order:

 1. Configuration: Koanf v2 with defaults, optional YAML file and environment
 2. Database: DuckDB with users, activation codes and casbin_rule tables
 3. Enforcer: model and policy load; a failure here aborts startup
 4. Accounts: JWT issuer, Badger token blocklist, mailer
 5. Event log: DuckDB-backed asynchronous writer
 6. HTTP Server: Chi router with rate limiting and security headers

# Configuration

Common environment variables:

	HTTP_PORT              listen port (default 8080)
	DUCKDB_PATH            database file
	JWT_SECRET             32+ character signing secret
	AUTHZ_MODEL_PATH       model file; empty uses the embedded model
	AUTHZ_POLICY_PATH      seed policy file; empty uses the embedded policy
	AUTHZ_GLOBAL_DOMAIN    the all-domains id (default "0")
	MAINTENANCE_SCHEDULE   cron expression for housekeeping jobs

# Signal Handling

SIGINT and SIGTERM cancel the root context. Each supervised service gets
the configured shutdown timeout; the HTTP server drains in-flight requests
and the event log flushes buffered entries. The enforcer, blocklist and
database are closed after the tree returns.

# Example Usage

	export JWT_SECRET=$(openssl rand -base64 32)
	export DUCKDB_PATH=/data/warden.duckdb
	./warden
*/
package main
