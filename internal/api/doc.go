// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

/*
Package api wires the HTTP surface of the service onto a chi router.

Routes:

	GET    /health, /health/live, /health/ready
	GET    /metrics
	POST   /v1/authorize              decide a {dom, obj, act, attrs} tuple
	GET    /v1/roles                  list grants of a user
	POST   /v1/user-role              grant a role in a domain
	DELETE /v1/user-role              revoke a role in a domain
	GET    /v1/events                 query the event log
	POST   /v1/register               create an inactive account
	POST   /v1/activate               activate with the mailed code
	POST   /v1/activation/resend      mail a fresh activation code
	POST   /v1/login                  issue a token
	POST   /v1/logout                 revoke the current token
	GET    /v1/me                     current account and grants
	POST   /v1/password/forgot        mail a reset code
	POST   /v1/password/reset         set a password with a reset code
	PUT    /v1/password               change password
	DELETE /v1/deregister             delete the current account

Middleware order: request id, real IP, panic recovery, CORS and request
metrics on every route; then per-IP rate limiting (go-chi/httprate),
security headers and token authentication on /v1. Routes that act on
protected objects run the authz middleware, which answers 403 with a fixed
message on denial.

Response format: the authorization endpoints answer {"message": ...} on
failure. Every other endpoint uses APIResponse:

	{"success": true, "data": {...}, "meta": {"request_id": "...", "timestamp": "..."}}
	{"success": false, "error": {"code": "VALIDATION_FAILED", "message": "...", "details": {...}}}
*/
package api
