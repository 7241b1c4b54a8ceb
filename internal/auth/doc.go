// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

/*
Package auth provides authentication and the account lifecycle.

Accounts are created inactive by Register and become usable once Activate
consumes the mailed one-time code, at which point the default role is
granted in the global domain. Login issues an HS256 JWT carrying a random
token id (jti); Logout, ChangePassword and Deregister revoke that id in a
BadgerDB-backed blocklist whose entries expire with the token.

# Middleware

Middleware.Authenticate stores an *AuthSubject in the request context when
a valid, unrevoked bearer token is presented and lets anonymous requests
through; RequireAuth turns anonymous requests into 401 responses. The
authorization layer reads the caller with GetAuthSubject.

	mw := auth.NewMiddleware(jwtManager, blocklist)
	r.Use(mw.Authenticate)
	r.With(mw.RequireAuth).Post("/v1/logout", h.Logout)

# Brute force protection

Login attempts are limited per username by LoginThrottle, on top of the
per-IP limit applied by the router. Logins for unknown users still run a
bcrypt comparison so response time does not reveal which accounts exist.
*/
package auth
