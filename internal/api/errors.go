// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/warden/internal/auth"
	"github.com/tomtom215/warden/internal/database"
	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/validation"
)

// ErrBadRequest marks malformed request bodies and query parameters.
var ErrBadRequest = errors.New("bad request")

// writeServiceError maps an error from decoding, validation or the auth
// service onto the response envelope. Unknown errors are logged and
// reported as a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	rw := NewResponseWriter(w, r)

	var verr *validation.RequestValidationError
	var perr *auth.PasswordPolicyError
	switch {
	case errors.As(err, &verr):
		apiErr := verr.ToAPIError()
		rw.FailWithDetails(ErrCodeValidationFailed, apiErr.Message, apiErr.Details)
	case errors.As(err, &perr):
		rw.FailWithDetails(ErrCodeWeakPassword, "Password does not meet policy", perr.Violations)
	case errors.Is(err, ErrBadRequest):
		rw.Fail(ErrCodeBadRequest, err.Error())
	case errors.Is(err, auth.ErrUserExists):
		rw.Fail(ErrCodeConflict, "Username or email already registered")
	case errors.Is(err, auth.ErrUsernameReserved):
		rw.Fail(ErrCodeConflict, "Username is not available")
	case errors.Is(err, auth.ErrAlreadyActive):
		rw.Fail(ErrCodeConflict, "Account already activated")
	case errors.Is(err, auth.ErrInvalidCode):
		rw.Fail(ErrCodeBadRequest, "Invalid or expired code")
	case errors.Is(err, auth.ErrAccountInactive):
		rw.Fail(ErrCodeAccountInactive, "Account not activated")
	case errors.Is(err, auth.ErrThrottled):
		rw.Fail(ErrCodeTooManyRequests, "Too many login attempts, retry later")
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrNoCredentials),
		errors.Is(err, auth.ErrExpiredCredentials),
		errors.Is(err, auth.ErrTokenRevoked):
		rw.Fail(ErrCodeUnauthorized, "Invalid credentials")
	case errors.Is(err, database.ErrNotFound):
		rw.Fail(ErrCodeNotFound, "Not found")
	default:
		logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		rw.Fail(ErrCodeInternalError, "Internal server error")
	}
}
