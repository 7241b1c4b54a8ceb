// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package validation provides request validation using go-playground/validator v10.
//
// A single validator instance is shared process-wide. It reports fields by
// their JSON names and registers the tags request bodies rely on:
//
//   - crud_action: exactly one of "C", "R", "U", "D"
//   - domain: a tenant identifier such as "0" or "acme-eu"
//   - username: 3 to 32 letters, digits, dots, dashes or underscores
//
// # Usage
//
//	type authorizeRequest struct {
//	    Dom string `json:"dom" validate:"required,domain"`
//	    Act string `json:"act" validate:"required,crud_action"`
//	}
//
//	if verr := validation.ValidateStruct(&body); verr != nil {
//	    apiErr := verr.ToAPIError()
//	    // respond 400 with apiErr.Code ("VALIDATION_FAILED"), apiErr.Message, apiErr.Details
//	}
//
// Details always have the form {"fields": [{"field", "tag", "param", "message"}, ...]}.
package validation
