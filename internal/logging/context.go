// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type fieldsKey struct{}

// requestFields are attached to every line logged through Ctx. Each setter
// stores a copy so parent contexts are never mutated.
type requestFields struct {
	requestID string
	subject   string
	domain    string
}

func fieldsFrom(ctx context.Context) requestFields {
	if f, ok := ctx.Value(fieldsKey{}).(requestFields); ok {
		return f
	}
	return requestFields{}
}

func withFields(ctx context.Context, update func(*requestFields)) context.Context {
	f := fieldsFrom(ctx)
	update(&f)
	return context.WithValue(ctx, fieldsKey{}, f)
}

// GenerateRequestID returns a random UUIDv4 string.
func GenerateRequestID() string {
	return uuid.New().String()
}

// ContextWithRequestID records the request id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return withFields(ctx, func(f *requestFields) { f.requestID = id })
}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	return fieldsFrom(ctx).requestID
}

// ContextWithSubject records the authenticated username.
func ContextWithSubject(ctx context.Context, username string) context.Context {
	return withFields(ctx, func(f *requestFields) { f.subject = username })
}

// SubjectFromContext returns the username, or "".
func SubjectFromContext(ctx context.Context) string {
	return fieldsFrom(ctx).subject
}

// ContextWithDomain records the domain a request was authorized in.
func ContextWithDomain(ctx context.Context, domain string) context.Context {
	return withFields(ctx, func(f *requestFields) { f.domain = domain })
}

// DomainFromContext returns the authorized domain, or "".
func DomainFromContext(ctx context.Context) string {
	return fieldsFrom(ctx).domain
}

// Ctx returns the global logger with request_id, subject and domain from
// ctx; unset fields are omitted.
//
//	logging.Ctx(ctx).Info().Msg("Role granted")
func Ctx(ctx context.Context) *zerolog.Logger {
	f := fieldsFrom(ctx)
	logCtx := With()
	if f.requestID != "" {
		logCtx = logCtx.Str("request_id", f.requestID)
	}
	if f.subject != "" {
		logCtx = logCtx.Str("subject", f.subject)
	}
	if f.domain != "" {
		logCtx = logCtx.Str("domain", f.domain)
	}
	l := logCtx.Logger()
	return &l
}

// WithComponent returns a child of the global logger tagged with component.
func WithComponent(component string) zerolog.Logger {
	return With().Str("component", component).Logger()
}
