// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package api

import (
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/tomtom215/warden/internal/config"
)

// LimitClass names a rate limit bucket. Routes in the same class share
// one limiter.
type LimitClass string

const (
	// LimitAPI covers every /v1 route.
	LimitAPI LimitClass = "api"
	// LimitLogin is applied on top of LimitAPI for POST /v1/login. The
	// per-username throttle in the auth service applies on top of it.
	LimitLogin LimitClass = "login"
	// LimitAccount covers registration, activation and password reset,
	// which send mail or consume codes. Each endpoint has its own bucket.
	LimitAccount LimitClass = "account"
	// LimitHealth is permissive for monitoring checks.
	LimitHealth LimitClass = "health"
)

// RateLimitConfig is a request budget per client IP.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// ChiMiddlewareConfig configures CORS and the rate limiters.
type ChiMiddlewareConfig struct {
	CORS              cors.Options
	Limits            map[LimitClass]RateLimitConfig
	RateLimitDisabled bool
}

// DefaultChiMiddlewareConfig trusts no origin and uses the built-in
// limits.
func DefaultChiMiddlewareConfig() *ChiMiddlewareConfig {
	return &ChiMiddlewareConfig{
		CORS: cors.Options{
			AllowedOrigins: []string{},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         86400,
		},
		Limits: map[LimitClass]RateLimitConfig{
			LimitAPI:     {Requests: 100, Window: time.Minute},
			LimitLogin:   {Requests: 10, Window: time.Minute},
			LimitAccount: {Requests: 5, Window: time.Minute},
			LimitHealth:  {Requests: 1000, Window: time.Minute},
		},
	}
}

// ChiMiddlewareConfigFromSecurity applies the security section on top of
// the defaults. Only the API-wide limit is configurable.
func ChiMiddlewareConfigFromSecurity(cfg *config.SecurityConfig) *ChiMiddlewareConfig {
	c := DefaultChiMiddlewareConfig()
	c.CORS.AllowedOrigins = cfg.CORSOrigins
	// Credentials are never allowed together with a wildcard origin.
	c.CORS.AllowCredentials = len(cfg.CORSOrigins) > 0 && !slices.Contains(cfg.CORSOrigins, "*")

	api := c.Limits[LimitAPI]
	if cfg.RateLimitReqs > 0 {
		api.Requests = cfg.RateLimitReqs
	}
	if cfg.RateLimitWindow > 0 {
		api.Window = cfg.RateLimitWindow
	}
	c.Limits[LimitAPI] = api
	c.RateLimitDisabled = cfg.RateLimitDisabled
	return c
}

// ChiMiddleware holds the CORS handler and one limiter per class, built
// once so every route in a class draws from the same bucket.
type ChiMiddleware struct {
	cors     func(http.Handler) http.Handler
	limiters map[LimitClass]func(http.Handler) http.Handler
}

// NewChiMiddleware builds the middleware. A nil config uses the defaults.
func NewChiMiddleware(cfg *ChiMiddlewareConfig) *ChiMiddleware {
	if cfg == nil {
		cfg = DefaultChiMiddlewareConfig()
	}
	m := &ChiMiddleware{
		cors:     cors.Handler(cfg.CORS),
		limiters: make(map[LimitClass]func(http.Handler) http.Handler, len(cfg.Limits)),
	}
	for class, rl := range cfg.Limits {
		if cfg.RateLimitDisabled || rl.Requests <= 0 {
			m.limiters[class] = passthrough
			continue
		}
		keys := []httprate.KeyFunc{httprate.KeyByIP}
		if class == LimitAccount {
			keys = append(keys, httprate.KeyByEndpoint)
		}
		m.limiters[class] = httprate.Limit(rl.Requests, rl.Window,
			httprate.WithKeyFuncs(keys...),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				NewResponseWriter(w, r).Fail(ErrCodeTooManyRequests, "Rate limit exceeded, retry later")
			}),
		)
	}
	return m
}

func passthrough(next http.Handler) http.Handler { return next }

// CORS returns the go-chi/cors middleware.
func (m *ChiMiddleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// Limit returns the limiter for class. Classes without a configured limit
// are not limited.
func (m *ChiMiddleware) Limit(class LimitClass) func(http.Handler) http.Handler {
	if l, ok := m.limiters[class]; ok {
		return l
	}
	return passthrough
}

// APISecurityHeaders sets nosniff, DENY framing, no-store caching and a
// strict referrer policy. HSTS is added when the request arrived over
// HTTPS, directly or through a proxy.
func APISecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			// Responses carry tokens and grants.
			h.Set("Cache-Control", "no-store")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}
