// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/warden/internal/auth"
	"github.com/tomtom215/warden/internal/authz"
	"github.com/tomtom215/warden/internal/middleware"
)

// RouterDeps holds the handlers and middleware the router wires together.
type RouterDeps struct {
	Health        *Handler
	Accounts      *AccountHandlers
	Events        *EventHandlers
	AuthzHandlers *authz.Handlers
	Authz         *authz.Middleware
	Auth          *auth.Middleware
	ChiMiddleware *ChiMiddleware
}

// Router sets up HTTP routes using Chi router.
type Router struct {
	handler       *Handler
	accounts      *AccountHandlers
	events        *EventHandlers
	authzHandlers *authz.Handlers
	authz         *authz.Middleware
	auth          *auth.Middleware
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router. A nil ChiMiddleware uses the defaults.
func NewRouter(deps RouterDeps) *Router {
	cm := deps.ChiMiddleware
	if cm == nil {
		cm = NewChiMiddleware(nil)
	}
	return &Router{
		handler:       deps.Health,
		accounts:      deps.Accounts,
		events:        deps.Events,
		authzHandlers: deps.AuthzHandlers,
		authz:         deps.Authz,
		auth:          deps.Auth,
		chiMiddleware: cm,
	}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // global so OPTIONS preflight is answered
	r.Use(middleware.PrometheusMetrics)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Fail(ErrCodeNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, ErrCodeMethodNotAllowed, "Method not allowed")
	})

	// ========================
	// Health and Metrics
	// ========================
	r.Route("/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.Limit(LimitHealth))
		r.Use(APISecurityHeaders())
		r.Get("/", router.handler.Health)
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.Limit(LimitAPI))
		r.Use(APISecurityHeaders())
		r.Use(router.auth.Authenticate)

		// ========================
		// Authorization
		// ========================
		// Anonymous callers are evaluated as the public pseudo-user.
		r.With(router.authz.Authorize(router.authzHandlers.AuthorizeTuple)).
			Post("/authorize", router.authzHandlers.Authorize)
		r.Get("/roles", router.authzHandlers.ListRoles)
		r.With(router.authz.Authorize(router.authzHandlers.UserRoleTuple(authz.ActionCreate))).
			Post("/user-role", router.authzHandlers.AddUserRole)
		r.With(router.authz.Authorize(router.authzHandlers.UserRoleTuple(authz.ActionDelete))).
			Delete("/user-role", router.authzHandlers.RemoveUserRole)
		r.With(router.authz.Authorize(router.authz.StaticTuple(ObjectEventLog, authz.ActionRead))).
			Get("/events", router.events.ListEvents)

		// ========================
		// Account Lifecycle
		// ========================
		r.With(router.chiMiddleware.Limit(LimitLogin)).Post("/login", router.accounts.Login)
		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.Limit(LimitAccount))
			r.Post("/register", router.accounts.Register)
			r.Post("/activate", router.accounts.Activate)
			r.Post("/activation/resend", router.accounts.ResendActivation)
			r.Post("/password/forgot", router.accounts.ForgotPassword)
			r.Post("/password/reset", router.accounts.ResetPassword)
		})
		r.Group(func(r chi.Router) {
			r.Use(router.auth.RequireAuth)
			r.Post("/logout", router.accounts.Logout)
			r.Get("/me", router.accounts.Me)
			r.Put("/password", router.accounts.ChangePassword)
			r.With(router.authz.Authorize(router.accounts.DeregisterTuple)).
				Delete("/deregister", router.accounts.Deregister)
		})
	})

	return r
}
