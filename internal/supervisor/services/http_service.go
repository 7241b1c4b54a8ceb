// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/warden/internal/logging"
)

// HTTPServer is the lifecycle of *http.Server.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// Drainer is told when the server stops accepting work and when it is
// serving again. The health handler implements it so readiness fails
// while in-flight requests finish.
type Drainer interface {
	SetDraining(draining bool)
}

// HTTPServerOption configures an HTTPServerService.
type HTTPServerOption func(*HTTPServerService)

// WithDrainer registers d to be marked draining before shutdown.
func WithDrainer(d Drainer) HTTPServerOption {
	return func(h *HTTPServerService) { h.drainer = d }
}

// HTTPServerService runs the API server under the supervisor. Canceling
// the context drains the server within shutdownTimeout.
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
	drainer         Drainer
}

// NewHTTPServerService wraps server. A non-positive shutdownTimeout means
// ten seconds.
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration, opts ...HTTPServerOption) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	h := &HTTPServerService{server: server, shutdownTimeout: shutdownTimeout}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Serve implements suture.Service. A listener failure is returned so the
// supervisor restarts the server; http.ErrServerClosed is not a failure.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	logger := logging.WithComponent(h.String())
	h.setDraining(false)

	done := make(chan error, 1)
	go func() {
		err := h.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
	}()
	logger.Info().Msg("HTTP server started")

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	h.setDraining(true)
	logger.Info().Dur("timeout", h.shutdownTimeout).Msg("HTTP server draining")

	// ctx is already canceled; shutdown needs its own deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()
	if err := h.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	if err := <-done; err != nil {
		logger.Warn().Err(err).Msg("HTTP server stopped with error")
	}
	logger.Info().Msg("HTTP server stopped")
	return ctx.Err()
}

func (h *HTTPServerService) setDraining(v bool) {
	if h.drainer != nil {
		h.drainer.SetDraining(v)
	}
}

// String implements fmt.Stringer for suture's logs.
func (h *HTTPServerService) String() string {
	return "http-server"
}
