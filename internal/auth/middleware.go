// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/warden/internal/logging"
)

// TokenCookie is the cookie checked when no Authorization header is sent.
const TokenCookie = "token"

// Middleware authenticates bearer tokens.
type Middleware struct {
	jwtManager *JWTManager
	blocklist  Blocklist
}

// NewMiddleware creates the authentication middleware.
func NewMiddleware(jwtManager *JWTManager, blocklist Blocklist) *Middleware {
	return &Middleware{jwtManager: jwtManager, blocklist: blocklist}
}

// Authenticate stores the caller in the request context when a valid
// token is presented. Requests without a usable token continue
// anonymously; routes that need a caller add RequireAuth.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := m.Subject(r)
		if err != nil {
			if !errors.Is(err, ErrNoCredentials) {
				logging.Ctx(r.Context()).Debug().Err(err).Msg("Ignoring unusable credentials")
			}
			next.ServeHTTP(w, r)
			return
		}
		ctx := ContextWithAuthSubject(r.Context(), subject)
		ctx = logging.ContextWithSubject(ctx, subject.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth rejects requests without an authenticated caller with 401.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetAuthSubject(r.Context()) == nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="warden"`)
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "Authentication required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Subject validates the request token and returns its subject.
func (m *Middleware) Subject(r *http.Request) (*AuthSubject, error) {
	token, err := extractToken(r)
	if err != nil {
		return nil, err
	}

	claims, err := m.jwtManager.ValidateToken(token)
	if err != nil {
		if errors.Is(err, ErrExpiredCredentials) {
			TokenValidations.WithLabelValues("expired").Inc()
		} else {
			TokenValidations.WithLabelValues("invalid").Inc()
		}
		return nil, err
	}

	revoked, err := m.blocklist.IsRevoked(r.Context(), claims.ID)
	if err != nil {
		TokenValidations.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to check token revocation: %w", err)
	}
	if revoked {
		TokenValidations.WithLabelValues("revoked").Inc()
		return nil, ErrTokenRevoked
	}

	TokenValidations.WithLabelValues("valid").Inc()
	return AuthSubjectFromClaims(claims), nil
}

// extractToken reads the bearer token from the Authorization header or,
// failing that, the token cookie.
func extractToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		cookie, err := r.Cookie(TokenCookie)
		if err != nil || cookie.Value == "" {
			return "", ErrNoCredentials
		}
		return cookie.Value, nil
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", fmt.Errorf("%w: malformed authorization header", ErrInvalidCredentials)
	}
	return parts[1], nil
}
