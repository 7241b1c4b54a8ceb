// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package auth

import (
	"context"
	"errors"
	"time"
)

// Standard authentication errors
var (
	// ErrNoCredentials indicates no credentials were provided.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrInvalidCredentials indicates credentials were invalid.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrExpiredCredentials indicates credentials have expired.
	ErrExpiredCredentials = errors.New("credentials expired")

	// ErrTokenRevoked indicates the token was revoked by logout or a
	// password change.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrAccountInactive indicates the account has not been activated.
	ErrAccountInactive = errors.New("account not activated")

	// ErrAlreadyActive indicates the account is already active.
	ErrAlreadyActive = errors.New("account already activated")

	// ErrUserExists indicates the username or email is taken.
	ErrUserExists = errors.New("user already exists")

	// ErrUsernameReserved indicates the username names a role or the
	// public subject.
	ErrUsernameReserved = errors.New("username is reserved")

	// ErrThrottled indicates too many login attempts for the username.
	ErrThrottled = errors.New("too many login attempts")

	// ErrInvalidCode indicates a wrong, expired or exhausted one-time code.
	ErrInvalidCode = errors.New("invalid or expired code")
)

// AuthSubject is the authenticated caller of a request.
type AuthSubject struct {
	Username  string `json:"username"`
	UserID    int64  `json:"user_id"`
	TokenID   string `json:"-"`
	IssuedAt  int64  `json:"issued_at,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}

// IsExpired checks if the authentication has expired.
func (s *AuthSubject) IsExpired() bool {
	if s.ExpiresAt == 0 {
		return false
	}
	return time.Now().Unix() > s.ExpiresAt
}

// Expiry returns ExpiresAt as a time.
func (s *AuthSubject) Expiry() time.Time {
	return time.Unix(s.ExpiresAt, 0)
}

// AuthSubjectFromClaims creates an AuthSubject from validated claims.
func AuthSubjectFromClaims(claims *Claims) *AuthSubject {
	if claims == nil {
		return nil
	}
	s := &AuthSubject{
		Username: claims.Username,
		UserID:   claims.UserID,
		TokenID:  claims.ID,
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		s.IssuedAt = claims.IssuedAt.Unix()
	}
	return s
}

type contextKey string

const subjectContextKey contextKey = "auth_subject"

// ContextWithAuthSubject returns ctx carrying subject.
func ContextWithAuthSubject(ctx context.Context, subject *AuthSubject) context.Context {
	return context.WithValue(ctx, subjectContextKey, subject)
}

// GetAuthSubject returns the subject stored by Authenticate, or nil for
// anonymous requests.
func GetAuthSubject(ctx context.Context) *AuthSubject {
	s, _ := ctx.Value(subjectContextKey).(*AuthSubject)
	return s
}
