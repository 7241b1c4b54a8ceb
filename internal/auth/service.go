// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/warden/internal/config"
	"github.com/tomtom215/warden/internal/database"
	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/mail"
)

// UserStore persists accounts. *database.DB implements it.
type UserStore interface {
	CreateUser(ctx context.Context, u *database.User) error
	GetUserByID(ctx context.Context, id int64) (*database.User, error)
	GetUserByUsername(ctx context.Context, username string) (*database.User, error)
	GetUserByEmail(ctx context.Context, email string) (*database.User, error)
	ActivateUser(ctx context.Context, id int64) error
	UpdatePassword(ctx context.Context, id int64, hash string) error
	DeleteUser(ctx context.Context, id int64) error
}

// CodeStore persists one-time codes. *database.DB implements it.
type CodeStore interface {
	CreateCode(ctx context.Context, userID int64, purpose database.CodePurpose, codeHash string, ttl time.Duration) error
	ConsumeCode(ctx context.Context, userID int64, purpose database.CodePurpose, codeHash string, maxAttempts int) error
}

// RoleGranter grants and revokes role tuples on account lifecycle events.
type RoleGranter interface {
	AddRoleForUserInDomain(ctx context.Context, user, role, domain string) (bool, error)
	RemoveRolesForUserInAllDomains(ctx context.Context, user string) (bool, error)
}

// NameReserver reports usernames that would collide with authorization
// subjects. *authz.Enforcer implements it.
type NameReserver interface {
	IsReservedName(name string) bool
}

// UserCache is notified when a username stops existing.
type UserCache interface {
	Forget(username string)
}

// RegisterInput is the data needed to create an account.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// LoginResult is a successful login.
type LoginResult struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	User      *database.User `json:"user"`
}

// Service implements the account lifecycle: registration, activation,
// login, logout, password reset and change, and deregistration.
type Service struct {
	users     UserStore
	codes     CodeStore
	roles     RoleGranter
	mailer    mail.Mailer
	jwt       *JWTManager
	blocklist Blocklist
	throttle  *LoginThrottle
	passwords *PasswordPolicy
	cache     UserCache
	reserved  NameReserver

	activation    config.ActivationConfig
	defaultRole   string
	globalDomain  string
	publicSubject string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) {
		s.passwords = NewPasswordPolicy(s.passwords.cfg, cost)
	}
}

// WithUserCache registers a cache to invalidate on deregistration.
func WithUserCache(c UserCache) ServiceOption {
	return func(s *Service) { s.cache = c }
}

// WithReservedNames rejects registration of names r reports as reserved.
func WithReservedNames(r NameReserver) ServiceOption {
	return func(s *Service) { s.reserved = r }
}

// NewService wires the account service.
func NewService(cfg *config.Config, users UserStore, codes CodeStore, roles RoleGranter, mailer mail.Mailer, jwt *JWTManager, blocklist Blocklist, opts ...ServiceOption) *Service {
	s := &Service{
		users:        users,
		codes:        codes,
		roles:        roles,
		mailer:       mailer,
		jwt:          jwt,
		blocklist:    blocklist,
		throttle:     NewLoginThrottle(cfg.Security.LoginRate, cfg.Security.LoginBurst),
		passwords:    NewPasswordPolicy(cfg.Security.Password, 0),
		activation:    cfg.Activation,
		defaultRole:   cfg.Authz.DefaultRole,
		globalDomain:  cfg.Authz.GlobalDomain,
		publicSubject: cfg.Authz.PublicSubject,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Throttle returns the login throttle so its cleanup can be scheduled.
func (s *Service) Throttle() *LoginThrottle {
	return s.throttle
}

// Register creates an inactive account and mails an activation code.
// A delivery failure is logged but does not undo the registration; the
// user can request a new code.
func (s *Service) Register(ctx context.Context, in RegisterInput) (u *database.User, err error) {
	defer func() { recordAccountEvent("register", err) }()

	if s.isReserved(in.Username) {
		return nil, ErrUsernameReserved
	}
	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	u = &database.User{
		Username:     in.Username,
		Email:        strings.ToLower(in.Email),
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	if err := s.sendCode(ctx, u, database.PurposeActivation); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("username", u.Username).Msg("Failed to send activation code")
	}
	logging.Ctx(ctx).Info().Str("username", u.Username).Int64("user_id", u.ID).Msg("User registered")
	return u, nil
}

// isReserved reports whether username may not be registered. The public
// subject is always reserved.
func (s *Service) isReserved(username string) bool {
	if s.publicSubject != "" && strings.EqualFold(username, s.publicSubject) {
		return true
	}
	return s.reserved != nil && s.reserved.IsReservedName(username)
}

// Activate consumes an activation code, activates the account and grants
// the default role in the global domain.
func (s *Service) Activate(ctx context.Context, username, code string) (err error) {
	defer func() { recordAccountEvent("activate", err) }()

	u, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, database.ErrNotFound) {
		return ErrInvalidCode
	}
	if err != nil {
		return err
	}
	if u.Active {
		return ErrAlreadyActive
	}

	if err := s.consumeCode(ctx, u.ID, database.PurposeActivation, code); err != nil {
		return err
	}
	if err := s.users.ActivateUser(ctx, u.ID); err != nil {
		return err
	}
	if _, err := s.roles.AddRoleForUserInDomain(ctx, u.Username, s.defaultRole, s.globalDomain); err != nil {
		return fmt.Errorf("failed to grant default role: %w", err)
	}
	logging.Ctx(ctx).Info().Str("username", u.Username).Str("role", s.defaultRole).Msg("User activated")
	return nil
}

// ResendActivation issues a fresh activation code. Unknown and already
// active accounts are ignored so the response does not reveal them.
func (s *Service) ResendActivation(ctx context.Context, username string) (err error) {
	defer func() { recordAccountEvent("resend", err) }()

	u, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if u.Active {
		return nil
	}
	return s.sendCode(ctx, u, database.PurposeActivation)
}

// Login verifies credentials and issues a token.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if !s.throttle.Allow(username) {
		LoginAttempts.WithLabelValues("throttled").Inc()
		return nil, ErrThrottled
	}

	u, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, database.ErrNotFound) {
		CheckPassword(s.passwords.dummyHash(), password)
		LoginAttempts.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		LoginAttempts.WithLabelValues("error").Inc()
		return nil, err
	}
	if !CheckPassword(u.PasswordHash, password) {
		LoginAttempts.WithLabelValues("invalid").Inc()
		logging.Ctx(ctx).Info().Str("username", username).Msg("Login failed")
		return nil, ErrInvalidCredentials
	}
	if !u.Active {
		LoginAttempts.WithLabelValues("inactive").Inc()
		return nil, ErrAccountInactive
	}

	token, claims, err := s.jwt.GenerateToken(u.Username, u.ID)
	if err != nil {
		LoginAttempts.WithLabelValues("error").Inc()
		return nil, err
	}
	s.throttle.Reset(username)
	LoginAttempts.WithLabelValues("success").Inc()
	logging.Ctx(ctx).Info().Str("username", u.Username).Str("jti", claims.ID).Msg("User logged in")

	return &LoginResult{Token: token, ExpiresAt: claims.ExpiresAt.Time, User: u}, nil
}

// User returns the subject's account.
func (s *Service) User(ctx context.Context, subject *AuthSubject) (*database.User, error) {
	if subject == nil {
		return nil, ErrNoCredentials
	}
	return s.users.GetUserByID(ctx, subject.UserID)
}

// Logout revokes the subject's token.
func (s *Service) Logout(ctx context.Context, subject *AuthSubject) (err error) {
	defer func() { recordAccountEvent("logout", err) }()
	return s.revoke(ctx, subject, "logout")
}

// ForgotPassword mails a reset code to the account with email. Unknown
// addresses are ignored so the response does not reveal them.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	u, err := s.users.GetUserByEmail(ctx, strings.ToLower(email))
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.sendCode(ctx, u, database.PurposePasswordReset)
}

// ResetPassword consumes a reset code and sets a new password.
func (s *Service) ResetPassword(ctx context.Context, email, code, newPassword string) (err error) {
	defer func() { recordAccountEvent("password_reset", err) }()

	if err := s.passwords.Validate(newPassword); err != nil {
		return err
	}
	u, err := s.users.GetUserByEmail(ctx, strings.ToLower(email))
	if errors.Is(err, database.ErrNotFound) {
		return ErrInvalidCode
	}
	if err != nil {
		return err
	}
	if err := s.consumeCode(ctx, u.ID, database.PurposePasswordReset, code); err != nil {
		return err
	}
	return s.setPassword(ctx, u.ID, newPassword)
}

// ChangePassword sets a new password after verifying the current one and
// revokes the token used for the request.
func (s *Service) ChangePassword(ctx context.Context, subject *AuthSubject, current, newPassword string) (err error) {
	defer func() { recordAccountEvent("password_change", err) }()

	u, err := s.users.GetUserByID(ctx, subject.UserID)
	if err != nil {
		return err
	}
	if !CheckPassword(u.PasswordHash, current) {
		return ErrInvalidCredentials
	}
	if err := s.setPassword(ctx, u.ID, newPassword); err != nil {
		return err
	}
	return s.revoke(ctx, subject, "password_change")
}

// Deregister removes the subject's role grants in every domain, then the
// account, and revokes the token used for the request.
func (s *Service) Deregister(ctx context.Context, subject *AuthSubject) (err error) {
	defer func() { recordAccountEvent("deregister", err) }()

	if _, err := s.roles.RemoveRolesForUserInAllDomains(ctx, subject.Username); err != nil {
		return fmt.Errorf("failed to remove roles: %w", err)
	}
	if err := s.users.DeleteUser(ctx, subject.UserID); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Forget(subject.Username)
	}
	logging.Ctx(ctx).Info().Str("username", subject.Username).Msg("User deregistered")
	return s.revoke(ctx, subject, "deregister")
}

func (s *Service) setPassword(ctx context.Context, userID int64, password string) error {
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, userID, hash)
}

func (s *Service) revoke(ctx context.Context, subject *AuthSubject, reason string) error {
	if subject == nil || subject.TokenID == "" {
		return ErrNoCredentials
	}
	return s.blocklist.Revoke(ctx, RevokedToken{
		JTI:       subject.TokenID,
		Username:  subject.Username,
		Reason:    reason,
		ExpiresAt: subject.Expiry(),
	})
}

func (s *Service) sendCode(ctx context.Context, u *database.User, purpose database.CodePurpose) error {
	code, err := GenerateCode(s.activation.CodeLength)
	if err != nil {
		return err
	}
	ttl := s.activation.CodeTTL
	if purpose == database.PurposePasswordReset {
		ttl = s.activation.ResetTTL
	}
	if err := s.codes.CreateCode(ctx, u.ID, purpose, HashCode(code), ttl); err != nil {
		return err
	}
	return s.mailer.Send(ctx, codeMessage(u, purpose, code, ttl))
}

func (s *Service) consumeCode(ctx context.Context, userID int64, purpose database.CodePurpose, code string) error {
	err := s.codes.ConsumeCode(ctx, userID, purpose, HashCode(code), s.activation.MaxAttempts)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrCodeInvalid),
		errors.Is(err, database.ErrCodeExpired),
		errors.Is(err, database.ErrCodeLocked):
		return fmt.Errorf("%w: %v", ErrInvalidCode, err)
	default:
		return err
	}
}

func codeMessage(u *database.User, purpose database.CodePurpose, code string, ttl time.Duration) mail.Message {
	if purpose == database.PurposePasswordReset {
		return mail.Message{
			To:      u.Email,
			Subject: "Reset your password",
			Body: fmt.Sprintf("Hello %s,\n\nYour password reset code is %s. It expires in %s.\n\n"+
				"If you did not ask to reset your password, ignore this message.\n", u.Username, code, ttl),
		}
	}
	return mail.Message{
		To:      u.Email,
		Subject: "Activate your account",
		Body:    fmt.Sprintf("Hello %s,\n\nYour activation code is %s. It expires in %s.\n", u.Username, code, ttl),
	}
}
