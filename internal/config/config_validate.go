// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// minJWTSecretLength is the minimum HMAC secret length accepted.
const minJWTSecretLength = 32

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

var validLogFormats = map[string]bool{
	"json": true, "console": true,
}

// Validate checks the loaded configuration and returns the first problem found.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateSecurity,
		c.validateAuthz,
		c.validateActivation,
		c.validateMail,
		c.validateMaintenance,
		c.validateLogging,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if err := c.validateJWTSecret(); err != nil {
		return err
	}
	if c.Security.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	if !c.Security.RateLimitDisabled {
		if c.Security.RateLimitReqs < 1 {
			return errors.New("RATE_LIMIT_REQUESTS must be at least 1")
		}
		if c.Security.RateLimitWindow <= 0 {
			return errors.New("RATE_LIMIT_WINDOW must be positive")
		}
	}
	if c.Security.LoginRate <= 0 || c.Security.LoginBurst < 1 {
		return errors.New("LOGIN_RATE and LOGIN_BURST must be positive")
	}
	if c.Security.Password.MinLength < 8 {
		return errors.New("PASSWORD_MIN_LENGTH must be at least 8")
	}
	if c.IsProduction() && c.hasWildcardCORS() {
		return errors.New("CORS_ORIGINS must not contain * in production")
	}
	return nil
}

func (c *Config) validateJWTSecret() error {
	secret := c.Security.JWTSecret
	if len(secret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", minJWTSecretLength)
	}
	if containsPlaceholder(secret) {
		return errors.New("JWT_SECRET contains a placeholder value")
	}
	return nil
}

func (c *Config) hasWildcardCORS() bool {
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

func (c *Config) validateAuthz() error {
	a := c.Authz
	if a.GlobalDomain == "" {
		return errors.New("AUTHZ_GLOBAL_DOMAIN must not be empty")
	}
	if a.DefaultRole == "" {
		return errors.New("AUTHZ_DEFAULT_ROLE must not be empty")
	}
	if a.PublicSubject == "" || a.PublicRole == "" {
		return errors.New("AUTHZ_PUBLIC_SUBJECT and AUTHZ_PUBLIC_ROLE must not be empty")
	}
	if a.StoreTimeout <= 0 {
		return errors.New("AUTHZ_STORE_TIMEOUT must be positive")
	}
	if a.ReloadInterval < 0 {
		return errors.New("AUTHZ_RELOAD_INTERVAL must not be negative")
	}
	for table, col := range a.OwnerColumns {
		if col == "" {
			return fmt.Errorf("owner column for table %q must not be empty", table)
		}
	}
	for table, col := range a.DomainColumns {
		if col == "" {
			return fmt.Errorf("domain column for table %q must not be empty", table)
		}
	}
	internal := make(map[string]bool, len(a.UserTypes.InternalRoles))
	for _, r := range a.UserTypes.InternalRoles {
		internal[r] = true
	}
	for _, r := range a.UserTypes.CustomerRoles {
		if internal[r] {
			return fmt.Errorf("role %q cannot be both internal and customer", r)
		}
	}
	return nil
}

func (c *Config) validateActivation() error {
	if c.Activation.CodeLength < 4 || c.Activation.CodeLength > 12 {
		return errors.New("ACTIVATION_CODE_LENGTH must be between 4 and 12")
	}
	if c.Activation.CodeTTL <= 0 || c.Activation.ResetTTL <= 0 {
		return errors.New("ACTIVATION_CODE_TTL and PASSWORD_RESET_TTL must be positive")
	}
	if c.Activation.MaxAttempts < 1 {
		return errors.New("ACTIVATION_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

func (c *Config) validateMail() error {
	if !c.Mail.Enabled {
		return nil
	}
	if c.Mail.From == "" {
		return errors.New("MAIL_FROM is required when mail is enabled")
	}
	if c.Mail.SMTPHost == "" || c.Mail.SMTPPort == 0 {
		return errors.New("SMTP_HOST and SMTP_PORT are required when mail is enabled")
	}
	return nil
}

func (c *Config) validateMaintenance() error {
	if c.Audit.BufferSize < 0 {
		return errors.New("AUDIT_BUFFER_SIZE must not be negative")
	}
	if c.Audit.Retention < 0 {
		return errors.New("AUDIT_RETENTION must not be negative")
	}
	if _, err := cron.ParseStandard(c.Maintenance.Schedule); err != nil {
		return fmt.Errorf("MAINTENANCE_SCHEDULE is not a valid cron expression: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

// placeholderPatterns catch secrets copied from example files.
var placeholderPatterns = []string{
	"REPLACE",
	"CHANGEME",
	"CHANGE_ME",
	"YOUR_SECRET",
	"PLACEHOLDER",
	"EXAMPLE",
}

func containsPlaceholder(value string) bool {
	upper := strings.ToUpper(value)
	for _, pattern := range placeholderPatterns {
		if strings.Contains(upper, pattern) {
			return true
		}
	}
	return false
}
