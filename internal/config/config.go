// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package config loads Warden configuration with Koanf v2.
//
// Loading order (later layers win):
//  1. Defaults from defaultConfig()
//  2. Optional YAML file (CONFIG_PATH, ./config.yaml, /etc/warden/config.yaml)
//  3. Environment variables listed in envTransformFunc
//
// Config is immutable after Load and safe for concurrent reads.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	Security    SecurityConfig    `koanf:"security"`
	Authz       AuthzConfig       `koanf:"authz"`
	Activation  ActivationConfig  `koanf:"activation"`
	Mail        MailConfig        `koanf:"mail"`
	Audit       AuditConfig       `koanf:"audit"`
	Maintenance MaintenanceConfig `koanf:"maintenance"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"` // development, staging, production
}

// DatabaseConfig holds DuckDB settings
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = NumCPU

	// UserCacheSize bounds the username -> id LRU used by authorization.
	UserCacheSize int `koanf:"user_cache_size"`
}

// SecurityConfig holds authentication, token and rate limit settings.
//
// Environment Variables:
//   - JWT_SECRET: HMAC secret for access tokens (required, 32+ chars)
//   - TOKEN_TTL: access token lifetime (default: 24h)
//   - RATE_LIMIT_REQUESTS / RATE_LIMIT_WINDOW: per-IP limit for /v1 routes
//   - CORS_ORIGINS: comma-separated allowed origins
//   - BLOCKLIST_PATH: BadgerDB directory for revoked tokens ("" = in-memory)
type SecurityConfig struct {
	JWTSecret         string        `koanf:"jwt_secret"`
	TokenTTL          time.Duration `koanf:"token_ttl"`
	Issuer            string        `koanf:"issuer"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	BlocklistPath     string        `koanf:"blocklist_path"`

	// LoginRate is the sustained login attempts per minute allowed per username.
	LoginRate  float64 `koanf:"login_rate"`
	LoginBurst int     `koanf:"login_burst"`

	Password PasswordPolicyConfig `koanf:"password"`
}

// PasswordPolicyConfig holds the password rules applied on registration,
// reset and change.
type PasswordPolicyConfig struct {
	MinLength        int  `koanf:"min_length"`
	RequireUppercase bool `koanf:"require_uppercase"`
	RequireLowercase bool `koanf:"require_lowercase"`
	RequireDigit     bool `koanf:"require_digit"`
	RequireSpecial   bool `koanf:"require_special"`
}

// AuthzConfig holds the authorization engine settings.
//
// Environment Variables:
//   - AUTHZ_MODEL_PATH: model file (default: embedded model.conf)
//   - AUTHZ_POLICY_PATH: seed policy CSV (default: embedded policy.csv)
//   - AUTHZ_GLOBAL_DOMAIN: domain whose grants apply everywhere (default: 0)
//   - AUTHZ_DEFAULT_ROLE: role granted on activation (default: enduser)
//   - AUTHZ_RELOAD_INTERVAL: policy reload from storage, 0 disables (default: 1m)
//   - AUTHZ_STORE_TIMEOUT: timeout for policy storage I/O (default: 5s)
//   - AUTHZ_INTERNAL_ROLES / AUTHZ_CUSTOMER_ROLES: comma-separated role names
type AuthzConfig struct {
	ModelPath      string        `koanf:"model_path"`
	PolicyPath     string        `koanf:"policy_path"`
	GlobalDomain   string        `koanf:"global_domain"`
	DefaultRole    string        `koanf:"default_role"`
	PublicSubject  string        `koanf:"public_subject"`
	PublicRole     string        `koanf:"public_role"`
	ReloadInterval time.Duration `koanf:"reload_interval"`
	StoreTimeout   time.Duration `koanf:"store_timeout"`

	// OwnerColumns maps a table to the column holding the owning user id.
	// End users are checked against it.
	OwnerColumns map[string]string `koanf:"owner_columns"`

	// DomainColumns maps a table to the column holding the owning domain.
	// Customers are checked against it, with the request domain as identity.
	DomainColumns map[string]string `koanf:"domain_columns"`

	UserTypes UserTypeConfig `koanf:"user_types"`
}

// UserTypeConfig is the role-name to user-type mapping.
type UserTypeConfig struct {
	InternalRoles []string `koanf:"internal_roles"`
	CustomerRoles []string `koanf:"customer_roles"`
}

// ActivationConfig holds activation and password reset code settings.
type ActivationConfig struct {
	CodeLength  int           `koanf:"code_length"`
	CodeTTL     time.Duration `koanf:"code_ttl"`
	ResetTTL    time.Duration `koanf:"reset_ttl"`
	MaxAttempts int           `koanf:"max_attempts"`
}

// MailConfig holds SMTP delivery settings. When disabled, messages are
// written to the log instead of being sent.
type MailConfig struct {
	Enabled      bool   `koanf:"enabled"`
	From         string `koanf:"from"`
	SMTPHost     string `koanf:"smtp_host"`
	SMTPPort     int    `koanf:"smtp_port"`
	SMTPUsername string `koanf:"smtp_username"`
	SMTPPassword string `koanf:"smtp_password"`
}

// AuditConfig holds event log settings.
type AuditConfig struct {
	Enabled    bool          `koanf:"enabled"`
	BufferSize int           `koanf:"buffer_size"`
	Retention  time.Duration `koanf:"retention"`
}

// MaintenanceConfig holds the cron schedule for purging expired data.
type MaintenanceConfig struct {
	Schedule string `koanf:"schedule"`
}

// LoggingConfig holds logging settings for zerolog.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Load loads configuration with Koanf. See LoadWithKoanf.
func Load() (*Config, error) {
	return LoadWithKoanf()
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
