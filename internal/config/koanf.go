// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/warden/config.yaml",
	"/etc/warden/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Environment:     "development",
		},
		Database: DatabaseConfig{
			Path:          "/data/warden.duckdb",
			MaxMemory:     "512MB",
			Threads:       0,
			UserCacheSize: 4096,
		},
		Security: SecurityConfig{
			TokenTTL:        24 * time.Hour,
			Issuer:          "warden",
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
			BlocklistPath:   "",
			LoginRate:       5,
			LoginBurst:      5,
			Password: PasswordPolicyConfig{
				MinLength:        10,
				RequireUppercase: false,
				RequireLowercase: true,
				RequireDigit:     true,
				RequireSpecial:   false,
			},
		},
		Authz: AuthzConfig{
			GlobalDomain:   "0",
			DefaultRole:    "enduser",
			PublicSubject:  "public",
			PublicRole:     "public",
			ReloadInterval: time.Minute,
			StoreTimeout:   5 * time.Second,
			OwnerColumns: map[string]string{
				"mra_users":        "user_id",
				"mra_user_details": "user_id",
				"mra_tickets":      "user_id",
			},
			DomainColumns: map[string]string{
				"casbin_rule":   "v2",
				"event_log":     "domain",
				"mra_customers": "customer_id",
				"mra_users":     "customer_id",
				"mra_tickets":   "customer_id",
			},
			UserTypes: UserTypeConfig{
				InternalRoles: []string{"admin", "support"},
				CustomerRoles: []string{"customer_admin", "customer_user"},
			},
		},
		Activation: ActivationConfig{
			CodeLength:  6,
			CodeTTL:     24 * time.Hour,
			ResetTTL:    time.Hour,
			MaxAttempts: 5,
		},
		Mail: MailConfig{
			Enabled:  false,
			From:     "no-reply@localhost",
			SMTPPort: 587,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			Retention:  90 * 24 * time.Hour,
		},
		Maintenance: MaintenanceConfig{
			Schedule: "@hourly",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults
//  2. Config file (optional)
//  3. Environment variables
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file, or "" if none.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"security.cors_origins",
	"authz.user_types.internal_roles",
	"authz.user_types.customer_roles",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars arrive as strings; YAML values are already slices and are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf paths.
// Unlisted variables are dropped so unrelated environment does not leak
// into configuration.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - DUCKDB_PATH -> database.path
//   - JWT_SECRET -> security.jwt_secret
//   - AUTHZ_GLOBAL_DOMAIN -> authz.global_domain
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server
		"http_port":        "server.port",
		"http_host":        "server.host",
		"http_timeout":     "server.timeout",
		"shutdown_timeout": "server.shutdown_timeout",
		"environment":      "server.environment",

		// Database
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",
		"user_cache_size":   "database.user_cache_size",

		// Security
		"jwt_secret":                 "security.jwt_secret",
		"token_ttl":                  "security.token_ttl",
		"token_issuer":               "security.issuer",
		"rate_limit_requests":        "security.rate_limit_reqs",
		"rate_limit_window":          "security.rate_limit_window",
		"disable_rate_limit":         "security.rate_limit_disabled",
		"cors_origins":               "security.cors_origins",
		"blocklist_path":             "security.blocklist_path",
		"login_rate":                 "security.login_rate",
		"login_burst":                "security.login_burst",
		"password_min_length":        "security.password.min_length",
		"password_require_uppercase": "security.password.require_uppercase",
		"password_require_lowercase": "security.password.require_lowercase",
		"password_require_digit":     "security.password.require_digit",
		"password_require_special":   "security.password.require_special",

		// Authorization
		"authz_model_path":      "authz.model_path",
		"authz_policy_path":     "authz.policy_path",
		"authz_global_domain":   "authz.global_domain",
		"authz_default_role":    "authz.default_role",
		"authz_public_subject":  "authz.public_subject",
		"authz_public_role":     "authz.public_role",
		"authz_reload_interval": "authz.reload_interval",
		"authz_store_timeout":   "authz.store_timeout",
		"authz_internal_roles":  "authz.user_types.internal_roles",
		"authz_customer_roles":  "authz.user_types.customer_roles",

		// Activation
		"activation_code_length":  "activation.code_length",
		"activation_code_ttl":     "activation.code_ttl",
		"password_reset_ttl":      "activation.reset_ttl",
		"activation_max_attempts": "activation.max_attempts",

		// Mail
		"mail_enabled":  "mail.enabled",
		"mail_from":     "mail.from",
		"smtp_host":     "mail.smtp_host",
		"smtp_port":     "mail.smtp_port",
		"smtp_username": "mail.smtp_username",
		"smtp_password": "mail.smtp_password",

		// Audit and maintenance
		"audit_enabled":        "audit.enabled",
		"audit_buffer_size":    "audit.buffer_size",
		"audit_retention":      "audit.retention",
		"maintenance_schedule": "maintenance.schedule",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
