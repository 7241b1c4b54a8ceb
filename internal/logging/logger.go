// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package logging provides the process-wide zerolog logger for Warden.
//
// All packages log through the helpers here instead of creating their own
// loggers, so level, format and request correlation are configured in one
// place:
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("user", username).Msg("Login succeeded")
//	logging.Ctx(ctx).Warn().Msg("Authorization denied")
//
// Always terminate event chains with Msg or Send, otherwise nothing is written.
package logging

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Config selects level and output format. The zero value logs JSON at
// info level to stderr with timestamps.
type Config struct {
	Level       string    // trace, debug, info, warn, error, fatal, disabled
	Format      string    // json or console
	Caller      bool      // add file:line
	NoTimestamp bool      // drop the time field, for reproducible test output
	Output      io.Writer // default os.Stderr
}

var global atomic.Pointer[zerolog.Logger]

//nolint:gochecknoinits // logging must work before Init is called from main
func init() {
	Init(Config{})
}

// Init reconfigures the global logger. Safe to call more than once and
// concurrently with logging.
func Init(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.TimestampFieldName = "time"
	zerolog.MessageFieldName = "message"

	c := zerolog.New(out).With()
	if !cfg.NoTimestamp {
		c = c.Timestamp()
	}
	if cfg.Caller {
		c = c.Caller()
	}
	SetLogger(c.Logger())
}

// parseLevel maps a level name to zerolog. Unknown and empty names are info.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func current() *zerolog.Logger {
	return global.Load()
}

// Logger returns a copy of the global logger.
func Logger() zerolog.Logger {
	return *current()
}

// SetLogger replaces the global logger. Tests use it to capture output.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func SetLogger(l zerolog.Logger) {
	global.Store(&l)
}

// With starts a child logger context.
func With() zerolog.Context { return current().With() }

// Debug starts a debug message.
func Debug() *zerolog.Event { return current().Debug() }

// Info starts an info message.
func Info() *zerolog.Event { return current().Info() }

// Warn starts a warn message.
func Warn() *zerolog.Event { return current().Warn() }

// Error starts an error message.
func Error() *zerolog.Event { return current().Error() }

// Fatal starts a fatal message; Msg exits the process with status 1.
func Fatal() *zerolog.Event { return current().Fatal() }

// Err starts an error message carrying err, or an info message if err is nil.
func Err(err error) *zerolog.Event { return current().Err(err) }

// NewTestLogger returns a JSON logger writing to w at debug level.
func NewTestLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).Level(zerolog.DebugLevel).With().Timestamp().Logger()
}
