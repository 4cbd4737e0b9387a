/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/

// Package logging provides structured logging for shipit components.
//
// It wraps the standard library slog package with project defaults: JSON
// output to stderr, module/version context on every record, log level from
// the LOG_LEVEL environment variable (or an explicit override), and source
// location tracking when the level is debug.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// envLogLevel is the environment variable controlling log verbosity.
const envLogLevel = "LOG_LEVEL"

// ParseLevel converts a level string to a slog.Level. It is case-insensitive
// and accepts debug, info, warn, warning, and error. Unknown or empty values
// default to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewStructuredLogger creates a JSON slog.Logger writing to stderr with
// module and version attributes attached to every record. Debug level
// enables source location tracking.
func NewStructuredLogger(module, version, level string) *slog.Logger {
	lvl := ParseLevel(level)
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	})
	return slog.New(handler).With(
		"module", module,
		"version", version,
	)
}

// SetDefaultStructuredLoggerWithLevel installs a structured logger as the
// slog default. An empty level falls back to the LOG_LEVEL environment
// variable.
func SetDefaultStructuredLoggerWithLevel(module, version, level string) {
	if level == "" {
		level = os.Getenv(envLogLevel)
	}
	slog.SetDefault(NewStructuredLogger(module, version, level))
}
