// Package logging configures the process-wide slog default logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Profile selects the baseline logger settings before overrides apply.
type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Options controls the default logger. Empty fields keep the profile default.
type Options struct {
	Level  string // debug|info|warn|error
	Format string // text|json
}

// Configure builds a logger for profile and opts, installs it as the slog
// default and returns it.
func Configure(profile Profile, opts Options) *slog.Logger {
	logger := New(os.Stderr, profile, opts)
	slog.SetDefault(logger)
	return logger
}

// New builds a logger writing to w without touching the slog default.
func New(w io.Writer, profile Profile, opts Options) *slog.Logger {
	level, format := defaults(profile)
	if lvl, ok := parseLevel(opts.Level); ok {
		level = lvl
	}
	if f := strings.ToLower(strings.TrimSpace(opts.Format)); f == "json" || f == "text" {
		format = f
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

func defaults(profile Profile) (slog.Level, string) {
	switch profile {
	case ProfileTest:
		return slog.LevelDebug, "text"
	default:
		return slog.LevelInfo, "text"
	}
}

func parseLevel(raw string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
