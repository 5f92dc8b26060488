// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	PanelURL          string
	PanelToken        string
	TickInterval      time.Duration
	RemoteTimeout     time.Duration
	DivergenceTimeout time.Duration
	ReconcileInterval time.Duration // 0 disables periodic reconciliation.
	ListenAddr        string
	DBPath            string
	SecretKey         []byte // nil when PANELSYNC_SECRET_KEY is unset.
	LogLevel          string
	LogFormat         string
}

// HasPanelCredentials returns true when both PanelURL and PanelToken are
// non-empty. Stored credentials may still supply them at startup.
func (c *Config) HasPanelCredentials() bool {
	return c.PanelURL != "" && c.PanelToken != ""
}

// Load reads configuration from an optional .env file and PANELSYNC_ environment
// variables and returns a validated Config. Variables already set in the
// environment win over .env entries. Panel credentials are optional; without
// them the service starts with renewal and reconciliation inactive until
// credentials are stored through the API.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{
		PanelURL:   os.Getenv("PANELSYNC_PANEL_URL"),
		PanelToken: os.Getenv("PANELSYNC_PANEL_TOKEN"),
		ListenAddr: "127.0.0.1:8080",
		DBPath:     "panelsync.db",
		LogLevel:   "info",
		LogFormat:  "text",
	}

	var err error
	if cfg.TickInterval, err = durationEnv("PANELSYNC_TICK_INTERVAL", time.Minute, false); err != nil {
		return nil, err
	}
	if cfg.RemoteTimeout, err = durationEnv("PANELSYNC_REMOTE_TIMEOUT", 15*time.Second, false); err != nil {
		return nil, err
	}
	if cfg.DivergenceTimeout, err = durationEnv("PANELSYNC_DIVERGENCE_TIMEOUT", 10*time.Second, false); err != nil {
		return nil, err
	}
	if cfg.ReconcileInterval, err = durationEnv("PANELSYNC_RECONCILE_INTERVAL", 0, true); err != nil {
		return nil, err
	}

	if v, ok := os.LookupEnv("PANELSYNC_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("PANELSYNC_DB_PATH"); ok {
		cfg.DBPath = v
	}

	if v, ok := os.LookupEnv("PANELSYNC_SECRET_KEY"); ok && v != "" {
		key, err := hex.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("PANELSYNC_SECRET_KEY is not valid hex: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("PANELSYNC_SECRET_KEY must be 64 hex characters (32 bytes), got %d bytes", len(key))
		}
		cfg.SecretKey = key
	}

	if v, ok := os.LookupEnv("PANELSYNC_LOG_LEVEL"); ok && v != "" {
		level := strings.ToLower(strings.TrimSpace(v))
		switch level {
		case "debug", "info", "warn", "error":
			cfg.LogLevel = level
		default:
			return nil, fmt.Errorf("PANELSYNC_LOG_LEVEL has invalid value %q", v)
		}
	}

	if v, ok := os.LookupEnv("PANELSYNC_LOG_FORMAT"); ok && v != "" {
		format := strings.ToLower(strings.TrimSpace(v))
		switch format {
		case "text", "json":
			cfg.LogFormat = format
		default:
			return nil, fmt.Errorf("PANELSYNC_LOG_FORMAT has invalid value %q", v)
		}
	}

	return cfg, nil
}

func durationEnv(key string, fallback time.Duration, allowZero bool) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if parsed < 0 || (parsed == 0 && !allowZero) {
		return 0, fmt.Errorf("%s must be positive, got %s", key, v)
	}

	return parsed, nil
}
