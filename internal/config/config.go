// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all client configuration.
type Config struct {
	// Server
	ServerURL string

	// Logging
	LogLevel  string
	LogFormat string

	// Local storage
	DataDir      string // root for secure store and bulk store directories
	OfflineCache bool   // whether offline caching is enabled by default

	// HTTP
	RequestTimeout time.Duration

	// Network monitor
	HealthCheckPeriod time.Duration

	// Metrics (optional listener; empty disables it)
	MetricsAddr string
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ServerURL:         envOr("HOMESYNC_SERVER_URL", "http://localhost:8000/api"),
		LogLevel:          envOr("HOMESYNC_LOG_LEVEL", "info"),
		LogFormat:         envOr("HOMESYNC_LOG_FORMAT", "console"),
		DataDir:           envOr("HOMESYNC_DATA_DIR", defaultDataDir()),
		OfflineCache:      envBool("HOMESYNC_OFFLINE_CACHE", true),
		RequestTimeout:    envDuration("HOMESYNC_REQUEST_TIMEOUT", 30*time.Second),
		HealthCheckPeriod: envDuration("HOMESYNC_HEALTH_CHECK_PERIOD", 30*time.Second),
		MetricsAddr:       envOr("HOMESYNC_METRICS_ADDR", ""),
	}

	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("HOMESYNC_SERVER_URL must not be empty")
	}
	return cfg, nil
}

// SecureDir returns the directory for the encrypted small-object store.
func (c *Config) SecureDir() string {
	return filepath.Join(c.DataDir, "secure")
}

// BulkDir returns the directory for the bulk store database.
func (c *Config) BulkDir() string {
	return filepath.Join(c.DataDir, "bulk")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".homesync"
	}
	return filepath.Join(home, ".homesync")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
