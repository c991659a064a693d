// Package config loads and validates configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all library configuration.
type Config struct {
	// Store settings.
	DBPath string // SQLite database file; ":memory:" for a throwaway store.

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel     string
	BusyTimeout  time.Duration // SQLite busy handler budget.
	ShutdownWait time.Duration // Budget for flushing telemetry on Close.
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		DBPath:       envStr("KIROKU_DB_PATH", "kiroku.db"),
		OTELEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure: envBool("KIROKU_OTEL_INSECURE", false),
		ServiceName:  envStr("OTEL_SERVICE_NAME", "kiroku"),
		LogLevel:     envStr("KIROKU_LOG_LEVEL", "info"),
		BusyTimeout:  envDuration("KIROKU_BUSY_TIMEOUT", 5*time.Second),
		ShutdownWait: envDuration("KIROKU_SHUTDOWN_WAIT", 5*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("config: KIROKU_DB_PATH is required")
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("config: KIROKU_BUSY_TIMEOUT must not be negative")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
