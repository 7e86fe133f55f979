// Package config provides configuration management for the servers.
// This file contains the lightweight configuration for standalone operation.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external databases and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir string // Base directory for data files

	// Cache settings
	CacheMaxItems int           // Maximum items in memory cache
	CacheTTL      time.Duration // Default cache TTL

	// Audit settings
	AuditSecret   string // HMAC key for pack signatures
	VerifyBaseURL string // Prefix of the verify_url stamped on each pack

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".lirads-audit")

	return &LiteConfig{
		DataDir:       dataDir,
		CacheMaxItems: 1000,
		CacheTTL:      10 * time.Minute,
		LogLevel:      "info",
		LogFormat:     "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("LIRADS_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := os.Getenv("LIRADS_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("LIRADS_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}

	cfg.AuditSecret = os.Getenv("LIRADS_AUDIT_SECRET")
	cfg.VerifyBaseURL = os.Getenv("LIRADS_VERIFY_BASE_URL")

	if v := os.Getenv("LIRADS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LIRADS_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// PacksDBPath returns the path to the audit pack SQLite database.
func (c *LiteConfig) PacksDBPath() string {
	return filepath.Join(c.DataDir, "packs.db")
}

// SecondReadingsDBPath returns the path to the second-reading SQLite database.
func (c *LiteConfig) SecondReadingsDBPath() string {
	return filepath.Join(c.DataDir, "second_readings.db")
}

// ExportDir returns the directory for JSON exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}
