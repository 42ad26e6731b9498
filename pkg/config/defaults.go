package config

import (
	"time"

	"github.com/mirabel-dev/folio/pkg/bulk"
)

// Default values for top-level configuration.
const (
	DefaultLogLevel        = "INFO"
	DefaultLogFormat       = "text"
	DefaultShutdownTimeout = 30 * time.Second
)

// ApplyDefaults fills in default values for any unset configuration fields.
// Idempotent; safe to call on an already-defaulted config.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Bulk.CacheSize == 0 {
		cfg.Bulk.CacheSize = bulk.DefaultCacheSize
	}

	cfg.Database.ApplyDefaults()
	cfg.Blob.ApplyDefaults()
}

// GetDefaultConfig returns a configuration with every default applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
