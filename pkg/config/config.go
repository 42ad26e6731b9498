// Package config loads and validates the coordinator configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/mirabel-dev/folio/internal/bytesize"
	"github.com/mirabel-dev/folio/pkg/api"
	"github.com/mirabel-dev/folio/pkg/coordinator/store"
	"github.com/mirabel-dev/folio/pkg/store/blob/s3"
)

// Config represents the coordinator configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (FOLIO_* plus the legacy exact names below)
//  2. Configuration file (YAML)
//  3. Default values
//
// A handful of deployment secrets keep their historical unprefixed
// environment names so existing deployments carry over: S3_PUBLIC_KEY,
// S3_PRIVATE_KEY, S3_REGION_NAME, S3_ENDPOINT, S3_BUCKET, ADDRESS_STYLE,
// POSTGRESQL_HOST, POSTGRESQL_PORT, POSTGRESQL_DATABASE, POSTGRESQL_USER,
// POSTGRESQL_PASSWORD, and ADMIN_TOKEN.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Database configures the metadata database (SQLite or PostgreSQL).
	Database store.Config `mapstructure:"database" yaml:"database"`

	// Blob configures the S3-compatible payload store.
	Blob s3.Config `mapstructure:"blob" yaml:"blob"`

	// API contains HTTP server configuration.
	API api.APIConfig `mapstructure:"api" yaml:"api"`

	// Auth contains the worker protocol shared secret.
	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`

	// Bulk configures the bulk download cache.
	Bulk BulkConfig `mapstructure:"bulk" yaml:"bulk"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
}

// AuthConfig contains the worker protocol shared secret.
type AuthConfig struct {
	// AdminToken guards the leasing and upload endpoints. Empty disables
	// the whole worker surface.
	AdminToken string `mapstructure:"admin_token" yaml:"admin_token,omitempty"`
}

// BulkConfig configures bulk zip downloads.
type BulkConfig struct {
	// CacheSize bounds the number of prepared downloads held at once.
	CacheSize int `mapstructure:"cache_size" validate:"omitempty,gt=0" yaml:"cache_size"`
}

// Load loads configuration from file, environment, and defaults.
//
// An empty configPath uses the default location; a missing file is not an
// error and yields the defaults plus environment overrides.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures environment variables and config file lookup.
func setupViper(v *viper.Viper, configPath string) {
	// FOLIO_ prefixed variables map onto config keys with underscores.
	// Example: FOLIO_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("FOLIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees keys viper knows about, so register every key
	// that can arrive through the environment alone.
	for _, key := range []string{
		"logging.level", "logging.format",
		"shutdown_timeout",
		"database.type", "database.sqlite.path",
		"database.postgres.ssl_mode",
		"api.port", "api.read_timeout", "api.write_timeout",
		"api.idle_timeout", "api.max_upload_size", "api.cors_origins",
		"bulk.cache_size",
		"blob.max_retries", "blob.initial_backoff",
	} {
		_ = v.BindEnv(key)
	}

	// Legacy exact names, kept compatible with existing deployments.
	bindings := map[string]string{
		"blob.public_key":            "S3_PUBLIC_KEY",
		"blob.private_key":           "S3_PRIVATE_KEY",
		"blob.region":                "S3_REGION_NAME",
		"blob.endpoint":              "S3_ENDPOINT",
		"blob.bucket":                "S3_BUCKET",
		"blob.address_style":         "ADDRESS_STYLE",
		"database.postgres.host":     "POSTGRESQL_HOST",
		"database.postgres.port":     "POSTGRESQL_PORT",
		"database.postgres.database": "POSTGRESQL_DATABASE",
		"database.postgres.user":     "POSTGRESQL_USER",
		"database.postgres.password": "POSTGRESQL_PASSWORD",
		"auth.admin_token":           "ADMIN_TOKEN",
	}
	for key, env := range bindings {
		// BindEnv only errors on an empty key.
		_ = v.BindEnv(key, env)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing file
// is acceptable; the defaults apply.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// byteSizeDecodeHook converts strings and numbers to bytesize.ByteSize so
// config files can say "512Mi" or "100MB".
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, falling back to the
// current directory if no home directory can be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "folio")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "folio")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
