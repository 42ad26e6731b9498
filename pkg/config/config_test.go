package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirabel-dev/folio/internal/bytesize"
	"github.com/mirabel-dev/folio/pkg/bulk"
	"github.com/mirabel-dev/folio/pkg/coordinator/store"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.Logging.Level)
	assert.Equal(t, DefaultLogFormat, cfg.Logging.Format)
	assert.Equal(t, DefaultShutdownTimeout, cfg.ShutdownTimeout)
	assert.Equal(t, store.DatabaseTypeSQLite, cfg.Database.Type)
	assert.Equal(t, bulk.DefaultCacheSize, cfg.Bulk.CacheSize)
	assert.Empty(t, cfg.Auth.AdminToken)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: DEBUG
  format: json
shutdown_timeout: 10s
database:
  type: sqlite
  sqlite:
    path: /tmp/folio-test.db
api:
  port: 9000
  max_upload_size: 64Mi
  cors_origins:
    - https://reader.example
bulk:
  cache_size: 5
auth:
  admin_token: sekrit
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "/tmp/folio-test.db", cfg.Database.SQLite.Path)
	assert.Equal(t, 9000, cfg.API.Port)
	assert.Equal(t, 64*bytesize.MiB, cfg.API.MaxUploadSize)
	assert.Equal(t, []string{"https://reader.example"}, cfg.API.CORSOrigins)
	assert.Equal(t, 5, cfg.Bulk.CacheSize)
	assert.Equal(t, "sekrit", cfg.Auth.AdminToken)
}

func TestLoadLegacyEnvironmentNames(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("S3_PUBLIC_KEY", "AKIA123")
	t.Setenv("S3_PRIVATE_KEY", "shhh")
	t.Setenv("S3_REGION_NAME", "us-east-1")
	t.Setenv("S3_ENDPOINT", "https://s3.example")
	t.Setenv("S3_BUCKET", "folio-blobs")
	t.Setenv("ADMIN_TOKEN", "worker-secret")
	t.Setenv("POSTGRESQL_HOST", "db.example")
	t.Setenv("POSTGRESQL_DATABASE", "folio")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "AKIA123", cfg.Blob.PublicKey)
	assert.Equal(t, "shhh", cfg.Blob.PrivateKey)
	assert.Equal(t, "us-east-1", cfg.Blob.Region)
	assert.Equal(t, "https://s3.example", cfg.Blob.Endpoint)
	assert.Equal(t, "folio-blobs", cfg.Blob.Bucket)
	assert.Equal(t, "worker-secret", cfg.Auth.AdminToken)
	assert.Equal(t, "db.example", cfg.Database.Postgres.Host)
	assert.Equal(t, "folio", cfg.Database.Postgres.Database)
	assert.True(t, BlobConfigured(cfg))
}

func TestLoadPrefixedEnvironmentOverride(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("FOLIO_LOGGING_LEVEL", "ERROR")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "ERROR", cfg.Logging.Level)
}

func TestValidateRejectsBadLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "LOUD"
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Level")
}

func TestValidatePartialBlobConfig(t *testing.T) {
	cfg := GetDefaultConfig()
	assert.False(t, BlobConfigured(cfg))
	require.NoError(t, Validate(cfg))

	// One field set means the whole section must be complete.
	cfg.Blob.Bucket = "folio-blobs"
	assert.Error(t, Validate(cfg))
}
