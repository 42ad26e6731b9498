package api

import (
	"time"

	"github.com/mirabel-dev/folio/internal/bytesize"
)

// APIConfig contains HTTP server configuration.
type APIConfig struct {
	// Port is the TCP port the server listens on.
	Port int `mapstructure:"port" yaml:"port"`

	// ReadTimeout bounds reading a whole request, uploads included.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout bounds writing a whole response. Bulk zip streams can be
	// large, so the default is generous.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout bounds keep-alive connections between requests.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// MaxUploadSize caps multipart uploads from workers.
	MaxUploadSize bytesize.ByteSize `mapstructure:"max_upload_size" yaml:"max_upload_size"`

	// CORSOrigins lists the origins allowed to call the public read API.
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// applyDefaults fills in zero-valued fields.
func (c *APIConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8000
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 5 * time.Minute
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 15 * time.Minute
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 2 * time.Minute
	}
	if c.MaxUploadSize == 0 {
		c.MaxUploadSize = 512 * bytesize.MiB
	}
}
