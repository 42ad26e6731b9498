// Package worker implements the archival worker: it leases jobs from the
// coordinator, fetches work content from the publisher, and uploads the
// results.
package worker

import (
	"fmt"
	"os"
	"time"
)

const (
	// DefaultPollInterval is the sleep between polls of an empty queue.
	DefaultPollInterval = 30 * time.Second

	// DefaultRequestTimeout bounds individual HTTP requests.
	DefaultRequestTimeout = 5 * time.Minute
)

// Config contains worker configuration. Values come from the environment so
// the worker can run as a bare container or cron entry.
type Config struct {
	// CoordinatorURL is the base URL of the coordinator API.
	CoordinatorURL string

	// AdminToken authenticates the worker against the coordinator.
	AdminToken string

	// ClientName identifies this worker in dispatch records.
	ClientName string

	// PublisherURL is the publisher download endpoint template. It is
	// expanded with fmt.Sprintf(PublisherURL, workID, format).
	PublisherURL string

	// Proxy is an optional proxy URL for publisher fetches. Coordinator
	// traffic never goes through it.
	Proxy string

	// PollInterval is how long to sleep when the queue is empty.
	PollInterval time.Duration

	// RequestTimeout bounds individual HTTP requests.
	RequestTimeout time.Duration
}

// FromEnv builds a worker config from the environment.
//
// Recognised variables: DL_SCRIPT_ADDRESS (coordinator base URL),
// ADMIN_TOKEN, DL_SCRIPT_NAME (client name), PUBLISHER_URL, PROXYADDRESS.
func FromEnv() (*Config, error) {
	cfg := &Config{
		CoordinatorURL: os.Getenv("DL_SCRIPT_ADDRESS"),
		AdminToken:     os.Getenv("ADMIN_TOKEN"),
		ClientName:     os.Getenv("DL_SCRIPT_NAME"),
		PublisherURL:   os.Getenv("PUBLISHER_URL"),
		Proxy:          os.Getenv("PROXYADDRESS"),
	}
	cfg.applyDefaults()

	if cfg.CoordinatorURL == "" {
		return nil, fmt.Errorf("DL_SCRIPT_ADDRESS is required")
	}
	if cfg.AdminToken == "" {
		return nil, fmt.Errorf("ADMIN_TOKEN is required")
	}
	if cfg.PublisherURL == "" {
		return nil, fmt.Errorf("PUBLISHER_URL is required")
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ClientName == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "worker"
		}
		c.ClientName = host
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
}
