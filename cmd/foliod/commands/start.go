package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mirabel-dev/folio/internal/logger"
	"github.com/mirabel-dev/folio/pkg/api"
	"github.com/mirabel-dev/folio/pkg/bulk"
	"github.com/mirabel-dev/folio/pkg/config"
	"github.com/mirabel-dev/folio/pkg/coordinator"
	"github.com/mirabel-dev/folio/pkg/coordinator/store"
	"github.com/mirabel-dev/folio/pkg/metrics"
	"github.com/mirabel-dev/folio/pkg/store/blob"
	"github.com/mirabel-dev/folio/pkg/store/blob/memory"
	"github.com/mirabel-dev/folio/pkg/store/blob/s3"
)

var allowMemoryBlobs bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the folio coordinator",
	Long: `Start the folio coordinator with the specified configuration.

The coordinator serves the public read API and the worker protocol on a
single port and runs the lease heartbeat in the background.

Examples:
  # Start with default config
  foliod start

  # Start with custom config file
  foliod start --config /etc/folio/config.yaml

  # Start with environment variable overrides
  FOLIO_LOGGING_LEVEL=DEBUG foliod start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVar(&allowMemoryBlobs, "memory-blobs", false,
		"Use an in-memory blob store instead of S3 (payloads are lost on restart)")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting folio coordinator",
		"version", Version,
		"database", cfg.Database.Type,
		"port", cfg.API.Port,
	)

	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = st.Close() }()

	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	coord := coordinator.New(st, blobs)

	bulkManager, err := bulk.NewManager(coord, cfg.Bulk.CacheSize)
	if err != nil {
		return fmt.Errorf("failed to create bulk download manager: %w", err)
	}

	if cfg.Auth.AdminToken == "" {
		logger.Warn("no admin token configured; worker endpoints are disabled")
	}

	server := api.NewServer(cfg.API, api.RouterDeps{
		Coordinator: coord,
		Bulk:        bulkManager,
		AdminToken:  cfg.Auth.AdminToken,
	})

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Start(groupCtx)
	})
	group.Go(func() error {
		return coord.RunHeartbeat(groupCtx)
	})

	logger.Info("coordinator is running. Press Ctrl+C to stop.")

	if err := group.Wait(); err != nil && err != context.Canceled {
		return err
	}
	logger.Info("coordinator stopped gracefully")
	return nil
}

// openBlobStore opens the configured payload store. S3 is the production
// backend; the in-memory store is for local experimentation only.
func openBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	if config.BlobConfigured(cfg) {
		s3Store, err := s3.New(ctx, cfg.Blob, metrics.BlobMetrics{})
		if err != nil {
			return nil, fmt.Errorf("failed to open S3 blob store: %w", err)
		}
		logger.Info("blob storage ready",
			"endpoint", cfg.Blob.Endpoint,
			"bucket", cfg.Blob.Bucket,
		)
		return s3Store, nil
	}

	if !allowMemoryBlobs {
		return nil, fmt.Errorf("blob storage not configured: set the S3_* variables or pass --memory-blobs")
	}
	logger.Warn("using in-memory blob store; payloads are lost on restart")
	return memory.New(), nil
}
