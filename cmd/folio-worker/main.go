// Command folio-worker runs the archival worker loop against a coordinator.
//
// Configuration comes entirely from the environment: DL_SCRIPT_ADDRESS,
// ADMIN_TOKEN, PUBLISHER_URL, and optionally DL_SCRIPT_NAME and PROXYADDRESS.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mirabel-dev/folio/internal/logger"
	"github.com/mirabel-dev/folio/pkg/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := logger.Init(logger.Config{
		Level:  envOr("LOG_LEVEL", "INFO"),
		Format: envOr("LOG_FORMAT", "text"),
		Output: "stdout",
	}); err != nil {
		return err
	}

	cfg, err := worker.FromEnv()
	if err != nil {
		return err
	}

	w, err := worker.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
