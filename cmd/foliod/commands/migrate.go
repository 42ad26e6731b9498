package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mirabel-dev/folio/internal/logger"
	"github.com/mirabel-dev/folio/pkg/coordinator/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Run database migrations for the coordinator database.

This command brings the configured database (SQLite or PostgreSQL) up to the
current schema version. Run it after upgrading folio when schema changes have
been made; start also migrates automatically on boot.

Examples:
  # Run migrations with default config
  foliod migrate

  # Run migrations with custom config
  foliod migrate --config /etc/folio/config.yaml`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger.Info("running database migrations", "type", cfg.Database.Type)

	// Opening the store triggers migration.
	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	defer func() { _ = st.Close() }()

	fmt.Printf("Migrations completed successfully (database type: %s, schema version: %d)\n",
		cfg.Database.Type, store.CurrentSchemaVersion)
	return nil
}
