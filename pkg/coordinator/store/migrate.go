package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/mirabel-dev/folio/internal/logger"
	"github.com/mirabel-dev/folio/pkg/coordinator/models"
)

// CurrentSchemaVersion is the schema version this build requires.
const CurrentSchemaVersion = 2

// Migrate brings the schema up to CurrentSchemaVersion, one step at a time.
//
// The version is read from version_info. Databases that predate version_info
// are detected by table presence: a database with a queue table is v1, an
// empty database is v0. Each step is idempotent, so an interrupted migration
// resumes cleanly on the next startup.
func (s *GORMStore) Migrate(ctx context.Context) error {
	for {
		version, err := s.schemaVersion(ctx)
		if err != nil {
			return err
		}

		if version == CurrentSchemaVersion {
			logger.Debug("database schema up to date", "version", version)
			return nil
		}

		logger.Info("migrating database schema", "from", version, "to", version+1)

		switch version {
		case 0:
			err = s.migrateV0ToV1(ctx)
		case 1:
			err = s.migrateV1ToV2(ctx)
		default:
			return fmt.Errorf("database schema version %d is newer than this build supports (%d)",
				version, CurrentSchemaVersion)
		}
		if err != nil {
			return fmt.Errorf("schema migration from v%d failed: %w", version, err)
		}
	}
}

// schemaVersion determines the current schema version.
func (s *GORMStore) schemaVersion(ctx context.Context) (int, error) {
	migrator := s.db.WithContext(ctx).Migrator()

	if !migrator.HasTable(&models.VersionInfo{}) {
		if migrator.HasTable(&models.Job{}) {
			return 1, nil
		}
		return 0, nil
	}

	var info models.VersionInfo
	if err := s.db.WithContext(ctx).First(&info).Error; err != nil {
		// An empty version_info table means a migration crashed between
		// creating the table and recording the version; fall back to table
		// presence so the next run resumes instead of wedging.
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if migrator.HasTable(&models.Job{}) {
				return 1, nil
			}
			return 0, nil
		}
		return 0, fmt.Errorf("unable to read database version: %w", err)
	}
	if info.Version == 0 {
		return 0, fmt.Errorf("version_info holds version 0; database is corrupt")
	}
	return info.Version, nil
}

// migrateV0ToV1 creates the initial schema: queue, dispatches, works_storage,
// object_store, object_index and the shared object-id sequence.
// version_info itself arrives with v2, matching the historical layout.
func (s *GORMStore) migrateV0ToV1(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(models.BaseModels()...)
}

// migrateV1ToV2 adds unfetched_objects, object_dispatches and
// duplicate_object_index_mapping, indexes object_index by request_url, drops
// the associated_work column that v1 carried, and records version 2.
func (s *GORMStore) migrateV1ToV2(ctx context.Context) error {
	db := s.db.WithContext(ctx)

	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return err
	}

	migrator := db.Migrator()
	for _, drop := range []struct {
		model  any
		column string
	}{
		{&models.ObjectIndexEntry{}, "associated_work"},
		{&models.UnfetchedObject{}, "associated_work"},
	} {
		if migrator.HasColumn(drop.model, drop.column) {
			if err := migrator.DropColumn(drop.model, drop.column); err != nil {
				return err
			}
		}
	}

	return db.Create(&models.VersionInfo{Version: 2}).Error
}
