package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/mirabel-dev/folio/pkg/coordinator/models"
)

// GetStorageEntry loads a storage entry by id.
func (s *GORMStore) GetStorageEntry(ctx context.Context, storageID int64) (*models.StorageEntry, error) {
	var entry models.StorageEntry
	if err := s.db.WithContext(ctx).First(&entry, "storage_id = ?", storageID).Error; err != nil {
		return nil, convertNotFoundError(err, models.ErrWorkNotFound)
	}
	return &entry, nil
}

// GetHead returns the entry holding the full blob for (work_id, file_format),
// or nil when the pair has never been stored.
func (s *GORMStore) GetHead(ctx context.Context, workID int64, format models.FileFormat) (*models.StorageEntry, error) {
	var entry models.StorageEntry
	err := s.db.WithContext(ctx).
		Where("work_id = ? AND file_format = ? AND patch_of IS NULL", workID, format).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListWorkVersions returns every storage entry for a work, all formats mixed,
// newest upload first.
func (s *GORMStore) ListWorkVersions(ctx context.Context, workID int64) ([]models.StorageEntry, error) {
	var entries []models.StorageEntry
	err := s.db.WithContext(ctx).
		Where("work_id = ?", workID).
		Order("uploaded_time DESC").
		Find(&entries).Error
	return entries, err
}

// CreateStorageEntry inserts a new storage entry.
func (s *GORMStore) CreateStorageEntry(ctx context.Context, entry *models.StorageEntry) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// SetPatchOf points an entry at the newer entry whose delta now occupies its
// blob. Called exactly once per entry, when it stops being HEAD.
func (s *GORMStore) SetPatchOf(ctx context.Context, storageID, patchOf int64) error {
	result := s.db.WithContext(ctx).
		Model(&models.StorageEntry{}).
		Where("storage_id = ?", storageID).
		Update("patch_of", patchOf)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrWorkNotFound
	}
	return nil
}

// WorkExists reports whether any version of the work is stored, in any format.
func (s *GORMStore) WorkExists(ctx context.Context, workID int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.StorageEntry{}).
		Where("work_id = ?", workID).
		Count(&count).Error
	return count > 0, err
}

// HasVersionAtOrAfter reports whether a storage entry for (work_id, format)
// exists with updated_time at or after the given publisher timestamp.
// Used by admission to answer "already archived".
func (s *GORMStore) HasVersionAtOrAfter(ctx context.Context, workID int64, format models.FileFormat, updatedTime int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.StorageEntry{}).
		Where("work_id = ? AND file_format = ? AND updated_time >= ?", workID, format, updatedTime).
		Count(&count).Error
	return count > 0, err
}
