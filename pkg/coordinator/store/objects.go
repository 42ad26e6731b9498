package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/mirabel-dev/folio/pkg/coordinator/models"
)

// AllocateObjectID draws the next id from the sequence shared by
// object_index and unfetched_objects. Allocation happens inside the caller's
// transaction, so an aborted store never leaks a visible id.
func (s *GORMStore) AllocateObjectID(ctx context.Context) (int64, error) {
	alloc := models.ObjectIDAlloc{}
	if err := s.db.WithContext(ctx).Create(&alloc).Error; err != nil {
		return 0, err
	}
	return alloc.ID, nil
}

// CreateUnfetchedObject inserts an unfetched-object row.
func (s *GORMStore) CreateUnfetchedObject(ctx context.Context, obj *models.UnfetchedObject) error {
	return s.db.WithContext(ctx).Create(obj).Error
}

// GetUnfetchedObject loads an unfetched object by id.
func (s *GORMStore) GetUnfetchedObject(ctx context.Context, objectID int64) (*models.UnfetchedObject, error) {
	var obj models.UnfetchedObject
	if err := s.db.WithContext(ctx).First(&obj, "object_id = ?", objectID).Error; err != nil {
		return nil, convertNotFoundError(err, models.ErrObjectNotFound)
	}
	return &obj, nil
}

// DeleteUnfetchedObject removes an unfetched-object row.
func (s *GORMStore) DeleteUnfetchedObject(ctx context.Context, objectID int64) error {
	return s.db.WithContext(ctx).
		Delete(&models.UnfetchedObject{}, "object_id = ?", objectID).Error
}

// ListUnfetchedObjects returns unfetched rows for the given ids.
func (s *GORMStore) ListUnfetchedObjects(ctx context.Context, objectIDs []int64) ([]models.UnfetchedObject, error) {
	var objs []models.UnfetchedObject
	err := s.db.WithContext(ctx).
		Where("object_id IN ?", objectIDs).
		Find(&objs).Error
	return objs, err
}

// FindObjectIndex returns the index entry matching (request_url, etag, sha1),
// or nil when none exists.
func (s *GORMStore) FindObjectIndex(ctx context.Context, requestURL, etag, sha1 string) (*models.ObjectIndexEntry, error) {
	var entry models.ObjectIndexEntry
	err := s.db.WithContext(ctx).
		Where("request_url = ? AND etag = ? AND sha1 = ?", requestURL, etag, sha1).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetObjectIndex loads an index entry by object id, or nil when absent.
func (s *GORMStore) GetObjectIndex(ctx context.Context, objectID int64) (*models.ObjectIndexEntry, error) {
	var entry models.ObjectIndexEntry
	err := s.db.WithContext(ctx).First(&entry, "object_id = ?", objectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// CreateObjectIndexEntry inserts an object_index row.
func (s *GORMStore) CreateObjectIndexEntry(ctx context.Context, entry *models.ObjectIndexEntry) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// FindObjectStoreBySHA1 returns the deduplicated payload entry for a hash,
// or nil when the payload has never been stored.
func (s *GORMStore) FindObjectStoreBySHA1(ctx context.Context, sha1 string) (*models.ObjectStoreEntry, error) {
	var entry models.ObjectStoreEntry
	err := s.db.WithContext(ctx).Where("sha1 = ?", sha1).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// CreateObjectStoreEntry inserts an object_store row. The sha1 column is
// unique; a racing insert surfaces as a constraint error and aborts the
// caller's transaction, which is safe to retry.
func (s *GORMStore) CreateObjectStoreEntry(ctx context.Context, entry *models.ObjectStoreEntry) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// CreateDuplicateMapping records object_id → duplicate_object_id so URLs
// rewritten with the old id keep resolving.
func (s *GORMStore) CreateDuplicateMapping(ctx context.Context, mapping *models.DuplicateObjectMapping) error {
	return s.db.WithContext(ctx).Create(mapping).Error
}

// GetDuplicateMapping loads a duplicate mapping by object id, or nil.
func (s *GORMStore) GetDuplicateMapping(ctx context.Context, objectID int64) (*models.DuplicateObjectMapping, error) {
	var mapping models.DuplicateObjectMapping
	err := s.db.WithContext(ctx).First(&mapping, "object_id = ?", objectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

// ResolveObject maps a public /objects/<id> to its stored payload, following
// one duplicate-mapping hop if needed. Returns ErrObjectNotFound for ids that
// are unknown or still unfetched.
func (s *GORMStore) ResolveObject(ctx context.Context, objectID int64) (*models.ObjectIndexEntry, *models.ObjectStoreEntry, error) {
	index, err := s.GetObjectIndex(ctx, objectID)
	if err != nil {
		return nil, nil, err
	}

	if index == nil {
		mapping, err := s.GetDuplicateMapping(ctx, objectID)
		if err != nil {
			return nil, nil, err
		}
		if mapping == nil {
			return nil, nil, models.ErrObjectNotFound
		}
		index, err = s.GetObjectIndex(ctx, mapping.DuplicateObjectID)
		if err != nil {
			return nil, nil, err
		}
		if index == nil {
			return nil, nil, models.ErrObjectNotFound
		}
	}

	stored, err := s.FindObjectStoreBySHA1(ctx, index.SHA1)
	if err != nil {
		return nil, nil, err
	}
	if stored == nil {
		return nil, nil, models.ErrObjectNotFound
	}
	return index, stored, nil
}
