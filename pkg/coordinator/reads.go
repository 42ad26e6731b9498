package coordinator

import (
	"context"

	"github.com/mirabel-dev/folio/pkg/coordinator/models"
)

// WorkExists reports whether any version of the work is archived.
func (c *Coordinator) WorkExists(ctx context.Context, workID int64) (bool, error) {
	return c.store.WorkExists(ctx, workID)
}

// WorkVersions lists every stored version of a work, newest upload first,
// all formats mixed. The caller decides how to present them.
func (c *Coordinator) WorkVersions(ctx context.Context, workID int64) ([]models.StorageEntry, error) {
	return c.store.ListWorkVersions(ctx, workID)
}

// GetVersion reconstructs the exact bytes of a historical version by
// replaying the delta chain from HEAD down to the requested entry.
func (c *Coordinator) GetVersion(ctx context.Context, storageID int64) ([]byte, *models.StorageEntry, error) {
	return c.engine.Reconstruct(ctx, c.store, storageID)
}

// GetHead returns the full current bytes for (work_id, file_format).
func (c *Coordinator) GetHead(ctx context.Context, workID int64, format models.FileFormat) ([]byte, *models.StorageEntry, error) {
	return c.engine.GetHead(ctx, c.store, workID, format)
}

// GetObject returns a supporting-object payload with its index metadata,
// following a duplicate mapping if the original id was collapsed.
func (c *Coordinator) GetObject(ctx context.Context, objectID int64) ([]byte, *models.ObjectIndexEntry, error) {
	index, stored, err := c.store.ResolveObject(ctx, objectID)
	if err != nil {
		return nil, nil, err
	}
	data, err := c.blobs.Get(ctx, stored.Location)
	if err != nil {
		return nil, nil, err
	}
	return data, index, nil
}
