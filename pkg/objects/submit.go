package objects

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"github.com/mirabel-dev/folio/pkg/coordinator/models"
	"github.com/mirabel-dev/folio/pkg/coordinator/store"
	"github.com/mirabel-dev/folio/pkg/store/blob"
)

// ObjectKey returns the blob key for a supporting-object payload.
// Supporting objects are stored uncompressed, keyed by content hash.
func ObjectKey(sha1Hex string) string {
	return "obj_" + sha1Hex
}

// Submit accepts the payload a worker fetched for an unfetched object.
//
// Dedup runs in two stages: an identical (request_url, etag, sha1) triple
// collapses into a duplicate mapping onto the existing index entry, and an
// identical payload under a different URL reuses the stored blob with a new
// index entry. Only genuinely new payloads hit the blob store.
//
// Every row mutation runs inside the caller's transaction, so no object id
// ever has both an unfetched row and an index row visible.
func Submit(ctx context.Context, tx *store.GORMStore, blobs blob.Store, objectID int64, data []byte, etag, mimetype string) error {
	unfetched, err := tx.GetUnfetchedObject(ctx, objectID)
	if err != nil {
		return err
	}

	sum := sha1.Sum(data)
	sha1Hex := hex.EncodeToString(sum[:])

	existing, err := tx.FindObjectIndex(ctx, unfetched.RequestURL, etag, sha1Hex)
	if err != nil {
		return err
	}
	if existing != nil {
		if err := tx.DeleteUnfetchedObject(ctx, objectID); err != nil {
			return err
		}
		return tx.CreateDuplicateMapping(ctx, &models.DuplicateObjectMapping{
			ObjectID:          objectID,
			DuplicateObjectID: existing.ObjectID,
		})
	}

	stored, err := tx.FindObjectStoreBySHA1(ctx, sha1Hex)
	if err != nil {
		return err
	}
	if stored == nil {
		key := ObjectKey(sha1Hex)
		if err := blobs.Put(ctx, key, data); err != nil {
			return fmt.Errorf("store object payload: %w", err)
		}
		if err := tx.CreateObjectStoreEntry(ctx, &models.ObjectStoreEntry{
			SHA1:     sha1Hex,
			Location: key,
		}); err != nil {
			return err
		}
	}

	if err := tx.DeleteUnfetchedObject(ctx, objectID); err != nil {
		return err
	}
	return tx.CreateObjectIndexEntry(ctx, &models.ObjectIndexEntry{
		ObjectID:   objectID,
		RequestURL: unfetched.RequestURL,
		SHA1:       sha1Hex,
		ETag:       etag,
		Mimetype:   mimetype,
	})
}
