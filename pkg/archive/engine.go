// Package archive implements the version engine: each successive version of
// a (work_id, file_format) pair is persisted as a full HEAD blob plus a
// backward chain of binary deltas, so reading the current version costs one
// blob fetch while any historical version remains reconstructable.
package archive

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zlib"
	"github.com/kr/binarydist"

	"github.com/mirabel-dev/folio/internal/logger"
	"github.com/mirabel-dev/folio/pkg/coordinator/models"
	"github.com/mirabel-dev/folio/pkg/coordinator/store"
	"github.com/mirabel-dev/folio/pkg/objects"
	"github.com/mirabel-dev/folio/pkg/store/blob"
)

// maxChainLength caps the patch_of walk during reconstruction. Chains this
// long only arise from corruption (a cycle), never from normal operation.
const maxChainLength = 100

// Engine stores and reconstructs work versions against a blob store.
// Relational state is manipulated through the transactional store handle the
// caller passes in, so an engine call is atomic with the rest of the
// caller's critical section.
type Engine struct {
	blobs blob.Store
}

// NewEngine creates a version engine backed by the given blob store.
func NewEngine(blobs blob.Store) *Engine {
	return &Engine{blobs: blobs}
}

// WorkKey returns the blob key for a work version.
func WorkKey(workID int64, sha1Hex string) string {
	return fmt.Sprintf("%d_%s", workID, sha1Hex)
}

// StoreInput carries one submitted version into the engine.
type StoreInput struct {
	WorkID        int64
	Data          []byte
	UploadedTime  time.Time
	UpdatedTime   int64
	RetrievedFrom string
	Format        models.FileFormat
	Title         string
	Author        string
}

// StoreResult is the outcome of a successful Store.
type StoreResult struct {
	Entry     *models.StorageEntry
	Unfetched []models.UnfetchedObject
}

// Store persists a new version as the HEAD for (work_id, file_format).
//
// HTML works are first rewritten by the supporting-object engine, which may
// emit unfetched-object descriptors. If the (possibly rewritten) bytes hash
// identically to the current HEAD, Store fails with ErrDuplicateDetected and
// changes nothing.
//
// Promotion works backwards: the new version is written full-form under a
// fresh content-addressed key, then the previous HEAD's blob is overwritten
// in place with a binary delta computed against the new bytes and its
// patch_of is pointed at the new entry. Every entry's location therefore
// stays valid for its whole life.
//
// Blob writes are not transactional; on a later rollback they remain as
// orphan garbage under content-addressed keys, which a re-run reuses safely.
func (e *Engine) Store(ctx context.Context, tx *store.GORMStore, in StoreInput) (*StoreResult, error) {
	data := in.Data
	var unfetched []models.UnfetchedObject

	if in.Format == models.FormatHTML {
		var err error
		data, unfetched, err = objects.Rewrite(ctx, tx, data, in.UploadedTime)
		if err != nil {
			return nil, fmt.Errorf("rewrite html: %w", err)
		}
	}

	sum := sha1.Sum(data)
	sha1Hex := hex.EncodeToString(sum[:])

	prevHead, err := tx.GetHead(ctx, in.WorkID, in.Format)
	if err != nil {
		return nil, err
	}
	if prevHead != nil && prevHead.SHA1 == sha1Hex {
		return nil, fmt.Errorf("work %d (%s): %w", in.WorkID, in.Format, models.ErrDuplicateDetected)
	}

	key := WorkKey(in.WorkID, sha1Hex)
	if err := e.putCompressed(ctx, key, data); err != nil {
		return nil, err
	}

	entry := &models.StorageEntry{
		WorkID:        in.WorkID,
		FileFormat:    in.Format,
		UploadedTime:  in.UploadedTime,
		UpdatedTime:   in.UpdatedTime,
		Location:      key,
		RetrievedFrom: in.RetrievedFrom,
		SHA1:          sha1Hex,
		Title:         in.Title,
		Author:        in.Author,
	}
	if err := tx.CreateStorageEntry(ctx, entry); err != nil {
		return nil, err
	}

	if prevHead != nil {
		if err := e.demoteHead(ctx, tx, prevHead, data, entry.StorageID); err != nil {
			return nil, err
		}
	}

	logger.Debug("stored work version",
		"work_id", in.WorkID,
		"format", in.Format,
		"storage_id", entry.StorageID,
		"size", len(data),
		"unfetched_objects", len(unfetched),
	)

	return &StoreResult{Entry: entry, Unfetched: unfetched}, nil
}

// demoteHead converts the previous HEAD into a delta against the new bytes.
func (e *Engine) demoteHead(ctx context.Context, tx *store.GORMStore, prev *models.StorageEntry, newData []byte, newStorageID int64) error {
	oldData, err := e.getCompressed(ctx, prev.Location)
	if err != nil {
		return fmt.Errorf("read previous head: %w", err)
	}

	var delta bytes.Buffer
	if err := binarydist.Diff(bytes.NewReader(newData), bytes.NewReader(oldData), &delta); err != nil {
		return fmt.Errorf("compute delta: %w", err)
	}

	// Same key, contents replaced with the delta. The entry's location
	// pointer survives the promotion untouched.
	if err := e.putCompressed(ctx, prev.Location, delta.Bytes()); err != nil {
		return err
	}
	return tx.SetPatchOf(ctx, prev.StorageID, newStorageID)
}

// Reconstruct returns the exact bytes of a historical version.
//
// It walks patch_of from the target to HEAD, fetches the HEAD blob as the
// initial master, then applies each delta in HEAD→target order. The walk is
// capped at maxChainLength hops to guard against cycles introduced by
// corruption; exceeding it fails with ErrTooManyIterations.
func (e *Engine) Reconstruct(ctx context.Context, s *store.GORMStore, storageID int64) ([]byte, *models.StorageEntry, error) {
	target, err := s.GetStorageEntry(ctx, storageID)
	if err != nil {
		return nil, nil, err
	}

	// chain[0] is the target, chain[len-1] is HEAD.
	chain := []*models.StorageEntry{target}
	cursor := target
	for cursor.PatchOf != nil {
		if len(chain) >= maxChainLength {
			return nil, nil, fmt.Errorf("storage entry %d: %w", storageID, models.ErrTooManyIterations)
		}
		cursor, err = s.GetStorageEntry(ctx, *cursor.PatchOf)
		if err != nil {
			return nil, nil, err
		}
		chain = append(chain, cursor)
	}

	master, err := e.getCompressed(ctx, chain[len(chain)-1].Location)
	if err != nil {
		return nil, nil, fmt.Errorf("read head blob: %w", err)
	}

	for i := len(chain) - 2; i >= 0; i-- {
		delta, err := e.getCompressed(ctx, chain[i].Location)
		if err != nil {
			return nil, nil, fmt.Errorf("read delta blob for entry %d: %w", chain[i].StorageID, err)
		}
		var out bytes.Buffer
		if err := binarydist.Patch(bytes.NewReader(master), &out, bytes.NewReader(delta)); err != nil {
			return nil, nil, fmt.Errorf("apply delta for entry %d: %w", chain[i].StorageID, err)
		}
		master = out.Bytes()
	}

	return master, target, nil
}

// GetHead returns the full current bytes for (work_id, file_format).
// Fails with ErrWorkNotFound when the pair has never been stored.
func (e *Engine) GetHead(ctx context.Context, s *store.GORMStore, workID int64, format models.FileFormat) ([]byte, *models.StorageEntry, error) {
	head, err := s.GetHead(ctx, workID, format)
	if err != nil {
		return nil, nil, err
	}
	if head == nil {
		return nil, nil, fmt.Errorf("work %d (%s): %w", workID, format, models.ErrWorkNotFound)
	}

	data, err := e.getCompressed(ctx, head.Location)
	if err != nil {
		return nil, nil, err
	}
	return data, head, nil
}

// putCompressed zlib-compresses data and writes it at key.
func (e *Engine) putCompressed(ctx context.Context, key string, data []byte) error {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return fmt.Errorf("compress blob: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress blob: %w", err)
	}
	return e.blobs.Put(ctx, key, buf.Bytes())
}

// getCompressed reads the blob at key and zlib-decompresses it.
func (e *Engine) getCompressed(ctx context.Context, key string) ([]byte, error) {
	raw, err := e.blobs.Get(ctx, key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, fmt.Errorf("blob %q: %w", key, models.ErrWorkNotFound)
		}
		return nil, err
	}

	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decompress blob %q: %w", key, err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress blob %q: %w", key, err)
	}
	return data, nil
}
