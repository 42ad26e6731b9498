// Package blob defines the opaque key→bytes contract the coordinator stores
// version blobs and supporting-object payloads behind.
//
// Keys are content-addressed ("<work_id>_<sha1>" for work versions,
// "obj_<sha1>" for supporting objects), so a write that survives a database
// rollback is harmless garbage: a re-run lands on the same key.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for keys that have never been written.
var ErrNotFound = errors.New("blob not found")

// Store is an opaque key/value byte store.
//
// Implementations must be safe for concurrent use. Put overwrites: promoting
// a HEAD rewrites the previous HEAD's key in place with a delta.
type Store interface {
	// Get returns the bytes stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores data at key, replacing any existing value.
	Put(ctx context.Context, key string, data []byte) error

	// Delete removes the value at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
