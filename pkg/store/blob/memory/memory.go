// Package memory provides an in-memory blob store used by tests and
// single-process setups.
package memory

import (
	"context"
	"sync"

	"github.com/mirabel-dev/folio/pkg/store/blob"
)

// MemoryStore implements blob.Store with a mutex-guarded map.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// New creates an empty in-memory blob store.
func New() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Get returns the bytes stored at key, or blob.ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.blobs[key]
	if !ok {
		return nil, blob.ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Put stores data at key, replacing any existing value.
func (s *MemoryStore) Put(_ context.Context, key string, data []byte) error {
	stored := make([]byte, len(data))
	copy(stored, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = stored
	return nil
}

// Delete removes the value at key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

// Len returns the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
