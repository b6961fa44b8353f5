// Package snapshot archives raw fetch artifacts, mainly the final body of
// a failed or blocked fetch, so operators can inspect what the site served.
package snapshot

import (
	"context"
	"sync"
)

// MemoryStore keeps snapshots in memory. Used in tests and when no bucket
// is configured.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// PutObject stores a copy of the data under the path.
func (s *MemoryStore) PutObject(_ context.Context, path, _ string, data []byte) (string, error) {
	buf := make([]byte, len(data))
	copy(buf, data)
	s.mu.Lock()
	s.objects[path] = buf
	s.mu.Unlock()
	return "mem://" + path, nil
}

// Len returns the number of stored snapshots.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Get returns the stored bytes for a path.
func (s *MemoryStore) Get(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[path]
	return data, ok
}
