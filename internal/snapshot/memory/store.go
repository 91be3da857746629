// Package memory holds fetched payload snapshots in memory for development.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Store keeps snapshots in a map and returns pseudo URIs.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates an in-memory snapshot store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Put persists the payload and returns a memory:// URI.
func (s *Store) Put(_ context.Context, path string, _ string, data []byte) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = append([]byte(nil), data...)
	return fmt.Sprintf("memory://%s", path), nil
}

// Get returns a stored payload, for tests and the reindex pass in dev mode.
func (s *Store) Get(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[path]
	return data, ok
}
