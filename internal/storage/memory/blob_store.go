// Package memory provides an in-memory blob store for development and
// tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/leadharvest/leadscraper/internal/scrape"
)

// BlobStore keeps objects in a map.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewBlobStore constructs a BlobStore.
func NewBlobStore() *BlobStore {
	return &BlobStore{objects: make(map[string][]byte)}
}

// PutObject stores the body under path and returns a mem:// URL.
func (s *BlobStore) PutObject(_ context.Context, path, _ string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read object body: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = data
	return "mem://" + path, nil
}

// Object returns a stored object's bytes (test helper).
func (s *BlobStore) Object(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[path]
	return data, ok
}

// Paths lists stored object paths (test helper).
func (s *BlobStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.objects))
	for p := range s.objects {
		out = append(out, p)
	}
	return out
}

var _ scrape.BlobStore = (*BlobStore)(nil)
