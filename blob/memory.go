package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	types   map[string]string
	puts    int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

// Open returns a reader over a copy of the object.
func (s *MemoryStore) Open(_ context.Context, uri string) (io.ReadCloser, error) {
	if _, err := ParseURI(uri); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[uri]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(data))), nil
}

// Put stores the object.
func (s *MemoryStore) Put(_ context.Context, uri string, contentType string, r io.Reader) error {
	if _, err := ParseURI(uri); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[uri] = data
	s.types[uri] = contentType
	s.puts++
	return nil
}

// Exists reports whether the object is present.
func (s *MemoryStore) Exists(_ context.Context, uri string) (bool, error) {
	if _, err := ParseURI(uri); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[uri]
	return ok, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

// PutCount returns how many Put calls succeeded.
func (s *MemoryStore) PutCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts
}

// ContentType returns the content type recorded for uri.
func (s *MemoryStore) ContentType(uri string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.types[uri]
}
