// Package memory provides an in-memory storage.CatalogStore with exact
// cosine search. It backs tests and local runs without a database.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/poiesic/retailrag/core"
	"github.com/poiesic/retailrag/storage"
)

type table struct {
	products []*core.Product
	indexes  map[string]storage.IndexSpec
}

// Store is an in-memory catalog store.
type Store struct {
	dimension int

	mu     sync.RWMutex
	tables map[string]*table
	closed bool

	// searches counts Search calls that reached the table.
	searches int
}

var _ storage.CatalogStore = (*Store)(nil)

// NewStore creates an empty store holding vectors of the given dimension.
func NewStore(dimension int) *Store {
	return &Store{
		dimension: dimension,
		tables:    make(map[string]*table),
	}
}

// ReplaceTable swaps in a copy of products under table.
func (s *Store) ReplaceTable(ctx context.Context, name string, products []*core.Product, indexes ...storage.IndexSpec) error {
	if err := storage.ValidateIdentifier(name); err != nil {
		return err
	}
	for _, spec := range indexes {
		if err := spec.Validate(); err != nil {
			return err
		}
	}

	next := &table{
		products: make([]*core.Product, 0, len(products)),
		indexes:  make(map[string]storage.IndexSpec, len(indexes)),
	}
	seen := make(map[string]struct{}, len(products))
	for _, p := range products {
		if err := core.ValidateProduct(p, s.dimension); err != nil {
			return fmt.Errorf("%w: %v", core.ErrSchema, err)
		}
		if _, dup := seen[p.UniqID]; dup {
			return fmt.Errorf("%w: duplicate uniq_id %s", core.ErrSchema, p.UniqID)
		}
		seen[p.UniqID] = struct{}{}
		cp := *p
		next.products = append(next.products, &cp)
	}
	for _, spec := range indexes {
		next.indexes[spec.Name] = spec
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrStorageClosed
	}
	s.tables[name] = next
	return nil
}

// CreateIndex records an index on an existing table.
func (s *Store) CreateIndex(_ context.Context, name string, spec storage.IndexSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(name)
	if err != nil {
		return err
	}
	t.indexes[spec.Name] = spec
	return nil
}

// Search ranks every row by exact cosine similarity.
func (s *Store) Search(ctx context.Context, name, column string, k int, vector []float32) ([]core.Retrieved, error) {
	if k < 0 {
		return nil, fmt.Errorf("%w: k must not be negative", storage.ErrInvalidQuery)
	}
	if !storage.IsEmbeddingColumn(column) {
		return nil, fmt.Errorf("%w: %q is not an embedding column", storage.ErrInvalidQuery, column)
	}
	if k == 0 {
		return []core.Retrieved{}, nil
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, want %d", core.ErrSchema, len(vector), s.dimension)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(name)
	if err != nil {
		return nil, err
	}
	s.searches++

	m := modalityOf(column)
	hits := make([]core.Retrieved, len(t.products))
	for i, p := range t.products {
		hits[i] = core.Retrieved{
			UniqID:           p.UniqID,
			Name:             p.Name,
			Category:         p.Category,
			Specifications:   p.Specifications,
			CosineSimilarity: CosineSimilarity(p.Embedding(m), vector),
		}
	}
	// Stable sort keeps insertion order among equal scores.
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].CosineSimilarity > hits[j].CosineSimilarity
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// ListIDs returns uniq_ids in insertion order.
func (s *Store) ListIDs(_ context.Context, name string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.table(name)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(t.products))
	for i, p := range t.products {
		ids[i] = p.UniqID
	}
	return ids, nil
}

// EnableExtensions validates method. There is nothing to enable in memory.
func (s *Store) EnableExtensions(ctx context.Context, method storage.IndexMethod) error {
	if _, err := storage.ParseIndexMethod(string(method)); err != nil {
		return err
	}
	return s.Ping(ctx)
}

// Indexes returns the index specs recorded for table.
func (s *Store) Indexes(name string) []storage.IndexSpec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[name]
	if !ok {
		return nil
	}
	specs := make([]storage.IndexSpec, 0, len(t.indexes))
	for _, spec := range t.indexes {
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// SearchCount returns how many searches reached a table.
func (s *Store) SearchCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.searches
}

// Ping reports whether the store is open.
func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storage.ErrStorageClosed
	}
	return nil
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// table must be called with s.mu held.
func (s *Store) table(name string) (*table, error) {
	if s.closed {
		return nil, storage.ErrStorageClosed
	}
	t, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: table %q does not exist", core.ErrSchema, name)
	}
	return t, nil
}

func modalityOf(column string) core.Modality {
	for _, m := range core.Modalities {
		if m.Column() == column {
			return m
		}
	}
	return core.ModalityText
}

// CosineSimilarity returns 1 - cosine distance. Zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
