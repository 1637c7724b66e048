package storage

import (
	"context"

	"github.com/poiesic/retailrag/core"
)

// CatalogStore owns the catalog table and answers similarity queries.
// Implementations must be thread-safe and support concurrent access.
type CatalogStore interface {
	// ReplaceTable atomically replaces table with exactly the given products,
	// building the given indexes before the new table becomes visible.
	// Readers see either the previous complete table or the new one.
	// Every product must pass core.ValidateProduct for the store's dimension.
	ReplaceTable(ctx context.Context, table string, products []*core.Product, indexes ...IndexSpec) error

	// CreateIndex drops and rebuilds one ANN index on an existing table.
	CreateIndex(ctx context.Context, table string, spec IndexSpec) error

	// Search returns the top k rows of table by descending cosine similarity
	// between column and vector. Ties are broken by insertion order.
	// k == 0 returns an empty result without touching the store.
	Search(ctx context.Context, table, column string, k int, vector []float32) ([]core.Retrieved, error)

	// ListIDs returns every uniq_id in table in insertion order.
	ListIDs(ctx context.Context, table string) ([]string, error)

	// EnableExtensions enables the vector extension and the extension
	// backing method in the store's database. Safe to call repeatedly.
	EnableExtensions(ctx context.Context, method IndexMethod) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

// Admin performs one-time database lifecycle operations.
type Admin interface {
	// CreateDatabase drops name if it exists, creates it, and grants read
	// access to readUsers and read/write access to writeUsers.
	CreateDatabase(ctx context.Context, name string, readUsers, writeUsers []string) error

	// Close releases resources held by the admin connection.
	Close() error
}

// EmbeddingCache remembers embedding vectors by content key across
// ingestion runs. Implementations must be safe for concurrent use.
type EmbeddingCache interface {
	// Get returns the cached vector and true, or nil and false on a miss.
	Get(ctx context.Context, key string) ([]float32, bool, error)

	// Put stores a vector under key.
	Put(ctx context.Context, key string, vector []float32) error

	// Close releases resources held by the cache.
	Close() error
}
