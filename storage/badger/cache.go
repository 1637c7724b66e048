// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package badger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/retailrag/storage"
)

// EmbeddingCache implements storage.EmbeddingCache for BadgerDB.
type EmbeddingCache struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

var _ storage.EmbeddingCache = (*EmbeddingCache)(nil)

// CacheOption configures an EmbeddingCache.
type CacheOption func(*EmbeddingCache)

// WithTTL expires entries after ttl. Zero keeps them forever.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *EmbeddingCache) {
		c.ttl = ttl
	}
}

// WithLogger sets the logger badger and the cache report to.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) CacheOption {
	return func(c *EmbeddingCache) {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
	}
}

// OpenEmbeddingCache opens or creates a cache directory at path.
func OpenEmbeddingCache(path string, opts ...CacheOption) (*EmbeddingCache, error) {
	c := newCache(opts)
	db, err := openDB(path, c.logger)
	if err != nil {
		return nil, err
	}
	c.db = db
	c.logger.Info("embedding cache opened", "path", path)
	return c, nil
}

// NewMemoryCache creates an in-memory embedding cache for testing.
// Caller must close it when done.
func NewMemoryCache(opts ...CacheOption) (*EmbeddingCache, error) {
	c := newCache(opts)
	db, err := openDB("", c.logger)
	if err != nil {
		return nil, err
	}
	c.db = db
	return c, nil
}

func newCache(opts []CacheOption) *EmbeddingCache {
	c := &EmbeddingCache{logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "embedding-cache")
	return c
}

// Get returns the vector stored under key.
func (c *EmbeddingCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	if err := c.usable(ctx); err != nil {
		return nil, false, err
	}
	var vector []float32
	err := c.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get(makeEmbeddingKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var decodeErr error
			vector, decodeErr = storage.UnmarshalVector(val)
			return decodeErr
		})
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return vector, true, nil
}

// Put stores vector under key, replacing any previous value.
func (c *EmbeddingCache) Put(ctx context.Context, key string, vector []float32) error {
	if err := c.usable(ctx); err != nil {
		return err
	}
	entry := badger.NewEntry(makeEmbeddingKey(key), storage.MarshalVector(vector))
	if c.ttl > 0 {
		entry = entry.WithTTL(c.ttl)
	}
	return c.db.Update(func(tx *badger.Txn) error {
		return tx.SetEntry(entry)
	})
}

// Len counts cached vectors.
func (c *EmbeddingCache) Len() (int, error) {
	if c.db.IsClosed() {
		return 0, storage.ErrStorageClosed
	}
	n := 0
	err := c.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = embeddingKeyPrefix()
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Close closes the underlying database. Closing twice is a no-op.
func (c *EmbeddingCache) Close() error {
	if c.db.IsClosed() {
		return nil
	}
	return c.db.Close()
}

func (c *EmbeddingCache) usable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.db.IsClosed() {
		return storage.ErrStorageClosed
	}
	return nil
}
