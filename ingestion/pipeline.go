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


package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/retailrag/ai"
	"github.com/poiesic/retailrag/blob"
	"github.com/poiesic/retailrag/core"
	"github.com/poiesic/retailrag/storage"
)

const (
	defaultWorkers   = 32
	defaultChunkSize = 200
	defaultNumLeaves = 100
)

// Pipeline turns a raw catalog CSV into an embedded, indexed catalog table.
type Pipeline struct {
	store    storage.CatalogStore
	blobs    blob.Store
	embedder ai.Embedder

	embedPool *ants.Pool
	images    *imageMaterializer

	chunkSize int
	indexes   []storage.IndexSpec
	cache     storage.EmbeddingCache
	namespace func(core.Modality) string
	monitor   Monitor
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithWorkers caps in-flight embedding requests. Default is 32.
func WithWorkers(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.embedPool.Release()
		p.embedPool = pool
		return nil
	}
}

// WithImageWorkers caps concurrent image downloads. Default is 16.
func WithImageWorkers(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.images.pool.Release()
		p.images.pool = pool
		return nil
	}
}

// WithChunkSize sets how many rows are embedded per chunk. Default is 200.
func WithChunkSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			return fmt.Errorf("chunk size must be positive, got %d", size)
		}
		p.chunkSize = size
		return nil
	}
}

// WithImageDestination sets where product images are copied:
// gs://<bucket>/<folder>/<uniq_id>_<k>.jpg. The bucket is required.
func WithImageDestination(bucket, folder string) Option {
	return func(p *Pipeline) error {
		p.images.bucket = bucket
		if folder != "" {
			p.images.folder = folder
		}
		return nil
	}
}

// WithMaxImagesPerProduct sets how many listed images are copied per row.
// Default is 1.
func WithMaxImagesPerProduct(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return fmt.Errorf("max images per product must be positive, got %d", n)
		}
		p.images.maxImages = n
		return nil
	}
}

// WithHTTPClient sets the client used to download product images.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Pipeline) error {
		if client != nil {
			p.images.client = client
		}
		return nil
	}
}

// WithIndexes sets the ANN method and leaf count for the three indexes.
// Default is ScaNN with 100 leaves.
func WithIndexes(method storage.IndexMethod, numLeaves int) Option {
	return func(p *Pipeline) error {
		specs := storage.CatalogIndexes(method, numLeaves)
		for _, s := range specs {
			if err := s.Validate(); err != nil {
				return err
			}
		}
		p.indexes = specs
		return nil
	}
}

// WithEmbeddingCache reuses vectors across runs. namespace returns the
// endpoint identity folded into each key, so changing an endpoint
// invalidates its entries.
func WithEmbeddingCache(cache storage.EmbeddingCache, namespace func(core.Modality) string) Option {
	return func(p *Pipeline) error {
		p.cache = cache
		if namespace != nil {
			p.namespace = namespace
		}
		return nil
	}
}

// WithMonitor sets a progress monitor.
func WithMonitor(m Monitor) Option {
	return func(p *Pipeline) error {
		if m == nil {
			m = noopMonitor{}
		}
		p.monitor = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates an ingestion pipeline writing to store.
func NewPipeline(store storage.CatalogStore, blobs blob.Store, provider ai.AIProvider, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if blobs == nil {
		return nil, ErrBlobStoreRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	embedPool, err := ants.NewPool(defaultWorkers)
	if err != nil {
		return nil, err
	}
	imagePool, err := ants.NewPool(defaultImageWorkers)
	if err != nil {
		embedPool.Release()
		return nil, err
	}

	p := &Pipeline{
		store:     store,
		blobs:     blobs,
		embedder:  provider.Embedder(),
		embedPool: embedPool,
		images: &imageMaterializer{
			blobs:     blobs,
			client:    &http.Client{Timeout: 60 * time.Second},
			pool:      imagePool,
			folder:    defaultImageFolder,
			maxImages: 1,
		},
		chunkSize: defaultChunkSize,
		indexes:   storage.CatalogIndexes(storage.IndexScaNN, defaultNumLeaves),
		namespace: func(core.Modality) string { return "" },
		monitor:   noopMonitor{},
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	if p.images.bucket == "" {
		p.Release()
		return nil, ErrImageBucketRequired
	}

	p.logger = p.logger.With("component", "ingestion")
	if p.cache != nil {
		p.embedder = &cachedEmbedder{inner: p.embedder, cache: p.cache, namespace: p.namespace, logger: p.logger}
	}
	return p, nil
}

// Run ingests the catalog at source (gs:// URI or local path) into table,
// replacing its contents. Rows that fail cleaning, image copy or embedding
// are dropped and reported. Run fails with core.ErrIngestionFatal when the
// source cannot be read, no rows survive, or the load fails. A cancelled
// context writes nothing and leaves the previous table in place.
func (p *Pipeline) Run(ctx context.Context, source, table string) (*Result, error) {
	start := time.Now()
	result := &Result{Table: table}
	p.logger.Info("ingestion started", "source", source, "table", table)

	p.monitor.StageStarted(StageLoad, 0)
	raw, err := p.load(ctx, source)
	if err != nil {
		return result, fmt.Errorf("%w: loading %s: %w", core.ErrIngestionFatal, source, err)
	}
	result.RowsRead = len(raw)
	p.monitor.Advanced(len(raw))

	p.monitor.StageStarted(StageClean, len(raw))
	records, drops := Clean(raw, NewLemmatizer())
	p.recordDrops(result, drops)
	result.RowsCleaned = len(records)
	p.monitor.Advanced(len(raw))
	if len(records) == 0 {
		return result, fmt.Errorf("%w: no rows survived cleaning", core.ErrIngestionFatal)
	}

	p.monitor.StageStarted(StageImages, len(records))
	var withImages []*Record
	for _, chunk := range chunked(records, p.chunkSize) {
		kept, drops, err := p.images.materialize(ctx, chunk)
		if err != nil {
			return result, p.aborted(err)
		}
		p.recordDrops(result, drops)
		withImages = append(withImages, kept...)
		p.monitor.Advanced(len(chunk))
	}
	result.RowsWithImages = len(withImages)
	if len(withImages) == 0 {
		return result, fmt.Errorf("%w: no rows have a materialized image", core.ErrIngestionFatal)
	}

	p.monitor.StageStarted(StageEmbed, len(withImages))
	scheduler := &embedScheduler{pool: p.embedPool, embedder: p.embedder}
	products := make([]*core.Product, 0, len(withImages))
	for i, chunk := range chunked(withImages, p.chunkSize) {
		kept, drops, err := scheduler.embedChunk(ctx, chunk)
		if err != nil {
			return result, p.aborted(err)
		}
		p.recordDrops(result, drops)
		for _, r := range kept {
			products = append(products, r.Product)
		}
		p.logger.Debug("chunk embedded", "chunk", i, "rows", len(chunk), "kept", len(kept))
		p.monitor.Advanced(len(chunk))
	}
	result.RowsEmbedded = len(products)
	if len(products) == 0 {
		return result, fmt.Errorf("%w: no rows were embedded", core.ErrIngestionFatal)
	}

	p.monitor.StageStarted(StageStore, len(products))
	if err := ctx.Err(); err != nil {
		return result, p.aborted(err)
	}
	if err := p.store.ReplaceTable(ctx, table, products, p.indexes...); err != nil {
		if errors.Is(err, context.Canceled) {
			return result, p.aborted(err)
		}
		return result, fmt.Errorf("%w: loading %s: %w", core.ErrIngestionFatal, table, err)
	}
	if err := p.verifyLoaded(ctx, table, products); err != nil {
		return result, err
	}
	result.RowsLoaded = len(products)
	p.monitor.Advanced(len(products))

	result.Elapsed = time.Since(start)
	p.logger.Info("ingestion finished",
		"table", table,
		"read", result.RowsRead,
		"loaded", result.RowsLoaded,
		"dropped", result.RowsRead-result.RowsLoaded,
		"elapsed", result.Elapsed)
	p.monitor.Finished(result)
	return result, nil
}

// verifyLoaded checks that table holds exactly products, in order.
func (p *Pipeline) verifyLoaded(ctx context.Context, table string, products []*core.Product) error {
	ids, err := p.store.ListIDs(ctx, table)
	if err != nil {
		return fmt.Errorf("%w: verifying %s: %w", core.ErrIngestionFatal, table, err)
	}
	if len(ids) != len(products) {
		return fmt.Errorf("%w: %s holds %d rows, want %d", core.ErrIngestionFatal, table, len(ids), len(products))
	}
	for i, id := range ids {
		if id != products[i].UniqID {
			return fmt.Errorf("%w: %s row %d is %q, want %q", core.ErrIngestionFatal, table, i, id, products[i].UniqID)
		}
	}
	return nil
}

// Release releases resources including worker pools.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.embedPool != nil {
		p.embedPool.Release()
	}
	if p.images != nil && p.images.pool != nil {
		p.images.pool.Release()
	}
}

func (p *Pipeline) load(ctx context.Context, source string) ([]RawRecord, error) {
	rc, err := OpenSource(ctx, p.blobs, source)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return ReadCatalog(rc)
}

func (p *Pipeline) recordDrops(result *Result, drops []Drop) {
	for _, d := range drops {
		result.drop(d)
		p.monitor.Dropped(d)
		if d.Err != nil {
			p.logger.Warn("row dropped", "uniq_id", d.UniqID, "reason", d.Reason, "err", d.Err)
		} else {
			p.logger.Debug("row dropped", "uniq_id", d.UniqID, "reason", d.Reason)
		}
	}
}

func (p *Pipeline) aborted(err error) error {
	p.logger.Warn("ingestion cancelled, catalog table left unchanged", "err", err)
	return fmt.Errorf("ingestion cancelled: %w", err)
}
