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


package retailrag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/poiesic/retailrag/ai"
	"github.com/poiesic/retailrag/ai/remote"
	"github.com/poiesic/retailrag/blob"
	"github.com/poiesic/retailrag/config"
	"github.com/poiesic/retailrag/core"
	"github.com/poiesic/retailrag/ingestion"
	"github.com/poiesic/retailrag/recommend"
	"github.com/poiesic/retailrag/server"
	"github.com/poiesic/retailrag/storage"
	"github.com/poiesic/retailrag/storage/badger"
	"github.com/poiesic/retailrag/storage/postgres"
	"golang.org/x/oauth2"
)

// App wires configuration, the AI provider and the catalog store into the
// ingestion pipeline, the recommendation service and the HTTP server.
type App struct {
	config   *config.Config
	store    storage.CatalogStore
	provider ai.AIProvider
	logger   *slog.Logger

	mu    sync.Mutex
	blobs blob.Store
	cache storage.EmbeddingCache
}

// AppOption configures an App.
type AppOption func(*appOptions)

type appOptions struct {
	store    storage.CatalogStore
	provider ai.AIProvider
	blobs    blob.Store
	cache    storage.EmbeddingCache
	logger   *slog.Logger
}

// WithStore uses store instead of connecting to Postgres.
func WithStore(store storage.CatalogStore) AppOption {
	return func(o *appOptions) {
		o.store = store
	}
}

// WithProvider uses provider instead of the remote endpoints.
func WithProvider(provider ai.AIProvider) AppOption {
	return func(o *appOptions) {
		o.provider = provider
	}
}

// WithBlobStore uses blobs instead of Google Cloud Storage.
func WithBlobStore(blobs blob.Store) AppOption {
	return func(o *appOptions) {
		o.blobs = blobs
	}
}

// WithEmbeddingCache uses cache instead of opening the configured path.
func WithEmbeddingCache(cache storage.EmbeddingCache) AppOption {
	return func(o *appOptions) {
		o.cache = cache
	}
}

// WithLogger sets the application logger.
func WithLogger(logger *slog.Logger) AppOption {
	return func(o *appOptions) {
		o.logger = logger
	}
}

// NewApp validates cfg and opens the provider and the store unless they are
// supplied as options. The blob store and the embedding cache open lazily.
func NewApp(ctx context.Context, cfg *config.Config, opts ...AppOption) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := &appOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	app := &App{
		config: cfg,
		logger: options.logger.With("component", "app"),
		blobs:  options.blobs,
		cache:  options.cache,
	}

	provider := options.provider
	if provider == nil {
		if err := cfg.RequireEmbedding(); err != nil {
			return nil, err
		}
		p, err := remote.NewProvider(cfg.AIConfig())
		if err != nil {
			return nil, fmt.Errorf("creating AI provider: %w", err)
		}
		provider = p
	}
	app.provider = provider

	store := options.store
	if store == nil {
		s, err := OpenStore(ctx, cfg, options.logger)
		if err != nil {
			if options.provider == nil {
				provider.Close()
			}
			return nil, err
		}
		store = s
	}
	app.store = store
	return app, nil
}

// OpenStore connects to the catalog database named in cfg.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*postgres.Store, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	tokens, err := tokenSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return postgres.Open(ctx, cfg.Database.InstanceURI,
		postgres.WithDatabase(cfg.Database.Name),
		postgres.WithDimension(cfg.Embedding.Dimension),
		postgres.WithTokenSource(tokens),
		postgres.WithLogger(logger))
}

// InitDatabase drops and recreates the catalog database, grants the
// configured principals and enables the vector extensions in it.
func InitDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	method, err := cfg.IndexMethod()
	if err != nil {
		return err
	}
	tokens, err := tokenSource(ctx, cfg)
	if err != nil {
		return err
	}

	admin, err := postgres.OpenAdmin(ctx, cfg.Database.InstanceURI,
		postgres.WithTokenSource(tokens),
		postgres.WithLogger(logger))
	if err != nil {
		return err
	}
	err = admin.CreateDatabase(ctx, cfg.Database.Name, cfg.Database.ReadUsers, cfg.Database.WriteUsers)
	admin.Close()
	if err != nil {
		return err
	}

	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.EnableExtensions(ctx, method)
}

func tokenSource(ctx context.Context, cfg *config.Config) (oauth2.TokenSource, error) {
	if cfg.Database.Password != "" {
		return postgres.StaticPassword(cfg.Database.Password), nil
	}
	return postgres.NewIAMTokenSource(ctx)
}

// Config returns the application configuration.
func (a *App) Config() *config.Config {
	return a.config
}

// Store returns the catalog store.
func (a *App) Store() storage.CatalogStore {
	return a.store
}

// Provider returns the AI provider.
func (a *App) Provider() ai.AIProvider {
	return a.provider
}

// Probe verifies that every embedding endpoint returns the configured
// dimension. Providers that cannot be probed pass.
func (a *App) Probe(ctx context.Context) error {
	p, ok := a.provider.(interface{ Probe(context.Context) error })
	if !ok {
		return nil
	}
	return p.Probe(ctx)
}

func (a *App) blobStore(ctx context.Context) (blob.Store, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.blobs != nil {
		return a.blobs, nil
	}
	gcs, err := blob.NewGCSStore(ctx)
	if err != nil {
		return nil, err
	}
	a.blobs = gcs
	return gcs, nil
}

func (a *App) embeddingCache() (storage.EmbeddingCache, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cache != nil || a.config.Embedding.CachePath == "" {
		return a.cache, nil
	}
	cache, err := badger.OpenEmbeddingCache(a.config.Embedding.CachePath)
	if err != nil {
		return nil, fmt.Errorf("opening embedding cache: %w", err)
	}
	a.cache = cache
	return cache, nil
}

// NewIngestionPipeline creates a pipeline configured from the application
// settings. opts are applied after the configured ones.
func (a *App) NewIngestionPipeline(ctx context.Context, opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	blobs, err := a.blobStore(ctx)
	if err != nil {
		return nil, err
	}
	method, err := a.config.IndexMethod()
	if err != nil {
		return nil, err
	}

	cfg := a.config
	base := []ingestion.Option{
		ingestion.WithWorkers(cfg.Ingest.Workers),
		ingestion.WithImageWorkers(cfg.Ingest.ImageWorkers),
		ingestion.WithChunkSize(cfg.Ingest.ChunkSize),
		ingestion.WithMaxImagesPerProduct(cfg.Ingest.MaxImagesPerProduct),
		ingestion.WithImageDestination(cfg.Catalog.DataBucket, cfg.Catalog.ImageFolder),
		ingestion.WithIndexes(method, cfg.Index.NumLeaves),
		ingestion.WithLogger(a.logger),
	}

	cache, err := a.embeddingCache()
	if err != nil {
		return nil, err
	}
	if cache != nil {
		aiConfig := cfg.AIConfig()
		base = append(base, ingestion.WithEmbeddingCache(cache, func(m core.Modality) string {
			return fmt.Sprintf("%s|%d", aiConfig.Endpoint(m), aiConfig.Dimension)
		}))
	}
	return ingestion.NewPipeline(a.store, blobs, a.provider, append(base, opts...)...)
}

// Ingest loads the configured catalog source into the configured table.
func (a *App) Ingest(ctx context.Context, opts ...ingestion.Option) (*ingestion.Result, error) {
	if err := a.config.RequireIngest(); err != nil {
		return nil, err
	}
	pipeline, err := a.NewIngestionPipeline(ctx, opts...)
	if err != nil {
		return nil, err
	}
	defer pipeline.Release()
	return pipeline.Run(ctx, a.config.CatalogSource(), a.config.Catalog.Table)
}

// Reindex rebuilds the three ANN indexes on the configured table.
func (a *App) Reindex(ctx context.Context) error {
	method, err := a.config.IndexMethod()
	if err != nil {
		return err
	}
	for _, spec := range storage.CatalogIndexes(method, a.config.Index.NumLeaves) {
		if err := a.store.CreateIndex(ctx, a.config.Catalog.Table, spec); err != nil {
			return fmt.Errorf("rebuilding %s: %w", spec.Name, err)
		}
		a.logger.Info("index rebuilt", "index", spec.Name, "method", method, "num_leaves", spec.NumLeaves)
	}
	return nil
}

// NewRecommender creates a recommendation service over the configured table.
func (a *App) NewRecommender(opts ...recommend.Option) (*recommend.Service, error) {
	base := []recommend.Option{
		recommend.WithTable(a.config.Catalog.Table),
		recommend.WithTopK(a.config.Server.TopK),
		recommend.WithLogger(a.logger),
	}
	return recommend.NewService(a.store, a.provider, append(base, opts...)...)
}

// NewServer creates the HTTP server in front of a new recommender.
func (a *App) NewServer(opts ...server.Option) (*server.Server, error) {
	svc, err := a.NewRecommender()
	if err != nil {
		return nil, err
	}
	base := []server.Option{
		server.WithAddr(a.config.Server.ListenAddr),
		server.WithLogger(a.logger),
	}
	return server.New(svc, append(base, opts...)...)
}

// Close releases every component the App holds.
func (a *App) Close() error {
	var errs []error
	if err := a.provider.Close(); err != nil {
		a.logger.Error("error closing AI provider", "err", err)
		errs = append(errs, err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing catalog store", "err", err)
		errs = append(errs, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("error closing embedding cache", "err", err)
			errs = append(errs, err)
		}
	}
	if a.blobs != nil {
		if err := a.blobs.Close(); err != nil {
			a.logger.Error("error closing blob store", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
