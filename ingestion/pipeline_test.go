package ingestion

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/poiesic/retailrag/ai"
	"github.com/poiesic/retailrag/ai/mock"
	"github.com/poiesic/retailrag/blob"
	"github.com/poiesic/retailrag/core"
	"github.com/poiesic/retailrag/storage"
	"github.com/poiesic/retailrag/storage/badger"
	"github.com/poiesic/retailrag/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 8

const catalogURI = "gs://data/catalog.csv"

// catalogCSV renders rows whose image URLs point at base. Rows named
// "noimg-*" point at a missing image.
func catalogCSV(base string, ids ...string) string {
	var b strings.Builder
	b.WriteString("uniq_id,product_name,description,brand,image,product_specifications,product_category_tree\n")
	for _, id := range ids {
		path := "/ok/"
		if strings.HasPrefix(id, "noimg") {
			path = "/missing/"
		}
		fmt.Fprintf(&b, `%s,Lamp %s,Bright lamps for reading,Acme,"[""%s%s%s.jpg""]","{""product_specification""=>[{""key""=>""Color"", ""value""=>""Red""}]}","[""Home >> Lighting""]"`+"\n",
			id, id, base, path, id)
	}
	return b.String()
}

type recordingMonitor struct {
	mu       sync.Mutex
	stages   []string
	advanced int
	dropped  []Drop
	finished *Result
}

func (m *recordingMonitor) StageStarted(stage string, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = append(m.stages, stage)
}

func (m *recordingMonitor) Advanced(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advanced += n
}

func (m *recordingMonitor) Dropped(d Drop) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped = append(m.dropped, d)
}

func (m *recordingMonitor) Finished(r *Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = r
}

type fixture struct {
	store    *memory.Store
	blobs    *blob.MemoryStore
	provider ai.AIProvider
	embedder *mock.MockEmbedder
	base     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv, _ := imageServer(t)
	embedder := mock.NewMockEmbedder(testDim)
	return &fixture{
		store:    memory.NewStore(testDim),
		blobs:    blob.NewMemoryStore(),
		provider: mock.NewMockProviderWithServices(embedder, nil),
		embedder: embedder,
		base:     srv.URL,
	}
}

func (f *fixture) putCatalog(t *testing.T, ids ...string) {
	t.Helper()
	require.NoError(t, f.blobs.Put(context.Background(), catalogURI, "text/csv", strings.NewReader(catalogCSV(f.base, ids...))))
}

func (f *fixture) pipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{
		WithImageDestination("catalog-bucket", "images"),
		WithIndexes(storage.IndexIVFFlat, 4),
		WithWorkers(4),
		WithChunkSize(2),
	}, opts...)
	p, err := NewPipeline(f.store, f.blobs, f.provider, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p
}

func TestNewPipeline_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := NewPipeline(nil, f.blobs, f.provider, WithImageDestination("b", ""))
	assert.ErrorIs(t, err, ErrStoreRequired)

	_, err = NewPipeline(f.store, nil, f.provider, WithImageDestination("b", ""))
	assert.ErrorIs(t, err, ErrBlobStoreRequired)

	_, err = NewPipeline(f.store, f.blobs, nil, WithImageDestination("b", ""))
	assert.ErrorIs(t, err, ErrAIProviderRequired)

	_, err = NewPipeline(f.store, f.blobs, f.provider)
	assert.ErrorIs(t, err, ErrImageBucketRequired)

	_, err = NewPipeline(f.store, f.blobs, f.provider, WithImageDestination("b", ""), WithIndexes(storage.IndexScaNN, 0))
	assert.ErrorIs(t, err, storage.ErrInvalidIndex)

	_, err = NewPipeline(f.store, f.blobs, f.provider, WithImageDestination("b", ""), WithChunkSize(0))
	assert.Error(t, err)
}

func TestPipeline_Run(t *testing.T) {
	f := newFixture(t)
	f.putCatalog(t, "a", "b", "noimg-c", "d", "b")
	monitor := &recordingMonitor{}
	p := f.pipeline(t, WithMonitor(monitor))

	result, err := p.Run(context.Background(), catalogURI, "catalog")
	require.NoError(t, err)

	assert.Equal(t, 5, result.RowsRead)
	assert.Equal(t, 4, result.RowsCleaned)
	assert.Equal(t, 3, result.RowsWithImages)
	assert.Equal(t, 3, result.RowsEmbedded)
	assert.Equal(t, 3, result.RowsLoaded)
	assert.Equal(t, map[string]int{DropDuplicate: 1, DropImageFailed: 1}, result.Dropped)

	ids, err := f.store.ListIDs(context.Background(), "catalog")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "d"}, ids)
	assert.Len(t, f.store.Indexes("catalog"), 3)
	assert.Equal(t, 9, f.embedder.CallCount(), "three embeddings per surviving row")

	hits, err := f.store.Search(context.Background(), "catalog", "image_embeddings", 1,
		mock.DeterministicVector("image|gs://catalog-bucket/images/d_0.jpg", testDim))
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "d", hits[0].UniqID)
	assert.Equal(t, "Home > Lighting", hits[0].Category)
	assert.Equal(t, `{"Color":"Red"}`, hits[0].Specifications)

	assert.Equal(t, []string{StageLoad, StageClean, StageImages, StageEmbed, StageStore}, monitor.stages)
	assert.Len(t, monitor.dropped, 2)
	assert.Same(t, result, monitor.finished)
}

func TestPipeline_ReplaceNotAppend(t *testing.T) {
	f := newFixture(t)
	f.putCatalog(t, "a", "b", "c")
	p := f.pipeline(t)

	for i := 0; i < 2; i++ {
		_, err := p.Run(context.Background(), catalogURI, "catalog")
		require.NoError(t, err)
	}
	ids, err := f.store.ListIDs(context.Background(), "catalog")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.Equal(t, 3, f.blobs.PutCount()-1, "images are copied once across runs")
}

func TestPipeline_EmbeddingFailureDropsRow(t *testing.T) {
	f := newFixture(t)
	f.putCatalog(t, "a", "b")
	f.embedder.EmbedTextFunc = func(_ context.Context, caption string) ([]float32, error) {
		if strings.HasPrefix(caption, "Lamp b.") {
			return nil, core.ErrEmbeddingUnavailable
		}
		return mock.DeterministicVector(caption, testDim), nil
	}
	p := f.pipeline(t)

	result, err := p.Run(context.Background(), catalogURI, "catalog")
	require.NoError(t, err)
	assert.Equal(t, 1, result.RowsLoaded)
	assert.Equal(t, 1, result.Dropped[DropEmbeddingFailed])
}

func TestPipeline_Fatal(t *testing.T) {
	t.Run("missing source", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.pipeline(t).Run(context.Background(), "gs://data/none.csv", "catalog")
		assert.ErrorIs(t, err, core.ErrIngestionFatal)
		assert.ErrorIs(t, err, blob.ErrNotFound)
	})

	t.Run("no rows survive", func(t *testing.T) {
		f := newFixture(t)
		f.putCatalog(t, "noimg-a", "noimg-b")
		_, err := f.pipeline(t).Run(context.Background(), catalogURI, "catalog")
		assert.ErrorIs(t, err, core.ErrIngestionFatal)
		_, err = f.store.ListIDs(context.Background(), "catalog")
		assert.ErrorIs(t, err, core.ErrSchema, "nothing was written")
	})

	t.Run("every embedding fails", func(t *testing.T) {
		f := newFixture(t)
		f.putCatalog(t, "a")
		f.embedder.EmbedImageFunc = func(context.Context, string) ([]float32, error) {
			return nil, core.ErrEmbeddingRejected
		}
		_, err := f.pipeline(t).Run(context.Background(), catalogURI, "catalog")
		assert.ErrorIs(t, err, core.ErrIngestionFatal)
	})

	t.Run("load failure", func(t *testing.T) {
		f := newFixture(t)
		f.putCatalog(t, "a")
		require.NoError(t, f.store.Close())
		_, err := f.pipeline(t).Run(context.Background(), catalogURI, "catalog")
		assert.ErrorIs(t, err, core.ErrIngestionFatal)
		assert.ErrorIs(t, err, storage.ErrStorageClosed)
	})
}

func TestPipeline_CancelWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.putCatalog(t, "old")
	p := f.pipeline(t)
	_, err := p.Run(context.Background(), catalogURI, "catalog")
	require.NoError(t, err)

	f.putCatalog(t, "a", "b", "c", "d")
	ctx, cancel := context.WithCancel(context.Background())
	f.embedder.EmbedMultimodalFunc = func(ctx context.Context, _, _ string) ([]float32, error) {
		cancel()
		return nil, ctx.Err()
	}

	_, err = p.Run(ctx, catalogURI, "catalog")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, core.ErrIngestionFatal)

	ids, err := f.store.ListIDs(context.Background(), "catalog")
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, ids, "previous table stays live")
}

func TestPipeline_Deterministic(t *testing.T) {
	run := func() []string {
		f := newFixture(t)
		f.putCatalog(t, "z", "y", "noimg-x", "w", "y")
		_, err := f.pipeline(t).Run(context.Background(), catalogURI, "catalog")
		require.NoError(t, err)
		ids, err := f.store.ListIDs(context.Background(), "catalog")
		require.NoError(t, err)
		return ids
	}
	assert.Equal(t, run(), run())
}

func TestPipeline_EmbeddingCache(t *testing.T) {
	cache, err := badger.NewMemoryCache()
	require.NoError(t, err)
	defer cache.Close()

	f := newFixture(t)
	f.putCatalog(t, "a", "b")
	p := f.pipeline(t, WithEmbeddingCache(cache, func(m core.Modality) string { return "endpoint-" + m.String() }))

	_, err = p.Run(context.Background(), catalogURI, "catalog")
	require.NoError(t, err)
	assert.Equal(t, 6, f.embedder.CallCount())

	_, err = p.Run(context.Background(), catalogURI, "catalog")
	require.NoError(t, err)
	assert.Equal(t, 6, f.embedder.CallCount(), "second run is served from the cache")
}

func TestPipeline_PersistedRowsHoldInvariants(t *testing.T) {
	f := newFixture(t)
	f.putCatalog(t, "a", "noimg-b", "c")
	_, err := f.pipeline(t).Run(context.Background(), catalogURI, "catalog")
	require.NoError(t, err)

	for _, m := range core.Modalities {
		hits, err := f.store.Search(context.Background(), "catalog", m.Column(), 10, mock.DeterministicVector("q", testDim))
		require.NoError(t, err)
		assert.Len(t, hits, 2)
		for i := 1; i < len(hits); i++ {
			assert.LessOrEqual(t, hits[i].CosineSimilarity, hits[i-1].CosineSimilarity)
		}
	}
}

// reorderingStore reports the loaded rows in reverse order.
type reorderingStore struct {
	*memory.Store
	drop bool
}

func (s *reorderingStore) ListIDs(ctx context.Context, table string) ([]string, error) {
	ids, err := s.Store.ListIDs(ctx, table)
	if err != nil || len(ids) == 0 {
		return ids, err
	}
	if s.drop {
		return ids[:len(ids)-1], nil
	}
	slices.Reverse(ids)
	return ids, nil
}

func TestPipeline_VerifiesLoadedRows(t *testing.T) {
	tests := []struct {
		name  string
		drop  bool
		error string
	}{
		{name: "missing row", drop: true, error: "holds 1 rows, want 2"},
		{name: "reordered rows", drop: false, error: `row 0 is "b", want "a"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.putCatalog(t, "a", "b")
			store := &reorderingStore{Store: f.store, drop: tt.drop}
			p, err := NewPipeline(store, f.blobs, f.provider,
				WithImageDestination("catalog-bucket", "images"),
				WithWorkers(2))
			require.NoError(t, err)
			t.Cleanup(p.Release)

			result, err := p.Run(context.Background(), catalogURI, "catalog")
			require.ErrorIs(t, err, core.ErrIngestionFatal)
			assert.ErrorContains(t, err, tt.error)
			assert.Zero(t, result.RowsLoaded)
		})
	}
}
