package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/retailrag/ai"
	"github.com/poiesic/retailrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 4

// embedServer answers on /text, /image and /multimodal. The handler decides
// the status and payload per request.
type embedServer struct {
	*httptest.Server
	hits     atomic.Int32
	lastBody atomic.Value
	respond  func(path string, n int32) (int, any)
}

func newEmbedServer(t *testing.T, respond func(path string, n int32) (int, any)) *embedServer {
	t.Helper()
	s := &embedServer{respond: respond}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := s.hits.Add(1)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.lastBody.Store(body)

		status, payload := s.respond(r.URL.Path, n)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(payload)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *embedServer) body() map[string]string {
	v, _ := s.lastBody.Load().(map[string]string)
	return v
}

func testConfig(baseURL string) *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingEndpoints(baseURL+"/text", baseURL+"/image", baseURL+"/multimodal"),
		ai.WithDimension(testDim),
		ai.WithRetry(3, time.Millisecond, 5*time.Millisecond),
		ai.WithTimeouts(time.Second, time.Second, 2*time.Second),
	)
}

func okVector(path string) (int, any) {
	key := map[string]string{
		"/text":       "text_embeds",
		"/image":      "image_embeds",
		"/multimodal": "multimodal_embeds",
	}[path]
	return http.StatusOK, map[string]any{key: []float32{0.1, 0.2, 0.3, 0.4}}
}

func newTestEmbedder(t *testing.T, srv *embedServer) ai.Embedder {
	t.Helper()
	e, err := NewEmbedder(testConfig(srv.URL))
	require.NoError(t, err)
	return e
}

func TestEmbedder_RequestShapes(t *testing.T) {
	srv := newEmbedServer(t, func(path string, _ int32) (int, any) { return okVector(path) })
	e := newTestEmbedder(t, srv)
	ctx := context.Background()

	t.Run("text", func(t *testing.T) {
		v, err := e.EmbedText(ctx, "women's cycling shorts")
		require.NoError(t, err)
		assert.Equal(t, []float32{0.1, 0.2, 0.3, 0.4}, v)
		assert.Equal(t, map[string]string{"caption": "women's cycling shorts"}, srv.body())
	})

	t.Run("image", func(t *testing.T) {
		v, err := e.EmbedImage(ctx, "gs://b/obj.jpg")
		require.NoError(t, err)
		assert.Len(t, v, testDim)
		assert.Equal(t, map[string]string{"image_uri": "gs://b/obj.jpg"}, srv.body())
	})

	t.Run("multimodal", func(t *testing.T) {
		v, err := e.EmbedMultimodal(ctx, "red sneakers", "gs://b/shoe.jpg")
		require.NoError(t, err)
		assert.Len(t, v, testDim)
		assert.Equal(t, map[string]string{"caption": "red sneakers", "image_uri": "gs://b/shoe.jpg"}, srv.body())
	})
}

func TestEmbedder_RejectsNonGSImage(t *testing.T) {
	srv := newEmbedServer(t, func(path string, _ int32) (int, any) { return okVector(path) })
	e := newTestEmbedder(t, srv)

	_, err := e.EmbedImage(context.Background(), "https://example.com/a.jpg")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	assert.Equal(t, int32(0), srv.hits.Load(), "invalid input never reaches the endpoint")
}

func TestEmbedder_TransientOutage(t *testing.T) {
	srv := newEmbedServer(t, func(path string, n int32) (int, any) {
		if n <= 2 {
			return http.StatusServiceUnavailable, map[string]string{"error": "warming up"}
		}
		return okVector(path)
	})
	e := newTestEmbedder(t, srv)

	v, err := e.EmbedText(context.Background(), "cycling shorts")
	require.NoError(t, err)
	assert.Len(t, v, testDim)
	assert.Equal(t, int32(3), srv.hits.Load(), "two failures then success")
}

func TestEmbedder_RetriesExhausted(t *testing.T) {
	srv := newEmbedServer(t, func(string, int32) (int, any) {
		return http.StatusBadGateway, map[string]string{"error": "down"}
	})
	e := newTestEmbedder(t, srv)

	_, err := e.EmbedText(context.Background(), "cycling shorts")
	assert.ErrorIs(t, err, core.ErrEmbeddingUnavailable)
	assert.Equal(t, int32(4), srv.hits.Load(), "first attempt plus three retries")
}

func TestEmbedder_4xxNotRetried(t *testing.T) {
	srv := newEmbedServer(t, func(string, int32) (int, any) {
		return http.StatusBadRequest, map[string]string{"error": "bad caption"}
	})
	e := newTestEmbedder(t, srv)

	_, err := e.EmbedText(context.Background(), "cycling shorts")
	assert.ErrorIs(t, err, core.ErrEmbeddingRejected)
	assert.Equal(t, int32(1), srv.hits.Load())
}

func TestEmbedder_BadResponses(t *testing.T) {
	tests := []struct {
		name    string
		payload any
	}{
		{name: "wrong length", payload: map[string]any{"text_embeds": []float32{0.1, 0.2, 0.3}}},
		{name: "missing key", payload: map[string]any{"image_embeds": []float32{0.1, 0.2, 0.3, 0.4}}},
		{name: "nested array", payload: map[string]any{"text_embeds": [][]float32{{0.1, 0.2, 0.3, 0.4}}}},
		{name: "not an object", payload: []float32{0.1, 0.2, 0.3, 0.4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newEmbedServer(t, func(string, int32) (int, any) { return http.StatusOK, tt.payload })
			e := newTestEmbedder(t, srv)

			_, err := e.EmbedText(context.Background(), "cycling shorts")
			assert.ErrorIs(t, err, core.ErrBadEmbeddingResponse)
			assert.Equal(t, int32(1), srv.hits.Load(), "bad payloads are not retried")
		})
	}
}

func TestEmbedder_ContextCanceled(t *testing.T) {
	srv := newEmbedServer(t, func(string, int32) (int, any) {
		return http.StatusServiceUnavailable, nil
	})
	e := newTestEmbedder(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.EmbedText(ctx, "cycling shorts")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewEmbedder_InvalidConfig(t *testing.T) {
	_, err := NewEmbedder(nil)
	assert.ErrorIs(t, err, ErrConfigRequired)

	_, err = NewEmbedder(ai.NewConfig())
	assert.Error(t, err)
}
