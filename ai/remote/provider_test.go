package remote

import (
	"context"
	"net/http"
	"testing"

	"github.com/poiesic/retailrag/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		_, err := NewProvider(nil)
		assert.ErrorIs(t, err, ErrConfigRequired)
	})

	t.Run("without chat", func(t *testing.T) {
		p, err := NewProvider(testConfig("http://embed.invalid"))
		require.NoError(t, err)
		defer p.Close()

		assert.NotNil(t, p.Embedder())
		assert.Nil(t, p.ChatModel())
	})

	t.Run("with chat", func(t *testing.T) {
		cfg := testConfig("http://embed.invalid")
		cfg.ChatEndpoint = "http://llm.invalid/v1"
		cfg.ChatModel = "gemma"
		p, err := NewProvider(cfg)
		require.NoError(t, err)
		defer p.Close()

		assert.NotNil(t, p.ChatModel())
		assert.Same(t, p.embedder.client, p.chat.client, "embedder and chat share one client")
	})
}

func TestProvider_Probe(t *testing.T) {
	t.Run("all endpoints match", func(t *testing.T) {
		srv := newEmbedServer(t, func(path string, _ int32) (int, any) { return okVector(path) })
		cfg := testConfig(srv.URL)
		ai.WithProbeImageURI("gs://bucket/probe.jpg")(cfg)
		p, err := NewProvider(cfg)
		require.NoError(t, err)

		require.NoError(t, p.Probe(context.Background()))
		assert.Equal(t, int32(3), srv.hits.Load())
	})

	t.Run("fails without probe image", func(t *testing.T) {
		srv := newEmbedServer(t, func(path string, _ int32) (int, any) { return okVector(path) })
		p, err := NewProvider(testConfig(srv.URL))
		require.NoError(t, err)

		assert.ErrorIs(t, p.Probe(context.Background()), ErrProbeImageRequired)
		assert.Equal(t, int32(0), srv.hits.Load(), "no endpoint is called")
	})

	t.Run("image endpoint returns other width", func(t *testing.T) {
		srv := newEmbedServer(t, func(path string, _ int32) (int, any) {
			if path == "/image" {
				return http.StatusOK, map[string]any{"image_embeds": make([]float32, 1408)}
			}
			return okVector(path)
		})
		cfg := testConfig(srv.URL)
		ai.WithProbeImageURI("gs://bucket/probe.jpg")(cfg)
		p, err := NewProvider(cfg)
		require.NoError(t, err)

		err = p.Probe(context.Background())
		assert.ErrorIs(t, err, ErrDimensionMismatch)
		assert.Contains(t, err.Error(), "image")
	})
}
