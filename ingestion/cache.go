package ingestion

import (
	"context"
	"log/slog"

	"github.com/poiesic/retailrag/ai"
	"github.com/poiesic/retailrag/core"
	"github.com/poiesic/retailrag/storage"
)

// cachedEmbedder consults an EmbeddingCache before calling the wrapped
// embedder. Cache failures are logged and fall through to the embedder.
type cachedEmbedder struct {
	inner     ai.Embedder
	cache     storage.EmbeddingCache
	namespace func(core.Modality) string
	logger    *slog.Logger
}

var _ ai.Embedder = (*cachedEmbedder)(nil)

// cacheKey identifies a vector by modality, endpoint and inputs.
func (c *cachedEmbedder) cacheKey(m core.Modality, caption, imageURI string) string {
	return core.ContentKey(m.String(), c.namespace(m), caption, imageURI)
}

func (c *cachedEmbedder) lookup(ctx context.Context, m core.Modality, caption, imageURI string) ([]float32, error) {
	key := c.cacheKey(m, caption, imageURI)
	v, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("embedding cache read failed", "modality", m, "err", err)
	} else if ok {
		return v, nil
	}

	v, err = ai.Embed(ctx, c.inner, m, caption, imageURI)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Put(ctx, key, v); err != nil {
		c.logger.Warn("embedding cache write failed", "modality", m, "err", err)
	}
	return v, nil
}

func (c *cachedEmbedder) EmbedText(ctx context.Context, caption string) ([]float32, error) {
	return c.lookup(ctx, core.ModalityText, caption, "")
}

func (c *cachedEmbedder) EmbedImage(ctx context.Context, imageURI string) ([]float32, error) {
	return c.lookup(ctx, core.ModalityImage, "", imageURI)
}

func (c *cachedEmbedder) EmbedMultimodal(ctx context.Context, caption, imageURI string) ([]float32, error) {
	return c.lookup(ctx, core.ModalityMultimodal, caption, imageURI)
}
