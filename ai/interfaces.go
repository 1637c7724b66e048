package ai

import (
	"context"
	"fmt"

	"github.com/poiesic/retailrag/core"
	"github.com/tmc/langchaingo/llms"
)

// Embedder turns captions and image references into fixed-width vectors.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText embeds a caption using the text endpoint.
	EmbedText(ctx context.Context, caption string) ([]float32, error)

	// EmbedImage embeds the image at a gs:// URI using the image endpoint.
	EmbedImage(ctx context.Context, imageURI string) ([]float32, error)

	// EmbedMultimodal embeds a caption and an image together.
	EmbedMultimodal(ctx context.Context, caption, imageURI string) ([]float32, error)
}

// AIProvider aggregates the embedding and chat services so they share
// configuration and one HTTP client.
type AIProvider interface {
	// Embedder returns the embedding service.
	Embedder() Embedder

	// ChatModel returns the re-ranking model. It is nil when no chat
	// endpoint is configured.
	ChatModel() llms.Model

	// Close releases resources held by the provider and its services.
	Close() error
}

// Embed dispatches to the endpoint for modality m.
func Embed(ctx context.Context, e Embedder, m core.Modality, caption, imageURI string) ([]float32, error) {
	switch m {
	case core.ModalityText:
		return e.EmbedText(ctx, caption)
	case core.ModalityImage:
		return e.EmbedImage(ctx, imageURI)
	case core.ModalityMultimodal:
		return e.EmbedMultimodal(ctx, caption, imageURI)
	}
	return nil, fmt.Errorf("%w: unknown modality %d", core.ErrInvalidInput, m)
}

// EmbedQuery selects the endpoint from which query fields are present and
// embeds the query. Selection looks only at presence, never at content.
func EmbedQuery(ctx context.Context, e Embedder, q core.Query) ([]float32, core.Modality, error) {
	m, err := q.Modality()
	if err != nil {
		return nil, 0, err
	}
	v, err := Embed(ctx, e, m, q.Text, q.ImageURI)
	if err != nil {
		return nil, m, err
	}
	return v, m, nil
}
