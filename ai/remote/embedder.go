package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/poiesic/retailrag/ai"
	"github.com/poiesic/retailrag/core"
)

// Embedder implements ai.Embedder against the three modality endpoints.
type Embedder struct {
	config *ai.Config
	client *http.Client
	logger *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

type embedRequest struct {
	Caption  string `json:"caption,omitempty"`
	ImageURI string `json:"image_uri,omitempty"`
}

// responseKey is the field carrying the vector for each modality.
func responseKey(m core.Modality) string {
	switch m {
	case core.ModalityText:
		return "text_embeds"
	case core.ModalityImage:
		return "image_embeds"
	case core.ModalityMultimodal:
		return "multimodal_embeds"
	}
	return ""
}

// newEmbedder is an internal constructor that returns the concrete type.
func newEmbedder(config *ai.Config, client *http.Client) *Embedder {
	return &Embedder{
		config: config,
		client: client,
		logger: slog.Default().With("component", "remote-embedder"),
	}
}

// NewEmbedder creates a standalone embedder with its own HTTP client.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	if config == nil {
		return nil, ErrConfigRequired
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return newEmbedder(config, newHTTPClient(config)), nil
}

// EmbedText posts {"caption"} to the text endpoint.
func (e *Embedder) EmbedText(ctx context.Context, caption string) ([]float32, error) {
	return e.embed(ctx, core.ModalityText, embedRequest{Caption: caption})
}

// EmbedImage posts {"image_uri"} to the image endpoint.
func (e *Embedder) EmbedImage(ctx context.Context, imageURI string) ([]float32, error) {
	if !core.IsGSURI(imageURI) {
		return nil, fmt.Errorf("%w: image must be a gs:// URI, got %q", core.ErrInvalidInput, imageURI)
	}
	return e.embed(ctx, core.ModalityImage, embedRequest{ImageURI: imageURI})
}

// EmbedMultimodal posts {"caption","image_uri"} to the multimodal endpoint.
func (e *Embedder) EmbedMultimodal(ctx context.Context, caption, imageURI string) ([]float32, error) {
	if !core.IsGSURI(imageURI) {
		return nil, fmt.Errorf("%w: image must be a gs:// URI, got %q", core.ErrInvalidInput, imageURI)
	}
	return e.embed(ctx, core.ModalityMultimodal, embedRequest{Caption: caption, ImageURI: imageURI})
}

func (e *Embedder) embed(ctx context.Context, m core.Modality, req embedRequest) ([]float32, error) {
	url := e.config.Endpoint(m)
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var vec []float32
	attempts := 0
	err = RetryWithBackoff(ctx, func() error {
		attempts++
		payload, err := postJSON(ctx, e.client, url, body, "")
		if err != nil {
			var se *statusError
			if errors.As(err, &se) && !se.retryable() {
				return Permanent(fmt.Errorf("%w: %v", core.ErrEmbeddingRejected, se))
			}
			return err
		}
		v, err := e.decode(m, payload)
		if err != nil {
			return Permanent(err)
		}
		vec = v
		return nil
	}, e.config.MaxRetries+1, e.config.RetryBaseDelay, e.config.RetryMaxDelay)

	switch {
	case err == nil:
		return vec, nil
	case errors.Is(err, core.ErrEmbeddingRejected), errors.Is(err, core.ErrBadEmbeddingResponse):
		e.logger.Warn("embedding failed", "modality", m, "err", err)
		return nil, err
	case ctx.Err() != nil:
		return nil, ctx.Err()
	}
	e.logger.Error("embedding retries exhausted", "modality", m, "attempts", attempts, "err", err)
	return nil, fmt.Errorf("%w: %s after %d attempts: %v", core.ErrEmbeddingUnavailable, url, attempts, err)
}

func (e *Embedder) decode(m core.Modality, payload []byte) ([]float32, error) {
	key := responseKey(m)
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrBadEmbeddingResponse, err)
	}
	raw, ok := fields[key]
	if !ok {
		return nil, fmt.Errorf("%w: response lacks %q", core.ErrBadEmbeddingResponse, key)
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, fmt.Errorf("%w: %q is not a flat float array: %v", core.ErrBadEmbeddingResponse, key, err)
	}
	if len(vec) != e.config.Dimension {
		return nil, fmt.Errorf("%w: %q has %d values, want %d", core.ErrBadEmbeddingResponse, key, len(vec), e.config.Dimension)
	}
	return vec, nil
}
