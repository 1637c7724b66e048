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


package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/poiesic/retailrag/ai"
	"github.com/poiesic/retailrag/core"
	"github.com/tmc/langchaingo/llms"
)

// Provider implements ai.AIProvider over HTTP. The embedder and chat client
// share one bounded *http.Client.
type Provider struct {
	config   *ai.Config
	client   *http.Client
	embedder *Embedder
	chat     *ChatClient
	logger   *slog.Logger
}

var _ ai.AIProvider = (*Provider)(nil)

// NewProvider creates a provider from a validated config.
// The chat model is only created when a chat endpoint is configured.
func NewProvider(config *ai.Config) (*Provider, error) {
	if config == nil {
		return nil, ErrConfigRequired
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client := newHTTPClient(config)
	p := &Provider{
		config:   config,
		client:   client,
		embedder: newEmbedder(config, client),
		logger:   slog.Default().With("component", "remote-provider"),
	}
	if config.HasChat() {
		p.chat = newChatClient(config, client)
	}
	return p, nil
}

// Embedder returns the embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// ChatModel returns the chat client, or nil when no chat endpoint is configured.
func (p *Provider) ChatModel() llms.Model {
	if p.chat == nil {
		return nil
	}
	return p.chat
}

// Probe embeds the probe caption and image on all three endpoints. Startup
// should abort if any endpoint answers with a width other than the
// configured dimension.
func (p *Provider) Probe(ctx context.Context) error {
	if p.config.ProbeImageURI == "" {
		return ErrProbeImageRequired
	}
	for _, m := range core.Modalities {
		v, err := ai.Embed(ctx, p.embedder, m, p.config.ProbeCaption, p.config.ProbeImageURI)
		if errors.Is(err, core.ErrBadEmbeddingResponse) {
			return fmt.Errorf("%w: %s probe: %w", ErrDimensionMismatch, m, err)
		}
		if err != nil {
			return fmt.Errorf("%s probe: %w", m, err)
		}
		if len(v) != p.config.Dimension {
			return fmt.Errorf("%w: %s endpoint returned %d, want %d", ErrDimensionMismatch, m, len(v), p.config.Dimension)
		}
		p.logger.Debug("probe ok", "modality", m, "dimension", len(v))
	}
	return nil
}

// Close releases idle connections held by the shared client.
func (p *Provider) Close() error {
	p.logger.Debug("closing remote provider")
	p.client.CloseIdleConnections()
	return nil
}
