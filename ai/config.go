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


package ai

import (
	"errors"
	"strings"
	"time"

	"github.com/poiesic/retailrag/core"
)

// Config holds configuration for the embedding and chat services.
type Config struct {
	// TextEndpoint receives {"caption"} and answers {"text_embeds"}.
	TextEndpoint string

	// ImageEndpoint receives {"image_uri"} and answers {"image_embeds"}.
	ImageEndpoint string

	// MultimodalEndpoint receives {"caption","image_uri"} and answers {"multimodal_embeds"}.
	MultimodalEndpoint string

	// Dimension is the exact vector width every endpoint must return.
	// Default: 768
	Dimension int

	// ChatEndpoint is the OpenAI-style chat-completions URL.
	// A base ending in /v1 gets /chat/completions appended.
	ChatEndpoint string

	// ChatModel is the model identifier sent with each completion request.
	ChatModel string

	// ChatAPIKey is sent as a bearer token when set.
	ChatAPIKey string

	// Decoding parameters for re-ranking.
	Temperature float64
	MaxTokens   int
	TopP        float64
	TopK        int

	// MaxRetries is the number of retries after the first attempt
	// for transport failures and 5xx responses. Default: 3
	MaxRetries int

	// RetryBaseDelay doubles on each retry up to RetryMaxDelay.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	DialTimeout           time.Duration
	ResponseHeaderTimeout time.Duration
	RequestTimeout        time.Duration

	// MaxConnsPerHost bounds the shared HTTP transport.
	MaxConnsPerHost int

	// ProbeCaption and ProbeImageURI are embedded at startup to verify
	// that every endpoint returns Dimension floats. The image probes are
	// skipped when ProbeImageURI is empty.
	ProbeCaption  string
	ProbeImageURI string
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingEndpoints sets all three embedding endpoints.
func WithEmbeddingEndpoints(text, image, multimodal string) ConfigOption {
	return func(c *Config) {
		c.TextEndpoint = text
		c.ImageEndpoint = image
		c.MultimodalEndpoint = multimodal
	}
}

// WithDimension sets the expected embedding width.
func WithDimension(dim int) ConfigOption {
	return func(c *Config) {
		c.Dimension = dim
	}
}

// WithChat sets the chat-completions endpoint and model.
func WithChat(endpoint, model string) ConfigOption {
	return func(c *Config) {
		c.ChatEndpoint = endpoint
		c.ChatModel = model
	}
}

// WithChatAPIKey sets the bearer token for the chat endpoint.
func WithChatAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.ChatAPIKey = key
	}
}

// WithDecoding overrides the re-ranking decoding parameters.
func WithDecoding(temperature float64, maxTokens int, topP float64, topK int) ConfigOption {
	return func(c *Config) {
		c.Temperature = temperature
		c.MaxTokens = maxTokens
		c.TopP = topP
		c.TopK = topK
	}
}

// WithRetry sets the retry count and backoff bounds.
func WithRetry(maxRetries int, baseDelay, maxDelay time.Duration) ConfigOption {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryBaseDelay = baseDelay
		c.RetryMaxDelay = maxDelay
	}
}

// WithTimeouts sets the connect, response-header and total request deadlines.
func WithTimeouts(dial, responseHeader, total time.Duration) ConfigOption {
	return func(c *Config) {
		c.DialTimeout = dial
		c.ResponseHeaderTimeout = responseHeader
		c.RequestTimeout = total
	}
}

// WithMaxConnsPerHost bounds concurrent connections per endpoint host.
func WithMaxConnsPerHost(n int) ConfigOption {
	return func(c *Config) {
		c.MaxConnsPerHost = n
	}
}

// WithProbeImageURI sets the image used by the startup dimension probe.
func WithProbeImageURI(uri string) ConfigOption {
	return func(c *Config) {
		c.ProbeImageURI = uri
	}
}

// DefaultConfig returns a Config with the serving defaults. Endpoints are
// left empty and must be supplied.
func DefaultConfig() *Config {
	return &Config{
		Dimension:             core.DefaultEmbeddingDimension,
		ChatModel:             "default",
		Temperature:           0.7,
		MaxTokens:             384,
		TopP:                  1.0,
		TopK:                  1,
		MaxRetries:            3,
		RetryBaseDelay:        time.Second,
		RetryMaxDelay:         30 * time.Second,
		DialTimeout:           10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		RequestTimeout:        300 * time.Second,
		MaxConnsPerHost:       64,
		ProbeCaption:          "dimension probe",
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithEmbeddingEndpoints(textURL, imageURL, multimodalURL),
//	    WithChat("http://llm:8000/v1", "gemma-2-9b-it"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize puts the chat endpoint in canonical form.
func (c *Config) Normalize() {
	if c.ChatEndpoint == "" {
		return
	}
	c.ChatEndpoint = strings.TrimSuffix(c.ChatEndpoint, "/")
	if strings.HasSuffix(c.ChatEndpoint, "/v1") {
		c.ChatEndpoint += "/chat/completions"
	}
}

// HasChat reports whether a chat endpoint is configured.
func (c *Config) HasChat() bool {
	return c.ChatEndpoint != ""
}

// Endpoint returns the embedding URL serving modality m.
func (c *Config) Endpoint(m core.Modality) string {
	switch m {
	case core.ModalityText:
		return c.TextEndpoint
	case core.ModalityImage:
		return c.ImageEndpoint
	case core.ModalityMultimodal:
		return c.MultimodalEndpoint
	}
	return ""
}

// Validate checks that the configuration is valid and complete.
// It normalizes the configuration first.
func (c *Config) Validate() error {
	c.Normalize()

	if c.TextEndpoint == "" {
		return errors.New("ai config: TextEndpoint is required")
	}
	if c.ImageEndpoint == "" {
		return errors.New("ai config: ImageEndpoint is required")
	}
	if c.MultimodalEndpoint == "" {
		return errors.New("ai config: MultimodalEndpoint is required")
	}
	if c.Dimension <= 0 {
		return errors.New("ai config: Dimension must be positive")
	}
	if c.HasChat() && c.ChatModel == "" {
		return errors.New("ai config: ChatModel is required when ChatEndpoint is set")
	}
	if c.MaxRetries < 0 {
		return errors.New("ai config: MaxRetries must not be negative")
	}
	if c.RetryBaseDelay <= 0 || c.RetryMaxDelay < c.RetryBaseDelay {
		return errors.New("ai config: retry delays must satisfy 0 < base <= max")
	}
	if c.DialTimeout <= 0 || c.ResponseHeaderTimeout <= 0 || c.RequestTimeout <= 0 {
		return errors.New("ai config: timeouts must be positive")
	}
	if c.MaxConnsPerHost <= 0 {
		return errors.New("ai config: MaxConnsPerHost must be positive")
	}
	if c.ProbeImageURI != "" && !core.IsGSURI(c.ProbeImageURI) {
		return errors.New("ai config: ProbeImageURI must be a gs:// URI")
	}
	return nil
}
