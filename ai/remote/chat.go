package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/poiesic/retailrag/ai"
	"github.com/poiesic/retailrag/core"
	"github.com/tmc/langchaingo/llms"
)

// ChatClient implements llms.Model over an OpenAI-style chat-completions
// endpoint. Decoding parameters default to the configured values and can be
// overridden per call with llms.CallOption.
type ChatClient struct {
	config *ai.Config
	client *http.Client
	logger *slog.Logger
}

var _ llms.Model = (*ChatClient)(nil)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	TopP        float64       `json:"top_p"`
	TopK        int           `json:"top_k"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func newChatClient(config *ai.Config, client *http.Client) *ChatClient {
	return &ChatClient{
		config: config,
		client: client,
		logger: slog.Default().With("component", "remote-chat"),
	}
}

// NewChatClient creates a standalone chat client with its own HTTP client.
func NewChatClient(config *ai.Config) (*ChatClient, error) {
	if config == nil {
		return nil, ErrConfigRequired
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if !config.HasChat() {
		return nil, errors.New("ai config: ChatEndpoint is required")
	}
	return newChatClient(config, newHTTPClient(config)), nil
}

// DefaultOptions returns the configured decoding parameters as call options.
func (c *ChatClient) DefaultOptions() []llms.CallOption {
	return []llms.CallOption{
		llms.WithModel(c.config.ChatModel),
		llms.WithTemperature(c.config.Temperature),
		llms.WithMaxTokens(c.config.MaxTokens),
		llms.WithTopP(c.config.TopP),
		llms.WithTopK(c.config.TopK),
	}
}

// GenerateContent posts the messages and returns the first choice.
func (c *ChatClient) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, opt := range c.DefaultOptions() {
		opt(&opts)
	}
	for _, opt := range options {
		opt(&opts)
	}

	req := chatRequest{
		Model:       opts.Model,
		Messages:    make([]chatMessage, 0, len(messages)),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		TopP:        opts.TopP,
		TopK:        opts.TopK,
	}
	for _, msg := range messages {
		role, err := roleOf(msg.Role)
		if err != nil {
			return nil, err
		}
		var sb strings.Builder
		for _, part := range msg.Parts {
			tc, ok := part.(llms.TextContent)
			if !ok {
				return nil, fmt.Errorf("%w: only text parts are supported, got %T", core.ErrInvalidInput, part)
			}
			sb.WriteString(tc.Text)
		}
		req.Messages = append(req.Messages, chatMessage{Role: role, Content: sb.String()})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var content, finish string
	attempts := 0
	err = RetryWithBackoff(ctx, func() error {
		attempts++
		payload, err := postJSON(ctx, c.client, c.config.ChatEndpoint, body, c.config.ChatAPIKey)
		if err != nil {
			var se *statusError
			if errors.As(err, &se) && !se.retryable() {
				return Permanent(fmt.Errorf("%w: %v", core.ErrLLMRejected, se))
			}
			return err
		}
		var resp chatResponse
		if err := json.Unmarshal(payload, &resp); err != nil {
			return Permanent(fmt.Errorf("%w: %v", core.ErrLLMProtocol, err))
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == nil {
			return Permanent(fmt.Errorf("%w: response has no message content", core.ErrLLMProtocol))
		}
		content = *resp.Choices[0].Message.Content
		finish = resp.Choices[0].FinishReason
		return nil
	}, c.config.MaxRetries+1, c.config.RetryBaseDelay, c.config.RetryMaxDelay)

	switch {
	case err == nil:
		c.logger.Debug("chat completion received", "attempts", attempts, "length", len(content))
		return &llms.ContentResponse{
			Choices: []*llms.ContentChoice{{Content: content, StopReason: finish}},
		}, nil
	case errors.Is(err, core.ErrLLMRejected), errors.Is(err, core.ErrLLMProtocol):
		c.logger.Warn("chat completion failed", "err", err)
		return nil, err
	case ctx.Err() != nil:
		return nil, ctx.Err()
	}
	c.logger.Error("chat retries exhausted", "attempts", attempts, "err", err)
	return nil, fmt.Errorf("%w: %s after %d attempts: %v", core.ErrLLMUnavailable, c.config.ChatEndpoint, attempts, err)
}

// Call implements the single-prompt form of llms.Model.
func (c *ChatClient) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, c, prompt, options...)
}

func roleOf(t llms.ChatMessageType) (string, error) {
	switch t {
	case llms.ChatMessageTypeHuman, llms.ChatMessageTypeGeneric:
		return "user", nil
	case llms.ChatMessageTypeSystem:
		return "system", nil
	case llms.ChatMessageTypeAI:
		return "assistant", nil
	}
	return "", fmt.Errorf("%w: unsupported message role %q", core.ErrInvalidInput, t)
}
