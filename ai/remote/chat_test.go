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
	"github.com/tmc/langchaingo/llms"
)

func newChatServer(t *testing.T, handler func(w http.ResponseWriter, req chatRequest, n int32)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		handler(w, req, n)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestChat(t *testing.T, baseURL string, opts ...ai.ConfigOption) *ChatClient {
	t.Helper()
	cfg := testConfig("http://embed.invalid")
	cfg.ChatEndpoint = baseURL + "/v1"
	cfg.ChatModel = "gemma-2-9b-it"
	for _, opt := range opts {
		opt(cfg)
	}
	c, err := NewChatClient(cfg)
	require.NoError(t, err)
	return c
}

func writeChoice(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
	})
}

func TestChatClient_FixedDecoding(t *testing.T) {
	var got chatRequest
	srv, _ := newChatServer(t, func(w http.ResponseWriter, req chatRequest, _ int32) {
		got = req
		writeChoice(w, "1. Shorts\n2. Jersey\n3. Socks")
	})
	c := newTestChat(t, srv.URL)

	out, err := llms.GenerateFromSinglePrompt(context.Background(), c, "pick three")
	require.NoError(t, err)
	assert.Equal(t, "1. Shorts\n2. Jersey\n3. Socks", out)

	assert.Equal(t, "gemma-2-9b-it", got.Model)
	assert.Equal(t, 0.7, got.Temperature)
	assert.Equal(t, 384, got.MaxTokens)
	assert.Equal(t, 1.0, got.TopP)
	assert.Equal(t, 1, got.TopK)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, chatMessage{Role: "user", Content: "pick three"}, got.Messages[0])
}

func TestChatClient_CallOptionsOverride(t *testing.T) {
	var got chatRequest
	srv, _ := newChatServer(t, func(w http.ResponseWriter, req chatRequest, _ int32) {
		got = req
		writeChoice(w, "ok")
	})
	c := newTestChat(t, srv.URL)

	_, err := c.Call(context.Background(), "hi", llms.WithTemperature(0.1), llms.WithMaxTokens(16))
	require.NoError(t, err)
	assert.Equal(t, 0.1, got.Temperature)
	assert.Equal(t, 16, got.MaxTokens)
	assert.Equal(t, 1, got.TopK)
}

func TestChatClient_BearerToken(t *testing.T) {
	var auth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		writeChoice(w, "ok")
	}))
	defer srv.Close()

	c := newTestChat(t, srv.URL, ai.WithChatAPIKey("sk-test"))
	_, err := c.Call(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "Bearer sk-test", auth.Load())
}

func TestChatClient_Roles(t *testing.T) {
	var got chatRequest
	srv, _ := newChatServer(t, func(w http.ResponseWriter, req chatRequest, _ int32) {
		got = req
		writeChoice(w, "ok")
	})
	c := newTestChat(t, srv.URL)

	_, err := c.GenerateContent(context.Background(), []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, "be brief"),
		llms.TextParts(llms.ChatMessageTypeHuman, "hi"),
		llms.TextParts(llms.ChatMessageTypeAI, "hello"),
	})
	require.NoError(t, err)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "assistant", got.Messages[2].Role)
}

func TestChatClient_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantErr  error
		wantHits int32
	}{
		{name: "5xx exhausted", status: http.StatusServiceUnavailable, body: `{}`, wantErr: core.ErrLLMUnavailable, wantHits: 4},
		{name: "4xx rejected", status: http.StatusUnprocessableEntity, body: `{"error":"too long"}`, wantErr: core.ErrLLMRejected, wantHits: 1},
		{name: "malformed json", status: http.StatusOK, body: `{"choices":`, wantErr: core.ErrLLMProtocol, wantHits: 1},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`, wantErr: core.ErrLLMProtocol, wantHits: 1},
		{name: "no content", status: http.StatusOK, body: `{"choices":[{"message":{}}]}`, wantErr: core.ErrLLMProtocol, wantHits: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, hits := newChatServer(t, func(w http.ResponseWriter, _ chatRequest, _ int32) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			c := newTestChat(t, srv.URL)

			_, err := c.Call(context.Background(), "hi")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantHits, hits.Load())
		})
	}
}

func TestChatClient_RecoversAfterTransientFailure(t *testing.T) {
	srv, hits := newChatServer(t, func(w http.ResponseWriter, _ chatRequest, n int32) {
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeChoice(w, "ok")
	})
	c := newTestChat(t, srv.URL, ai.WithRetry(3, time.Millisecond, 2*time.Millisecond))

	out, err := c.Call(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(2), hits.Load())
}

func TestNewChatClient_RequiresEndpoint(t *testing.T) {
	_, err := NewChatClient(testConfig("http://embed.invalid"))
	assert.Error(t, err)
}
