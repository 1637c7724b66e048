package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// MockChatModel is a test double for llms.Model.
type MockChatModel struct {
	// GenerateContentFunc is called by GenerateContent if set.
	// If nil, the model answers with Reply.
	GenerateContentFunc func(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)

	// Reply is the default answer.
	Reply string

	mu          sync.Mutex
	callCount   int
	lastPrompt  string
	lastOptions llms.CallOptions
}

var _ llms.Model = (*MockChatModel)(nil)

// NewMockChatModel creates a chat model that answers with reply.
func NewMockChatModel(reply string) *MockChatModel {
	return &MockChatModel{Reply: reply}
}

// GenerateContent records the prompt text and options, then answers.
func (m *MockChatModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, opt := range options {
		opt(&opts)
	}

	var sb strings.Builder
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if tc, ok := part.(llms.TextContent); ok {
				sb.WriteString(tc.Text)
			}
		}
	}

	m.mu.Lock()
	m.callCount++
	m.lastPrompt = sb.String()
	m.lastOptions = opts
	m.mu.Unlock()

	if m.GenerateContentFunc != nil {
		return m.GenerateContentFunc(ctx, messages, options...)
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: m.Reply}},
	}, nil
}

// Call implements the legacy single-prompt method.
func (m *MockChatModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// CallCount returns the number of GenerateContent calls.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// LastPrompt returns the concatenated text of the most recent request.
func (m *MockChatModel) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPrompt
}

// LastOptions returns the call options of the most recent request.
func (m *MockChatModel) LastOptions() llms.CallOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastOptions
}

// Reset clears call counts and injected behavior.
func (m *MockChatModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.lastPrompt = ""
	m.lastOptions = llms.CallOptions{}
	m.GenerateContentFunc = nil
}
