package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync"

	"github.com/poiesic/retailrag/ai"
)

// MockEmbedder is a test double for ai.Embedder.
// It allows custom behavior injection via function fields.
type MockEmbedder struct {
	// EmbedTextFunc is called by EmbedText if set.
	// If nil, uses default deterministic behavior.
	EmbedTextFunc func(ctx context.Context, caption string) ([]float32, error)

	// EmbedImageFunc is called by EmbedImage if set.
	EmbedImageFunc func(ctx context.Context, imageURI string) ([]float32, error)

	// EmbedMultimodalFunc is called by EmbedMultimodal if set.
	EmbedMultimodalFunc func(ctx context.Context, caption, imageURI string) ([]float32, error)

	dim   int
	mu    sync.Mutex
	calls map[string]int
}

var _ ai.Embedder = (*MockEmbedder)(nil)

// NewMockEmbedder creates a mock embedder returning dim-wide vectors.
// Note: Returns concrete type to allow test assertions.
func NewMockEmbedder(dim int) *MockEmbedder {
	return &MockEmbedder{dim: dim, calls: make(map[string]int)}
}

func (m *MockEmbedder) record(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[kind]++
}

// EmbedText returns a deterministic vector for the caption.
func (m *MockEmbedder) EmbedText(ctx context.Context, caption string) ([]float32, error) {
	m.record("text")
	if m.EmbedTextFunc != nil {
		return m.EmbedTextFunc(ctx, caption)
	}
	return DeterministicVector("text|"+caption, m.dim), nil
}

// EmbedImage returns a deterministic vector for the image URI.
func (m *MockEmbedder) EmbedImage(ctx context.Context, imageURI string) ([]float32, error) {
	m.record("image")
	if m.EmbedImageFunc != nil {
		return m.EmbedImageFunc(ctx, imageURI)
	}
	return DeterministicVector("image|"+imageURI, m.dim), nil
}

// EmbedMultimodal returns a deterministic vector for the caption and image.
func (m *MockEmbedder) EmbedMultimodal(ctx context.Context, caption, imageURI string) ([]float32, error) {
	m.record("multimodal")
	if m.EmbedMultimodalFunc != nil {
		return m.EmbedMultimodalFunc(ctx, caption, imageURI)
	}
	return DeterministicVector("multimodal|"+caption+"|"+imageURI, m.dim), nil
}

// CallCount returns the number of times any method was called.
func (m *MockEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

// CallsFor returns the call count for one endpoint: "text", "image" or "multimodal".
func (m *MockEmbedder) CallsFor(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[kind]
}

// Reset clears call counts and injected behavior.
func (m *MockEmbedder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make(map[string]int)
	m.EmbedTextFunc = nil
	m.EmbedImageFunc = nil
	m.EmbedMultimodalFunc = nil
}

// DeterministicVector creates a unit vector from a hash of s.
// The same input always produces the same vector.
func DeterministicVector(s string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	seed := h.Sum32()

	vector := make([]float32, dim)
	var sumSquares float64
	for i := range vector {
		seed = seed*1664525 + 1013904223 // LCG constants
		vector[i] = float32(seed%1000)/1000.0 + 0.001
		sumSquares += float64(vector[i]) * float64(vector[i])
	}

	norm := float32(1.0 / math.Sqrt(sumSquares))
	for i := range vector {
		vector[i] *= norm
	}
	return vector
}
