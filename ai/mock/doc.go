// Package mock provides test doubles for the ai package.
//
// The doubles are safe for concurrent use so they can back the ingestion
// worker pool in tests.
//
// # Usage
//
//	embedder := mock.NewMockEmbedder(768)
//	embedder.EmbedTextFunc = func(ctx context.Context, caption string) ([]float32, error) {
//	    return nil, core.ErrEmbeddingRejected
//	}
//
//	chat := mock.NewMockChatModel("1. Shorts\n2. Jersey\n3. Socks")
//	provider := mock.NewMockProviderWithServices(embedder, chat)
//
//	// Check call counts
//	count := embedder.CallsFor("text")
//
// # Default Behavior
//
//   - MockEmbedder: returns deterministic unit vectors derived from the input
//   - MockChatModel: returns its Reply and records the last prompt and options
//   - MockProvider: aggregates the two
package mock
