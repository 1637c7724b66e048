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


// Package ai provides abstractions for the model services used by retailrag.
//
// Two services sit behind the interfaces here: an embedding server with
// separate text, image and multimodal endpoints, and an instruction-tuned
// chat model used to re-rank retrieved products. The chat model is exposed
// as a langchaingo llms.Model so callers can use the langchaingo helpers.
//
// # Implementation Packages
//
//   - ai/remote: HTTP clients for the embedding endpoints and an
//     OpenAI-style chat-completions endpoint, with bounded retry
//   - ai/mock: test doubles for unit testing without external services
//
// Public constructors in ai/remote return interface types. The mock
// constructors return concrete types so tests can inject behavior and
// assert call counts.
//
// # Endpoint Selection
//
// EmbedQuery picks the endpoint from which query fields are present:
//
//	text and image  -> multimodal
//	text only       -> text
//	image only      -> image
//	neither         -> core.ErrInvalidInput
//
// # Usage Example
//
//	cfg := ai.NewConfig(
//	    ai.WithEmbeddingEndpoints(textURL, imageURL, multimodalURL),
//	    ai.WithChat(llmURL, "gemma-2-9b-it"),
//	)
//	provider, err := remote.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vec, modality, err := ai.EmbedQuery(ctx, provider.Embedder(), core.Query{Text: "red sneakers"})
package ai
