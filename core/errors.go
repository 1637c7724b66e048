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


package core

import "errors"

var (
	// ErrInvalidInput indicates a query with neither text nor image, or a malformed image URI.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoMatches indicates the catalog search returned zero rows.
	ErrNoMatches = errors.New("no matching products found")

	// ErrEmbeddingRejected indicates the embedding endpoint answered with a 4xx status.
	ErrEmbeddingRejected = errors.New("embedding request rejected")

	// ErrEmbeddingUnavailable indicates embedding retries were exhausted.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrBadEmbeddingResponse indicates a missing key or a vector of the wrong length.
	ErrBadEmbeddingResponse = errors.New("bad embedding response")

	// ErrStoreUnavailable indicates a connection or authentication failure against the catalog store.
	ErrStoreUnavailable = errors.New("catalog store unavailable")

	// ErrStoreTimeout indicates a catalog store query exceeded its deadline.
	ErrStoreTimeout = errors.New("catalog store timeout")

	// ErrSchema indicates the catalog table does not match the expected schema.
	ErrSchema = errors.New("catalog schema error")

	// ErrLLMRejected indicates the chat endpoint answered with a non-2xx, non-5xx status.
	ErrLLMRejected = errors.New("llm request rejected")

	// ErrLLMUnavailable indicates chat retries were exhausted.
	ErrLLMUnavailable = errors.New("llm service unavailable")

	// ErrLLMProtocol indicates a malformed chat-completion payload.
	ErrLLMProtocol = errors.New("llm protocol error")

	// ErrIngestionFatal indicates zero usable rows or a failed bulk load.
	ErrIngestionFatal = errors.New("ingestion failed")

	// ErrInvalidProduct indicates a Product failed validation before load.
	ErrInvalidProduct = errors.New("invalid product")
)
