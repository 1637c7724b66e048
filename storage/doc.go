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


// Package storage provides the storage abstraction layer for retailrag.
//
// This package defines the interfaces that decouple the catalog store and
// the ingestion embedding cache from business logic, so Postgres, in-memory
// and BadgerDB backends can be used interchangeably.
//
// # Constructor Return Type Pattern
//
// Public constructors in the backend packages return concrete types that
// satisfy these interfaces; callers depend on the interfaces:
//
//	store, err := postgres.Open(ctx, uri, postgres.WithDatabase("catalog"))
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//	svc, err := recommend.NewService(store, provider)
//
// # Architecture
//
//   - CatalogStore: atomic table replace, ANN index builds, cosine search
//   - Admin: database creation and grants
//   - EmbeddingCache: content-keyed vectors reused across ingestion runs
//   - IndexSpec: one ANN index over one embedding column
//
// # Backends
//
//   - storage/postgres: AlloyDB/Postgres with pgvector, IAM-token connections
//   - storage/memory: exact cosine search for tests and local runs
//   - storage/badger: the embedding cache
//
// # Thread Safety
//
// All implementations must be thread-safe and support concurrent access
// from multiple goroutines.
//
// # Context Support
//
// All methods accept context.Context for cancellation and timeout support.
package storage
