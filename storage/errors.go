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


package storage

import "errors"

var (
	// ErrStorageClosed is returned by any call on a closed store or cache.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrInvalidQuery rejects a search with a negative k or a column that
	// holds no embeddings.
	ErrInvalidQuery = errors.New("invalid search")

	// ErrInvalidIdentifier rejects database, table and index names that
	// cannot be used unquoted in DDL.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrInvalidIndex rejects an IndexSpec before any SQL is built from it.
	ErrInvalidIndex = errors.New("invalid index spec")

	// ErrSerializationFailed wraps vector decoding failures in the cache.
	ErrSerializationFailed = errors.New("vector decoding failed")

	// ErrTruncatedData reports a cached vector shorter than its header claims.
	ErrTruncatedData = errors.New("truncated vector")
)
