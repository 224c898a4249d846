// Copyright 2026 The Kraken Authors
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


package search

import "errors"

var (
	// ErrCacheRequired is returned when a searcher is built without an
	// embedding cache.
	ErrCacheRequired = errors.New("search: embedding cache is required")

	// ErrIndexRequired is returned when a searcher is built without a
	// vector index.
	ErrIndexRequired = errors.New("search: vector index is required")

	// ErrEmptyQuery is returned when the query text is blank.
	ErrEmptyQuery = errors.New("search: query text is empty")

	// ErrEmbedQuery wraps embedding failures. The query cannot be
	// answered without a vector, so the error is surfaced rather than
	// degraded to an empty result.
	ErrEmbedQuery = errors.New("search: failed to embed query")
)
