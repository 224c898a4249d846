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


// Package storage defines the durable-storage contracts for kraken and the
// MUS serialization of persisted values.
//
// Two stores are durable: the per-channel sync cursor (CursorRepository) and
// the ingested items with their embedding vectors (ItemRepository). The
// embedding cache is a performance layer on top and may be rebuilt from
// nothing without correctness loss.
//
// Concrete implementations live in subpackages; storage/badger provides both
// repositories on a single BadgerDB instance.
package storage
