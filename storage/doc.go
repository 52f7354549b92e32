// Copyright 2026 Aperture OSS Authors
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


// Package storage provides the embedding store abstraction.
//
// The EmbeddingRepository interface decouples the engine from its storage
// backend. Two implementations ship with this module:
//
//   - storage/badger: the default embedded backend on BadgerDB
//   - storage/qdrant: a backend on a dedicated Qdrant vector store
//
// Constructors in the backend packages return the EmbeddingRepository
// interface rather than concrete types, so consumers never couple to a
// specific engine:
//
//	repo, err := badger.NewEmbeddingRepository(backend, 1536)
//
// # Iteration
//
// List methods return a RecordSeq, a lazy iter.Seq2 sequence yielding
// (*core.EmbeddingRecord, error) pairs. Each range over the sequence opens
// a fresh read snapshot, so sequences are restartable and safe to retain.
//
// # Thread safety
//
// All repository implementations must be thread-safe and support
// concurrent reads, writes, and deletes. Deletions must be visible to
// reads issued after the delete returns (read-your-writes).
package storage
