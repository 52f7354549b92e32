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


package storage

import (
	"context"
	"iter"

	"github.com/aperture-oss/knowledge/core"
)

// RecordSeq is a lazy sequence of embedding records. Iteration errors are
// yielded in-band as the second value; a non-nil error terminates the
// sequence. A RecordSeq is restartable: ranging over it again re-reads
// from storage in a fresh snapshot.
type RecordSeq = iter.Seq2[*core.EmbeddingRecord, error]

// EmbeddingRepository persists embedding records and serves the retrieval
// read path. Implementations must be thread-safe and support concurrent
// reads, writes, and deletes from multiple simultaneous callers.
//
// Read-your-writes is required: a list issued after a successful
// DeleteCollection must never yield deleted records.
type EmbeddingRepository interface {
	// Put persists a record keyed by its ID. Writing the same record twice
	// is idempotent. Records whose vector length does not match the
	// repository's configured dimensionality are rejected with
	// core.ErrDimensionMismatch before anything is written; a record is
	// never partially visible to readers.
	Put(ctx context.Context, record *core.EmbeddingRecord) error

	// ListByCollection returns a lazy sequence of the collection's records.
	// Ordering is unspecified beyond being stable within a single pass.
	ListByCollection(ctx context.Context, collectionID string) RecordSeq

	// ListByCategory returns a lazy sequence of all records carrying the
	// given category label, across collections.
	ListByCategory(ctx context.Context, category string) RecordSeq

	// ListAll returns a lazy sequence over every record in the store.
	// Used for unscoped queries; callers bound the scan themselves.
	ListAll(ctx context.Context) RecordSeq

	// DeleteCollection removes every record belonging to the collection and
	// returns the number removed. Deleting a collection with no records
	// returns 0 without error.
	DeleteCollection(ctx context.Context, collectionID string) (int, error)

	// Close closes the storage backend and releases resources.
	Close() error
}
