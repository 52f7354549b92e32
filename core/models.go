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


package core

import (
	"encoding/binary"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for embedding records.
// It is derived from record content using BLAKE2b hashing so that
// writing the same record twice is naturally idempotent.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// Identical content always produces an identical ID.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// NewRecordID generates the identifier for an embedding record from the
// fields that uniquely identify it. CreatedAt participates so that
// re-indexing the same text at a later time yields a distinct record.
func NewRecordID(collectionID, category, text string, createdAt time.Time) ID {
	return IDFromContent(collectionID + "\x00" + category + "\x00" + text +
		"\x00" + strconv.FormatInt(createdAt.UnixMicro(), 10))
}

// EmbeddingRecord is the atomic indexed unit: one text unit from a
// collection together with its embedding vector. Records are immutable
// after creation; re-embedding rewrites the whole record under the same ID.
type EmbeddingRecord struct {
	Id           ID
	CollectionId string            // Owning logical collection (e.g. one dataset)
	Category     string            // Label classifying the source text ("title", "abstract", ...)
	Text         string            // The original content the vector represents
	Vector       []float32         // Fixed-length embedding; length is uniform store-wide
	CreatedAt    time.Time         // Write time; tiebreak for ranking
	Attributes   map[string]string // Open provenance bag (e.g. "title", "model")
}

// ScoredRecord pairs an embedding record with its similarity to a query vector.
type ScoredRecord struct {
	Record     *EmbeddingRecord
	Similarity float32
}
