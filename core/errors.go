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

import "errors"

// Domain validation errors. These are rejected before any I/O is performed.
var (
	// ErrInvalidRecord indicates an EmbeddingRecord failed validation.
	ErrInvalidRecord = errors.New("invalid embedding record")

	// ErrDimensionMismatch indicates a vector whose length does not match
	// the store's configured dimensionality.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidTopK indicates a non-positive topK value.
	ErrInvalidTopK = errors.New("topK must be greater than 0")

	// ErrEmptyQuery indicates query text is missing.
	ErrEmptyQuery = errors.New("query text cannot be empty")

	// ErrEmptyCollectionID indicates the collection identifier is missing.
	ErrEmptyCollectionID = errors.New("collection id cannot be empty")

	// ErrEmptyCategory indicates a record's category label is missing.
	ErrEmptyCategory = errors.New("category cannot be empty")

	// ErrEmptyText indicates a record's text content is missing.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrEmptyVector indicates a record carries no embedding vector.
	ErrEmptyVector = errors.New("vector cannot be empty")
)
