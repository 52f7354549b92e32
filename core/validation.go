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

import "fmt"

// ValidateRecord validates an EmbeddingRecord according to domain rules.
//
// Validation rules:
//   - CollectionId, Category, and Text must not be empty
//   - Vector must not be empty
//
// NOT validated here:
//   - Vector length against the store's configured dimensionality
//     (the store owns that check, since the dimensionality is its config)
func ValidateRecord(record *EmbeddingRecord) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidRecord)
	}

	if record.CollectionId == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyCollectionID)
	}

	if record.Category == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyCategory)
	}

	if record.Text == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyText)
	}

	if len(record.Vector) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyVector)
	}

	return nil
}

// ValidateTopK checks that a topK value is usable for ranking.
func ValidateTopK(topK int) error {
	if topK <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidTopK, topK)
	}
	return nil
}
