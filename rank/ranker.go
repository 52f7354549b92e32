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


package rank

import (
	"math"
	"slices"

	"github.com/aperture-oss/knowledge/core"
	"github.com/aperture-oss/knowledge/storage"
)

// Cosine computes the cosine similarity between two vectors.
// Returns 0.0 when either vector has zero magnitude or the lengths differ,
// so degenerate inputs sink to the bottom of the ranking instead of
// producing NaN.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}

	if magA == 0 || magB == 0 {
		return 0.0
	}

	return float32(dot / (math.Sqrt(magA) * math.Sqrt(magB)))
}

// Rank scores every candidate against the query vector and returns the topK
// highest-scoring records in descending similarity order. Ties break by
// CreatedAt descending (newer first), then by Id ascending so ordering is
// fully deterministic.
//
// The candidate sequence is consumed exactly once. An error yielded by the
// sequence aborts the ranking.
func Rank(query []float32, candidates storage.RecordSeq, topK int) ([]core.ScoredRecord, error) {
	if err := core.ValidateTopK(topK); err != nil {
		return nil, err
	}

	var scored []core.ScoredRecord
	for record, err := range candidates {
		if err != nil {
			return nil, err
		}
		scored = append(scored, core.ScoredRecord{
			Record:     record,
			Similarity: Cosine(query, record.Vector),
		})
	}

	slices.SortFunc(scored, compareScored)

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

func compareScored(a, b core.ScoredRecord) int {
	switch {
	case a.Similarity > b.Similarity:
		return -1
	case a.Similarity < b.Similarity:
		return 1
	}
	if !a.Record.CreatedAt.Equal(b.Record.CreatedAt) {
		if a.Record.CreatedAt.After(b.Record.CreatedAt) {
			return -1
		}
		return 1
	}
	switch {
	case a.Record.Id < b.Record.Id:
		return -1
	case a.Record.Id > b.Record.Id:
		return 1
	}
	return 0
}
