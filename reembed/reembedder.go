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


package reembed

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aperture-oss/knowledge/ai"
	"github.com/aperture-oss/knowledge/core"
	"github.com/aperture-oss/knowledge/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of records to embed in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of records)
	ReportInterval int

	// MaxRetries is the maximum number of retry attempts for rate-limited calls
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Reembedder regenerates the vectors of stored records with the configured
// embedder. Run it after switching embedding models so old and new records
// score against queries in the same vector space.
type Reembedder struct {
	repo     storage.EmbeddingRepository
	embedder ai.Embedder
	config   *Config
	progress io.Writer
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(repo storage.EmbeddingRepository, embedder ai.Embedder, config *Config, progress io.Writer) *Reembedder {
	if config == nil {
		config = DefaultConfig()
	}
	return &Reembedder{
		repo:     repo,
		embedder: embedder,
		config:   config,
		progress: progress,
	}
}

// Run reembeds every record in the store.
func (r *Reembedder) Run(ctx context.Context) (int, error) {
	return r.run(ctx, func() storage.RecordSeq { return r.repo.ListAll(ctx) })
}

// RunCollection reembeds only the records of one collection.
func (r *Reembedder) RunCollection(ctx context.Context, collectionID string) (int, error) {
	if collectionID == "" {
		return 0, core.ErrEmptyCollectionID
	}
	return r.run(ctx, func() storage.RecordSeq { return r.repo.ListByCollection(ctx, collectionID) })
}

// run drives the reembedding over a restartable sequence. The sequence is
// ranged twice: once to count, once to process, so progress can report a
// total.
func (r *Reembedder) run(ctx context.Context, seq func() storage.RecordSeq) (int, error) {
	total := 0
	for _, err := range seq() {
		if err != nil {
			return 0, fmt.Errorf("failed to scan records: %w", err)
		}
		total++
	}

	if total == 0 {
		fmt.Fprintf(r.progress, "No records found (0 records)\n")
		return 0, nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d records (batch size: %d)\n",
		total, r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	processed := 0
	batch := make([]*core.EmbeddingRecord, 0, r.config.BatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := r.processBatch(ctx, batch); err != nil {
			return err
		}
		processed += len(batch)
		tracker.Update(processed)
		batch = batch[:0]
		return nil
	}

	for record, err := range seq() {
		if err != nil {
			return processed, fmt.Errorf("failed to read record: %w", err)
		}
		batch = append(batch, record)
		if len(batch) >= r.config.BatchSize {
			if err := flush(); err != nil {
				return processed, err
			}
		}
	}
	if err := flush(); err != nil {
		return processed, err
	}

	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d records in %v (%.1f records/sec)\n",
		processed, elapsed.Round(time.Second), float64(processed)/elapsed.Seconds())

	return processed, nil
}

// processBatch embeds the batch texts in one provider call and stores the
// updated records.
func (r *Reembedder) processBatch(ctx context.Context, batch []*core.EmbeddingRecord) error {
	texts := make([]string, len(batch))
	for i, record := range batch {
		texts[i] = record.Text
	}

	var vectors [][]float32
	err := ai.RetryRateLimited(ctx, r.config.MaxRetries, r.config.RetryDelay, func() error {
		var embedErr error
		vectors, embedErr = r.embedder.EmbedTexts(ctx, texts)
		return embedErr
	})
	if err != nil {
		return fmt.Errorf("failed to embed batch: %w", err)
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(batch))
	}

	for i, record := range batch {
		record.Vector = vectors[i]
		if err := r.repo.Put(ctx, record); err != nil {
			return fmt.Errorf("failed to store record %d: %w", record.Id, err)
		}
	}
	return nil
}
