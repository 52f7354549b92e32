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


package index

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/aperture-oss/knowledge/ai"
	"github.com/aperture-oss/knowledge/core"
	"github.com/aperture-oss/knowledge/storage"
)

// Indexer embeds the text fields of a collection and stores the resulting
// records. Fields are processed concurrently on a worker pool; a failure in
// one field does not stop the others.
type Indexer struct {
	repository      storage.EmbeddingRepository
	embedder        ai.Embedder
	pool            *ants.Pool
	replaceExisting bool
	maxRetries      int
	retryBaseDelay  time.Duration
	fieldTimeout    time.Duration
	logger          *slog.Logger
}

// Option configures an Indexer.
type Option func(*Indexer) error

// WithPoolSize sets the worker pool size for concurrent embedding.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(idx *Indexer) error {
		if size < 1 {
			size = 1
		}

		if idx.pool != nil {
			idx.pool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		idx.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(idx *Indexer) error {
		if logger == nil {
			logger = slog.Default()
		}
		idx.logger = logger
		return nil
	}
}

// WithReplaceExisting controls whether indexing a collection first removes
// its previously stored records. Default is false: new fields append to
// whatever is already stored.
func WithReplaceExisting(replace bool) Option {
	return func(idx *Indexer) error {
		idx.replaceExisting = replace
		return nil
	}
}

// WithRetries configures rate-limit retry behavior for embedding calls.
func WithRetries(maxRetries int, baseDelay time.Duration) Option {
	return func(idx *Indexer) error {
		if maxRetries < 0 {
			maxRetries = 0
		}
		idx.maxRetries = maxRetries
		idx.retryBaseDelay = baseDelay
		return nil
	}
}

// WithFieldTimeout bounds how long a single field may take to embed and
// store, including retries. Default is 30s. Zero disables the bound.
func WithFieldTimeout(timeout time.Duration) Option {
	return func(idx *Indexer) error {
		idx.fieldTimeout = timeout
		return nil
	}
}

// NewIndexer creates a new indexer.
func NewIndexer(
	repository storage.EmbeddingRepository,
	provider ai.Provider,
	opts ...Option,
) (*Indexer, error) {
	if repository == nil {
		return nil, ErrRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	idx := &Indexer{
		repository:     repository,
		embedder:       provider.Embedder(),
		pool:           pool,
		maxRetries:     3,
		retryBaseDelay: time.Second,
		fieldTimeout:   30 * time.Second,
		logger:         slog.Default().With("component", "indexer"),
	}

	for _, opt := range opts {
		if optErr := opt(idx); optErr != nil {
			idx.Release()
			return nil, optErr
		}
	}

	return idx, nil
}

// IndexOptions holds optional parameters for indexing.
type IndexOptions struct {
	Attributes map[string]string // Optional attributes attached to every record
	Timestamp  time.Time         // Optional timestamp (uses current time if zero)
}

// IndexCollection embeds each non-empty text field and stores one record per
// field, keyed by category. Returns the number of fields stored.
//
// Fields embed concurrently. When some fields fail and others succeed, the
// successes stay in the store and the returned error is a *PartialError
// naming the failed categories.
func (idx *Indexer) IndexCollection(ctx context.Context, collectionID string, fields map[string]string, opts *IndexOptions) (int, error) {
	if collectionID == "" {
		return 0, core.ErrEmptyCollectionID
	}
	if opts == nil {
		opts = &IndexOptions{}
	}

	timestamp := opts.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	// Blank fields are skipped, not errors. An all-blank request is.
	pending := make(map[string]string, len(fields))
	for category, text := range fields {
		if text == "" {
			idx.logger.Debug("skipping empty field", "collection", collectionID, "category", category)
			continue
		}
		pending[category] = text
	}
	if len(pending) == 0 {
		return 0, ErrNoFields
	}

	if idx.replaceExisting {
		removed, err := idx.repository.DeleteCollection(ctx, collectionID)
		if err != nil {
			return 0, err
		}
		if removed > 0 {
			idx.logger.Debug("replaced existing records", "collection", collectionID, "removed", removed)
		}
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		indexed int
		failed  = make(map[string]error)
	)

	for category, text := range pending {
		wg.Add(1)
		submitErr := idx.pool.Submit(func() {
			defer wg.Done()
			err := idx.indexField(ctx, collectionID, category, text, timestamp, opts.Attributes)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[category] = err
				return
			}
			indexed++
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			failed[category] = submitErr
			mu.Unlock()
		}
	}
	wg.Wait()

	if len(failed) > 0 {
		for category, err := range failed {
			idx.logger.Error("failed to index field",
				"collection", collectionID, "category", category, "err", err)
		}
		return indexed, &PartialError{Indexed: indexed, Failed: failed}
	}

	idx.logger.Debug("indexed collection", "collection", collectionID, "fields", indexed)
	return indexed, nil
}

// indexField embeds one field with retries and stores the record.
func (idx *Indexer) indexField(ctx context.Context, collectionID, category, text string, timestamp time.Time, attributes map[string]string) error {
	if idx.fieldTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, idx.fieldTimeout)
		defer cancel()
	}

	var vector []float32
	err := ai.RetryRateLimited(ctx, idx.maxRetries, idx.retryBaseDelay, func() error {
		var embedErr error
		vector, embedErr = idx.embedder.EmbedText(ctx, text)
		return embedErr
	})
	if err != nil {
		return err
	}

	record := &core.EmbeddingRecord{
		Id:           core.NewRecordID(collectionID, category, text, timestamp),
		CollectionId: collectionID,
		Category:     category,
		Text:         text,
		Vector:       vector,
		CreatedAt:    timestamp,
		Attributes:   attributes,
	}

	return idx.repository.Put(ctx, record)
}

// Release releases the worker pool.
// The indexer should not be used after calling Release.
func (idx *Indexer) Release() {
	if idx.pool != nil {
		idx.pool.Release()
	}
}
