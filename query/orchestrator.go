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


package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/aperture-oss/knowledge/ai"
	"github.com/aperture-oss/knowledge/core"
	"github.com/aperture-oss/knowledge/rank"
	"github.com/aperture-oss/knowledge/storage"
)

// defaultMaxCandidates bounds how many stored records a single query scores.
const defaultMaxCandidates = 1000

// Query describes a retrieval request.
type Query struct {
	// Text is the natural-language question or search phrase. Required.
	Text string

	// CollectionId restricts retrieval to one collection. Empty means all.
	CollectionId string

	// Category restricts retrieval to one category label. Empty means all.
	Category string

	// TopK is how many results to return. Must be greater than zero.
	TopK int
}

// Source identifies a record that contributed to an answer.
type Source struct {
	CollectionId string  `json:"collection_id"`
	Category     string  `json:"category"`
	Text         string  `json:"text"`
	Similarity   float32 `json:"similarity"`
}

// SearchResponse holds ranked retrieval results.
type SearchResponse struct {
	Results []core.ScoredRecord
	Total   int
}

// AnswerResponse holds a composed answer with its supporting sources.
type AnswerResponse struct {
	Answer     string
	Confidence float32
	Sources    []Source
}

// Orchestrator runs the retrieval flow: embed the query, score stored
// records, and optionally compose an answer from the best matches.
type Orchestrator struct {
	repository     storage.EmbeddingRepository
	embedder       ai.Embedder
	generator      ai.Generator
	monitor        QueryMonitor
	maxCandidates  int
	contextBudget  int
	maxRetries     int
	retryBaseDelay time.Duration
	requestTimeout time.Duration
	logger         *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// WithMonitor installs a monitor receiving callbacks at each query stage.
func WithMonitor(monitor QueryMonitor) Option {
	return func(o *Orchestrator) error {
		if monitor == nil {
			monitor = &noopMonitor{}
		}
		o.monitor = monitor
		return nil
	}
}

// WithMaxCandidates caps how many stored records a query scores.
// Default is 1000.
func WithMaxCandidates(max int) Option {
	return func(o *Orchestrator) error {
		if max < 1 {
			max = 1
		}
		o.maxCandidates = max
		return nil
	}
}

// WithContextBudget sets the character budget for retrieved text in the
// generation prompt. Default is 6000.
func WithContextBudget(budget int) Option {
	return func(o *Orchestrator) error {
		o.contextBudget = budget
		return nil
	}
}

// WithRetries configures rate-limit retry behavior for provider calls.
func WithRetries(maxRetries int, baseDelay time.Duration) Option {
	return func(o *Orchestrator) error {
		if maxRetries < 0 {
			maxRetries = 0
		}
		o.maxRetries = maxRetries
		o.retryBaseDelay = baseDelay
		return nil
	}
}

// WithRequestTimeout bounds the whole query flow. Default is 60s.
// Zero disables the bound.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) error {
		o.requestTimeout = timeout
		return nil
	}
}

// NewOrchestrator creates a new query orchestrator.
func NewOrchestrator(
	repository storage.EmbeddingRepository,
	provider ai.Provider,
	opts ...Option,
) (*Orchestrator, error) {
	if repository == nil {
		return nil, ErrRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	o := &Orchestrator{
		repository:     repository,
		embedder:       provider.Embedder(),
		generator:      provider.Generator(),
		monitor:        &noopMonitor{},
		maxCandidates:  defaultMaxCandidates,
		contextBudget:  defaultContextBudget,
		maxRetries:     3,
		retryBaseDelay: time.Second,
		requestTimeout: 60 * time.Second,
		logger:         slog.Default().With("component", "query"),
	}

	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// Search embeds the query text and returns the topK most similar records.
func (o *Orchestrator) Search(ctx context.Context, q Query) (*SearchResponse, error) {
	ctx, cancel := o.bound(ctx)
	defer cancel()

	o.monitor.Start(q.Text)
	defer o.monitor.Finish()

	results, err := o.retrieve(ctx, q)
	if err != nil {
		return nil, err
	}

	o.logger.Debug("search complete", "query_length", len(q.Text), "results", len(results))
	return &SearchResponse{Results: results, Total: len(results)}, nil
}

// Answer retrieves the topK most similar records and composes a natural
// language answer from them. When nothing is retrieved, a fixed answer with
// zero confidence is returned without calling the generation model.
func (o *Orchestrator) Answer(ctx context.Context, q Query) (*AnswerResponse, error) {
	ctx, cancel := o.bound(ctx)
	defer cancel()

	o.monitor.Start(q.Text)
	defer o.monitor.Finish()

	results, err := o.retrieve(ctx, q)
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		o.logger.Debug("no candidates retrieved", "query_length", len(q.Text))
		return &AnswerResponse{Answer: noContextAnswer, Confidence: 0}, nil
	}

	prompt := buildAnswerPrompt(q.Text, results, o.contextBudget)

	var answer string
	err = ai.RetryRateLimited(ctx, o.maxRetries, o.retryBaseDelay, func() error {
		var genErr error
		answer, genErr = o.generator.Complete(ctx, prompt)
		return genErr
	})
	if err != nil {
		o.logger.Error("error generating answer", "err", err)
		return nil, stageErr(StageGenerate, err)
	}
	o.monitor.AfterGeneration(answer)

	sources := make([]Source, len(results))
	for i, result := range results {
		sources[i] = Source{
			CollectionId: result.Record.CollectionId,
			Category:     result.Record.Category,
			Text:         result.Record.Text,
			Similarity:   result.Similarity,
		}
	}

	return &AnswerResponse{
		Answer:     answer,
		Confidence: confidence(results),
		Sources:    sources,
	}, nil
}

// retrieve runs the shared validate, embed, and rank stages.
func (o *Orchestrator) retrieve(ctx context.Context, q Query) ([]core.ScoredRecord, error) {
	if q.Text == "" {
		return nil, stageErr(StageValidate, core.ErrEmptyQuery)
	}
	if err := core.ValidateTopK(q.TopK); err != nil {
		return nil, stageErr(StageValidate, err)
	}

	var vector []float32
	err := ai.RetryRateLimited(ctx, o.maxRetries, o.retryBaseDelay, func() error {
		var embedErr error
		vector, embedErr = o.embedder.EmbedText(ctx, q.Text)
		return embedErr
	})
	if err != nil {
		o.logger.Error("error generating embedding for query", "err", err)
		return nil, stageErr(StageEmbed, err)
	}
	o.monitor.AfterEmbedding(vector)

	results, err := rank.Rank(vector, o.candidates(ctx, q), q.TopK)
	if err != nil {
		o.logger.Error("error ranking candidates", "err", err)
		return nil, stageErr(StageRetrieve, err)
	}
	o.monitor.AfterRetrieval(results)

	return results, nil
}

// candidates selects the narrowest stored sequence matching the query
// scope, capped at maxCandidates records.
func (o *Orchestrator) candidates(ctx context.Context, q Query) storage.RecordSeq {
	var seq storage.RecordSeq
	switch {
	case q.CollectionId != "":
		seq = o.repository.ListByCollection(ctx, q.CollectionId)
		if q.Category != "" {
			seq = filterByCategory(seq, q.Category)
		}
	case q.Category != "":
		seq = o.repository.ListByCategory(ctx, q.Category)
	default:
		seq = o.repository.ListAll(ctx)
	}
	return limitSeq(seq, o.maxCandidates)
}

func (o *Orchestrator) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.requestTimeout > 0 {
		return context.WithTimeout(ctx, o.requestTimeout)
	}
	return ctx, func() {}
}

// confidence is the similarity of the best match, clamped to [0, 1].
// Cosine can go slightly negative for dissimilar vectors.
func confidence(results []core.ScoredRecord) float32 {
	if len(results) == 0 {
		return 0
	}
	top := results[0].Similarity
	if top < 0 {
		return 0
	}
	if top > 1 {
		return 1
	}
	return top
}

func filterByCategory(seq storage.RecordSeq, category string) storage.RecordSeq {
	return func(yield func(*core.EmbeddingRecord, error) bool) {
		for record, err := range seq {
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if record.Category != category {
				continue
			}
			if !yield(record, nil) {
				return
			}
		}
	}
}

func limitSeq(seq storage.RecordSeq, limit int) storage.RecordSeq {
	return func(yield func(*core.EmbeddingRecord, error) bool) {
		n := 0
		for record, err := range seq {
			if !yield(record, err) {
				return
			}
			if err == nil {
				n++
				if n >= limit {
					return
				}
			}
		}
	}
}
