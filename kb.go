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


// Package knowledge is a semantic retrieval and answer-composition engine.
//
// A KnowledgeBase stores embedding records for collections of text fields,
// retrieves the records most similar to a natural-language query, and
// composes answers from the retrieved context using an OpenAI-compatible
// generation model. Storage is an embedded BadgerDB database by default;
// a Qdrant-backed repository can be injected instead.
package knowledge

import (
	"context"
	"io"
	"log/slog"

	"github.com/aperture-oss/knowledge/ai"
	"github.com/aperture-oss/knowledge/ai/openai"
	"github.com/aperture-oss/knowledge/index"
	"github.com/aperture-oss/knowledge/query"
	"github.com/aperture-oss/knowledge/reembed"
	"github.com/aperture-oss/knowledge/storage"
	"github.com/aperture-oss/knowledge/storage/badger"
)

// KnowledgeBase ties the storage, indexing, and query layers together
// behind one handle. It is safe for concurrent use.
type KnowledgeBase struct {
	backend      *badger.Backend
	repo         storage.EmbeddingRepository
	provider     ai.Provider
	indexer      *index.Indexer
	orchestrator *query.Orchestrator
	logger       *slog.Logger
}

// Option configures a KnowledgeBase.
type Option func(*options)

type options struct {
	aiConfig        *ai.Config
	provider        ai.Provider
	repo            storage.EmbeddingRepository
	inMemory        bool
	replaceExisting bool
	indexOpts       []index.Option
	queryOpts       []query.Option
}

// WithAIConfig sets the AI provider configuration. Ignored when a provider
// is injected with WithProvider.
func WithAIConfig(cfg *ai.Config) Option {
	return func(o *options) {
		o.aiConfig = cfg
	}
}

// WithProvider injects a pre-built AI provider, bypassing the default
// OpenAI-compatible one. The KnowledgeBase takes ownership and closes it.
func WithProvider(provider ai.Provider) Option {
	return func(o *options) {
		o.provider = provider
	}
}

// WithRepository injects a pre-built embedding repository (for example a
// Qdrant-backed store) instead of opening the embedded BadgerDB database.
// The KnowledgeBase takes ownership and closes it.
func WithRepository(repo storage.EmbeddingRepository) Option {
	return func(o *options) {
		o.repo = repo
	}
}

// WithInMemory opens the embedded store in memory. All data is lost on
// Close. Ignored when a repository is injected.
func WithInMemory() Option {
	return func(o *options) {
		o.inMemory = true
	}
}

// WithReplaceExisting makes Index replace a collection's stored records
// instead of appending to them.
func WithReplaceExisting() Option {
	return func(o *options) {
		o.replaceExisting = true
	}
}

// WithIndexOptions forwards extra options to the indexer.
func WithIndexOptions(opts ...index.Option) Option {
	return func(o *options) {
		o.indexOpts = append(o.indexOpts, opts...)
	}
}

// WithQueryOptions forwards extra options to the query orchestrator.
func WithQueryOptions(opts ...query.Option) Option {
	return func(o *options) {
		o.queryOpts = append(o.queryOpts, opts...)
	}
}

// New opens (or creates) a knowledge base at filePath.
func New(filePath string, opts ...Option) (*KnowledgeBase, error) {
	o := &options{
		aiConfig: ai.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.aiConfig.Validate(); err != nil {
		return nil, err
	}

	provider := o.provider
	if provider == nil {
		var err error
		provider, err = openai.NewProvider(o.aiConfig)
		if err != nil {
			return nil, err
		}
	}

	var backend *badger.Backend
	repo := o.repo
	if repo == nil {
		var err error
		backend, err = badger.OpenBackend(filePath, o.inMemory)
		if err != nil {
			provider.Close()
			return nil, err
		}
		repo, err = badger.NewEmbeddingRepository(backend, o.aiConfig.Dimensions)
		if err != nil {
			backend.Close()
			provider.Close()
			return nil, err
		}
	}

	indexOpts := append([]index.Option{
		index.WithReplaceExisting(o.replaceExisting),
		index.WithRetries(o.aiConfig.MaxRetries, o.aiConfig.RetryBaseDelay),
	}, o.indexOpts...)
	indexer, err := index.NewIndexer(repo, provider, indexOpts...)
	if err != nil {
		repo.Close()
		if backend != nil {
			backend.Close()
		}
		provider.Close()
		return nil, err
	}

	queryOpts := append([]query.Option{
		query.WithRetries(o.aiConfig.MaxRetries, o.aiConfig.RetryBaseDelay),
	}, o.queryOpts...)
	orchestrator, err := query.NewOrchestrator(repo, provider, queryOpts...)
	if err != nil {
		indexer.Release()
		repo.Close()
		if backend != nil {
			backend.Close()
		}
		provider.Close()
		return nil, err
	}

	return &KnowledgeBase{
		backend:      backend,
		repo:         repo,
		provider:     provider,
		indexer:      indexer,
		orchestrator: orchestrator,
		logger:       slog.Default(),
	}, nil
}

// Index embeds and stores the text fields of a collection.
func (kb *KnowledgeBase) Index(ctx context.Context, collectionID string, fields map[string]string, opts *index.IndexOptions) (int, error) {
	return kb.indexer.IndexCollection(ctx, collectionID, fields, opts)
}

// Search returns the stored records most similar to the query.
func (kb *KnowledgeBase) Search(ctx context.Context, q query.Query) (*query.SearchResponse, error) {
	return kb.orchestrator.Search(ctx, q)
}

// Answer retrieves relevant records and composes a natural-language answer.
func (kb *KnowledgeBase) Answer(ctx context.Context, q query.Query) (*query.AnswerResponse, error) {
	return kb.orchestrator.Answer(ctx, q)
}

// DeleteCollection removes all records of a collection and returns how many
// were removed.
func (kb *KnowledgeBase) DeleteCollection(ctx context.Context, collectionID string) (int, error) {
	return kb.repo.DeleteCollection(ctx, collectionID)
}

// Reembed regenerates the vectors of every stored record (or one
// collection when collectionID is non-empty), writing progress to progress.
func (kb *KnowledgeBase) Reembed(ctx context.Context, collectionID string, progress io.Writer) (int, error) {
	reembedder := reembed.NewReembedder(kb.repo, kb.provider.Embedder(), nil, progress)
	if collectionID == "" {
		return reembedder.Run(ctx)
	}
	return reembedder.RunCollection(ctx, collectionID)
}

// Repository exposes the underlying embedding repository.
func (kb *KnowledgeBase) Repository() storage.EmbeddingRepository {
	return kb.repo
}

// Close releases all resources: the indexer pool, the AI provider, the
// repository, and the storage backend.
func (kb *KnowledgeBase) Close() error {
	kb.indexer.Release()

	if err := kb.provider.Close(); err != nil {
		kb.logger.Error("error closing AI provider", "err", err)
	}

	if err := kb.repo.Close(); err != nil {
		kb.logger.Error("error closing repository", "err", err)
		return err
	}
	if kb.backend != nil {
		if err := kb.backend.Close(); err != nil {
			kb.logger.Error("error closing backend storage", "err", err)
			return err
		}
	}
	return nil
}
