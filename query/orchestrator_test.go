package query

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aperture-oss/knowledge/ai/mock"
	"github.com/aperture-oss/knowledge/core"
	"github.com/aperture-oss/knowledge/storage"
	"github.com/aperture-oss/knowledge/storage/badger"
)

const testDimensions = 3

// topicVectors gives tests control over which stored texts a query lands
// near, without a real embedding model.
var topicVectors = map[string][]float32{
	"pottery findings":           {1, 0, 0},
	"Catalog of Bronze Age pottery finds.": {0.9, 0.1, 0},
	"weather patterns":           {0, 1, 0},
	"Rainfall measurements across decades.": {0, 0.95, 0.05},
	"orbital mechanics":          {0, 0, 1},
}

func topicEmbedder() *mock.MockEmbedder {
	embedder := mock.NewMockEmbedderWithDimensions(testDimensions)
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		if vector, ok := topicVectors[text]; ok {
			return vector, nil
		}
		return []float32{0.1, 0.1, 0.1}, nil
	}
	return embedder
}

func newTestOrchestrator(t *testing.T, embedder *mock.MockEmbedder, generator *mock.MockGenerator, opts ...Option) (*Orchestrator, storage.EmbeddingRepository) {
	t.Helper()
	repo, backend, err := badger.NewMemoryRepository(testDimensions)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	if embedder == nil {
		embedder = topicEmbedder()
	}
	if generator == nil {
		generator = mock.NewMockGenerator()
	}
	provider := mock.NewMockProviderWithServices(embedder, generator)

	orchestrator, err := NewOrchestrator(repo, provider, opts...)
	require.NoError(t, err)
	return orchestrator, repo
}

func putRecord(t *testing.T, repo storage.EmbeddingRepository, collectionID, category, text string, vector []float32) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, repo.Put(context.Background(), &core.EmbeddingRecord{
		Id:           core.NewRecordID(collectionID, category, text, now),
		CollectionId: collectionID,
		Category:     category,
		Text:         text,
		Vector:       vector,
		CreatedAt:    now,
	}))
}

func TestSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("finds semantically nearest records", func(t *testing.T) {
		orchestrator, repo := newTestOrchestrator(t, nil, nil)
		putRecord(t, repo, "ds-pottery", "abstract", "Catalog of Bronze Age pottery finds.", topicVectors["Catalog of Bronze Age pottery finds."])
		putRecord(t, repo, "ds-weather", "abstract", "Rainfall measurements across decades.", topicVectors["Rainfall measurements across decades."])

		response, err := orchestrator.Search(ctx, Query{Text: "pottery findings", TopK: 1})
		require.NoError(t, err)
		require.Len(t, response.Results, 1)
		assert.Equal(t, 1, response.Total)
		assert.Equal(t, "ds-pottery", response.Results[0].Record.CollectionId)
	})

	t.Run("results ordered by similarity", func(t *testing.T) {
		orchestrator, repo := newTestOrchestrator(t, nil, nil)
		putRecord(t, repo, "ds-pottery", "abstract", "Catalog of Bronze Age pottery finds.", topicVectors["Catalog of Bronze Age pottery finds."])
		putRecord(t, repo, "ds-weather", "abstract", "Rainfall measurements across decades.", topicVectors["Rainfall measurements across decades."])

		response, err := orchestrator.Search(ctx, Query{Text: "pottery findings", TopK: 5})
		require.NoError(t, err)
		require.Len(t, response.Results, 2)
		assert.Equal(t, "ds-pottery", response.Results[0].Record.CollectionId)
		assert.Greater(t, response.Results[0].Similarity, response.Results[1].Similarity)
	})

	t.Run("collection filter narrows scope", func(t *testing.T) {
		orchestrator, repo := newTestOrchestrator(t, nil, nil)
		putRecord(t, repo, "ds-pottery", "abstract", "Catalog of Bronze Age pottery finds.", topicVectors["Catalog of Bronze Age pottery finds."])
		putRecord(t, repo, "ds-weather", "abstract", "Rainfall measurements across decades.", topicVectors["Rainfall measurements across decades."])

		response, err := orchestrator.Search(ctx, Query{Text: "pottery findings", CollectionId: "ds-weather", TopK: 5})
		require.NoError(t, err)
		require.Len(t, response.Results, 1)
		assert.Equal(t, "ds-weather", response.Results[0].Record.CollectionId)
	})

	t.Run("category filter narrows scope", func(t *testing.T) {
		orchestrator, repo := newTestOrchestrator(t, nil, nil)
		putRecord(t, repo, "ds-pottery", "abstract", "Catalog of Bronze Age pottery finds.", topicVectors["Catalog of Bronze Age pottery finds."])
		putRecord(t, repo, "ds-pottery", "keywords", "pottery, ceramics", []float32{0.8, 0.2, 0})

		response, err := orchestrator.Search(ctx, Query{Text: "pottery findings", CollectionId: "ds-pottery", Category: "keywords", TopK: 5})
		require.NoError(t, err)
		require.Len(t, response.Results, 1)
		assert.Equal(t, "keywords", response.Results[0].Record.Category)
	})

	t.Run("empty store yields empty results", func(t *testing.T) {
		orchestrator, _ := newTestOrchestrator(t, nil, nil)

		response, err := orchestrator.Search(ctx, Query{Text: "pottery findings", TopK: 5})
		require.NoError(t, err)
		assert.Empty(t, response.Results)
		assert.Equal(t, 0, response.Total)
	})

	t.Run("rejects empty query text", func(t *testing.T) {
		orchestrator, _ := newTestOrchestrator(t, nil, nil)

		_, err := orchestrator.Search(ctx, Query{Text: "", TopK: 5})
		require.Error(t, err)
		var stageError *StageError
		require.ErrorAs(t, err, &stageError)
		assert.Equal(t, StageValidate, stageError.Stage)
		assert.ErrorIs(t, err, core.ErrEmptyQuery)
	})

	t.Run("rejects non-positive topK", func(t *testing.T) {
		orchestrator, _ := newTestOrchestrator(t, nil, nil)

		_, err := orchestrator.Search(ctx, Query{Text: "pottery findings", TopK: 0})
		assert.ErrorIs(t, err, core.ErrInvalidTopK)
	})

	t.Run("embedding failure carries stage", func(t *testing.T) {
		embedder := mock.NewMockEmbedderWithDimensions(testDimensions)
		embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
			return nil, errors.New("model unavailable")
		}
		orchestrator, _ := newTestOrchestrator(t, embedder, nil)

		_, err := orchestrator.Search(ctx, Query{Text: "pottery findings", TopK: 5})
		require.Error(t, err)
		var stageError *StageError
		require.ErrorAs(t, err, &stageError)
		assert.Equal(t, StageEmbed, stageError.Stage)
	})
}

func TestAnswer(t *testing.T) {
	ctx := context.Background()

	t.Run("composes answer with sources", func(t *testing.T) {
		generator := mock.NewMockGenerator()
		generator.Answer = "The repository holds Bronze Age pottery catalogs."
		orchestrator, repo := newTestOrchestrator(t, nil, generator)
		putRecord(t, repo, "ds-pottery", "abstract", "Catalog of Bronze Age pottery finds.", topicVectors["Catalog of Bronze Age pottery finds."])

		response, err := orchestrator.Answer(ctx, Query{Text: "pottery findings", TopK: 5})
		require.NoError(t, err)
		assert.Equal(t, "The repository holds Bronze Age pottery catalogs.", response.Answer)
		assert.Greater(t, response.Confidence, float32(0.9))
		require.Len(t, response.Sources, 1)
		assert.Equal(t, "ds-pottery", response.Sources[0].CollectionId)
		assert.Equal(t, "abstract", response.Sources[0].Category)
	})

	t.Run("prompt carries retrieved context and question", func(t *testing.T) {
		generator := mock.NewMockGenerator()
		orchestrator, repo := newTestOrchestrator(t, nil, generator)
		putRecord(t, repo, "ds-pottery", "abstract", "Catalog of Bronze Age pottery finds.", topicVectors["Catalog of Bronze Age pottery finds."])

		_, err := orchestrator.Answer(ctx, Query{Text: "pottery findings", TopK: 5})
		require.NoError(t, err)
		assert.Contains(t, generator.LastPrompt, "[Collection: ds-pottery]")
		assert.Contains(t, generator.LastPrompt, "Catalog of Bronze Age pottery finds.")
		assert.Contains(t, generator.LastPrompt, "User Question: pottery findings")
	})

	t.Run("empty retrieval skips generation", func(t *testing.T) {
		generator := mock.NewMockGenerator()
		orchestrator, _ := newTestOrchestrator(t, nil, generator)

		response, err := orchestrator.Answer(ctx, Query{Text: "pottery findings", TopK: 5})
		require.NoError(t, err)
		assert.Equal(t, noContextAnswer, response.Answer)
		assert.Equal(t, float32(0), response.Confidence)
		assert.Empty(t, response.Sources)
		assert.Equal(t, 0, generator.CallCount())
	})

	t.Run("generation failure carries stage", func(t *testing.T) {
		generator := mock.NewMockGenerator()
		generator.CompleteFunc = func(ctx context.Context, prompt string) (string, error) {
			return "", errors.New("model unavailable")
		}
		orchestrator, repo := newTestOrchestrator(t, nil, generator)
		putRecord(t, repo, "ds-pottery", "abstract", "Catalog of Bronze Age pottery finds.", topicVectors["Catalog of Bronze Age pottery finds."])

		_, err := orchestrator.Answer(ctx, Query{Text: "pottery findings", TopK: 5})
		require.Error(t, err)
		var stageError *StageError
		require.ErrorAs(t, err, &stageError)
		assert.Equal(t, StageGenerate, stageError.Stage)
	})
}

func TestBuildAnswerPrompt(t *testing.T) {
	record := func(collectionID, text string) core.ScoredRecord {
		return core.ScoredRecord{
			Record: &core.EmbeddingRecord{
				CollectionId: collectionID,
				Category:     "abstract",
				Text:         text,
			},
			Similarity: 0.8,
		}
	}

	t.Run("budget truncates overflowing record and drops the rest", func(t *testing.T) {
		results := []core.ScoredRecord{
			record("ds-1", strings.Repeat("a", 50)),
			record("ds-2", strings.Repeat("b", 50)),
			record("ds-3", strings.Repeat("c", 50)),
		}

		prompt := buildAnswerPrompt("question", results, 75)
		assert.Contains(t, prompt, strings.Repeat("a", 50))
		assert.Contains(t, prompt, strings.Repeat("b", 25))
		assert.NotContains(t, prompt, strings.Repeat("b", 26))
		assert.NotContains(t, prompt, "ds-3")
	})

	t.Run("labels each block with its collection", func(t *testing.T) {
		prompt := buildAnswerPrompt("question", []core.ScoredRecord{
			record("ds-1", "first"),
			record("ds-2", "second"),
		}, 0)
		assert.Contains(t, prompt, "[Collection: ds-1]\nfirst")
		assert.Contains(t, prompt, "[Collection: ds-2]\nsecond")
	})
}

func TestQueryMonitorCallbacks(t *testing.T) {
	ctx := context.Background()

	recorder := &recordingMonitor{}
	orchestrator, repo := newTestOrchestrator(t, nil, nil, WithMonitor(recorder))
	putRecord(t, repo, "ds-pottery", "abstract", "Catalog of Bronze Age pottery finds.", topicVectors["Catalog of Bronze Age pottery finds."])

	_, err := orchestrator.Answer(ctx, Query{Text: "pottery findings", TopK: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "embed", "retrieve", "generate", "finish"}, recorder.calls)
}

type recordingMonitor struct {
	calls []string
}

func (m *recordingMonitor) Start(_ string)                       { m.calls = append(m.calls, "start") }
func (m *recordingMonitor) AfterEmbedding(_ []float32)           { m.calls = append(m.calls, "embed") }
func (m *recordingMonitor) AfterRetrieval(_ []core.ScoredRecord) { m.calls = append(m.calls, "retrieve") }
func (m *recordingMonitor) AfterGeneration(_ string)             { m.calls = append(m.calls, "generate") }
func (m *recordingMonitor) Finish()                              { m.calls = append(m.calls, "finish") }
