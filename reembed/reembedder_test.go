package reembed

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aperture-oss/knowledge/ai/mock"
	"github.com/aperture-oss/knowledge/core"
	"github.com/aperture-oss/knowledge/storage"
	"github.com/aperture-oss/knowledge/storage/badger"
)

const testDimensions = 4

func newTestRepo(t *testing.T) storage.EmbeddingRepository {
	t.Helper()
	repo, backend, err := badger.NewMemoryRepository(testDimensions)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return repo
}

func putRecord(t *testing.T, repo storage.EmbeddingRepository, collectionID, text string, vector []float32) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, repo.Put(context.Background(), &core.EmbeddingRecord{
		Id:           core.NewRecordID(collectionID, "abstract", text, now),
		CollectionId: collectionID,
		Category:     "abstract",
		Text:         text,
		Vector:       vector,
		CreatedAt:    now,
	}))
}

func TestReembedderRun(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces stored vectors", func(t *testing.T) {
		repo := newTestRepo(t)
		oldVector := []float32{1, 0, 0, 0}
		newVector := []float32{0, 1, 0, 0}
		putRecord(t, repo, "ds-001", "first text", oldVector)
		putRecord(t, repo, "ds-002", "second text", oldVector)

		embedder := mock.NewMockEmbedderWithDimensions(testDimensions)
		embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
			vectors := make([][]float32, len(texts))
			for i := range texts {
				vectors[i] = newVector
			}
			return vectors, nil
		}

		var out bytes.Buffer
		reembedder := NewReembedder(repo, embedder, nil, &out)

		processed, err := reembedder.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, processed)

		for record, err := range repo.ListAll(ctx) {
			require.NoError(t, err)
			assert.Equal(t, newVector, record.Vector)
		}
		assert.Contains(t, out.String(), "Reembedding complete")
	})

	t.Run("empty store is a no-op", func(t *testing.T) {
		repo := newTestRepo(t)
		embedder := mock.NewMockEmbedderWithDimensions(testDimensions)

		var out bytes.Buffer
		reembedder := NewReembedder(repo, embedder, nil, &out)

		processed, err := reembedder.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, processed)
		assert.Equal(t, 0, embedder.CallCount())
		assert.Contains(t, out.String(), "No records found")
	})

	t.Run("batches by configured size", func(t *testing.T) {
		repo := newTestRepo(t)
		for _, text := range []string{"a", "b", "c", "d", "e"} {
			putRecord(t, repo, "ds-001", text, []float32{1, 0, 0, 0})
		}

		batches := 0
		embedder := mock.NewMockEmbedderWithDimensions(testDimensions)
		embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
			batches++
			assert.LessOrEqual(t, len(texts), 2)
			vectors := make([][]float32, len(texts))
			for i := range texts {
				vectors[i] = []float32{0, 0, 1, 0}
			}
			return vectors, nil
		}

		var out bytes.Buffer
		config := DefaultConfig()
		config.BatchSize = 2
		reembedder := NewReembedder(repo, embedder, config, &out)

		processed, err := reembedder.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, processed)
		assert.Equal(t, 3, batches)
	})
}

func TestReembedderRunCollection(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	oldVector := []float32{1, 0, 0, 0}
	newVector := []float32{0, 1, 0, 0}
	putRecord(t, repo, "ds-001", "target", oldVector)
	putRecord(t, repo, "ds-002", "untouched", oldVector)

	embedder := mock.NewMockEmbedderWithDimensions(testDimensions)
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		vectors := make([][]float32, len(texts))
		for i := range texts {
			vectors[i] = newVector
		}
		return vectors, nil
	}

	var out bytes.Buffer
	reembedder := NewReembedder(repo, embedder, nil, &out)

	processed, err := reembedder.RunCollection(ctx, "ds-001")
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	for record, err := range repo.ListAll(ctx) {
		require.NoError(t, err)
		switch record.CollectionId {
		case "ds-001":
			assert.Equal(t, newVector, record.Vector)
		case "ds-002":
			assert.Equal(t, oldVector, record.Vector)
		}
	}

	t.Run("rejects empty collection id", func(t *testing.T) {
		_, err := reembedder.RunCollection(ctx, "")
		assert.ErrorIs(t, err, core.ErrEmptyCollectionID)
	})
}
