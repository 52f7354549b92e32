package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aperture-oss/knowledge/core"
	"github.com/aperture-oss/knowledge/storage"
)

const testDimensions = 4

func newTestRepository(t *testing.T) storage.EmbeddingRepository {
	t.Helper()
	repo, backend, err := NewMemoryRepository(testDimensions)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, repo.Close())
		require.NoError(t, backend.Close())
	})
	return repo
}

func testRecord(collectionID, category, text string, createdAt time.Time) *core.EmbeddingRecord {
	return &core.EmbeddingRecord{
		Id:           core.NewRecordID(collectionID, category, text, createdAt),
		CollectionId: collectionID,
		Category:     category,
		Text:         text,
		Vector:       []float32{0.1, 0.2, 0.3, 0.4},
		CreatedAt:    createdAt.UTC(),
	}
}

func collect(t *testing.T, seq storage.RecordSeq) []*core.EmbeddingRecord {
	t.Helper()
	var records []*core.EmbeddingRecord
	for record, err := range seq {
		require.NoError(t, err)
		records = append(records, record)
	}
	return records
}

func TestEmbeddingRepository_Put(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("read-your-writes", func(t *testing.T) {
		repo := newTestRepository(t)
		record := testRecord("ds-001", "abstract", "A study of Bronze Age pottery.", now)
		require.NoError(t, repo.Put(ctx, record))

		records := collect(t, repo.ListByCollection(ctx, "ds-001"))
		require.Len(t, records, 1)
		assert.Equal(t, record.Id, records[0].Id)
		assert.Equal(t, record.Text, records[0].Text)
		assert.Equal(t, record.Vector, records[0].Vector)
	})

	t.Run("idempotent for identical content", func(t *testing.T) {
		repo := newTestRepository(t)
		record := testRecord("ds-001", "abstract", "A study of Bronze Age pottery.", now)
		require.NoError(t, repo.Put(ctx, record))
		require.NoError(t, repo.Put(ctx, record))

		records := collect(t, repo.ListByCollection(ctx, "ds-001"))
		assert.Len(t, records, 1)
	})

	t.Run("rejects dimension mismatch", func(t *testing.T) {
		repo := newTestRepository(t)
		record := testRecord("ds-001", "abstract", "text", now)
		record.Vector = []float32{0.1, 0.2}

		err := repo.Put(ctx, record)
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	})

	t.Run("rejects invalid record", func(t *testing.T) {
		repo := newTestRepository(t)
		record := testRecord("", "abstract", "text", now)

		err := repo.Put(ctx, record)
		assert.ErrorIs(t, err, core.ErrEmptyCollectionID)
	})
}

func TestEmbeddingRepository_ListByCollection(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	repo := newTestRepository(t)

	require.NoError(t, repo.Put(ctx, testRecord("ds-001", "abstract", "first", now)))
	require.NoError(t, repo.Put(ctx, testRecord("ds-001", "keywords", "second", now)))
	require.NoError(t, repo.Put(ctx, testRecord("ds-002", "abstract", "other", now)))

	t.Run("filters by collection", func(t *testing.T) {
		records := collect(t, repo.ListByCollection(ctx, "ds-001"))
		require.Len(t, records, 2)
		for _, record := range records {
			assert.Equal(t, "ds-001", record.CollectionId)
		}
	})

	t.Run("unknown collection yields nothing", func(t *testing.T) {
		records := collect(t, repo.ListByCollection(ctx, "ds-999"))
		assert.Empty(t, records)
	})

	t.Run("restartable", func(t *testing.T) {
		seq := repo.ListByCollection(ctx, "ds-001")
		first := collect(t, seq)
		second := collect(t, seq)
		assert.Len(t, first, 2)
		assert.Len(t, second, 2)
	})

	t.Run("early break stops cleanly", func(t *testing.T) {
		seen := 0
		for _, err := range repo.ListByCollection(ctx, "ds-001") {
			require.NoError(t, err)
			seen++
			break
		}
		assert.Equal(t, 1, seen)
	})
}

func TestEmbeddingRepository_ListByCategory(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	repo := newTestRepository(t)

	require.NoError(t, repo.Put(ctx, testRecord("ds-001", "abstract", "first", now)))
	require.NoError(t, repo.Put(ctx, testRecord("ds-002", "abstract", "second", now)))
	require.NoError(t, repo.Put(ctx, testRecord("ds-002", "keywords", "third", now)))

	records := collect(t, repo.ListByCategory(ctx, "abstract"))
	require.Len(t, records, 2)
	for _, record := range records {
		assert.Equal(t, "abstract", record.Category)
	}
}

func TestEmbeddingRepository_ListAll(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	repo := newTestRepository(t)

	t.Run("empty store", func(t *testing.T) {
		assert.Empty(t, collect(t, repo.ListAll(ctx)))
	})

	require.NoError(t, repo.Put(ctx, testRecord("ds-001", "abstract", "first", now)))
	require.NoError(t, repo.Put(ctx, testRecord("ds-002", "keywords", "second", now)))

	t.Run("returns every record", func(t *testing.T) {
		assert.Len(t, collect(t, repo.ListAll(ctx)), 2)
	})
}

func TestEmbeddingRepository_DeleteCollection(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("removes records and indexes", func(t *testing.T) {
		repo := newTestRepository(t)
		require.NoError(t, repo.Put(ctx, testRecord("ds-001", "abstract", "first", now)))
		require.NoError(t, repo.Put(ctx, testRecord("ds-001", "keywords", "second", now)))
		require.NoError(t, repo.Put(ctx, testRecord("ds-002", "abstract", "keep", now)))

		count, err := repo.DeleteCollection(ctx, "ds-001")
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		assert.Empty(t, collect(t, repo.ListByCollection(ctx, "ds-001")))

		// Category index no longer references the deleted records.
		abstracts := collect(t, repo.ListByCategory(ctx, "abstract"))
		require.Len(t, abstracts, 1)
		assert.Equal(t, "ds-002", abstracts[0].CollectionId)

		remaining := collect(t, repo.ListAll(ctx))
		assert.Len(t, remaining, 1)
	})

	t.Run("repeat delete counts zero", func(t *testing.T) {
		repo := newTestRepository(t)
		require.NoError(t, repo.Put(ctx, testRecord("ds-001", "abstract", "first", now)))

		count, err := repo.DeleteCollection(ctx, "ds-001")
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		count, err = repo.DeleteCollection(ctx, "ds-001")
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("rejects empty collection id", func(t *testing.T) {
		repo := newTestRepository(t)
		_, err := repo.DeleteCollection(ctx, "")
		assert.ErrorIs(t, err, core.ErrEmptyCollectionID)
	})
}

func TestNewEmbeddingRepository(t *testing.T) {
	t.Run("rejects nil backend", func(t *testing.T) {
		_, err := NewEmbeddingRepository(nil, testDimensions)
		assert.Error(t, err)
	})

	t.Run("rejects non-positive dimensions", func(t *testing.T) {
		backend, err := OpenBackend("", true)
		require.NoError(t, err)
		defer backend.Close()

		_, err = NewEmbeddingRepository(backend, 0)
		assert.Error(t, err)
	})
}
