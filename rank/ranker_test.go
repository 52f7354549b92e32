package rank

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aperture-oss/knowledge/core"
	"github.com/aperture-oss/knowledge/storage"
)

func seqOf(records ...*core.EmbeddingRecord) storage.RecordSeq {
	return func(yield func(*core.EmbeddingRecord, error) bool) {
		for _, record := range records {
			if !yield(record, nil) {
				return
			}
		}
	}
}

func TestCosine(t *testing.T) {
	t.Run("identical vectors score 1", func(t *testing.T) {
		v := []float32{0.3, 0.4, 0.5}
		assert.InDelta(t, 1.0, Cosine(v, v), 1e-6)
	})

	t.Run("symmetric", func(t *testing.T) {
		a := []float32{1, 2, 3}
		b := []float32{4, 5, 6}
		assert.Equal(t, Cosine(a, b), Cosine(b, a))
	})

	t.Run("orthogonal vectors score 0", func(t *testing.T) {
		a := []float32{1, 0}
		b := []float32{0, 1}
		assert.InDelta(t, 0.0, Cosine(a, b), 1e-6)
	})

	t.Run("opposite vectors score -1", func(t *testing.T) {
		a := []float32{1, 2}
		b := []float32{-1, -2}
		assert.InDelta(t, -1.0, Cosine(a, b), 1e-6)
	})

	t.Run("zero vector scores 0", func(t *testing.T) {
		a := []float32{0, 0, 0}
		b := []float32{1, 2, 3}
		assert.Equal(t, float32(0), Cosine(a, b))
		assert.Equal(t, float32(0), Cosine(b, a))
	})

	t.Run("mismatched lengths score 0", func(t *testing.T) {
		assert.Equal(t, float32(0), Cosine([]float32{1, 2}, []float32{1, 2, 3}))
	})

	t.Run("empty vectors score 0", func(t *testing.T) {
		assert.Equal(t, float32(0), Cosine(nil, nil))
	})

	t.Run("result stays within range", func(t *testing.T) {
		a := []float32{0.001, 1000, -3.5}
		b := []float32{42, -0.01, 7}
		got := Cosine(a, b)
		assert.GreaterOrEqual(t, got, float32(-1.0000001))
		assert.LessOrEqual(t, got, float32(1.0000001))
	})
}

func TestRank(t *testing.T) {
	now := time.Now().UTC()
	recordAt := func(id core.ID, vector []float32, createdAt time.Time) *core.EmbeddingRecord {
		return &core.EmbeddingRecord{
			Id:           id,
			CollectionId: "ds-001",
			Category:     "abstract",
			Text:         "text",
			Vector:       vector,
			CreatedAt:    createdAt,
		}
	}

	t.Run("orders by similarity descending", func(t *testing.T) {
		query := []float32{1, 0}
		candidates := seqOf(
			recordAt(1, []float32{0, 1}, now),
			recordAt(2, []float32{1, 0}, now),
			recordAt(3, []float32{1, 1}, now),
		)

		results, err := Rank(query, candidates, 3)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, core.ID(2), results[0].Record.Id)
		assert.Equal(t, core.ID(3), results[1].Record.Id)
		assert.Equal(t, core.ID(1), results[2].Record.Id)
	})

	t.Run("truncates to topK", func(t *testing.T) {
		query := []float32{1, 0}
		candidates := seqOf(
			recordAt(1, []float32{1, 0}, now),
			recordAt(2, []float32{1, 1}, now),
			recordAt(3, []float32{0, 1}, now),
		)

		results, err := Rank(query, candidates, 2)
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})

	t.Run("returns fewer when candidates run short", func(t *testing.T) {
		results, err := Rank([]float32{1, 0}, seqOf(recordAt(1, []float32{1, 0}, now)), 10)
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})

	t.Run("empty candidates yield empty results", func(t *testing.T) {
		results, err := Rank([]float32{1, 0}, seqOf(), 5)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("rejects non-positive topK", func(t *testing.T) {
		_, err := Rank([]float32{1, 0}, seqOf(), 0)
		assert.ErrorIs(t, err, core.ErrInvalidTopK)

		_, err = Rank([]float32{1, 0}, seqOf(), -1)
		assert.ErrorIs(t, err, core.ErrInvalidTopK)
	})

	t.Run("equal scores break ties by recency then id", func(t *testing.T) {
		query := []float32{1, 0}
		older := now.Add(-time.Hour)
		candidates := seqOf(
			recordAt(5, []float32{1, 0}, older),
			recordAt(9, []float32{1, 0}, now),
			recordAt(2, []float32{1, 0}, now),
		)

		results, err := Rank(query, candidates, 3)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, core.ID(2), results[0].Record.Id)
		assert.Equal(t, core.ID(9), results[1].Record.Id)
		assert.Equal(t, core.ID(5), results[2].Record.Id)
	})

	t.Run("deterministic across runs", func(t *testing.T) {
		query := []float32{0.5, 0.5, 0.1}
		make3 := func() storage.RecordSeq {
			return seqOf(
				recordAt(1, []float32{0.5, 0.4, 0.2}, now),
				recordAt(2, []float32{0.1, 0.9, 0.3}, now),
				recordAt(3, []float32{0.7, 0.2, 0.6}, now),
			)
		}

		first, err := Rank(query, make3(), 3)
		require.NoError(t, err)
		second, err := Rank(query, make3(), 3)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("propagates sequence errors", func(t *testing.T) {
		wantErr := assert.AnError
		failing := storage.RecordSeq(func(yield func(*core.EmbeddingRecord, error) bool) {
			yield(nil, wantErr)
		})

		_, err := Rank([]float32{1}, failing, 5)
		assert.ErrorIs(t, err, wantErr)
	})
}
