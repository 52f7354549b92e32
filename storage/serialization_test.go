package storage

import (
	"testing"
	"time"

	"github.com/aperture-oss/knowledge/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalID(t *testing.T) {
	tests := []struct {
		name string
		id   core.ID
	}{
		{"zero ID", core.ID(0)},
		{"small ID", core.ID(42)},
		{"large ID", core.ID(18446744073709551615)}, // max uint64
		{"content-based ID", core.IDFromContent("test content")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MarshalID(tt.id)
			require.NotEmpty(t, data)

			decoded, err := UnmarshalID(data)
			require.NoError(t, err)
			assert.Equal(t, tt.id, decoded)
		})
	}
}

func TestUnmarshalID_Invalid(t *testing.T) {
	_, err := UnmarshalID([]byte{})
	assert.Error(t, err)
}

func TestMarshalUnmarshalEmbeddingRecord(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)

	record := &core.EmbeddingRecord{
		Id:           core.NewRecordID("c1", "abstract", "Bronze Age pottery", now),
		CollectionId: "c1",
		Category:     "abstract",
		Text:         "Bronze Age pottery from a coastal settlement",
		Vector:       []float32{0.25, -0.5, 0.125, 1e-7, 3.1415927},
		CreatedAt:    now,
		Attributes:   map[string]string{"title": "Coastal Settlement Survey", "model": "titan-v1"},
	}

	data := MarshalEmbeddingRecord(record)
	require.NotEmpty(t, data)

	decoded, err := UnmarshalEmbeddingRecord(data)
	require.NoError(t, err)

	assert.Equal(t, record.Id, decoded.Id)
	assert.Equal(t, record.CollectionId, decoded.CollectionId)
	assert.Equal(t, record.Category, decoded.Category)
	assert.Equal(t, record.Text, decoded.Text)
	assert.Equal(t, record.CreatedAt, decoded.CreatedAt)
	assert.Equal(t, record.Attributes, decoded.Attributes)

	// Vectors must round-trip bit-exactly: similarity computations depend
	// on stored vectors matching what the embedder produced.
	require.Len(t, decoded.Vector, len(record.Vector))
	for i := range record.Vector {
		assert.Equal(t, record.Vector[i], decoded.Vector[i], "component %d", i)
	}
}

func TestMarshalEmbeddingRecord_EmptyOptionalFields(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)

	record := &core.EmbeddingRecord{
		Id:           core.ID(7),
		CollectionId: "c1",
		Category:     "title",
		Text:         "t",
		Vector:       []float32{1},
		CreatedAt:    now,
	}

	decoded, err := UnmarshalEmbeddingRecord(MarshalEmbeddingRecord(record))
	require.NoError(t, err)
	assert.Empty(t, decoded.Attributes)
}

func TestUnmarshalEmbeddingRecord_Truncated(t *testing.T) {
	now := time.Now().UTC()
	record := &core.EmbeddingRecord{
		Id:           core.ID(1),
		CollectionId: "c1",
		Category:     "abstract",
		Text:         "text",
		Vector:       []float32{0.1, 0.2},
		CreatedAt:    now,
	}

	data := MarshalEmbeddingRecord(record)
	_, err := UnmarshalEmbeddingRecord(data[:len(data)/2])
	assert.Error(t, err)
}
