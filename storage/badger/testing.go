package badger

import (
	"fmt"

	"github.com/aperture-oss/knowledge/storage"
)

// NewMemoryRepository opens an in-memory backend and a repository on top of
// it. Intended for tests and ephemeral usage; all data is lost on Close.
func NewMemoryRepository(dimensions int) (storage.EmbeddingRepository, *Backend, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, nil, fmt.Errorf("open in-memory backend: %w", err)
	}
	repo, err := NewEmbeddingRepository(backend, dimensions)
	if err != nil {
		backend.Close()
		return nil, nil, err
	}
	return repo, backend, nil
}
