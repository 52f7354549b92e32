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


package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/aperture-oss/knowledge/core"
	"github.com/aperture-oss/knowledge/storage"
)

// errStopIteration signals that the consumer of a RecordSeq stopped early.
// It never escapes this package.
var errStopIteration = errors.New("stop iteration")

// EmbeddingRepository implements storage.EmbeddingRepository for BadgerDB.
type EmbeddingRepository struct {
	backend    *Backend
	dimensions int
}

var _ storage.EmbeddingRepository = (*EmbeddingRepository)(nil)

// NewEmbeddingRepository creates a repository on the given backend.
// dimensions fixes the vector length accepted by Put; it must match the
// embedding provider's output dimensionality.
//
// Returns the storage.EmbeddingRepository interface to enforce abstraction.
func NewEmbeddingRepository(backend *Backend, dimensions int) (storage.EmbeddingRepository, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend required")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be greater than 0, got %d", dimensions)
	}
	return &EmbeddingRepository{
		backend:    backend,
		dimensions: dimensions,
	}, nil
}

// Close releases repository resources. The backend is owned by the caller
// and stays open.
func (r *EmbeddingRepository) Close() error {
	return nil
}

// Put persists a record together with its collection and category index
// entries in a single transaction, so readers never observe a record
// without its indexes.
func (r *EmbeddingRepository) Put(ctx context.Context, record *core.EmbeddingRecord) error {
	if err := core.ValidateRecord(record); err != nil {
		return err
	}
	if len(record.Vector) != r.dimensions {
		return fmt.Errorf("%w: got %d, want %d", core.ErrDimensionMismatch, len(record.Vector), r.dimensions)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeRecordKey(record.Id), storage.MarshalEmbeddingRecord(record)); err != nil {
			return err
		}
		idValue := storage.MarshalID(record.Id)
		if err := tx.Set(makeCollectionIndexKey(record.CollectionId, record.Id), idValue); err != nil {
			return err
		}
		if err := tx.Set(makeCategoryIndexKey(record.Category, record.Id), idValue); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// ListByCollection returns a lazy, restartable sequence of the collection's
// records. Each range over the sequence reads from a fresh snapshot.
func (r *EmbeddingRepository) ListByCollection(ctx context.Context, collectionID string) storage.RecordSeq {
	return r.listByIndex(ctx, makeCollectionIndexPrefix(collectionID))
}

// ListByCategory returns a lazy, restartable sequence of all records with
// the given category label.
func (r *EmbeddingRepository) ListByCategory(ctx context.Context, category string) storage.RecordSeq {
	return r.listByIndex(ctx, makeCategoryIndexPrefix(category))
}

// ListAll returns a lazy sequence over every record in the store, reading
// record values directly without an index lookup.
func (r *EmbeddingRepository) ListAll(ctx context.Context) storage.RecordSeq {
	return func(yield func(*core.EmbeddingRecord, error) bool) {
		err := r.backend.WithTx(func(tx *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = []byte(recordPrefix + ":")
			iter := tx.NewIterator(opts)
			defer iter.Close()

			for iter.Rewind(); iter.Valid(); iter.Next() {
				if err := ctx.Err(); err != nil {
					return err
				}
				var record *core.EmbeddingRecord
				err := iter.Item().Value(func(val []byte) error {
					var err error
					record, err = storage.UnmarshalEmbeddingRecord(val)
					return err
				})
				if err != nil {
					return err
				}
				if !yield(record, nil) {
					return errStopIteration
				}
			}
			return nil
		}, false)

		if err != nil && !errors.Is(err, errStopIteration) {
			yield(nil, err)
		}
	}
}

// DeleteCollection removes every record for the collection along with its
// index entries and returns the number of records removed.
func (r *EmbeddingRepository) DeleteCollection(ctx context.Context, collectionID string) (int, error) {
	if collectionID == "" {
		return 0, core.ErrEmptyCollectionID
	}

	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		// Collect the collection's records first; keys are deleted after the
		// iterator is closed.
		type target struct {
			id       core.ID
			category string
		}
		var targets []target

		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeCollectionIndexPrefix(collectionID)
		iter := tx.NewIterator(opts)

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				iter.Close()
				return err
			}
			var recordID core.ID
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				recordID, err = storage.UnmarshalID(val)
				return err
			}); err != nil {
				iter.Close()
				return err
			}

			record, err := r.readRecord(tx, makeRecordKey(recordID))
			if err != nil {
				iter.Close()
				return err
			}
			if record == nil {
				// Dangling index entry; still remove it below.
				targets = append(targets, target{id: recordID})
				continue
			}
			targets = append(targets, target{id: recordID, category: record.Category})
		}
		iter.Close()

		for _, tgt := range targets {
			if err := tx.Delete(makeCollectionIndexKey(collectionID, tgt.id)); err != nil {
				return err
			}
			if tgt.category == "" {
				continue
			}
			if err := tx.Delete(makeCategoryIndexKey(tgt.category, tgt.id)); err != nil {
				return err
			}
			if err := tx.Delete(makeRecordKey(tgt.id)); err != nil {
				return err
			}
			count++
		}
		return tx.Commit()
	}, true)

	if err != nil {
		return 0, err
	}
	return count, nil
}

// listByIndex iterates an index prefix and yields the referenced records.
func (r *EmbeddingRepository) listByIndex(ctx context.Context, prefix []byte) storage.RecordSeq {
	return func(yield func(*core.EmbeddingRecord, error) bool) {
		err := r.backend.WithTx(func(tx *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			iter := tx.NewIterator(opts)
			defer iter.Close()

			for iter.Rewind(); iter.Valid(); iter.Next() {
				if err := ctx.Err(); err != nil {
					return err
				}
				var recordID core.ID
				if err := iter.Item().Value(func(val []byte) error {
					var err error
					recordID, err = storage.UnmarshalID(val)
					return err
				}); err != nil {
					return err
				}

				record, err := r.readRecord(tx, makeRecordKey(recordID))
				if err != nil {
					return err
				}
				if record == nil {
					continue
				}
				if !yield(record, nil) {
					return errStopIteration
				}
			}
			return nil
		}, false)

		if err != nil && !errors.Is(err, errStopIteration) {
			yield(nil, err)
		}
	}
}

// readRecord reads an embedding record from the transaction.
// Returns (nil, nil) if the key does not exist.
func (r *EmbeddingRepository) readRecord(tx *badger.Txn, key []byte) (*core.EmbeddingRecord, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var record *core.EmbeddingRecord
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		record, unmarshalErr = storage.UnmarshalEmbeddingRecord(val)
		return unmarshalErr
	})
	return record, err
}
