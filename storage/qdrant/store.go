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


// Package qdrant provides an EmbeddingRepository backed by a Qdrant
// vector database, for deployments that outgrow the embedded BadgerDB
// store. Records map to Qdrant points: the content-derived record ID
// becomes the numeric point ID and the remaining fields live in the
// point payload.
package qdrant

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/aperture-oss/knowledge/core"
	"github.com/aperture-oss/knowledge/storage"
)

// Payload keys used for every stored point.
const (
	payloadCollectionID = "collection_id"
	payloadCategory     = "category"
	payloadText         = "text"
	payloadCreatedAt    = "created_at"
	payloadAttributes   = "attributes"
)

// scrollLimit caps how many points a single list operation reads.
const scrollLimit = 1000

// Config holds connection parameters for a Qdrant instance.
type Config struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// Dimensions is the vector length accepted by Put and configured on
	// the Qdrant collection.
	Dimensions int

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// Store implements storage.EmbeddingRepository on a Qdrant collection.
type Store struct {
	client *qdrant.Client
	cfg    *Config
}

var _ storage.EmbeddingRepository = (*Store)(nil)

// NewStore connects to Qdrant and ensures the target collection exists,
// creating it with cosine distance if necessary.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant: collection name required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("qdrant: dimensions must be greater than 0, got %d", cfg.Dimensions)
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &Store{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.cfg.Dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}
	return nil
}

// Put upserts the record as a single point. Identical content maps to the
// same point ID, so repeated puts overwrite rather than duplicate.
func (s *Store) Put(ctx context.Context, record *core.EmbeddingRecord) error {
	if err := core.ValidateRecord(record); err != nil {
		return err
	}
	if len(record.Vector) != s.cfg.Dimensions {
		return fmt.Errorf("%w: got %d, want %d", core.ErrDimensionMismatch, len(record.Vector), s.cfg.Dimensions)
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDNum(uint64(record.Id)),
		Vectors: qdrant.NewVectors(record.Vector...),
		Payload: qdrant.NewValueMap(recordPayload(record)),
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

// ListByCollection returns records whose collection_id payload matches.
func (s *Store) ListByCollection(ctx context.Context, collectionID string) storage.RecordSeq {
	return s.scroll(ctx, keywordFilter(payloadCollectionID, collectionID))
}

// ListByCategory returns records whose category payload matches.
func (s *Store) ListByCategory(ctx context.Context, category string) storage.RecordSeq {
	return s.scroll(ctx, keywordFilter(payloadCategory, category))
}

// ListAll returns every record in the collection, up to the scroll limit.
func (s *Store) ListAll(ctx context.Context) storage.RecordSeq {
	return s.scroll(ctx, nil)
}

// DeleteCollection removes every point whose collection_id matches and
// returns how many points were removed.
func (s *Store) DeleteCollection(ctx context.Context, collectionID string) (int, error) {
	if collectionID == "" {
		return 0, core.ErrEmptyCollectionID
	}

	filter := keywordFilter(payloadCollectionID, collectionID)
	exact := true
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Filter:         filter,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count failed: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: delete failed: %w", err)
	}
	return int(count), nil
}

// Close shuts down the underlying gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) scroll(ctx context.Context, filter *qdrant.Filter) storage.RecordSeq {
	return func(yield func(*core.EmbeddingRecord, error) bool) {
		limit := uint32(scrollLimit)
		points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.cfg.Collection,
			Filter:         filter,
			Limit:          &limit,
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		if err != nil {
			yield(nil, fmt.Errorf("qdrant: scroll failed: %w", err))
			return
		}

		for _, point := range points {
			record, err := recordFromPoint(point)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if !yield(record, nil) {
				return
			}
		}
	}
}

func keywordFilter(field, value string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key:   field,
						Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: value}},
					},
				},
			},
		},
	}
}

// recordPayload flattens a record into the point payload. The vector is
// stored as the point vector, not in the payload.
func recordPayload(record *core.EmbeddingRecord) map[string]any {
	payload := map[string]any{
		payloadCollectionID: record.CollectionId,
		payloadCategory:     record.Category,
		payloadText:         record.Text,
		payloadCreatedAt:    record.CreatedAt.UnixMicro(),
	}
	if len(record.Attributes) > 0 {
		attrs := make(map[string]any, len(record.Attributes))
		for k, v := range record.Attributes {
			attrs[k] = v
		}
		payload[payloadAttributes] = attrs
	}
	return payload
}

// recordFromPoint rebuilds a record from a retrieved point.
func recordFromPoint(point *qdrant.RetrievedPoint) (*core.EmbeddingRecord, error) {
	payload := point.GetPayload()
	if payload == nil {
		return nil, fmt.Errorf("qdrant: point %d has no payload", point.GetId().GetNum())
	}

	record := &core.EmbeddingRecord{
		Id:           core.ID(point.GetId().GetNum()),
		CollectionId: payload[payloadCollectionID].GetStringValue(),
		Category:     payload[payloadCategory].GetStringValue(),
		Text:         payload[payloadText].GetStringValue(),
		CreatedAt:    time.UnixMicro(payload[payloadCreatedAt].GetIntegerValue()).UTC(),
		Vector:       point.GetVectors().GetVector().GetData(),
	}

	if attrs := payload[payloadAttributes].GetStructValue(); attrs != nil {
		fields := attrs.GetFields()
		if len(fields) > 0 {
			record.Attributes = make(map[string]string, len(fields))
			for k, v := range fields {
				record.Attributes[k] = v.GetStringValue()
			}
		}
	}

	return record, nil
}
