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


package core

import (
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for the stored types, composed from mus-go primitives.
// Vector elements use the raw fixed-width float32 encoding so that stored
// vectors round-trip bit-exactly; timestamps are stored as Unix microseconds.
var (
	IDMUS              = idSer{}
	EmbeddingRecordMUS = embeddingRecordSer{}

	vectorSer = ord.NewSliceSer[float32](raw.Float32)
	attrsSer  = ord.NewMapSer[string, string](ord.String, ord.String)
)

type idSer struct{}

func (idSer) Marshal(id ID, bs []byte) int {
	return varint.Uint64.Marshal(uint64(id), bs)
}

func (idSer) Unmarshal(bs []byte) (ID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return ID(v), n, err
}

func (idSer) Size(id ID) int {
	return varint.Uint64.Size(uint64(id))
}

func (idSer) Skip(bs []byte) (int, error) {
	return varint.Uint64.Skip(bs)
}

type embeddingRecordSer struct{}

func (embeddingRecordSer) Marshal(r EmbeddingRecord, bs []byte) (n int) {
	n = IDMUS.Marshal(r.Id, bs)
	n += ord.String.Marshal(r.CollectionId, bs[n:])
	n += ord.String.Marshal(r.Category, bs[n:])
	n += ord.String.Marshal(r.Text, bs[n:])
	n += vectorSer.Marshal(r.Vector, bs[n:])
	n += varint.Int64.Marshal(r.CreatedAt.UnixMicro(), bs[n:])
	n += attrsSer.Marshal(r.Attributes, bs[n:])
	return n
}

func (embeddingRecordSer) Unmarshal(bs []byte) (r EmbeddingRecord, n int, err error) {
	var n1 int
	r.Id, n, err = IDMUS.Unmarshal(bs)
	if err != nil {
		return r, n, err
	}
	r.CollectionId, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return r, n, err
	}
	r.Category, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return r, n, err
	}
	r.Text, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return r, n, err
	}
	r.Vector, n1, err = vectorSer.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return r, n, err
	}
	var micros int64
	micros, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return r, n, err
	}
	r.CreatedAt = time.UnixMicro(micros).UTC()
	r.Attributes, n1, err = attrsSer.Unmarshal(bs[n:])
	n += n1
	return r, n, err
}

func (embeddingRecordSer) Size(r EmbeddingRecord) (size int) {
	size = IDMUS.Size(r.Id)
	size += ord.String.Size(r.CollectionId)
	size += ord.String.Size(r.Category)
	size += ord.String.Size(r.Text)
	size += vectorSer.Size(r.Vector)
	size += varint.Int64.Size(r.CreatedAt.UnixMicro())
	size += attrsSer.Size(r.Attributes)
	return size
}

func (embeddingRecordSer) Skip(bs []byte) (n int, err error) {
	var n1 int
	n, err = IDMUS.Skip(bs)
	if err != nil {
		return n, err
	}
	for i := 0; i < 3; i++ {
		n1, err = ord.String.Skip(bs[n:])
		n += n1
		if err != nil {
			return n, err
		}
	}
	n1, err = vectorSer.Skip(bs[n:])
	n += n1
	if err != nil {
		return n, err
	}
	n1, err = varint.Int64.Skip(bs[n:])
	n += n1
	if err != nil {
		return n, err
	}
	n1, err = attrsSer.Skip(bs[n:])
	n += n1
	return n, err
}
