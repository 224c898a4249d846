// Copyright 2026 The Kraken Authors
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


package storage

import (
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"

	"github.com/krakenhq/kraken/core"
)

// Persisted values use the MUS format. Timestamps are stored as UnixMicro
// int64, so sub-microsecond precision is not preserved across a roundtrip.

var (
	vectorSer   = ord.NewSliceSer[float32](raw.Float32)
	metadataSer = ord.NewMapSer[string, string](ord.String, ord.String)
)

// idSer serializes core.ID values.
type idSer struct{}

func (idSer) Marshal(id core.ID, bs []byte) int {
	return varint.Uint64.Marshal(uint64(id), bs)
}

func (idSer) Unmarshal(bs []byte) (core.ID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return core.ID(v), n, err
}

func (idSer) Size(id core.ID) int {
	return varint.Uint64.Size(uint64(id))
}

// IDMUS is the MUS serializer for core.ID.
var IDMUS = idSer{}

func marshalTime(t time.Time, bs []byte) int {
	return varint.Int64.Marshal(t.UnixMicro(), bs)
}

func unmarshalTime(bs []byte) (time.Time, int, error) {
	v, n, err := varint.Int64.Unmarshal(bs)
	if err != nil {
		return time.Time{}, n, err
	}
	return time.UnixMicro(v).UTC(), n, nil
}

func sizeTime(t time.Time) int {
	return varint.Int64.Size(t.UnixMicro())
}

// itemSer serializes core.Item values field by field.
type itemSer struct{}

func (itemSer) Marshal(v core.Item, bs []byte) (n int) {
	n = ord.String.Marshal(v.ExternalID, bs)
	n += ord.String.Marshal(v.Content, bs[n:])
	n += ord.String.Marshal(v.Author, bs[n:])
	n += ord.String.Marshal(v.Channel, bs[n:])
	n += marshalTime(v.CreatedAt, bs[n:])
	n += ord.String.Marshal(v.ThreadRef, bs[n:])
	n += ord.String.Marshal(v.Permalink, bs[n:])
	n += vectorSer.Marshal(v.Vector, bs[n:])
	n += metadataSer.Marshal(v.Metadata, bs[n:])
	n += marshalTime(v.InsertedAt, bs[n:])
	n += marshalTime(v.UpdatedAt, bs[n:])
	return n
}

func (itemSer) Unmarshal(bs []byte) (v core.Item, n int, err error) {
	var m int
	if v.ExternalID, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	if v.Content, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	if v.Author, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	if v.Channel, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	if v.CreatedAt, m, err = unmarshalTime(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	if v.ThreadRef, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	if v.Permalink, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	if v.Vector, m, err = vectorSer.Unmarshal(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	if v.Metadata, m, err = metadataSer.Unmarshal(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	if v.InsertedAt, m, err = unmarshalTime(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	if v.UpdatedAt, m, err = unmarshalTime(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	return v, n, nil
}

func (itemSer) Size(v core.Item) (size int) {
	size = ord.String.Size(v.ExternalID)
	size += ord.String.Size(v.Content)
	size += ord.String.Size(v.Author)
	size += ord.String.Size(v.Channel)
	size += sizeTime(v.CreatedAt)
	size += ord.String.Size(v.ThreadRef)
	size += ord.String.Size(v.Permalink)
	size += vectorSer.Size(v.Vector)
	size += metadataSer.Size(v.Metadata)
	size += sizeTime(v.InsertedAt)
	size += sizeTime(v.UpdatedAt)
	return size
}

// ItemMUS is the MUS serializer for core.Item.
var ItemMUS = itemSer{}

// cursorSer serializes core.SyncCursor values.
type cursorSer struct{}

func (cursorSer) Marshal(v core.SyncCursor, bs []byte) (n int) {
	n = ord.String.Marshal(v.Channel, bs)
	n += marshalTime(v.LastProcessedAt, bs[n:])
	n += ord.String.Marshal(v.LastProcessedID, bs[n:])
	n += marshalTime(v.UpdatedAt, bs[n:])
	return n
}

func (cursorSer) Unmarshal(bs []byte) (v core.SyncCursor, n int, err error) {
	var m int
	if v.Channel, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	if v.LastProcessedAt, m, err = unmarshalTime(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	if v.LastProcessedID, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	if v.UpdatedAt, m, err = unmarshalTime(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	return v, n, nil
}

func (cursorSer) Size(v core.SyncCursor) (size int) {
	size = ord.String.Size(v.Channel)
	size += sizeTime(v.LastProcessedAt)
	size += ord.String.Size(v.LastProcessedID)
	size += sizeTime(v.UpdatedAt)
	return size
}

// CursorMUS is the MUS serializer for core.SyncCursor.
var CursorMUS = cursorSer{}

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, IDMUS.Size(id))
	IDMUS.Marshal(id, buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	id, _, err := IDMUS.Unmarshal(data)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return id, nil
}

// MarshalItem serializes an Item to bytes.
func MarshalItem(item *core.Item) []byte {
	buf := make([]byte, ItemMUS.Size(*item))
	ItemMUS.Marshal(*item, buf)
	return buf
}

// UnmarshalItem deserializes an Item from bytes.
func UnmarshalItem(data []byte) (*core.Item, error) {
	item, _, err := ItemMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &item, nil
}

// MarshalVector serializes a bare embedding vector to bytes.
func MarshalVector(vector []float32) []byte {
	buf := make([]byte, vectorSer.Size(vector))
	vectorSer.Marshal(vector, buf)
	return buf
}

// UnmarshalVector deserializes a bare embedding vector from bytes.
func UnmarshalVector(data []byte) ([]float32, error) {
	vector, _, err := vectorSer.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return vector, nil
}

// MarshalCursor serializes a SyncCursor to bytes.
func MarshalCursor(cursor *core.SyncCursor) []byte {
	buf := make([]byte, CursorMUS.Size(*cursor))
	CursorMUS.Marshal(*cursor, buf)
	return buf
}

// UnmarshalCursor deserializes a SyncCursor from bytes.
func UnmarshalCursor(data []byte) (*core.SyncCursor, error) {
	cursor, _, err := CursorMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &cursor, nil
}
