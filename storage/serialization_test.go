package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krakenhq/kraken/core"
)

func TestItemRoundtrip(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	item := &core.Item{
		ExternalID: "C12345678_1700000000.000100",
		Content:    "deploy finished, rolling to prod",
		Author:     "alice",
		Channel:    "C12345678",
		CreatedAt:  created,
		ThreadRef:  "1700000000.000001",
		Permalink:  "https://example.slack.com/archives/C12345678/p1700000000000100",
		Vector:     []float32{0.25, -0.5, 0.125},
		Metadata:   map[string]string{"type": "message", "user_id": "U0001"},
		InsertedAt: created.Add(time.Minute),
		UpdatedAt:  created.Add(2 * time.Minute),
	}

	decoded, err := UnmarshalItem(MarshalItem(item))
	require.NoError(t, err)
	assert.Equal(t, item, decoded)
}

func TestItemRoundtrip_EmptyOptionalFields(t *testing.T) {
	item := &core.Item{
		ExternalID: "C12345678_1700000000.000200",
		Content:    "hi",
		Channel:    "C12345678",
		CreatedAt:  time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}

	decoded, err := UnmarshalItem(MarshalItem(item))
	require.NoError(t, err)
	assert.Equal(t, item.ExternalID, decoded.ExternalID)
	assert.Empty(t, decoded.Vector)
	assert.Empty(t, decoded.Metadata)
	assert.Empty(t, decoded.ThreadRef)
}

func TestItemTimestampPrecision(t *testing.T) {
	// Nanoseconds below microsecond precision are dropped on purpose.
	item := &core.Item{
		ExternalID: "x",
		Content:    "y",
		Channel:    "C12345678",
		CreatedAt:  time.Date(2026, 3, 1, 9, 30, 0, 123456789, time.UTC),
	}

	decoded, err := UnmarshalItem(MarshalItem(item))
	require.NoError(t, err)
	assert.Equal(t, item.CreatedAt.Truncate(time.Microsecond), decoded.CreatedAt)
}

func TestCursorRoundtrip(t *testing.T) {
	cursor := &core.SyncCursor{
		Channel:         "C12345678",
		LastProcessedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		LastProcessedID: "C12345678_1700000000.000100",
		UpdatedAt:       time.Date(2026, 3, 1, 9, 31, 0, 0, time.UTC),
	}

	decoded, err := UnmarshalCursor(MarshalCursor(cursor))
	require.NoError(t, err)
	assert.Equal(t, cursor, decoded)
}

func TestVectorRoundtrip(t *testing.T) {
	vector := []float32{1.5, -2.25, 0, 3.0e-7}

	decoded, err := UnmarshalVector(MarshalVector(vector))
	require.NoError(t, err)
	assert.Equal(t, vector, decoded)
}

func TestIDRoundtrip(t *testing.T) {
	id := core.IDFromContent("C12345678_1700000000.000100")

	decoded, err := UnmarshalID(MarshalID(id))
	require.NoError(t, err)
	assert.Equal(t, id, decoded)
}

func TestUnmarshalItem_Corrupt(t *testing.T) {
	_, err := UnmarshalItem([]byte{0xff})
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestUnmarshalCursor_Corrupt(t *testing.T) {
	_, err := UnmarshalCursor([]byte{0xff})
	assert.ErrorIs(t, err, ErrSerializationFailed)
}
