package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerfold/internal/event"
	"github.com/roach88/ledgerfold/internal/pipeline"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecords() []pipeline.SourcedRecord {
	return []pipeline.SourcedRecord{
		{RecordID: "c1", Raw: event.Raw{Op: "c", Timestamp: 100,
			Data: map[string]any{"card_number": "4111", "credit_used": json.Number("0")}}},
		{RecordID: "c1", Raw: event.Raw{Op: "u", Timestamp: 150,
			Set: map[string]any{"credit_used": json.Number("50")}}},
	}
}

func TestWriteAndReadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteEvents(ctx, event.KindCards, sampleRecords()))

	got, err := s.ReadEvents(ctx, event.KindCards)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "c1", got[0].RecordID)
	assert.Equal(t, "c", got[0].Raw.Op)
	assert.Equal(t, int64(100), got[0].Raw.Timestamp)
	assert.Equal(t, json.Number("0"), got[0].Raw.Data["credit_used"])
	assert.Nil(t, got[0].Raw.Set)

	assert.Equal(t, "u", got[1].Raw.Op)
	assert.Equal(t, json.Number("50"), got[1].Raw.Set["credit_used"])
	assert.Nil(t, got[1].Raw.Data)
}

func TestWriteEventsIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteEvents(ctx, event.KindCards, sampleRecords()))
	require.NoError(t, s.WriteEvents(ctx, event.KindCards, sampleRecords()))

	n, err := s.Count(ctx, event.KindCards)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMissingPayloadSurvivesRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// An update with no set payload is malformed; the archive must hand it
	// back malformed rather than quietly repairing it.
	records := []pipeline.SourcedRecord{
		{RecordID: "a1", Raw: event.Raw{Op: "u", Timestamp: 100}},
	}
	require.NoError(t, s.WriteEvents(ctx, event.KindAccounts, records))

	got, err := s.ReadEvents(ctx, event.KindAccounts)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Raw.Data)
	assert.Nil(t, got[0].Raw.Set)

	_, err = event.Parse(event.KindAccounts, got[0].RecordID, got[0].Raw, 1)
	assert.True(t, event.IsMalformedEvent(err))
}

func TestReadAllCoversEveryKind(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteEvents(ctx, event.KindCards, sampleRecords()))
	require.NoError(t, s.WriteEvents(ctx, event.KindAccounts, []pipeline.SourcedRecord{
		{RecordID: "a1", Raw: event.Raw{Op: "c", Timestamp: 90, Data: map[string]any{"name": "Alice"}}},
	}))

	input, err := s.ReadAll(ctx)
	require.NoError(t, err)

	assert.Len(t, input[event.KindAccounts], 1)
	assert.Len(t, input[event.KindCards], 2)
	assert.Empty(t, input[event.KindSavings])
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.WriteEvents(context.Background(), event.KindCards, sampleRecords()))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	n, err := s2.Count(context.Background(), event.KindCards)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
