package publish

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerfold/internal/event"
	"github.com/roach88/ledgerfold/internal/txn"
	"github.com/roach88/ledgerfold/internal/value"
)

func sampleTimeline() []txn.Transaction {
	return []txn.Transaction{
		{Entity: event.KindCards, RecordID: "c1", Field: "credit_used", TS: 150,
			Previous: value.Int(0), New: value.Int(50), Delta: 50},
		{Entity: event.KindSavings, RecordID: "sa1", Field: "balance", TS: 180,
			Previous: value.Int(1000), New: value.Int(1500), Delta: 500},
	}
}

func TestFileWriterAppendsJSONL(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFileWriter(dir, "timeline.jsonl")
	require.NoError(t, err)

	require.NoError(t, Timeline(context.Background(), w, sampleTimeline()))

	f, err := os.Open(filepath.Join(dir, "timeline.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var doc map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &doc))
		lines = append(lines, doc)
	}
	require.NoError(t, sc.Err())

	require.Len(t, lines, 2)
	assert.Equal(t, "c1", lines[0]["record_id"])
	assert.Equal(t, 50.0, lines[0]["delta"])
	assert.Equal(t, "balance", lines[1]["field"])
}

type fakeKafka struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeKafka) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func TestKafkaWriterKeysByRecordID(t *testing.T) {
	fake := &fakeKafka{}
	w := NewKafkaWriterWith(fake)

	require.NoError(t, Timeline(context.Background(), w, sampleTimeline()))

	require.Len(t, fake.msgs, 2)
	assert.Equal(t, []byte("c1"), fake.msgs[0].Key)
	assert.Equal(t, []byte("sa1"), fake.msgs[1].Key)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(fake.msgs[0].Value, &doc))
	assert.Equal(t, "credit_used", doc["field"])
	assert.Equal(t, 0.0, doc["previous_value"])
	assert.Equal(t, 50.0, doc["new_value"])
}

func TestTimelineStopsOnSinkFailure(t *testing.T) {
	fake := &fakeKafka{err: errors.New("broker unavailable")}
	w := NewKafkaWriterWith(fake)

	err := Timeline(context.Background(), w, sampleTimeline())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish transaction 1/2")
}

func TestMultiWriterFansOut(t *testing.T) {
	dir := t.TempDir()
	fw, err := NewFileWriter(dir, "timeline.jsonl")
	require.NoError(t, err)
	fake := &fakeKafka{}

	w := NewMultiWriter(fw, NewKafkaWriterWith(fake))
	require.NoError(t, Timeline(context.Background(), w, sampleTimeline()))

	assert.Len(t, fake.msgs, 2)
	data, err := os.ReadFile(filepath.Join(dir, "timeline.jsonl"))
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}
