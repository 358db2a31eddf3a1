package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerfold/internal/event"
	"github.com/roach88/ledgerfold/internal/state"
	"github.com/roach88/ledgerfold/internal/value"
)

func raw(t *testing.T, doc string) event.Raw {
	t.Helper()
	var r event.Raw
	dec := json.NewDecoder(strings.NewReader(doc))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&r))
	return r
}

// fixtureInput covers all three kinds: a1/c1/sa1 fully linked, plus an
// account update and one monitored-field change per monitored kind.
func fixtureInput(t *testing.T) Input {
	t.Helper()
	return Input{
		event.KindAccounts: {
			{RecordID: "a1", Raw: raw(t, `{"op":"c","ts":100,"data":{"name":"Alice","card_id":"c1"}}`)},
			{RecordID: "a1", Raw: raw(t, `{"op":"u","ts":200,"set":{"name":"Alice B."}}`)},
		},
		event.KindCards: {
			{RecordID: "c1", Raw: raw(t, `{"op":"c","ts":110,"data":{"card_number":"4111","credit_used":0}}`)},
			{RecordID: "c1", Raw: raw(t, `{"op":"u","ts":150,"set":{"credit_used":50}}`)},
		},
		event.KindSavings: {
			{RecordID: "sa1", Raw: raw(t, `{"op":"c","ts":120,"data":{"balance":1000}}`)},
			{RecordID: "sa1", Raw: raw(t, `{"op":"u","ts":180,"set":{"balance":1500}}`)},
		},
	}
}

func testOpts() Options {
	return Options{RunIDs: NewFixedGenerator("run-1", "run-2")}
}

func TestRunProducesAllThreeOutputs(t *testing.T) {
	res, err := Run(context.Background(), fixtureInput(t), testOpts())
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)

	// Tables.
	acc, ok := res.Tables[event.KindAccounts].Get("a1")
	require.True(t, ok)
	assert.Equal(t, value.String("Alice B."), acc.Attributes["name"])
	assert.Equal(t, int64(100), acc.CreatedAt)
	assert.Equal(t, int64(200), acc.UpdatedAt)

	// Join: one fully populated row.
	require.Len(t, res.Join.Rows, 1)
	row := res.Join.Rows[0]
	require.NotNil(t, row.Card)
	require.NotNil(t, row.Savings)
	assert.Equal(t, "c1", row.Card.ID)
	assert.Equal(t, "sa1", row.Savings.ID)

	// Timeline: card change at 150, savings change at 180, merged.
	require.Len(t, res.Timeline, 2)
	assert.Equal(t, event.KindCards, res.Timeline[0].Entity)
	assert.Equal(t, int64(150), res.Timeline[0].TS)
	assert.Equal(t, event.KindSavings, res.Timeline[1].Entity)
	assert.Equal(t, 500.0, res.Timeline[1].Delta)

	assert.Empty(t, res.Diagnostics.ParseErrors)
	assert.Empty(t, res.Diagnostics.Anomalies)
}

func TestRunIsIdempotent(t *testing.T) {
	input := fixtureInput(t)
	r1, err := Run(context.Background(), input, testOpts())
	require.NoError(t, err)
	r2, err := Run(context.Background(), input, testOpts())
	require.NoError(t, err)

	for _, kind := range event.Kinds {
		assert.Equal(t, r1.Tables[kind].Records(), r2.Tables[kind].Records(), "kind %s", kind)
	}
	assert.Equal(t, r1.Timeline, r2.Timeline)
	assert.Equal(t, r1.Join.Rows, r2.Join.Rows)
}

func TestRunSkipsMalformedEvents(t *testing.T) {
	input := fixtureInput(t)
	input[event.KindAccounts] = append(input[event.KindAccounts],
		SourcedRecord{RecordID: "a9", Raw: raw(t, `{"op":"x","ts":300}`)},
		SourcedRecord{RecordID: "a2", Raw: raw(t, `{"op":"c","ts":310,"data":{"name":"Bob"}}`)},
	)

	res, err := Run(context.Background(), input, testOpts())
	require.NoError(t, err)

	// The bad record is reported; the good ones still reconstruct.
	require.Len(t, res.Diagnostics.ParseErrors, 1)
	assert.True(t, event.IsMalformedEvent(res.Diagnostics.ParseErrors[0]))
	assert.Equal(t, 2, res.Tables[event.KindAccounts].Len())
}

func TestRunReportsOrphanUpdateAnomaly(t *testing.T) {
	input := Input{
		event.KindAccounts: {
			{RecordID: "a2", Raw: raw(t, `{"op":"u","ts":500,"set":{"name":"Bob"}}`)},
		},
	}

	res, err := Run(context.Background(), input, testOpts())
	require.NoError(t, err)

	require.Len(t, res.Diagnostics.Anomalies, 1)
	assert.Equal(t, state.AnomalyOrphanUpdate, res.Diagnostics.Anomalies[0].Kind)

	rec, ok := res.Tables[event.KindAccounts].Get("a2")
	require.True(t, ok)
	assert.Equal(t, value.String("Bob"), rec.Attributes["name"])
}

func TestRunReportsUnmatchedRecords(t *testing.T) {
	input := Input{
		event.KindCards: {
			{RecordID: "c7", Raw: raw(t, `{"op":"c","ts":100,"data":{"credit_used":0}}`)},
		},
	}

	res, err := Run(context.Background(), input, testOpts())
	require.NoError(t, err)

	assert.Empty(t, res.Join.Rows)
	require.Len(t, res.Diagnostics.Unmatched, 1)
	assert.Equal(t, "c7", res.Diagnostics.Unmatched[0].RecordID)
}

func TestRunMonitoredFieldOverride(t *testing.T) {
	input := Input{
		event.KindAccounts: {
			{RecordID: "a1", Raw: raw(t, `{"op":"c","ts":100,"data":{"score":10}}`)},
			{RecordID: "a1", Raw: raw(t, `{"op":"u","ts":200,"set":{"score":25}}`)},
		},
	}
	opts := testOpts()
	opts.MonitoredFields = map[event.Kind]string{event.KindAccounts: "score"}

	res, err := Run(context.Background(), input, opts)
	require.NoError(t, err)

	require.Len(t, res.Timeline, 1)
	assert.Equal(t, "score", res.Timeline[0].Field)
	assert.Equal(t, 15.0, res.Timeline[0].Delta)
}

func TestRunHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, fixtureInput(t), testOpts())
	assert.Error(t, err)
}
