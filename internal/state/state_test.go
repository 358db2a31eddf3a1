package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerfold/internal/event"
	"github.com/roach88/ledgerfold/internal/value"
)

func ev(id string, op event.Op, ts, seq int64, fields map[string]value.Value) event.Event {
	return event.Event{
		Kind:     event.KindAccounts,
		RecordID: id,
		Op:       op,
		Fields:   fields,
		TS:       ts,
		Seq:      seq,
	}
}

func TestBuildCreateThenUpdate(t *testing.T) {
	events := []event.Event{
		ev("a1", event.OpCreate, 100, 1, map[string]value.Value{"name": value.String("Alice")}),
		ev("a1", event.OpUpdate, 200, 2, map[string]value.Value{"name": value.String("Alice B.")}),
	}

	table, anomalies := Build(event.KindAccounts, events)

	assert.Empty(t, anomalies)
	rec, ok := table.Get("a1")
	require.True(t, ok)
	assert.Equal(t, value.String("Alice B."), rec.Attributes["name"])
	assert.Equal(t, int64(100), rec.CreatedAt)
	assert.Equal(t, int64(200), rec.UpdatedAt)
}

func TestBuildCreateOnlyRoundTrip(t *testing.T) {
	payload := map[string]value.Value{
		"name":         value.String("Alice"),
		"phone_number": value.String("0800000"),
	}
	table, anomalies := Build(event.KindAccounts, []event.Event{
		ev("a1", event.OpCreate, 100, 1, payload),
	})

	assert.Empty(t, anomalies)
	rec, ok := table.Get("a1")
	require.True(t, ok)
	assert.Equal(t, payload, rec.Attributes)
	assert.Equal(t, rec.CreatedAt, rec.UpdatedAt)
}

func TestBuildMergeLeavesOtherFieldsUntouched(t *testing.T) {
	table, _ := Build(event.KindCards, []event.Event{
		ev("c1", event.OpCreate, 100, 1, map[string]value.Value{
			"credit_used":   value.Int(0),
			"monthly_limit": value.Int(3000),
		}),
		ev("c1", event.OpUpdate, 150, 2, map[string]value.Value{
			"credit_used": value.Int(50),
		}),
	})

	rec, ok := table.Get("c1")
	require.True(t, ok)
	assert.Equal(t, value.Int(50), rec.Attributes["credit_used"])
	assert.Equal(t, value.Int(3000), rec.Attributes["monthly_limit"])
}

func TestBuildArrivalOrderIndependence(t *testing.T) {
	forward := []event.Event{
		ev("a1", event.OpCreate, 100, 1, map[string]value.Value{"name": value.String("Alice")}),
		ev("a1", event.OpUpdate, 200, 2, map[string]value.Value{"name": value.String("Alice B.")}),
		ev("a1", event.OpUpdate, 300, 3, map[string]value.Value{"savings_account_id": value.String("sa1")}),
	}
	shuffled := []event.Event{forward[2], forward[0], forward[1]}

	t1, _ := Build(event.KindAccounts, forward)
	t2, _ := Build(event.KindAccounts, shuffled)

	r1, _ := t1.Get("a1")
	r2, _ := t2.Get("a1")
	assert.Equal(t, r1, r2)
}

func TestBuildOrphanUpdate(t *testing.T) {
	table, anomalies := Build(event.KindAccounts, []event.Event{
		ev("a2", event.OpUpdate, 500, 1, map[string]value.Value{"name": value.String("Bob")}),
	})

	require.Len(t, anomalies, 1)
	assert.Equal(t, AnomalyOrphanUpdate, anomalies[0].Kind)
	assert.Equal(t, "a2", anomalies[0].RecordID)

	rec, ok := table.Get("a2")
	require.True(t, ok)
	assert.Equal(t, value.String("Bob"), rec.Attributes["name"])
	assert.Equal(t, int64(500), rec.CreatedAt)
}

func TestBuildDuplicateCreateLastWins(t *testing.T) {
	table, anomalies := Build(event.KindAccounts, []event.Event{
		ev("a1", event.OpCreate, 100, 1, map[string]value.Value{
			"name":  value.String("Alice"),
			"email": value.String("alice@example.com"),
		}),
		ev("a1", event.OpCreate, 300, 2, map[string]value.Value{"name": value.String("Alice C.")}),
	})

	require.Len(t, anomalies, 1)
	assert.Equal(t, AnomalyDuplicateCreate, anomalies[0].Kind)

	rec, _ := table.Get("a1")
	assert.Equal(t, value.String("Alice C."), rec.Attributes["name"])
	// The second create replaces, it does not merge.
	_, hasEmail := rec.Attributes["email"]
	assert.False(t, hasEmail)
	assert.Equal(t, int64(300), rec.CreatedAt)
}

func TestBuildIsIdempotent(t *testing.T) {
	events := []event.Event{
		ev("a1", event.OpCreate, 100, 1, map[string]value.Value{"name": value.String("Alice")}),
		ev("a2", event.OpCreate, 110, 2, map[string]value.Value{"name": value.String("Bob")}),
		ev("a1", event.OpUpdate, 200, 3, map[string]value.Value{"name": value.String("Alice B.")}),
	}

	t1, a1 := Build(event.KindAccounts, events)
	t2, a2 := Build(event.KindAccounts, events)

	assert.Equal(t, t1.Records(), t2.Records())
	assert.Equal(t, a1, a2)
}

func TestIDsNaturalOrder(t *testing.T) {
	table, _ := Build(event.KindAccounts, []event.Event{
		ev("a10", event.OpCreate, 100, 1, nil),
		ev("a2", event.OpCreate, 110, 2, nil),
		ev("a1", event.OpCreate, 120, 3, nil),
	})

	assert.Equal(t, []string{"a1", "a2", "a10"}, table.IDs())
}
