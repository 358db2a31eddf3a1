// Package event defines the parsed change-event model and the parser that
// turns raw log records into typed, immutable events.
package event

import (
	"sort"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/ledgerfold/internal/value"
)

// Kind identifies one of the three logical tables an event belongs to.
type Kind string

const (
	KindAccounts Kind = "accounts"
	KindCards    Kind = "cards"
	KindSavings  Kind = "savings_accounts"
)

// Kinds lists all entity kinds in canonical order. The order is load-bearing:
// fan-out and merged output follow it, so it never changes.
var Kinds = []Kind{KindAccounts, KindCards, KindSavings}

// Valid reports whether k names a known entity kind.
func (k Kind) Valid() bool {
	switch k {
	case KindAccounts, KindCards, KindSavings:
		return true
	}
	return false
}

// Op is the operation recorded by an event.
type Op string

const (
	OpCreate Op = "c"
	OpUpdate Op = "u"
)

// Raw is a change-event record as it appears in the log, already
// deserialized from its source document but not yet validated. Numbers in
// Data/Set must be json.Number (decode with UseNumber).
type Raw struct {
	Op        string         `json:"op"`
	Timestamp int64          `json:"ts"`
	Data      map[string]any `json:"data,omitempty"`
	Set       map[string]any `json:"set,omitempty"`
}

// Event is one validated change event. Immutable once parsed.
//
// Seq is the event's position in discovery order and is the tiebreaker when
// two events share a timestamp - the log carries no finer ordering signal.
type Event struct {
	Kind     Kind
	RecordID string
	Op       Op
	Fields   map[string]value.Value
	TS       int64
	Seq      int64
}

// Parse validates one raw record and returns the typed Event.
//
// The op must be exactly "c" or "u". Create events must carry a data
// payload (the full attribute set); Update events must carry a set payload
// (a partial attribute set). Violations return *MalformedEventError.
// Parse has no side effects.
func Parse(kind Kind, recordID string, raw Raw, seq int64) (Event, error) {
	id := norm.NFC.String(recordID)

	var op Op
	var payload map[string]any
	switch raw.Op {
	case string(OpCreate):
		op = OpCreate
		if raw.Data == nil {
			return Event{}, newMalformedEvent(kind, id, seq, "create event missing data payload")
		}
		payload = raw.Data
	case string(OpUpdate):
		op = OpUpdate
		if raw.Set == nil {
			return Event{}, newMalformedEvent(kind, id, seq, "update event missing set payload")
		}
		payload = raw.Set
	default:
		return Event{}, newMalformedEvent(kind, id, seq, "unknown op %q", raw.Op)
	}

	fields, err := value.DecodeFields(payload)
	if err != nil {
		return Event{}, newMalformedEvent(kind, id, seq, "payload: %v", err)
	}

	return Event{
		Kind:     kind,
		RecordID: id,
		Op:       op,
		Fields:   fields,
		TS:       raw.Timestamp,
		Seq:      seq,
	}, nil
}

// Sort orders events chronologically in place. The sort is stable on
// (TS, Seq), so events sharing a timestamp keep their discovery order.
func Sort(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].TS != events[j].TS {
			return events[i].TS < events[j].TS
		}
		return events[i].Seq < events[j].Seq
	})
}

// ByRecord groups events by record id, preserving each group's relative
// order.
func ByRecord(events []Event) map[string][]Event {
	groups := make(map[string][]Event)
	for _, ev := range events {
		groups[ev.RecordID] = append(groups[ev.RecordID], ev)
	}
	return groups
}
