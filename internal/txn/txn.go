// Package txn derives the transaction timeline from monitored-field deltas.
//
// A transaction is an update event that strictly changes the monitored
// field's value (credit_used on cards, balance on savings accounts) from
// its immediately-preceding known value. Create events never emit a
// transaction, even when they set the field: only updates represent
// activity. Whether a create with a nonzero opening value should count as
// an implicit opening transaction was a judgment call; the stricter reading
// is implemented here.
package txn

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/ledgerfold/internal/event"
	"github.com/roach88/ledgerfold/internal/value"
)

// MonitoredField returns the field whose changes count as transactions for
// kind, or "" when the kind has no monitored field.
func MonitoredField(kind event.Kind) string {
	switch kind {
	case event.KindCards:
		return "credit_used"
	case event.KindSavings:
		return "balance"
	}
	return ""
}

// Transaction is one value-changing update of a monitored field.
//
// Previous is value.Null{} when the field was previously unset; Delta is
// then the full new value.
type Transaction struct {
	Entity   event.Kind
	RecordID string
	Field    string
	TS       int64
	Previous value.Value
	New      value.Value
	Delta    float64

	seq int64
}

// MarshalJSON renders the transaction with its tagged previous/new values
// flattened to plain JSON scalars.
func (t Transaction) MarshalJSON() ([]byte, error) {
	prev, err := value.Marshal(t.Previous)
	if err != nil {
		return nil, fmt.Errorf("marshal previous: %w", err)
	}
	next, err := value.Marshal(t.New)
	if err != nil {
		return nil, fmt.Errorf("marshal new: %w", err)
	}
	return json.Marshal(struct {
		Entity   event.Kind      `json:"entity"`
		RecordID string          `json:"record_id"`
		Field    string          `json:"field"`
		TS       int64           `json:"ts"`
		Previous json.RawMessage `json:"previous_value"`
		New      json.RawMessage `json:"new_value"`
		Delta    float64         `json:"delta"`
	}{t.Entity, t.RecordID, t.Field, t.TS, prev, next, t.Delta})
}

// NonNumericFieldError reports a monitored field holding a non-numeric
// value at the moment a delta must be computed. Fatal for that transaction
// only; the event still contributes to state reconstruction.
type NonNumericFieldError struct {
	Kind     event.Kind
	RecordID string
	Field    string
	TS       int64
}

// Error implements the error interface.
func (e *NonNumericFieldError) Error() string {
	return fmt.Sprintf("NON_NUMERIC_MONITORED_FIELD: field %q is not numeric (kind=%s, id=%s, ts=%d)",
		e.Field, e.Kind, e.RecordID, e.TS)
}

// IsNonNumericField reports whether err is a NonNumericFieldError.
// Uses errors.As to handle wrapped errors.
func IsNonNumericField(err error) bool {
	var ne *NonNumericFieldError
	return errors.As(err, &ne)
}

// Extract replays one kind's events and emits a transaction for every
// update that changes the monitored field.
//
// The replay uses the same (timestamp, sequence) ordering as state
// reconstruction, tracking only the monitored field. Non-numeric values at
// delta time are reported in errs and emit nothing; all other events still
// advance the tracked value.
func Extract(kind event.Kind, field string, events []event.Event) (txns []Transaction, errs []error) {
	sorted := make([]event.Event, len(events))
	copy(sorted, events)
	event.Sort(sorted)

	// Tracked value per record id; absent means never seen.
	current := make(map[string]value.Value)

	for _, ev := range sorted {
		fv, present := ev.Fields[field]

		switch ev.Op {
		case event.OpCreate:
			// A create resets the whole attribute set, monitored field
			// included, without emitting.
			if present {
				current[ev.RecordID] = fv
			} else {
				delete(current, ev.RecordID)
			}
		case event.OpUpdate:
			if !present {
				continue
			}
			prev, known := current[ev.RecordID]
			if known && value.Equal(prev, fv) {
				// Update repeats the current value: no activity.
				continue
			}
			newNum, ok := value.Number(fv)
			if !ok {
				errs = append(errs, &NonNumericFieldError{Kind: kind, RecordID: ev.RecordID, Field: field, TS: ev.TS})
				current[ev.RecordID] = fv
				continue
			}
			prevVal := value.Value(value.Null{})
			prevNum := 0.0
			if known {
				prevVal = prev
				if n, ok := value.Number(prev); ok {
					prevNum = n
				} else if _, isNull := prev.(value.Null); !isNull {
					errs = append(errs, &NonNumericFieldError{Kind: kind, RecordID: ev.RecordID, Field: field, TS: ev.TS})
					current[ev.RecordID] = fv
					continue
				}
			}
			txns = append(txns, Transaction{
				Entity:   kind,
				RecordID: ev.RecordID,
				Field:    field,
				TS:       ev.TS,
				Previous: prevVal,
				New:      fv,
				Delta:    newNum - prevNum,
				seq:      ev.Seq,
			})
			current[ev.RecordID] = fv
		}
	}

	return txns, errs
}

// Merge combines per-kind transaction sequences into one chronological
// timeline. The merge is stable on (timestamp, sequence), matching the
// event ordering rule.
func Merge(seqs ...[]Transaction) []Transaction {
	var all []Transaction
	for _, s := range seqs {
		all = append(all, s...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].TS != all[j].TS {
			return all[i].TS < all[j].TS
		}
		return all[i].seq < all[j].seq
	})
	return all
}
