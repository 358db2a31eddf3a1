// Package state replays a single entity kind's change events into its
// current-row-per-id table.
//
// Reconstruction is a pure function of the sorted event order: replaying
// any permutation of the same events yields the same table, because the
// fold always re-sorts on (timestamp, discovery sequence) first.
package state

import (
	"sort"
	"strconv"

	"github.com/roach88/ledgerfold/internal/event"
	"github.com/roach88/ledgerfold/internal/value"
)

// Record is the reconstructed latest logical row for one record id.
//
// Attributes reflect the cumulative effect of every create and update for
// the id applied strictly in timestamp order: a create fully replaces the
// attribute set, an update merges only the fields present in its payload.
type Record struct {
	ID         string
	Attributes map[string]value.Value
	CreatedAt  int64
	UpdatedAt  int64
}

// Table holds one entity kind's reconstructed records. Built once per run
// and treated as immutable afterwards.
type Table struct {
	Kind    event.Kind
	records map[string]*Record
}

// Get returns the record for id, if present.
func (t *Table) Get(id string) (*Record, bool) {
	r, ok := t.records[id]
	return r, ok
}

// Len returns the number of reconstructed records.
func (t *Table) Len() int {
	return len(t.records)
}

// IDs returns record ids in natural key order: ascending numeric suffix,
// falling back to lexicographic for ids without one. Deterministic
// iteration order is what keeps rendered output and golden tests stable.
func (t *Table) IDs() []string {
	ids := make([]string, 0, len(t.records))
	for id := range t.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ni, iok := trailingNumber(ids[i])
		nj, jok := trailingNumber(ids[j])
		if iok && jok && ni != nj {
			return ni < nj
		}
		return ids[i] < ids[j]
	})
	return ids
}

// Records returns all records in IDs() order.
func (t *Table) Records() []*Record {
	out := make([]*Record, 0, len(t.records))
	for _, id := range t.IDs() {
		out = append(out, t.records[id])
	}
	return out
}

func trailingNumber(id string) (int64, bool) {
	i := len(id)
	for i > 0 && id[i-1] >= '0' && id[i-1] <= '9' {
		i--
	}
	if i == len(id) {
		return 0, false
	}
	n, err := strconv.ParseInt(id[i:], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Build folds one kind's events into its table.
//
// Events are grouped by record id and stable-sorted by (timestamp,
// sequence) before folding, so arrival order never affects the result.
// Data-integrity irregularities (an update with no prior create, a second
// create for an existing id) are folded through anyway and reported as
// anomalies rather than failing the run.
func Build(kind event.Kind, events []event.Event) (*Table, []Anomaly) {
	sorted := make([]event.Event, len(events))
	copy(sorted, events)
	event.Sort(sorted)

	var anomalies []Anomaly
	records := make(map[string]*Record)

	for _, ev := range sorted {
		rec, exists := records[ev.RecordID]
		switch ev.Op {
		case event.OpCreate:
			if exists {
				// Last create wins; the earlier history is replaced
				// exactly as if this were a fresh id.
				anomalies = append(anomalies, Anomaly{
					Kind:     AnomalyDuplicateCreate,
					Entity:   kind,
					RecordID: ev.RecordID,
					TS:       ev.TS,
					Detail:   "create for an id that already exists; last create wins",
				})
			}
			records[ev.RecordID] = &Record{
				ID:         ev.RecordID,
				Attributes: value.Clone(ev.Fields),
				CreatedAt:  ev.TS,
				UpdatedAt:  ev.TS,
			}
		case event.OpUpdate:
			if !exists {
				// Implicitly create from the update's fields so the rest
				// of the id's history still reconstructs.
				anomalies = append(anomalies, Anomaly{
					Kind:     AnomalyOrphanUpdate,
					Entity:   kind,
					RecordID: ev.RecordID,
					TS:       ev.TS,
					Detail:   "update with no prior create; record implicitly created",
				})
				records[ev.RecordID] = &Record{
					ID:         ev.RecordID,
					Attributes: value.Clone(ev.Fields),
					CreatedAt:  ev.TS,
					UpdatedAt:  ev.TS,
				}
				continue
			}
			for k, v := range ev.Fields {
				rec.Attributes[k] = v
			}
			rec.UpdatedAt = ev.TS
		}
	}

	return &Table{Kind: kind, records: records}, anomalies
}
