package state

import "github.com/roach88/ledgerfold/internal/event"

// AnomalyKind categorizes data-integrity irregularities observed while
// folding an event log.
type AnomalyKind string

const (
	// AnomalyOrphanUpdate marks an update event for an id with no prior
	// create. The record is implicitly created from the update's fields.
	AnomalyOrphanUpdate AnomalyKind = "ORPHAN_UPDATE"

	// AnomalyDuplicateCreate marks a second create event for an existing
	// id. The later create fully replaces the attributes.
	AnomalyDuplicateCreate AnomalyKind = "DUPLICATE_CREATE"
)

// Anomaly records one non-fatal irregularity. Anomalies ride alongside
// normal output in diagnostics; they are never raised as errors, since
// real-world event logs can be imperfect.
type Anomaly struct {
	Kind     AnomalyKind `json:"kind"`
	Entity   event.Kind  `json:"entity"`
	RecordID string      `json:"record_id"`
	TS       int64       `json:"ts"`
	Detail   string      `json:"detail"`
}
