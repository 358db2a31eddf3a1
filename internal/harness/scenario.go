// Package harness runs declarative conformance scenarios against the
// reconstruction pipeline. A scenario is a YAML file pairing an event log
// with the records, transactions and anomalies the run must produce;
// failures report expected-versus-actual with the full event log for
// context.
package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ledgerfold/internal/event"
	"github.com/roach88/ledgerfold/internal/state"
)

// Scenario defines one conformance scenario: an event log per entity kind
// plus expectations over the run's outputs.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// MonitoredFields overrides the per-kind monitored field.
	// Kinds absent from the map keep their defaults.
	MonitoredFields map[string]string `yaml:"monitored_fields,omitempty"`

	// Relationships optionally replaces suffix-based join key derivation
	// with an explicit id-to-key mapping, keyed by kind then by id.
	Relationships map[string]map[string]string `yaml:"relationships,omitempty"`

	// Events holds the raw event log per entity kind, in discovery order.
	Events map[string][]EventStep `yaml:"events"`

	// Expect holds the expectations validated against the run.
	Expect Expectations `yaml:"expect"`
}

// EventStep is one raw event in the log. Exactly the shape the pipeline
// ingests: op "c" carries data, op "u" carries set. Deliberately malformed
// steps (wrong payload for the op, unknown op) are allowed so scenarios can
// cover the skip path; pair them with an expected parse error count.
type EventStep struct {
	// ID is the record id the event belongs to.
	ID string `yaml:"id"`

	// Op is the operation code: "c" for create, "u" for update.
	Op string `yaml:"op"`

	// TS is the event timestamp in epoch milliseconds.
	TS int64 `yaml:"ts"`

	// Data is the full attribute payload of a create.
	Data map[string]interface{} `yaml:"data,omitempty"`

	// Set is the partial attribute payload of an update.
	Set map[string]interface{} `yaml:"set,omitempty"`
}

// Expectations validate the outputs of a run. Unset sections are skipped.
type Expectations struct {
	// Records lists expected reconstructed records per kind. Each entry is
	// a subset match on attributes; ids not listed are not checked unless
	// RecordCounts pins the table size.
	Records map[string][]RecordExpect `yaml:"records,omitempty"`

	// RecordCounts pins the exact number of records per kind.
	RecordCounts map[string]int `yaml:"record_counts,omitempty"`

	// Transactions is the complete expected timeline, in order. When set,
	// the run's timeline must match it entry for entry.
	Transactions []TransactionExpect `yaml:"transactions,omitempty"`

	// Anomalies lists anomalies that must appear in diagnostics
	// (subset match; extra anomalies are not an error).
	Anomalies []AnomalyExpect `yaml:"anomalies,omitempty"`

	// Unmatched lists records that must be reported as unmatched by the
	// join (subset match).
	Unmatched []UnmatchedExpect `yaml:"unmatched,omitempty"`

	// ParseErrors pins the exact number of skipped malformed events.
	ParseErrors *int `yaml:"parse_errors,omitempty"`
}

// RecordExpect validates one reconstructed record.
type RecordExpect struct {
	// ID is the record id to look up.
	ID string `yaml:"id"`

	// Fields are expected attribute values (subset match).
	Fields map[string]interface{} `yaml:"fields,omitempty"`

	// CreatedAt, when set, pins the record's creation timestamp.
	CreatedAt *int64 `yaml:"created_at,omitempty"`

	// UpdatedAt, when set, pins the record's last-modified timestamp.
	UpdatedAt *int64 `yaml:"updated_at,omitempty"`
}

// TransactionExpect validates one timeline entry.
type TransactionExpect struct {
	Entity   string      `yaml:"entity"`
	RecordID string      `yaml:"record_id"`
	TS       int64       `yaml:"ts"`
	Previous interface{} `yaml:"previous"`
	New      interface{} `yaml:"new"`
	Delta    float64     `yaml:"delta"`
}

// AnomalyExpect validates one reconstruction anomaly.
type AnomalyExpect struct {
	Kind     string `yaml:"kind"`
	Entity   string `yaml:"entity"`
	RecordID string `yaml:"record_id"`

	// TS, when set, additionally matches the anomaly timestamp.
	TS *int64 `yaml:"ts,omitempty"`
}

// UnmatchedExpect validates one unmatched join diagnostic.
type UnmatchedExpect struct {
	Entity   string `yaml:"entity"`
	RecordID string `yaml:"record_id"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "expects:" vs "expect:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Events) == 0 {
		return fmt.Errorf("events map is required and must be non-empty")
	}

	for kind, steps := range s.Events {
		if !event.Kind(kind).Valid() {
			return fmt.Errorf("events: unknown entity kind %q", kind)
		}
		for i, step := range steps {
			if step.ID == "" {
				return fmt.Errorf("events.%s[%d]: id is required", kind, i)
			}
			if step.Op == "" {
				return fmt.Errorf("events.%s[%d]: op is required", kind, i)
			}
		}
	}

	for kind := range s.MonitoredFields {
		if !event.Kind(kind).Valid() {
			return fmt.Errorf("monitored_fields: unknown entity kind %q", kind)
		}
	}

	for kind := range s.Relationships {
		if !event.Kind(kind).Valid() {
			return fmt.Errorf("relationships: unknown entity kind %q", kind)
		}
	}

	return validateExpectations(&s.Expect)
}

// validateExpectations checks every expectation references a valid kind
// and carries its required fields.
func validateExpectations(e *Expectations) error {
	for kind, recs := range e.Records {
		if !event.Kind(kind).Valid() {
			return fmt.Errorf("expect.records: unknown entity kind %q", kind)
		}
		for i, rec := range recs {
			if rec.ID == "" {
				return fmt.Errorf("expect.records.%s[%d]: id is required", kind, i)
			}
		}
	}

	for kind := range e.RecordCounts {
		if !event.Kind(kind).Valid() {
			return fmt.Errorf("expect.record_counts: unknown entity kind %q", kind)
		}
	}

	for i, tx := range e.Transactions {
		if !event.Kind(tx.Entity).Valid() {
			return fmt.Errorf("expect.transactions[%d]: unknown entity kind %q", i, tx.Entity)
		}
		if tx.RecordID == "" {
			return fmt.Errorf("expect.transactions[%d]: record_id is required", i)
		}
	}

	for i, a := range e.Anomalies {
		switch state.AnomalyKind(a.Kind) {
		case state.AnomalyOrphanUpdate, state.AnomalyDuplicateCreate:
		default:
			return fmt.Errorf("expect.anomalies[%d]: unknown anomaly kind %q", i, a.Kind)
		}
		if !event.Kind(a.Entity).Valid() {
			return fmt.Errorf("expect.anomalies[%d]: unknown entity kind %q", i, a.Entity)
		}
		if a.RecordID == "" {
			return fmt.Errorf("expect.anomalies[%d]: record_id is required", i)
		}
	}

	for i, u := range e.Unmatched {
		if !event.Kind(u.Entity).Valid() {
			return fmt.Errorf("expect.unmatched[%d]: unknown entity kind %q", i, u.Entity)
		}
		if u.RecordID == "" {
			return fmt.Errorf("expect.unmatched[%d]: record_id is required", i)
		}
	}

	if e.ParseErrors != nil && *e.ParseErrors < 0 {
		return fmt.Errorf("expect.parse_errors: must be non-negative")
	}

	return nil
}
