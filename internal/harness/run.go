package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/roach88/ledgerfold/internal/event"
	"github.com/roach88/ledgerfold/internal/pipeline"
	"github.com/roach88/ledgerfold/internal/relation"
	"github.com/roach88/ledgerfold/internal/state"
	"github.com/roach88/ledgerfold/internal/value"
)

// Result is the outcome of one scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	Pass bool

	// Run is the pipeline output the expectations were checked against.
	Run *pipeline.Result

	// Errors contains one message per failed expectation.
	// Empty when Pass is true.
	Errors []string
}

// AssertionError is returned when one expectation fails. It includes the
// scenario's event log so a failure can be debugged from the message alone.
type AssertionError struct {
	Type     string // Expectation category
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Log      []string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Expectation failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nEvent log:\n")
	for i, line := range e.Log {
		fmt.Fprintf(&buf, "  [%d] %s\n", i+1, line)
	}

	return buf.String()
}

// Run executes a scenario: feed its event log through the pipeline and
// check every expectation. Expectation failures are collected in the
// result, not returned as errors; a non-nil error means the scenario
// itself could not be executed.
func Run(ctx context.Context, s *Scenario) (*Result, error) {
	input := buildInput(s)

	opts := pipeline.Options{
		RunIDs: pipeline.NewFixedGenerator("scenario-" + s.Name),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if len(s.MonitoredFields) > 0 {
		opts.MonitoredFields = make(map[event.Kind]string, len(s.MonitoredFields))
		for kind, field := range s.MonitoredFields {
			opts.MonitoredFields[event.Kind(kind)] = field
		}
	}
	if len(s.Relationships) > 0 {
		entries := make(map[event.Kind]map[string]relation.JoinKey, len(s.Relationships))
		for kind, ids := range s.Relationships {
			m := make(map[string]relation.JoinKey, len(ids))
			for id, key := range ids {
				m[id] = relation.JoinKey(key)
			}
			entries[event.Kind(kind)] = m
		}
		opts.Resolver = relation.NewMappingResolver(entries)
	}

	run, err := pipeline.Run(ctx, input, opts)
	if err != nil {
		return nil, fmt.Errorf("pipeline run: %w", err)
	}

	res := &Result{Pass: true, Run: run}
	log := formatLog(s)
	for _, err := range evaluate(run, &s.Expect, log) {
		res.Errors = append(res.Errors, err.Error())
		res.Pass = false
	}
	return res, nil
}

// buildInput converts scenario event steps into pipeline input, preserving
// the listed order as discovery order.
func buildInput(s *Scenario) pipeline.Input {
	input := make(pipeline.Input, len(s.Events))
	for kindName, steps := range s.Events {
		kind := event.Kind(kindName)
		records := make([]pipeline.SourcedRecord, 0, len(steps))
		for _, step := range steps {
			records = append(records, pipeline.SourcedRecord{
				RecordID: step.ID,
				Raw: event.Raw{
					Op:        step.Op,
					Timestamp: step.TS,
					Data:      payload(step.Data),
					Set:       payload(step.Set),
				},
			})
		}
		input[kind] = records
	}
	return input
}

// payload renumbers YAML scalars into the json.Number form event parsing
// expects, so a scenario payload and a loaded JSON payload decode
// identically.
func payload(m map[string]interface{}) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = renumber(v)
	}
	return out
}

func renumber(v interface{}) any {
	switch n := v.(type) {
	case int:
		return json.Number(strconv.Itoa(n))
	case int64:
		return json.Number(strconv.FormatInt(n, 10))
	case float64:
		return json.Number(strconv.FormatFloat(n, 'g', -1, 64))
	default:
		return v
	}
}

// expectedValue decodes a YAML expectation scalar into the tagged value
// domain so comparisons share the pipeline's equality rules.
func expectedValue(v interface{}) (value.Value, error) {
	return value.Decode(renumber(v))
}

// formatLog renders the scenario's event log for assertion messages, in
// canonical kind order.
func formatLog(s *Scenario) []string {
	var lines []string
	for _, kind := range event.Kinds {
		for _, step := range s.Events[string(kind)] {
			body := step.Data
			slot := "data"
			if step.Op == "u" {
				body = step.Set
				slot = "set"
			}
			lines = append(lines, fmt.Sprintf("%s %s op=%s ts=%d %s=%v",
				kind, step.ID, step.Op, step.TS, slot, body))
		}
	}
	return lines
}

// evaluate checks every expectation against the run output.
func evaluate(run *pipeline.Result, e *Expectations, log []string) []error {
	var errs []error

	for _, kind := range event.Kinds {
		for _, rec := range e.Records[string(kind)] {
			if err := checkRecord(run.Tables[kind], kind, rec, log); err != nil {
				errs = append(errs, err)
			}
		}
		if want, ok := e.RecordCounts[string(kind)]; ok {
			got := 0
			if t := run.Tables[kind]; t != nil {
				got = t.Len()
			}
			if got != want {
				errs = append(errs, &AssertionError{
					Type:     "record_counts",
					Expected: fmt.Sprintf("%d %s records", want, kind),
					Actual:   fmt.Sprintf("%d records", got),
					Log:      log,
				})
			}
		}
	}

	if e.Transactions != nil {
		errs = append(errs, checkTimeline(run, e.Transactions, log)...)
	}

	for _, a := range e.Anomalies {
		if err := checkAnomaly(run.Diagnostics.Anomalies, a, log); err != nil {
			errs = append(errs, err)
		}
	}

	for _, u := range e.Unmatched {
		if err := checkUnmatched(run, u, log); err != nil {
			errs = append(errs, err)
		}
	}

	if e.ParseErrors != nil && len(run.Diagnostics.ParseErrors) != *e.ParseErrors {
		errs = append(errs, &AssertionError{
			Type:     "parse_errors",
			Expected: fmt.Sprintf("%d skipped malformed events", *e.ParseErrors),
			Actual:   fmt.Sprintf("%d skipped", len(run.Diagnostics.ParseErrors)),
			Log:      log,
		})
	}

	return errs
}

// checkRecord validates one expected record: presence, attribute subset,
// and optional timestamp pins.
func checkRecord(table *state.Table, kind event.Kind, rec RecordExpect, log []string) error {
	if table == nil {
		return &AssertionError{
			Type:     "records",
			Expected: fmt.Sprintf("%s table with record %s", kind, rec.ID),
			Actual:   "no table reconstructed",
			Log:      log,
		}
	}
	got, ok := table.Get(rec.ID)
	if !ok {
		return &AssertionError{
			Type:     "records",
			Expected: fmt.Sprintf("%s record %s", kind, rec.ID),
			Actual:   fmt.Sprintf("not present (ids: %v)", table.IDs()),
			Log:      log,
		}
	}

	for field, raw := range rec.Fields {
		want, err := expectedValue(raw)
		if err != nil {
			return fmt.Errorf("records.%s[%s].%s: %w", kind, rec.ID, field, err)
		}
		actual, exists := got.Attributes[field]
		if !exists {
			return &AssertionError{
				Type:     "records",
				Expected: fmt.Sprintf("%s %s field %q = %s", kind, rec.ID, field, value.Display(want)),
				Actual:   "field not set",
				Log:      log,
			}
		}
		if !value.Equal(want, actual) {
			return &AssertionError{
				Type:     "records",
				Expected: fmt.Sprintf("%s %s field %q = %s", kind, rec.ID, field, value.Display(want)),
				Actual:   fmt.Sprintf("field %q = %s", field, value.Display(actual)),
				Log:      log,
			}
		}
	}

	if rec.CreatedAt != nil && got.CreatedAt != *rec.CreatedAt {
		return &AssertionError{
			Type:     "records",
			Expected: fmt.Sprintf("%s %s created_at = %d", kind, rec.ID, *rec.CreatedAt),
			Actual:   fmt.Sprintf("created_at = %d", got.CreatedAt),
			Log:      log,
		}
	}
	if rec.UpdatedAt != nil && got.UpdatedAt != *rec.UpdatedAt {
		return &AssertionError{
			Type:     "records",
			Expected: fmt.Sprintf("%s %s updated_at = %d", kind, rec.ID, *rec.UpdatedAt),
			Actual:   fmt.Sprintf("updated_at = %d", got.UpdatedAt),
			Log:      log,
		}
	}

	return nil
}

// checkTimeline compares the full timeline entry for entry. The timeline
// is deterministic, so an exact ordered match is the right strength.
func checkTimeline(run *pipeline.Result, want []TransactionExpect, log []string) []error {
	if len(run.Timeline) != len(want) {
		return []error{&AssertionError{
			Type:     "transactions",
			Expected: fmt.Sprintf("%d timeline entries", len(want)),
			Actual:   fmt.Sprintf("%d entries", len(run.Timeline)),
			Log:      log,
		}}
	}

	var errs []error
	for i, exp := range want {
		got := run.Timeline[i]
		prev, err := expectedValue(exp.Previous)
		if err != nil {
			errs = append(errs, fmt.Errorf("transactions[%d].previous: %w", i, err))
			continue
		}
		next, err := expectedValue(exp.New)
		if err != nil {
			errs = append(errs, fmt.Errorf("transactions[%d].new: %w", i, err))
			continue
		}

		if string(got.Entity) != exp.Entity || got.RecordID != exp.RecordID ||
			got.TS != exp.TS || !value.Equal(prev, got.Previous) ||
			!value.Equal(next, got.New) || got.Delta != exp.Delta {
			errs = append(errs, &AssertionError{
				Type: "transactions",
				Expected: fmt.Sprintf("[%d] %s %s ts=%d %s -> %s delta=%v",
					i, exp.Entity, exp.RecordID, exp.TS,
					value.Display(prev), value.Display(next), exp.Delta),
				Actual: fmt.Sprintf("[%d] %s %s ts=%d %s -> %s delta=%v",
					i, got.Entity, got.RecordID, got.TS,
					value.Display(got.Previous), value.Display(got.New), got.Delta),
				Log: log,
			})
		}
	}
	return errs
}

// checkAnomaly verifies the anomaly appears in diagnostics (subset match).
func checkAnomaly(anomalies []state.Anomaly, want AnomalyExpect, log []string) error {
	for _, a := range anomalies {
		if string(a.Kind) != want.Kind || string(a.Entity) != want.Entity || a.RecordID != want.RecordID {
			continue
		}
		if want.TS != nil && a.TS != *want.TS {
			continue
		}
		return nil
	}

	return &AssertionError{
		Type:     "anomalies",
		Expected: fmt.Sprintf("%s anomaly for %s %s", want.Kind, want.Entity, want.RecordID),
		Actual:   fmt.Sprintf("not found (%d anomalies recorded)", len(anomalies)),
		Log:      log,
	}
}

// checkUnmatched verifies the record appears in the join's unmatched list.
func checkUnmatched(run *pipeline.Result, want UnmatchedExpect, log []string) error {
	for _, u := range run.Diagnostics.Unmatched {
		if string(u.Entity) == want.Entity && u.RecordID == want.RecordID {
			return nil
		}
	}

	return &AssertionError{
		Type:     "unmatched",
		Expected: fmt.Sprintf("unmatched %s record %s", want.Entity, want.RecordID),
		Actual:   fmt.Sprintf("not reported (%d unmatched records)", len(run.Diagnostics.Unmatched)),
		Log:      log,
	}
}
