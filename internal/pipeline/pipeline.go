// Package pipeline orchestrates one batch run: parse the raw event logs,
// reconstruct the three entity tables, build the joined view, and derive
// the transaction timeline.
//
// The three outputs are independent consumers of the parsed event stream;
// only the join depends on completed tables. Reconstruction and extraction
// fan out per entity kind onto goroutines - each works a disjoint input
// slice and writes a disjoint output slot, so no locking is needed.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/ledgerfold/internal/event"
	"github.com/roach88/ledgerfold/internal/join"
	"github.com/roach88/ledgerfold/internal/metrics"
	"github.com/roach88/ledgerfold/internal/relation"
	"github.com/roach88/ledgerfold/internal/state"
	"github.com/roach88/ledgerfold/internal/txn"
)

// SourcedRecord is one raw record with the id it belongs to, in discovery
// order. The source format (one JSON document per file, a database row) is
// the loader's concern; the pipeline only needs the already-deserialized
// shape.
type SourcedRecord struct {
	RecordID string
	Raw      event.Raw
}

// Input maps each entity kind to its raw records in discovery order.
type Input map[event.Kind][]SourcedRecord

// Diagnostics accumulates everything that went wrong, or looked wrong,
// without stopping the run. Each top-level output reports its own list.
type Diagnostics struct {
	ParseErrors    []error          `json:"parse_errors,omitempty"`
	Anomalies      []state.Anomaly  `json:"anomalies,omitempty"`
	JoinErrors     []error          `json:"join_errors,omitempty"`
	Unmatched      []join.Unmatched `json:"unmatched,omitempty"`
	TimelineErrors []error          `json:"timeline_errors,omitempty"`
}

// Result is the output of one batch run.
type Result struct {
	RunID       string
	Tables      map[event.Kind]*state.Table
	Join        join.Result
	Timeline    []txn.Transaction
	Diagnostics Diagnostics
}

// Options configures a run.
type Options struct {
	// Resolver derives join keys. Defaults to relation.SuffixResolver.
	Resolver relation.Resolver

	// MonitoredFields overrides the per-kind monitored field. Kinds absent
	// from the map fall back to txn.MonitoredField.
	MonitoredFields map[event.Kind]string

	// RunIDs generates run tokens. Defaults to UUIDv7Generator.
	RunIDs RunIDGenerator

	// Logger receives per-record skip decisions. Defaults to slog.Default.
	Logger *slog.Logger
}

func (o Options) resolver() relation.Resolver {
	if o.Resolver != nil {
		return o.Resolver
	}
	return relation.SuffixResolver{}
}

func (o Options) monitoredField(kind event.Kind) string {
	if f, ok := o.MonitoredFields[kind]; ok {
		return f
	}
	return txn.MonitoredField(kind)
}

func (o Options) runIDs() RunIDGenerator {
	if o.RunIDs != nil {
		return o.RunIDs
	}
	return UUIDv7Generator{}
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Run executes one batch reconstruction over a closed input set.
//
// Parsing is best-effort per record: a malformed event is skipped, logged,
// and surfaced in Diagnostics.ParseErrors; it never prevents reconstruction
// of every other record. Run is a pure function of its input - running it
// twice yields identical tables, join and timeline (the RunID differs).
func Run(ctx context.Context, input Input, opts Options) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	log := opts.logger()

	res := &Result{
		RunID:  opts.runIDs().Generate(),
		Tables: make(map[event.Kind]*state.Table, len(event.Kinds)),
	}

	parsed := parseAll(input, log, &res.Diagnostics)

	// Fan out: one goroutine per kind for reconstruction, one per monitored
	// kind for extraction. Disjoint inputs, disjoint output slots.
	type tableSlot struct {
		table     *state.Table
		anomalies []state.Anomaly
	}
	type txnSlot struct {
		txns []txn.Transaction
		errs []error
	}
	tableSlots := make([]tableSlot, len(event.Kinds))
	txnSlots := make([]txnSlot, len(event.Kinds))

	var wg sync.WaitGroup
	for i, kind := range event.Kinds {
		wg.Add(1)
		go func(i int, kind event.Kind) {
			defer wg.Done()
			table, anomalies := state.Build(kind, parsed[kind])
			tableSlots[i] = tableSlot{table: table, anomalies: anomalies}
		}(i, kind)

		if field := opts.monitoredField(kind); field != "" {
			wg.Add(1)
			go func(i int, kind event.Kind, field string) {
				defer wg.Done()
				txns, errs := txn.Extract(kind, field, parsed[kind])
				txnSlots[i] = txnSlot{txns: txns, errs: errs}
			}(i, kind, field)
		}
	}
	wg.Wait()

	// Gather in canonical kind order so diagnostics come out deterministic.
	for i, kind := range event.Kinds {
		res.Tables[kind] = tableSlots[i].table
		res.Diagnostics.Anomalies = append(res.Diagnostics.Anomalies, tableSlots[i].anomalies...)
		for _, a := range tableSlots[i].anomalies {
			metrics.Anomalies.WithLabelValues(string(a.Kind)).Inc()
		}
		res.Diagnostics.TimelineErrors = append(res.Diagnostics.TimelineErrors, txnSlots[i].errs...)
		metrics.TransactionsEmitted.WithLabelValues(string(kind)).Add(float64(len(txnSlots[i].txns)))
	}

	res.Join = join.Build(
		res.Tables[event.KindAccounts],
		res.Tables[event.KindCards],
		res.Tables[event.KindSavings],
		opts.resolver(),
	)
	res.Diagnostics.JoinErrors = res.Join.Errors
	res.Diagnostics.Unmatched = res.Join.Unmatched

	sequences := make([][]txn.Transaction, 0, len(event.Kinds))
	for i := range event.Kinds {
		sequences = append(sequences, txnSlots[i].txns)
	}
	res.Timeline = txn.Merge(sequences...)

	metrics.RunDuration.Observe(float64(time.Since(start).Milliseconds()))
	log.Debug("run complete",
		"run_id", res.RunID,
		"transactions", len(res.Timeline),
		"anomalies", len(res.Diagnostics.Anomalies),
		"parse_errors", len(res.Diagnostics.ParseErrors))

	return res, nil
}

// parseAll turns the raw input into per-kind event slices, skipping and
// recording malformed records.
func parseAll(input Input, log *slog.Logger, diags *Diagnostics) map[event.Kind][]event.Event {
	parsed := make(map[event.Kind][]event.Event, len(event.Kinds))
	var seq int64
	for _, kind := range event.Kinds {
		for _, rec := range input[kind] {
			seq++
			ev, err := event.Parse(kind, rec.RecordID, rec.Raw, seq)
			if err != nil {
				diags.ParseErrors = append(diags.ParseErrors, err)
				metrics.EventsMalformed.WithLabelValues(string(kind)).Inc()
				log.Warn("skipping malformed event", "kind", kind, "record_id", rec.RecordID, "err", err)
				continue
			}
			parsed[kind] = append(parsed[kind], ev)
			metrics.EventsParsed.WithLabelValues(string(kind)).Inc()
		}
	}
	return parsed
}
