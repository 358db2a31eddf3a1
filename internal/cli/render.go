package cli

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/roach88/ledgerfold/internal/event"
	"github.com/roach88/ledgerfold/internal/join"
	"github.com/roach88/ledgerfold/internal/pipeline"
	"github.com/roach88/ledgerfold/internal/state"
	"github.com/roach88/ledgerfold/internal/txn"
	"github.com/roach88/ledgerfold/internal/value"
)

// RecordView is the JSON shape of one reconstructed record.
type RecordView struct {
	ID         string                 `json:"id"`
	Attributes map[string]value.Value `json:"attributes"`
	CreatedAt  int64                  `json:"created_at"`
	UpdatedAt  int64                  `json:"updated_at"`
}

func recordView(r *state.Record) RecordView {
	return RecordView{ID: r.ID, Attributes: r.Attributes, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
}

// TableView is the JSON shape of one entity kind's table.
type TableView struct {
	Kind    event.Kind   `json:"kind"`
	Records []RecordView `json:"records"`
}

func tableView(t *state.Table) TableView {
	v := TableView{Kind: t.Kind, Records: []RecordView{}}
	for _, rec := range t.Records() {
		v.Records = append(v.Records, recordView(rec))
	}
	return v
}

// JoinedRowView is the JSON shape of one denormalized row.
type JoinedRowView struct {
	Key     string      `json:"key"`
	Account *RecordView `json:"account"`
	Card    *RecordView `json:"card,omitempty"`
	Savings *RecordView `json:"savings_account,omitempty"`
}

func joinedRowView(row join.Row) JoinedRowView {
	v := JoinedRowView{Key: string(row.Key)}
	if row.Account != nil {
		rv := recordView(row.Account)
		v.Account = &rv
	}
	if row.Card != nil {
		rv := recordView(row.Card)
		v.Card = &rv
	}
	if row.Savings != nil {
		rv := recordView(row.Savings)
		v.Savings = &rv
	}
	return v
}

// DiagnosticsView flattens diagnostics for JSON output; errors render as
// their messages.
type DiagnosticsView struct {
	ParseErrors    []string         `json:"parse_errors,omitempty"`
	Anomalies      []state.Anomaly  `json:"anomalies,omitempty"`
	JoinErrors     []string         `json:"join_errors,omitempty"`
	Unmatched      []join.Unmatched `json:"unmatched,omitempty"`
	TimelineErrors []string         `json:"timeline_errors,omitempty"`
}

func diagnosticsView(d pipeline.Diagnostics) DiagnosticsView {
	return DiagnosticsView{
		ParseErrors:    errStrings(d.ParseErrors),
		Anomalies:      d.Anomalies,
		JoinErrors:     errStrings(d.JoinErrors),
		Unmatched:      d.Unmatched,
		TimelineErrors: errStrings(d.TimelineErrors),
	}
}

func errStrings(errs []error) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}

func formatTS(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04:05")
}

// attributeColumns returns the union of attribute names across records,
// sorted, so every row renders the same columns.
func attributeColumns(records []RecordView) []string {
	seen := make(map[string]bool)
	for _, r := range records {
		for k := range r.Attributes {
			seen[k] = true
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func renderTable(w io.Writer, v TableView) error {
	fmt.Fprintf(w, "%s (%d records)\n", v.Kind, len(v.Records))
	if len(v.Records) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	cols := attributeColumns(v.Records)

	fmt.Fprint(tw, "ID")
	for _, c := range cols {
		fmt.Fprintf(tw, "\t%s", c)
	}
	fmt.Fprint(tw, "\tCREATED_AT\tUPDATED_AT\n")

	for _, r := range v.Records {
		fmt.Fprint(tw, r.ID)
		for _, c := range cols {
			cell := ""
			if av, ok := r.Attributes[c]; ok {
				cell = value.Display(av)
			}
			fmt.Fprintf(tw, "\t%s", cell)
		}
		fmt.Fprintf(tw, "\t%s\t%s\n", formatTS(r.CreatedAt), formatTS(r.UpdatedAt))
	}
	return tw.Flush()
}

func renderJoinedRows(w io.Writer, rows []JoinedRowView) error {
	fmt.Fprintf(w, "joined view (%d rows)\n", len(rows))
	if len(rows) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprint(tw, "KEY\tACCOUNT\tCARD\tSAVINGS_ACCOUNT\n")
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			row.Key, sideID(row.Account), sideID(row.Card), sideID(row.Savings))
	}
	return tw.Flush()
}

func sideID(r *RecordView) string {
	if r == nil {
		return "-"
	}
	return r.ID
}

func renderTimeline(w io.Writer, txns []txn.Transaction) error {
	fmt.Fprintf(w, "transactions: %d\n", len(txns))
	if len(txns) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprint(tw, "#\tTIME\tENTITY\tRECORD\tFIELD\tPREVIOUS\tNEW\tDELTA\n")
	for i, t := range txns {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%+g\n",
			i+1, formatTS(t.TS), t.Entity, t.RecordID, t.Field,
			displayOrNull(t.Previous), displayOrNull(t.New), t.Delta)
	}
	return tw.Flush()
}

func displayOrNull(v value.Value) string {
	if _, ok := v.(value.Null); ok {
		return "null"
	}
	return value.Display(v)
}

func renderReplay(w io.Writer, r ReplayResult) error {
	verdict := "deterministic"
	if !r.Deterministic {
		verdict = "NON-DETERMINISTIC"
	}
	fmt.Fprintf(w, "replay %s\n", verdict)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprint(tw, "KIND\tEVENTS\tRECORDS\n")
	for _, kind := range event.Kinds {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", kind, r.Events[kind], r.Records[kind])
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "joined rows: %d, transactions: %d, anomalies: %d\n",
		r.JoinedRows, r.Transactions, r.Anomalies)
	return nil
}

func renderDiagnostics(w io.Writer, d DiagnosticsView) {
	total := len(d.ParseErrors) + len(d.Anomalies) + len(d.JoinErrors) + len(d.Unmatched) + len(d.TimelineErrors)
	if total == 0 {
		return
	}
	fmt.Fprintf(w, "\ndiagnostics (%d):\n", total)
	for _, s := range d.ParseErrors {
		fmt.Fprintf(w, "  %s\n", s)
	}
	for _, a := range d.Anomalies {
		fmt.Fprintf(w, "  %s: %s (kind=%s, id=%s, ts=%d)\n", a.Kind, a.Detail, a.Entity, a.RecordID, a.TS)
	}
	for _, s := range d.JoinErrors {
		fmt.Fprintf(w, "  %s\n", s)
	}
	for _, u := range d.Unmatched {
		fmt.Fprintf(w, "  UNMATCHED_RECORD: no account for join key (kind=%s, id=%s, key=%s)\n", u.Entity, u.RecordID, u.Key)
	}
	for _, s := range d.TimelineErrors {
		fmt.Fprintf(w, "  %s\n", s)
	}
}
