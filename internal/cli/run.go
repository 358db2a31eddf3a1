package cli

import (
	"context"
	"encoding/json"

	"github.com/roach88/ledgerfold/internal/config"
	"github.com/roach88/ledgerfold/internal/event"
	"github.com/roach88/ledgerfold/internal/pipeline"
	"github.com/roach88/ledgerfold/internal/source"
)

// runFromConfig loads the data directory named by cfg (or the override)
// and executes one batch run.
func runFromConfig(ctx context.Context, cfg config.Config, dataDir string) (*pipeline.Result, error) {
	dir := cfg.DataDir
	if dataDir != "" {
		dir = dataDir
	}
	input, err := source.Load(dir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load event files", err)
	}
	res, err := pipeline.Run(ctx, input, pipeline.Options{
		Resolver:        cfg.Resolver(),
		MonitoredFields: cfg.Monitored(),
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "run failed", err)
	}
	return res, nil
}

// snapshot serializes the run's three outputs (not the RunID) for
// determinism comparison between replays.
func snapshot(res *pipeline.Result) ([]byte, error) {
	views := make([]TableView, 0, len(event.Kinds))
	for _, kind := range event.Kinds {
		views = append(views, tableView(res.Tables[kind]))
	}
	rows := make([]JoinedRowView, 0, len(res.Join.Rows))
	for _, row := range res.Join.Rows {
		rows = append(rows, joinedRowView(row))
	}
	return json.Marshal(struct {
		Tables   []TableView       `json:"tables"`
		Rows     []JoinedRowView   `json:"rows"`
		Timeline []json.RawMessage `json:"timeline"`
	}{views, rows, marshalTimeline(res)})
}

func marshalTimeline(res *pipeline.Result) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(res.Timeline))
	for _, t := range res.Timeline {
		b, err := json.Marshal(t)
		if err != nil {
			continue
		}
		out = append(out, b)
	}
	return out
}
