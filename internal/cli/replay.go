package cli

import (
	"bytes"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerfold/internal/event"
	"github.com/roach88/ledgerfold/internal/pipeline"
	"github.com/roach88/ledgerfold/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
}

// ReplayResult holds the replay outcome.
type ReplayResult struct {
	RunID         string               `json:"run_id"`
	Events        map[event.Kind]int64 `json:"events"`
	Records       map[event.Kind]int   `json:"records"`
	JoinedRows    int                  `json:"joined_rows"`
	Transactions  int                  `json:"transactions"`
	Anomalies     int                  `json:"anomalies"`
	Deterministic bool                 `json:"deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the archived event log and verify determinism",
		Long: `Re-read the archived events, run the full reconstruction twice, and
verify both runs produce identical tables, join and timeline.

Exit codes:
  0 - Replay deterministic
  1 - Determinism verification failed (differences detected)
  2 - Command error (database not found, etc.)

Examples:
  ledgerfold replay --db ./events.db
  ledgerfold replay --db ./events.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite archive (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	cfg, err := opts.LoadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open archive", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	input, err := st.ReadAll(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read archive", err)
	}

	popts := pipeline.Options{Resolver: cfg.Resolver(), MonitoredFields: cfg.Monitored()}
	first, err := pipeline.Run(ctx, input, popts)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}
	second, err := pipeline.Run(ctx, input, popts)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	snap1, err := snapshot(first)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to serialize run", err)
	}
	snap2, err := snapshot(second)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to serialize run", err)
	}

	out := ReplayResult{
		RunID:         first.RunID,
		Events:        make(map[event.Kind]int64),
		Records:       make(map[event.Kind]int),
		JoinedRows:    len(first.Join.Rows),
		Transactions:  len(first.Timeline),
		Anomalies:     len(first.Diagnostics.Anomalies),
		Deterministic: bytes.Equal(snap1, snap2),
	}
	for _, kind := range event.Kinds {
		out.Events[kind] = int64(len(input[kind]))
		out.Records[kind] = first.Tables[kind].Len()
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if err := f.Success(out, func(w io.Writer) error {
		return renderReplay(w, out)
	}); err != nil {
		return err
	}

	if !out.Deterministic {
		return NewExitError(ExitFailure, "replay produced different results across runs")
	}
	return nil
}
