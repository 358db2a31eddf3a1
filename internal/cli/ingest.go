package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerfold/internal/event"
	"github.com/roach88/ledgerfold/internal/source"
	"github.com/roach88/ledgerfold/internal/store"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	DataDir  string
	Database string
}

// IngestResult is the JSON payload of the ingest command.
type IngestResult struct {
	Database string               `json:"database"`
	Counts   map[event.Kind]int64 `json:"counts"`
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Archive a data directory's event files into SQLite",
		Long: `Read every event file under the data directory and archive it in a
SQLite database, preserving discovery order. Ingest is idempotent:
re-running over the same directory leaves the archive unchanged.

Examples:
  ledgerfold ingest --data ./data --db ./events.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DataDir, "data", "", "event data directory (overrides config)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite archive (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runIngest(opts *IngestOptions, cmd *cobra.Command) error {
	cfg, err := opts.LoadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	dir := cfg.DataDir
	if opts.DataDir != "" {
		dir = opts.DataDir
	}

	input, err := source.Load(dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load event files", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open archive", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	out := IngestResult{Database: opts.Database, Counts: make(map[event.Kind]int64)}
	for _, kind := range event.Kinds {
		if err := st.WriteEvents(ctx, kind, input[kind]); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to archive %s", kind), err)
		}
		n, err := st.Count(ctx, kind)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to count archived events", err)
		}
		out.Counts[kind] = n
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Success(out, func(w io.Writer) error {
		fmt.Fprintf(w, "archived to %s\n", out.Database)
		for _, kind := range event.Kinds {
			fmt.Fprintf(w, "  %s: %d events\n", kind, out.Counts[kind])
		}
		return nil
	})
}
