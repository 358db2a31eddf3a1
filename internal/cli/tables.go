package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerfold/internal/event"
)

// TablesOptions holds flags for the tables command.
type TablesOptions struct {
	*RootOptions
	DataDir string
	Kind    string
}

// TablesResult is the JSON payload of the tables command.
type TablesResult struct {
	RunID       string          `json:"run_id"`
	Tables      []TableView     `json:"tables"`
	Diagnostics DiagnosticsView `json:"diagnostics"`
}

// NewTablesCommand creates the tables command.
func NewTablesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TablesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Reconstruct and print the current-state table per entity kind",
		Long: `Replay every change event and print the latest logical row per record,
with created/updated timestamps, for each entity kind.

Examples:
  ledgerfold tables --data ./data
  ledgerfold tables --data ./data --kind cards --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTables(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DataDir, "data", "", "event data directory (overrides config)")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "limit output to one entity kind")

	return cmd
}

func runTables(opts *TablesOptions, cmd *cobra.Command) error {
	if opts.Kind != "" && !event.Kind(opts.Kind).Valid() {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown entity kind %q", opts.Kind))
	}

	cfg, err := opts.LoadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	res, err := runFromConfig(cmd.Context(), cfg, opts.DataDir)
	if err != nil {
		return err
	}

	out := TablesResult{RunID: res.RunID, Diagnostics: diagnosticsView(res.Diagnostics)}
	for _, kind := range event.Kinds {
		if opts.Kind != "" && string(kind) != opts.Kind {
			continue
		}
		out.Tables = append(out.Tables, tableView(res.Tables[kind]))
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Success(out, func(w io.Writer) error {
		for i, v := range out.Tables {
			if i > 0 {
				fmt.Fprintln(w)
			}
			if err := renderTable(w, v); err != nil {
				return err
			}
		}
		renderDiagnostics(w, out.Diagnostics)
		return nil
	})
}
