package cli

import (
	"io"

	"github.com/spf13/cobra"
)

// JoinOptions holds flags for the join command.
type JoinOptions struct {
	*RootOptions
	DataDir string
}

// JoinResult is the JSON payload of the join command.
type JoinResult struct {
	RunID       string          `json:"run_id"`
	Rows        []JoinedRowView `json:"rows"`
	Diagnostics DiagnosticsView `json:"diagnostics"`
}

// NewJoinCommand creates the join command.
func NewJoinCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JoinOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Print the denormalized joined view across the three tables",
		Long: `Reconstruct the three tables and left-join them on the shared numeric
id suffix, anchored on accounts. Card and savings records whose key has
no account are listed in diagnostics rather than silently dropped.

Examples:
  ledgerfold join --data ./data
  ledgerfold join --data ./data --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJoin(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DataDir, "data", "", "event data directory (overrides config)")

	return cmd
}

func runJoin(opts *JoinOptions, cmd *cobra.Command) error {
	cfg, err := opts.LoadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	res, err := runFromConfig(cmd.Context(), cfg, opts.DataDir)
	if err != nil {
		return err
	}

	out := JoinResult{RunID: res.RunID, Rows: []JoinedRowView{}, Diagnostics: diagnosticsView(res.Diagnostics)}
	for _, row := range res.Join.Rows {
		out.Rows = append(out.Rows, joinedRowView(row))
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Success(out, func(w io.Writer) error {
		if err := renderJoinedRows(w, out.Rows); err != nil {
			return err
		}
		renderDiagnostics(w, out.Diagnostics)
		return nil
	})
}
