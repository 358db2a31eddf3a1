package cli

import (
	"encoding/json"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerfold/internal/config"
	"github.com/roach88/ledgerfold/internal/publish"
)

// TransactionsOptions holds flags for the transactions command.
type TransactionsOptions struct {
	*RootOptions
	DataDir string
	Publish bool
}

// TransactionsResult is the JSON payload of the transactions command.
type TransactionsResult struct {
	RunID       string            `json:"run_id"`
	Count       int               `json:"count"`
	Timeline    []json.RawMessage `json:"timeline"`
	Diagnostics DiagnosticsView   `json:"diagnostics"`
}

// NewTransactionsCommand creates the transactions command.
func NewTransactionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TransactionsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "Derive the transaction timeline from monitored-field changes",
		Long: `Replay every change event and emit one transaction per update that
changed a monitored field (credit_used on cards, balance on savings
accounts), merged into one chronological timeline.

With --publish, the timeline is also appended to the sinks configured
under publish: in the config file (JSONL file and/or Kafka topic).

Examples:
  ledgerfold transactions --data ./data
  ledgerfold transactions --data ./data --format json
  ledgerfold transactions --config ledgerfold.yaml --publish`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransactions(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DataDir, "data", "", "event data directory (overrides config)")
	cmd.Flags().BoolVar(&opts.Publish, "publish", false, "publish the timeline to the configured sinks")

	return cmd
}

func runTransactions(opts *TransactionsOptions, cmd *cobra.Command) error {
	cfg, err := opts.LoadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	res, err := runFromConfig(cmd.Context(), cfg, opts.DataDir)
	if err != nil {
		return err
	}

	if opts.Publish {
		sink, err := buildSink(cfg)
		if err != nil {
			return err
		}
		if sink == nil {
			return NewExitError(ExitCommandError, "--publish requires at least one sink under publish: in the config")
		}
		if err := publish.Timeline(cmd.Context(), sink, res.Timeline); err != nil {
			return WrapExitError(ExitFailure, "publish failed", err)
		}
		slog.Info("timeline published", "transactions", len(res.Timeline))
	}

	out := TransactionsResult{
		RunID:       res.RunID,
		Count:       len(res.Timeline),
		Timeline:    marshalTimeline(res),
		Diagnostics: diagnosticsView(res.Diagnostics),
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Success(out, func(w io.Writer) error {
		if err := renderTimeline(w, res.Timeline); err != nil {
			return err
		}
		renderDiagnostics(w, out.Diagnostics)
		return nil
	})
}

func buildSink(cfg config.Config) (publish.Writer, error) {
	var sinks []publish.Writer
	if cfg.Publish.File != nil {
		fw, err := publish.NewFileWriter(cfg.Publish.File.Dir, cfg.Publish.File.Filename)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open file sink", err)
		}
		sinks = append(sinks, fw)
	}
	if cfg.Publish.Kafka != nil {
		sinks = append(sinks, publish.NewKafkaWriter(cfg.Publish.Kafka.Bootstrap, cfg.Publish.Kafka.Topic))
	}
	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	default:
		return publish.NewMultiWriter(sinks...), nil
	}
}
