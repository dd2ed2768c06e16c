package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/quiesce/internal/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Chain    string // optional - limit to one chain
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect a recorded trace journal",
		Long: `Print the timeline of a recorded run: chains, activations,
suspensions, terminations, and posted events.

Examples:
  quiesce trace --db ./trace.db
  quiesce trace --db ./trace.db --chain 0190c7a4-...
  quiesce trace --db ./trace.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTraceCommand(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Chain, "chain", "", "limit output to one chain token")

	return cmd
}

func runTraceCommand(opts *TraceOptions, cmd *cobra.Command) error {
	journal, err := trace.OpenJournal(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open trace journal", err)
	}
	defer journal.Close()

	var records []trace.Record
	if opts.Chain != "" {
		records, err = journal.ReadChain(opts.Chain)
	} else {
		records, err = journal.ReadAll()
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read trace journal", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if opts.Format == "json" {
		return out.JSON(records)
	}

	for _, r := range records {
		switch r.Kind {
		case trace.KindChain:
			out.Textf("chain %s  trigger=%s\n", r.Chain, r.Event)
		case trace.KindPost:
			out.Textf("  %6d  post %s payload=%q\n", r.Seq, r.Event, r.Detail)
		case trace.KindSuspend:
			out.Textf("  %6d  %-8s reactor=%d on=%s\n", r.Seq, r.Kind, r.Reactor, r.Event)
		case trace.KindReturn, trace.KindFailure:
			out.Textf("  %6d  %-8s reactor=%d %s\n", r.Seq, r.Kind, r.Reactor, r.Detail)
		default:
			out.Textf("  %6d  %-8s reactor=%d\n", r.Seq, r.Kind, r.Reactor)
		}
	}
	return nil
}
