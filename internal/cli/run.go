package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/quiesce/internal/kernel"
	"github.com/roach88/quiesce/internal/topology"
	"github.com/roach88/quiesce/internal/trace"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Script   string
	Database string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <topology.cue>",
		Short: "Run a topology in loop mode over a stimulus script",
		Long: `Run a compiled topology in loop mode.

The topology file declares reactors, links, and the autostart set. The
stimulus script supplies the external events, one propagation chain each.
The run ends when the topology's halt event fires or the script is
exhausted.

Example:
  quiesce run ./demo.cue --script ./events.yaml
  quiesce run ./demo.cue --script ./events.yaml --db ./trace.db --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTopology(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Script, "script", "", "path to YAML stimulus script (required)")
	_ = cmd.MarkFlagRequired("script")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace journal (optional)")

	return cmd
}

func runTopology(opts *RunOptions, topologyPath string, cmd *cobra.Command) error {
	// Configure logging based on verbose flag
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))

	slog.Info("compiling topology", "path", topologyPath)
	top, err := topology.Load(topologyPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compile topology", err)
	}

	script, err := LoadScript(opts.Script)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load script", err)
	}

	kernelOpts := top.Options()
	var journal *trace.Journal
	if opts.Database != "" {
		journal, err = trace.OpenJournal(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open trace journal", err)
		}
		defer func() {
			if closeErr := journal.Close(); closeErr != nil {
				slog.Error("error closing trace journal", "error", closeErr)
			}
		}()
		kernelOpts = append(kernelOpts, kernel.WithRecorder(journal))
	}

	slog.Info("run starting",
		"topology", top.Name,
		"events", len(script.Events),
		"db", opts.Database,
	)

	value, err := kernel.Loop(script.Next(), topology.Instantiate(top), kernelOpts...)
	if err != nil {
		return WrapExitError(ExitFailure, "run failed", err)
	}
	if journal != nil && journal.Err() != nil {
		return WrapExitError(ExitFailure, "trace journal incomplete", journal.Err())
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if opts.Format == "json" {
		return out.JSON(map[string]any{
			"topology": top.Name,
			"result":   fmt.Sprintf("%v", value),
		})
	}
	if value != nil {
		out.Textf("run complete: %v\n", value)
	} else {
		out.Textf("run complete\n")
	}
	return nil
}
