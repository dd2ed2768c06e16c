package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/quiesce/internal/topology"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <topology.cue>",
		Short: "Compile and validate a topology file",
		Long: `Compile a topology file and run static checks: known builtins with
their required params, link endpoints that resolve, autostart names that
exist.

Exit code 0 means the topology is runnable.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	top, err := topology.Load(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "topology invalid", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if opts.Format == "json" {
		return out.JSON(map[string]any{
			"topology":  top.Name,
			"reactors":  len(top.Reactors),
			"links":     len(top.Links),
			"autostart": len(top.Autostart),
			"halt":      top.Halt,
		})
	}
	out.Textf("topology %q: %d reactors, %d links, %d autostart, halt on %q\n",
		top.Name, len(top.Reactors), len(top.Links), len(top.Autostart), top.Halt)
	return nil
}
