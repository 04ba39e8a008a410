package cli

import (
	"github.com/spf13/cobra"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status <transaction-id>",
		Short:         "Summarize a transaction: phase, active steps, blockers, progress",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, args[0], cmd)
		},
	}
}

func runStatus(opts *RootOptions, txID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	e, err := openEnv(opts)
	if err != nil {
		return err
	}
	defer e.close()

	ws, err := e.engine.Status(cmd.Context(), txID)
	if err != nil {
		return formatter.WorkflowError(err)
	}

	if opts.Format == "json" {
		return formatter.Success(ws)
	}
	return formatter.Success(renderWorkflowStatus(ws))
}
