package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/keyturn/keyturn/internal/workflow"
)

// BlockersResult is the JSON payload of the blockers command.
type BlockersResult struct {
	TransactionID string              `json:"transaction_id"`
	Step          int                 `json:"step"`
	Blockers      []workflow.Blocker  `json:"blockers"`
}

// NewBlockersCommand creates the blockers command.
func NewBlockersCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "blockers <transaction-id> <step>",
		Short:         "List every unmet prerequisite of a step",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBlockers(rootOpts, args[0], args[1], cmd)
		},
	}
}

func runBlockers(opts *RootOptions, txID, stepArg string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	step, err := strconv.Atoi(stepArg)
	if err != nil {
		return WrapExitError(ExitCommandError, "step must be a number", err)
	}

	e, err := openEnv(opts)
	if err != nil {
		return err
	}
	defer e.close()

	if err := e.engine.EnsureInitialized(cmd.Context(), txID); err != nil {
		return formatter.WorkflowError(err)
	}
	blockers, err := e.engine.StepBlockers(cmd.Context(), txID, step)
	if err != nil {
		return formatter.WorkflowError(err)
	}

	if opts.Format == "json" {
		return formatter.Success(BlockersResult{TransactionID: txID, Step: step, Blockers: blockers})
	}
	return formatter.Success(renderBlockers(step, blockers))
}
