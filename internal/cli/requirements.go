package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/keyturn/keyturn/internal/workflow"
)

// RequirementsReport pairs a step's requirement card with the actions the
// engine would currently accept against it.
type RequirementsReport struct {
	*workflow.StepRequirements
	AvailableActions []workflow.ActionKind `json:"available_actions,omitempty"`
}

// NewRequirementsCommand creates the requirements command.
func NewRequirementsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "requirements <transaction-id> <step>",
		Short:         "Show a step's dependencies, documents, and tasks with their state",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequirements(rootOpts, args[0], args[1], cmd)
		},
	}
}

func runRequirements(opts *RootOptions, txID, stepArg string, cmd *cobra.Command) error {
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

	req, err := e.engine.Requirements(cmd.Context(), txID, step)
	if err != nil {
		return formatter.WorkflowError(err)
	}
	actions, err := e.engine.AvailableActions(cmd.Context(), txID, step)
	if err != nil {
		return formatter.WorkflowError(err)
	}

	report := &RequirementsReport{StepRequirements: req, AvailableActions: actions}
	if opts.Format == "json" {
		return formatter.Success(report)
	}
	return formatter.Success(renderRequirements(report))
}
