package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/keyturn/keyturn/internal/progress"
	"github.com/keyturn/keyturn/internal/workflow"
)

// NewStepCommand creates the step command group: start, complete, task,
// cancel.
func NewStepCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "step",
		Short: "Execute a step action against a transaction",
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "start <transaction-id> <step>",
		Short:         "Start a step (dependencies must be completed)",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStepAction(rootOpts, cmd, args[0], args[1], workflow.Start())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "complete <transaction-id> <step>",
		Short:         "Complete a step (all tasks done, documents present)",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStepAction(rootOpts, cmd, args[0], args[1], workflow.Complete())
		},
	})

	var (
		taskStatus string
		taskBy     string
	)
	taskCmd := &cobra.Command{
		Use:           "task <transaction-id> <step> <task-id>",
		Short:         "Update one task of an in-progress step",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			action := workflow.SetTask(args[2], progress.TaskStatus(taskStatus))
			action.CompletedBy = taskBy
			return runStepAction(rootOpts, cmd, args[0], args[1], action)
		},
	}
	taskCmd.Flags().StringVar(&taskStatus, "status", string(progress.TaskCompleted), "target task status (pending|in_progress|completed)")
	taskCmd.Flags().StringVar(&taskBy, "by", "", "who completed the task")
	cmd.AddCommand(taskCmd)

	var cancelNotes string
	cancelCmd := &cobra.Command{
		Use:           "cancel <transaction-id> <step>",
		Short:         "Cancel a pending or in-progress step",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStepAction(rootOpts, cmd, args[0], args[1], workflow.Cancel(cancelNotes))
		},
	}
	cancelCmd.Flags().StringVar(&cancelNotes, "notes", "", "cancellation reason")
	cmd.AddCommand(cancelCmd)

	return cmd
}

func runStepAction(opts *RootOptions, cmd *cobra.Command, txID, stepArg string, action workflow.Action) error {
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

	res, execErr := e.engine.ExecuteStep(cmd.Context(), txID, step, action)
	if execErr != nil && res == nil {
		return formatter.WorkflowError(execErr)
	}

	// A cascade failure still carries a committed result: render what
	// happened, then fail.
	if opts.Format == "json" {
		if err := formatter.Success(res); err != nil {
			return err
		}
	} else {
		if err := formatter.Success(renderResult(res)); err != nil {
			return err
		}
	}
	if execErr != nil {
		return WrapExitError(ExitFailure, string(workflow.CodeOf(execErr)), execErr)
	}
	return nil
}
