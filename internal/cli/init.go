package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// InitResult reports a newly initialized transaction.
type InitResult struct {
	TransactionID string `json:"transaction_id"`
	Steps         int    `json:"steps"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init [transaction-id]",
		Short: "Initialize progress rows for a closing transaction",
		Long: `Create pending step and task progress rows for a transaction. With no
argument a new UUIDv7 transaction id is minted. Initialization is
idempotent; re-running it never resets existing progress.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			txID := ""
			if len(args) == 1 {
				txID = args[0]
			}
			return runInit(rootOpts, txID, cmd)
		},
	}
}

func runInit(opts *RootOptions, txID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	if txID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return WrapExitError(ExitCommandError, "mint transaction id", err)
		}
		txID = id.String()
	}

	e, err := openEnv(opts)
	if err != nil {
		return err
	}
	defer e.close()

	if err := e.engine.EnsureInitialized(cmd.Context(), txID); err != nil {
		return formatter.WorkflowError(err)
	}

	formatter.VerboseLog("initialized %d steps for %s", e.catalog.Len(), txID)
	if opts.Format == "json" {
		return formatter.Success(InitResult{TransactionID: txID, Steps: e.catalog.Len()})
	}
	return formatter.Success(fmt.Sprintf("transaction %s initialized (%d steps pending)", txID, e.catalog.Len()))
}
