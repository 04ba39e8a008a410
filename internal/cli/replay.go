package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keyturn/keyturn/internal/progress"
)

// ReplayResult is the JSON payload of the replay command.
type ReplayResult struct {
	TransactionID string                `json:"transaction_id"`
	Transitions   []progress.Transition `json:"transitions"`
	Verified      bool                  `json:"verified,omitempty"`
	Consistent    bool                  `json:"consistent,omitempty"`
	Mismatches    []string              `json:"mismatches,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	var verify bool

	cmd := &cobra.Command{
		Use:   "replay <transaction-id>",
		Short: "Print a transaction's audit log; --verify checks it against live state",
		Long: `Print the append-only transition log for a transaction in sequence
order. With --verify, the log is folded into a derived state and compared
against the live progress rows; any divergence means the rows were mutated
outside the engine.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(rootOpts, args[0], verify, cmd)
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "verify live rows against the replayed log")
	return cmd
}

func runReplay(opts *RootOptions, txID string, verify bool, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	e, err := openEnv(opts)
	if err != nil {
		return err
	}
	defer e.close()

	transitions, err := e.store.ListTransitions(cmd.Context(), txID)
	if err != nil {
		return WrapExitError(ExitCommandError, "list transitions", err)
	}

	result := ReplayResult{TransactionID: txID, Transitions: transitions}

	if verify {
		report, err := e.store.VerifyReplay(cmd.Context(), txID)
		if err != nil {
			return WrapExitError(ExitCommandError, "verify replay", err)
		}
		result.Verified = true
		result.Consistent = report.Consistent()
		for _, m := range report.Mismatches {
			result.Mismatches = append(result.Mismatches, m.String())
		}
	}

	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		if err := formatter.Success(renderReplay(result)); err != nil {
			return err
		}
	}

	if verify && !result.Consistent {
		return NewExitError(ExitFailure, "live state diverges from audit log")
	}
	return nil
}

func renderReplay(result ReplayResult) string {
	var b strings.Builder

	if len(result.Transitions) == 0 {
		b.WriteString("no transitions recorded")
	}
	for i, tr := range result.Transitions {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%4d  %s step %d", tr.Seq, tr.Entity, tr.Step)
		if tr.TaskID != "" {
			fmt.Fprintf(&b, " task %s", tr.TaskID)
		}
		fmt.Fprintf(&b, ": %s -> %s", tr.From, tr.To)
		if len(tr.Payload) > 0 {
			fmt.Fprintf(&b, "  %s", styleMuted.Render(fmt.Sprintf("%d detail(s)", len(tr.Payload))))
		}
	}

	if result.Verified {
		b.WriteString("\n")
		if result.Consistent {
			b.WriteString(styleCompleted.Render("replay consistent with live state"))
		} else {
			b.WriteString(styleCancelled.Render("replay mismatches:"))
			for _, m := range result.Mismatches {
				fmt.Fprintf(&b, "\n  %s", m)
			}
		}
	}

	return b.String()
}
