// Package cli implements the keyturn command line interface over the
// closing workflow engine.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keyturn/keyturn/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	Database   string // SQLite progress store path
	CatalogDir string // CUE catalog dir; empty means the embedded catalog
	NoNotify   bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the keyturn CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cfg, cfgErr := config.Load()
	if cfg == nil {
		cfg = config.Default()
	}

	cmd := &cobra.Command{
		Use:   "keyturn",
		Short: "keyturn - residential purchase closing workflow",
		Long:  "Tracks a home purchase from pre-approval to keys across 25 steps,\nvalidating dependencies and cascading automation as steps complete.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgErr != nil {
				return WrapExitError(ExitCommandError, "load config", cfgErr)
			}
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", cfg.Database, "progress store path")
	cmd.PersistentFlags().StringVar(&opts.CatalogDir, "catalog-dir", cfg.CatalogDir, "directory of CUE catalog files (default: embedded catalog)")
	cmd.PersistentFlags().BoolVar(&opts.NoNotify, "no-notify", !cfg.Notifications, "suppress event notifications")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewStepCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewBlockersCommand(opts))
	cmd.AddCommand(NewRequirementsCommand(opts))
	cmd.AddCommand(NewDocsCommand(opts))
	cmd.AddCommand(NewStepsCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
