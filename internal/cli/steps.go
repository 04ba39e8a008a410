package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keyturn/keyturn/internal/catalog"
)

// StepListing is one catalog step in the steps command output.
type StepListing struct {
	Number            int                    `json:"number"`
	Title             string                 `json:"title"`
	Phase             string                 `json:"phase"`
	DependsOn         []int                  `json:"depends_on,omitempty"`
	RequiredDocuments []catalog.DocumentType `json:"required_documents,omitempty"`
	EstimatedDays     int                    `json:"estimated_days"`
	Tasks             []string               `json:"tasks"`
}

// NewStepsCommand creates the steps command.
func NewStepsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "steps",
		Short:         "List the catalog's steps, grouped by phase",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSteps(rootOpts, cmd)
		},
	}
}

func runSteps(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	c, err := loadCatalog(opts)
	if err != nil {
		return err
	}

	if opts.Format == "json" {
		listings := make([]StepListing, 0, c.Len())
		for _, def := range c.Steps() {
			tasks, err := c.Tasks(def.Number)
			if err != nil {
				return WrapExitError(ExitCommandError, "catalog tasks", err)
			}
			ids := make([]string, len(tasks))
			for i, t := range tasks {
				ids[i] = t.ID
			}
			listings = append(listings, StepListing{
				Number:            def.Number,
				Title:             def.Title,
				Phase:             def.Phase,
				DependsOn:         def.DependsOn,
				RequiredDocuments: def.RequiredDocuments,
				EstimatedDays:     def.EstimatedDays,
				Tasks:             ids,
			})
		}
		return formatter.Success(listings)
	}

	var b strings.Builder
	for _, phase := range c.Phases() {
		fmt.Fprintf(&b, "%s\n", styleHeading.Render(phase.DisplayName))
		for _, def := range c.Steps() {
			if def.Phase != phase.ID {
				continue
			}
			fmt.Fprintf(&b, "  %2d. %s", def.Number, def.Title)
			if len(def.DependsOn) > 0 {
				fmt.Fprintf(&b, "  %s", styleMuted.Render(fmt.Sprintf("after %s", renderStepList(def.DependsOn))))
			}
			b.WriteString("\n")
		}
	}
	return formatter.Success(strings.TrimRight(b.String(), "\n"))
}
