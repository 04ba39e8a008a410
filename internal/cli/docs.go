package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/keyturn/keyturn/internal/catalog"
)

// NewDocsCommand creates the docs command group: add, list.
func NewDocsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Record and list uploaded documents for a transaction",
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "add <transaction-id> <document-type>",
		Short:         "Record an uploaded document (idempotent)",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocsAdd(rootOpts, args[0], args[1], cmd)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "list <transaction-id>",
		Short:         "List recorded documents",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocsList(rootOpts, args[0], cmd)
		},
	})

	return cmd
}

func runDocsAdd(opts *RootOptions, txID, docType string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	e, err := openEnv(opts)
	if err != nil {
		return err
	}
	defer e.close()

	if !knownDocumentType(e.catalog, docType) {
		return NewExitError(ExitCommandError, fmt.Sprintf("document type %q is not required by any catalog step", docType))
	}

	if err := e.store.AddDocument(cmd.Context(), txID, catalog.DocumentType(docType), time.Now()); err != nil {
		return WrapExitError(ExitCommandError, "record document", err)
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]string{"transaction_id": txID, "document": docType})
	}
	return formatter.Success(fmt.Sprintf("recorded %s for %s", docType, txID))
}

func runDocsList(opts *RootOptions, txID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	e, err := openEnv(opts)
	if err != nil {
		return err
	}
	defer e.close()

	docs, err := e.store.ListDocuments(cmd.Context(), txID)
	if err != nil {
		return WrapExitError(ExitCommandError, "list documents", err)
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]interface{}{"transaction_id": txID, "documents": docs})
	}
	if len(docs) == 0 {
		return formatter.Success("no documents recorded")
	}
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = string(d)
	}
	return formatter.Success(strings.Join(parts, "\n"))
}

// knownDocumentType reports whether any catalog step requires this document.
func knownDocumentType(c *catalog.Catalog, docType string) bool {
	for _, def := range c.Steps() {
		for _, d := range def.RequiredDocuments {
			if string(d) == docType {
				return true
			}
		}
	}
	return false
}
