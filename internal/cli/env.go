package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/keyturn/keyturn/internal/activity"
	"github.com/keyturn/keyturn/internal/catalog"
	"github.com/keyturn/keyturn/internal/store"
	"github.com/keyturn/keyturn/internal/workflow"
)

// env is the shared runtime a command works against: compiled catalog, open
// store, and a wired engine.
type env struct {
	catalog *catalog.Catalog
	store   *store.Store
	engine  *workflow.Engine
}

func (e *env) close() {
	if e.store != nil {
		e.store.Close()
	}
}

// newFormatter builds the output formatter for a command invocation.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// loadCatalog compiles the configured catalog: a CUE directory if one was
// given, the embedded closing catalog otherwise.
func loadCatalog(opts *RootOptions) (*catalog.Catalog, error) {
	if opts.CatalogDir != "" {
		c, err := catalog.LoadDir(opts.CatalogDir)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "load catalog", err)
		}
		return c, nil
	}
	c, err := catalog.Default()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "embedded catalog", err)
	}
	return c, nil
}

// openEnv opens the store and wires the engine with the stub collaborators.
func openEnv(opts *RootOptions) (*env, error) {
	c, err := loadCatalog(opts)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open store", err)
	}

	logger := newLogger(opts)
	engineOpts := []workflow.Option{
		workflow.WithRegistry(activity.DefaultRegistry(activity.Stubs())),
		workflow.WithLogger(logger),
	}
	if !opts.NoNotify {
		engineOpts = append(engineOpts, workflow.WithNotifier(slogNotifier{logger}))
	}

	return &env{
		catalog: c,
		store:   st,
		engine:  workflow.New(c, st, engineOpts...),
	}, nil
}

func newLogger(opts *RootOptions) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// slogNotifier logs workflow events through the structured logger. It
// stands in for a real notification channel.
type slogNotifier struct {
	logger *slog.Logger
}

func (n slogNotifier) Notify(_ context.Context, event workflow.Event) {
	n.logger.Info("workflow event",
		"event", event.Name,
		"tx", event.TransactionID,
		"step", event.Step,
		"task", event.TaskID,
	)
}
