// Package workflow is the closing workflow engine: the step/task state
// machine, its dependency validation, and the automation cascade that chains
// steps together after completions.
//
// The engine is an explicitly constructed value holding its catalog, store,
// activity registry, and collaborator interfaces. It keeps no process-wide
// state; tests construct one with fakes.
//
// Concurrency model: all mutations for a single transaction are serialized
// by a per-transaction mutex held for the whole ExecuteStep invocation,
// including the automation cascade it triggers. Calls against different
// transactions run independently.
package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/keyturn/keyturn/internal/catalog"
	"github.com/keyturn/keyturn/internal/store"
)

// DefaultMaxCascadeSteps bounds the number of automation starts one
// completion may trigger. The static rule graph is already cycle-checked at
// catalog load; this is the runtime backstop that guarantees termination
// regardless.
const DefaultMaxCascadeSteps = 100

// DocumentStore answers whether an uploaded document of a given type exists
// for a transaction. The engine only reads this collaborator fact; document
// ingestion lives elsewhere.
type DocumentStore interface {
	HasDocument(ctx context.Context, txID string, docType catalog.DocumentType) (bool, error)
}

// Event is a workflow notification emitted after a committed transition.
type Event struct {
	Name          string // step.started, step.completed, step.cancelled, task.started, task.completed
	TransactionID string
	Step          int
	TaskID        string
	Payload       map[string]string
}

// Notifier receives workflow events. Delivery is best effort and happens
// after the transition committed; a notifier error never rolls back state.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Event) {}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Engine orchestrates step and task transitions for closing transactions.
type Engine struct {
	catalog    *catalog.Catalog
	store      *store.Store
	registry   *Registry
	docs       DocumentStore
	notifier   Notifier
	clock      Clock
	logger     *slog.Logger
	maxCascade int

	mu      sync.Mutex
	txLocks map[string]*sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithRegistry sets the activity registry.
func WithRegistry(r *Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithDocumentStore sets the uploaded-document collaborator. Defaults to the
// progress store's own document records.
func WithDocumentStore(d DocumentStore) Option {
	return func(e *Engine) { e.docs = d }
}

// WithNotifier sets the notification collaborator.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithClock sets the time source.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMaxCascadeSteps overrides the automation cascade budget.
func WithMaxCascadeSteps(n int) Option {
	return func(e *Engine) { e.maxCascade = n }
}

// New constructs an Engine over a compiled catalog and an open store.
func New(c *catalog.Catalog, st *store.Store, opts ...Option) *Engine {
	e := &Engine{
		catalog:    c,
		store:      st,
		registry:   NewRegistry(),
		docs:       st,
		notifier:   noopNotifier{},
		clock:      systemClock{},
		logger:     slog.Default(),
		maxCascade: DefaultMaxCascadeSteps,
		txLocks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Catalog returns the engine's compiled catalog.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// lockTransaction acquires the per-transaction mutex, creating it on first
// use. The returned func releases it.
func (e *Engine) lockTransaction(txID string) func() {
	e.mu.Lock()
	l, ok := e.txLocks[txID]
	if !ok {
		l = &sync.Mutex{}
		e.txLocks[txID] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// EnsureInitialized lazily creates pending progress rows for every step and
// task definition. Idempotent; called by ExecuteStep and safe to call
// directly.
func (e *Engine) EnsureInitialized(ctx context.Context, txID string) error {
	var tasks []catalog.TaskDefinition
	for _, def := range e.catalog.Steps() {
		stepTasks, err := e.catalog.Tasks(def.Number)
		if err != nil {
			return err
		}
		tasks = append(tasks, stepTasks...)
	}
	if err := e.store.EnsureInitialized(ctx, txID, e.catalog.Steps(), tasks); err != nil {
		if store.IsBusy(err) {
			return concurrencyConflict(txID, 0, err)
		}
		return err
	}
	return nil
}

func (e *Engine) notify(ctx context.Context, event Event) {
	e.notifier.Notify(ctx, event)
}
