package workflow

import (
	"context"

	"github.com/keyturn/keyturn/internal/catalog"
)

// Details are the structured results an activity hook returns. They are
// persisted as StepDetail rows atomically with the transition that invoked
// the hook; if the transition is rolled back, no detail is committed.
type Details map[string]string

// Txn is the read-only view of a transaction an activity hook receives:
// the transaction id, the step definition, and the details recorded against
// the step so far.
type Txn struct {
	ID      string
	Step    catalog.StepDefinition
	Details map[string]string
}

// Activity is the per-step lifecycle callback invoked by the orchestrator.
// Each hook performs (or delegates) the step's real-world business action
// against external collaborators and reports structured results.
//
// Hooks are the only points where a transition may block on external
// services; context cancellation and timeouts must be honored, and any hook
// error aborts the transition with nothing persisted.
type Activity interface {
	OnStart(ctx context.Context, txn Txn) (Details, error)
	OnTaskComplete(ctx context.Context, txn Txn, task catalog.TaskDefinition) (Details, error)
	OnComplete(ctx context.Context, txn Txn) (Details, error)
}

// Funcs adapts plain functions to the Activity interface. Nil fields are
// no-ops.
type Funcs struct {
	Start        func(ctx context.Context, txn Txn) (Details, error)
	TaskComplete func(ctx context.Context, txn Txn, task catalog.TaskDefinition) (Details, error)
	Complete     func(ctx context.Context, txn Txn) (Details, error)
}

func (f Funcs) OnStart(ctx context.Context, txn Txn) (Details, error) {
	if f.Start == nil {
		return nil, nil
	}
	return f.Start(ctx, txn)
}

func (f Funcs) OnTaskComplete(ctx context.Context, txn Txn, task catalog.TaskDefinition) (Details, error) {
	if f.TaskComplete == nil {
		return nil, nil
	}
	return f.TaskComplete(ctx, txn, task)
}

func (f Funcs) OnComplete(ctx context.Context, txn Txn) (Details, error) {
	if f.Complete == nil {
		return nil, nil
	}
	return f.Complete(ctx, txn)
}

// noopActivity is the default for steps with no registered activity.
type noopActivity struct{}

func (noopActivity) OnStart(context.Context, Txn) (Details, error) { return nil, nil }
func (noopActivity) OnTaskComplete(context.Context, Txn, catalog.TaskDefinition) (Details, error) {
	return nil, nil
}
func (noopActivity) OnComplete(context.Context, Txn) (Details, error) { return nil, nil }

// Registry maps step numbers to their activities. Steps without a
// registered activity get a no-op; the state machine works the same either
// way, the hooks only add collaborator side effects and details.
type Registry struct {
	activities map[int]Activity
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{activities: make(map[int]Activity)}
}

// Register binds an activity to a step number, replacing any previous
// binding.
func (r *Registry) Register(step int, a Activity) {
	r.activities[step] = a
}

// Lookup returns the activity for a step, or a no-op if none is registered.
func (r *Registry) Lookup(step int) Activity {
	if a, ok := r.activities[step]; ok && a != nil {
		return a
	}
	return noopActivity{}
}
