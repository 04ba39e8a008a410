package testutil

import (
	"context"
	"sync"

	"github.com/keyturn/keyturn/internal/catalog"
	"github.com/keyturn/keyturn/internal/workflow"
)

// ScriptedActivity is a configurable activity hook for tests.
//
// Each hook returns the configured details or error and records the call.
// Returning an error from OnStart or OnComplete must leave the progress
// store untouched; tests wire a ScriptedActivity with an error to verify
// that rollback.
//
// Thread-safety: calls are recorded under a mutex; the configuration fields
// must be set before the activity is used.
type ScriptedActivity struct {
	StartDetails workflow.Details
	TaskDetails  workflow.Details
	DoneDetails  workflow.Details

	StartErr error
	TaskErr  error
	DoneErr  error

	mu    sync.Mutex
	calls []string
}

// OnStart implements workflow.Activity.
func (a *ScriptedActivity) OnStart(_ context.Context, txn workflow.Txn) (workflow.Details, error) {
	a.record("start")
	if a.StartErr != nil {
		return nil, a.StartErr
	}
	return a.StartDetails, nil
}

// OnTaskComplete implements workflow.Activity.
func (a *ScriptedActivity) OnTaskComplete(_ context.Context, txn workflow.Txn, task catalog.TaskDefinition) (workflow.Details, error) {
	a.record("task:" + task.ID)
	if a.TaskErr != nil {
		return nil, a.TaskErr
	}
	return a.TaskDetails, nil
}

// OnComplete implements workflow.Activity.
func (a *ScriptedActivity) OnComplete(_ context.Context, txn workflow.Txn) (workflow.Details, error) {
	a.record("complete")
	if a.DoneErr != nil {
		return nil, a.DoneErr
	}
	return a.DoneDetails, nil
}

func (a *ScriptedActivity) record(call string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, call)
}

// Calls returns a copy of the recorded hook invocations, in order. Entries
// are "start", "task:<id>", and "complete".
func (a *ScriptedActivity) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.calls))
	copy(out, a.calls)
	return out
}
