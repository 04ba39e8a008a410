package workflow

import (
	"context"
	"sort"

	"github.com/keyturn/keyturn/internal/progress"
)

// CanStart reports whether a step may start: every dependency completed and
// the step itself still pending. A step cannot be (re)started from
// in_progress, completed, or cancelled.
func (e *Engine) CanStart(ctx context.Context, txID string, step int) (bool, error) {
	if _, err := e.catalog.Step(step); err != nil {
		return false, invalidStep(txID, step, err)
	}
	sp, err := e.store.GetStep(ctx, txID, step)
	if err != nil {
		return false, err
	}
	if sp.Status != progress.StepPending {
		return false, nil
	}
	blockers, err := e.dependencyBlockers(ctx, txID, step)
	if err != nil {
		return false, err
	}
	return len(blockers) == 0, nil
}

// CanComplete reports whether a step may complete: the step is in_progress,
// every task completed, and every required document present.
func (e *Engine) CanComplete(ctx context.Context, txID string, step int) (bool, error) {
	if _, err := e.catalog.Step(step); err != nil {
		return false, invalidStep(txID, step, err)
	}
	sp, err := e.store.GetStep(ctx, txID, step)
	if err != nil {
		return false, err
	}
	if sp.Status != progress.StepInProgress {
		return false, nil
	}
	blockers, err := e.completionBlockers(ctx, txID, step)
	if err != nil {
		return false, err
	}
	return len(blockers) == 0, nil
}

// StepBlockers enumerates every unmet condition for a step: dependencies
// not completed, required documents missing, tasks incomplete. All blockers
// are reported, not just the first, so the caller can present a complete
// checklist.
func (e *Engine) StepBlockers(ctx context.Context, txID string, step int) ([]Blocker, error) {
	if _, err := e.catalog.Step(step); err != nil {
		return nil, invalidStep(txID, step, err)
	}

	deps, err := e.dependencyBlockers(ctx, txID, step)
	if err != nil {
		return nil, err
	}
	completion, err := e.completionBlockers(ctx, txID, step)
	if err != nil {
		return nil, err
	}
	return append(deps, completion...), nil
}

// dependencyBlockers lists dependencies of step that are not completed.
func (e *Engine) dependencyBlockers(ctx context.Context, txID string, step int) ([]Blocker, error) {
	deps, err := e.catalog.Dependencies(step)
	if err != nil {
		return nil, invalidStep(txID, step, err)
	}
	sort.Ints(deps)

	var blockers []Blocker
	for _, dep := range deps {
		sp, err := e.store.GetStep(ctx, txID, dep)
		if err != nil {
			return nil, err
		}
		if sp.Status != progress.StepCompleted {
			blockers = append(blockers, Blocker{
				Kind:       BlockerMissingDependency,
				Step:       step,
				Dependency: dep,
			})
		}
	}
	return blockers, nil
}

// completionBlockers lists incomplete tasks and missing required documents
// for a step.
func (e *Engine) completionBlockers(ctx context.Context, txID string, step int) ([]Blocker, error) {
	def, err := e.catalog.Step(step)
	if err != nil {
		return nil, invalidStep(txID, step, err)
	}

	var blockers []Blocker

	tasks, err := e.store.ListTasks(ctx, txID, step)
	if err != nil {
		return nil, err
	}
	for _, tp := range tasks {
		if tp.Status != progress.TaskCompleted {
			blockers = append(blockers, Blocker{
				Kind:   BlockerIncompleteTask,
				Step:   step,
				TaskID: tp.TaskID,
			})
		}
	}

	for _, doc := range def.RequiredDocuments {
		present, err := e.docs.HasDocument(ctx, txID, doc)
		if err != nil {
			return nil, err
		}
		if !present {
			blockers = append(blockers, Blocker{
				Kind:     BlockerMissingDocument,
				Step:     step,
				Document: doc,
			})
		}
	}

	return blockers, nil
}

// NextAvailableSteps returns every step whose full dependency set is
// completed and whose own status is neither completed nor cancelled, in
// ascending step order.
func (e *Engine) NextAvailableSteps(ctx context.Context, txID string) ([]int, error) {
	steps, err := e.store.ListSteps(ctx, txID)
	if err != nil {
		return nil, err
	}

	statusByStep := make(map[int]progress.StepStatus, len(steps))
	for _, sp := range steps {
		statusByStep[sp.Step] = sp.Status
	}

	var out []int
	for _, def := range e.catalog.Steps() {
		if available(def.Number, def.DependsOn, statusByStep) {
			out = append(out, def.Number)
		}
	}
	return out, nil
}

// available is the pure dependency-subset rule used by NextAvailableSteps.
// Steps missing a progress row count as pending.
func available(step int, deps []int, statusByStep map[int]progress.StepStatus) bool {
	switch statusByStep[step] {
	case progress.StepCompleted, progress.StepCancelled:
		return false
	}
	for _, dep := range deps {
		if statusByStep[dep] != progress.StepCompleted {
			return false
		}
	}
	return true
}
