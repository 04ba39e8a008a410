package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/keyturn/keyturn/internal/catalog"
	"github.com/keyturn/keyturn/internal/progress"
	"github.com/keyturn/keyturn/internal/store"
)

// ExecuteStep performs one action against one step of a transaction.
//
// The per-transaction lock is held for the whole invocation, including any
// automation cascade triggered by a completion, so concurrent calls against
// the same transaction serialize. Progress rows are created lazily before
// the action runs.
//
// Activity hooks run before any write; a hook failure aborts the transition
// with the store untouched. A completion's cascade runs inside the same
// call: cascade transitions already committed stay committed even if a later
// cascade target fails.
func (e *Engine) ExecuteStep(ctx context.Context, txID string, step int, action Action) (*StepExecutionResult, error) {
	def, err := e.catalog.Step(step)
	if err != nil {
		return nil, invalidStep(txID, step, err)
	}

	unlock := e.lockTransaction(txID)
	defer unlock()

	if err := e.EnsureInitialized(ctx, txID); err != nil {
		return nil, err
	}

	switch action.Kind {
	case ActionStart:
		return e.startStep(ctx, txID, def)
	case ActionComplete:
		return e.completeStep(ctx, txID, def)
	case ActionTask:
		return e.taskAction(ctx, txID, def, action)
	case ActionCancel:
		return e.cancelStep(ctx, txID, def, action)
	default:
		return nil, invalidTransition(txID, step, fmt.Sprintf("unknown action %q", action.Kind))
	}
}

// loadTxn builds the hook view of a step: its definition plus recorded
// details.
func (e *Engine) loadTxn(ctx context.Context, txID string, def catalog.StepDefinition) (Txn, error) {
	details, err := e.store.ListDetails(ctx, txID, def.Number)
	if err != nil {
		return Txn{}, err
	}
	return Txn{ID: txID, Step: def, Details: details}, nil
}

// mapStoreErr converts store-level contention into the engine taxonomy.
func mapStoreErr(txID string, step int, err error) error {
	if err == nil {
		return nil
	}
	if store.IsBusy(err) || errors.Is(err, store.ErrStale) {
		return concurrencyConflict(txID, step, err)
	}
	return err
}

func (e *Engine) startStep(ctx context.Context, txID string, def catalog.StepDefinition) (*StepExecutionResult, error) {
	sp, err := e.store.GetStep(ctx, txID, def.Number)
	if err != nil {
		return nil, err
	}
	if sp.Status != progress.StepPending {
		return nil, invalidTransition(txID, def.Number,
			fmt.Sprintf("cannot start from %s", sp.Status))
	}

	blockers, err := e.dependencyBlockers(ctx, txID, def.Number)
	if err != nil {
		return nil, err
	}
	if len(blockers) > 0 {
		return nil, prerequisitesNotMet(txID, def.Number, blockers)
	}

	txn, err := e.loadTxn(ctx, txID, def)
	if err != nil {
		return nil, err
	}
	details, err := e.registry.Lookup(def.Number).OnStart(ctx, txn)
	if err != nil {
		return nil, activityFailed(txID, def.Number, "start", err)
	}

	now := e.clock.Now()
	err = e.store.RunUnit(ctx, func(u *store.Unit) error {
		if err := u.SetStepStatus(ctx, txID, def.Number, progress.StepPending, progress.StepInProgress, now); err != nil {
			return err
		}
		for k, v := range details {
			if err := u.PutDetail(ctx, txID, def.Number, k, v); err != nil {
				return err
			}
		}
		seq, err := u.NextSeq(ctx, txID)
		if err != nil {
			return err
		}
		return u.AppendTransition(ctx, progress.Transition{
			TransactionID: txID,
			Seq:           seq,
			Entity:        progress.EntityStep,
			Step:          def.Number,
			From:          string(progress.StepPending),
			To:            string(progress.StepInProgress),
			At:            now,
			Payload:       details,
		})
	})
	if err != nil {
		return nil, mapStoreErr(txID, def.Number, err)
	}

	e.logger.Debug("step started", "tx", txID, "step", def.Number)
	e.notify(ctx, Event{
		Name:          "step.started",
		TransactionID: txID,
		Step:          def.Number,
		Payload:       details,
	})

	return &StepExecutionResult{
		TransactionID: txID,
		Step:          def.Number,
		Action:        ActionStart,
		Status:        progress.StepInProgress,
	}, nil
}

func (e *Engine) completeStep(ctx context.Context, txID string, def catalog.StepDefinition) (*StepExecutionResult, error) {
	sp, err := e.store.GetStep(ctx, txID, def.Number)
	if err != nil {
		return nil, err
	}
	if sp.Status != progress.StepInProgress {
		return nil, invalidTransition(txID, def.Number,
			fmt.Sprintf("cannot complete from %s", sp.Status))
	}

	blockers, err := e.completionBlockers(ctx, txID, def.Number)
	if err != nil {
		return nil, err
	}
	if len(blockers) > 0 {
		return nil, prerequisitesNotMet(txID, def.Number, blockers)
	}

	return e.finishStep(ctx, txID, def, ActionComplete, false)
}

// finishStep runs the OnComplete hook, commits the completion, and triggers
// the automation cascade. The caller has already validated completability.
func (e *Engine) finishStep(ctx context.Context, txID string, def catalog.StepDefinition, action ActionKind, derived bool) (*StepExecutionResult, error) {
	txn, err := e.loadTxn(ctx, txID, def)
	if err != nil {
		return nil, err
	}
	details, err := e.registry.Lookup(def.Number).OnComplete(ctx, txn)
	if err != nil {
		return nil, activityFailed(txID, def.Number, "complete", err)
	}

	now := e.clock.Now()
	err = e.store.RunUnit(ctx, func(u *store.Unit) error {
		if err := u.SetStepStatus(ctx, txID, def.Number, progress.StepInProgress, progress.StepCompleted, now); err != nil {
			return err
		}
		for k, v := range details {
			if err := u.PutDetail(ctx, txID, def.Number, k, v); err != nil {
				return err
			}
		}
		seq, err := u.NextSeq(ctx, txID)
		if err != nil {
			return err
		}
		return u.AppendTransition(ctx, progress.Transition{
			TransactionID: txID,
			Seq:           seq,
			Entity:        progress.EntityStep,
			Step:          def.Number,
			From:          string(progress.StepInProgress),
			To:            string(progress.StepCompleted),
			At:            now,
			Payload:       details,
		})
	})
	if err != nil {
		return nil, mapStoreErr(txID, def.Number, err)
	}

	e.logger.Info("step completed", "tx", txID, "step", def.Number, "derived", derived)
	e.notify(ctx, Event{
		Name:          "step.completed",
		TransactionID: txID,
		Step:          def.Number,
		Payload:       details,
	})

	result := &StepExecutionResult{
		TransactionID: txID,
		Step:          def.Number,
		Action:        action,
		Status:        progress.StepCompleted,
		AutoCompleted: derived,
	}

	cascade, cascadeErr := e.runCascade(ctx, txID, def.Number)
	result.Cascade = cascade
	return result, cascadeErr
}

func (e *Engine) taskAction(ctx context.Context, txID string, def catalog.StepDefinition, action Action) (*StepExecutionResult, error) {
	taskDef, err := e.catalog.Task(def.Number, action.TaskID)
	if err != nil {
		var unknownTask *catalog.UnknownTaskError
		if errors.As(err, &unknownTask) {
			return nil, invalidTask(txID, def.Number, action.TaskID, err)
		}
		return nil, invalidStep(txID, def.Number, err)
	}

	sp, err := e.store.GetStep(ctx, txID, def.Number)
	if err != nil {
		return nil, err
	}
	if sp.Status != progress.StepInProgress {
		return nil, invalidTransition(txID, def.Number,
			fmt.Sprintf("task updates require an in_progress step, not %s", sp.Status))
	}

	target := action.TaskStatus
	if target == "" {
		target = progress.TaskCompleted
	}
	switch target {
	case progress.TaskPending, progress.TaskInProgress, progress.TaskCompleted:
	default:
		return nil, invalidTransition(txID, def.Number, fmt.Sprintf("unknown task status %q", target))
	}

	tp, err := e.store.GetTask(ctx, txID, def.Number, taskDef.ID)
	if err != nil {
		return nil, err
	}

	result := &StepExecutionResult{
		TransactionID: txID,
		Step:          def.Number,
		Action:        ActionTask,
		Status:        sp.Status,
		TaskID:        taskDef.ID,
		TaskStatus:    target,
	}

	// Same status is an idempotent no-op: no hook, no write.
	if tp.Status == target {
		return result, nil
	}

	// Tasks are monotonic: pending -> in_progress -> completed.
	if rank(target) < rank(tp.Status) {
		return nil, invalidTransition(txID, def.Number,
			fmt.Sprintf("task %s cannot regress from %s to %s", taskDef.ID, tp.Status, target))
	}

	justCompleted := target == progress.TaskCompleted

	var details Details
	if justCompleted {
		txn, err := e.loadTxn(ctx, txID, def)
		if err != nil {
			return nil, err
		}
		details, err = e.registry.Lookup(def.Number).OnTaskComplete(ctx, txn, taskDef)
		if err != nil {
			return nil, activityFailed(txID, def.Number, "task-complete", err)
		}
	}

	now := e.clock.Now()
	err = e.store.RunUnit(ctx, func(u *store.Unit) error {
		if err := u.SetTaskStatus(ctx, txID, def.Number, taskDef.ID, tp.Status, target, now, action.CompletedBy); err != nil {
			return err
		}
		for k, v := range details {
			if err := u.PutDetail(ctx, txID, def.Number, k, v); err != nil {
				return err
			}
		}
		seq, err := u.NextSeq(ctx, txID)
		if err != nil {
			return err
		}
		return u.AppendTransition(ctx, progress.Transition{
			TransactionID: txID,
			Seq:           seq,
			Entity:        progress.EntityTask,
			Step:          def.Number,
			TaskID:        taskDef.ID,
			From:          string(tp.Status),
			To:            string(target),
			At:            now,
			Payload:       details,
		})
	})
	if err != nil {
		return nil, mapStoreErr(txID, def.Number, err)
	}

	eventName := "task.started"
	if justCompleted {
		eventName = "task.completed"
	}
	e.notify(ctx, Event{
		Name:          eventName,
		TransactionID: txID,
		Step:          def.Number,
		TaskID:        taskDef.ID,
		Payload:       details,
	})

	if !justCompleted {
		return result, nil
	}

	// Derived completion: re-evaluated on every task change, not only on
	// explicit complete calls. Document gaps keep the step in_progress
	// without failing the task update.
	blockers, err := e.completionBlockers(ctx, txID, def.Number)
	if err != nil {
		return nil, err
	}
	if len(blockers) > 0 {
		return result, nil
	}

	finish, err := e.finishStep(ctx, txID, def, ActionTask, true)
	if finish != nil {
		result.Status = finish.Status
		result.AutoCompleted = finish.AutoCompleted
		result.Cascade = finish.Cascade
	}
	if err != nil {
		return result, err
	}
	return result, nil
}

func (e *Engine) cancelStep(ctx context.Context, txID string, def catalog.StepDefinition, action Action) (*StepExecutionResult, error) {
	sp, err := e.store.GetStep(ctx, txID, def.Number)
	if err != nil {
		return nil, err
	}
	if sp.Status != progress.StepPending && sp.Status != progress.StepInProgress {
		return nil, invalidTransition(txID, def.Number,
			fmt.Sprintf("cannot cancel from %s", sp.Status))
	}

	now := e.clock.Now()
	err = e.store.RunUnit(ctx, func(u *store.Unit) error {
		if err := u.SetStepStatus(ctx, txID, def.Number, sp.Status, progress.StepCancelled, now); err != nil {
			return err
		}
		if action.Notes != "" {
			if err := u.SetStepNotes(ctx, txID, def.Number, action.Notes); err != nil {
				return err
			}
		}
		seq, err := u.NextSeq(ctx, txID)
		if err != nil {
			return err
		}
		return u.AppendTransition(ctx, progress.Transition{
			TransactionID: txID,
			Seq:           seq,
			Entity:        progress.EntityStep,
			Step:          def.Number,
			From:          string(sp.Status),
			To:            string(progress.StepCancelled),
			At:            now,
		})
	})
	if err != nil {
		return nil, mapStoreErr(txID, def.Number, err)
	}

	e.notify(ctx, Event{
		Name:          "step.cancelled",
		TransactionID: txID,
		Step:          def.Number,
	})

	return &StepExecutionResult{
		TransactionID: txID,
		Step:          def.Number,
		Action:        ActionCancel,
		Status:        progress.StepCancelled,
	}, nil
}

// rank orders task statuses for the monotonicity check.
func rank(s progress.TaskStatus) int {
	switch s {
	case progress.TaskPending:
		return 0
	case progress.TaskInProgress:
		return 1
	case progress.TaskCompleted:
		return 2
	default:
		return -1
	}
}
