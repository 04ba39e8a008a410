package store

import (
	"context"
	"fmt"

	"github.com/keyturn/keyturn/internal/progress"
)

// DerivedState is the progress state reconstructed purely from the
// transition log, without reading the live progress tables.
type DerivedState struct {
	Steps map[int]progress.StepStatus
	Tasks map[string]progress.TaskStatus // keyed "step/task"
}

// ReplayMismatch records one divergence between the derived state and the
// live progress tables.
type ReplayMismatch struct {
	Entity  progress.EntityKind
	Step    int
	TaskID  string
	Derived string
	Stored  string
}

func (m ReplayMismatch) String() string {
	if m.Entity == progress.EntityTask {
		return fmt.Sprintf("task %d/%s: derived %s, stored %s", m.Step, m.TaskID, m.Derived, m.Stored)
	}
	return fmt.Sprintf("step %d: derived %s, stored %s", m.Step, m.Derived, m.Stored)
}

// ReplayReport is the result of verifying a transaction's audit log against
// its live progress rows.
type ReplayReport struct {
	TransactionID string
	Transitions   int
	Mismatches    []ReplayMismatch
}

// Consistent reports whether the live tables match the replayed log.
func (r *ReplayReport) Consistent() bool {
	return len(r.Mismatches) == 0
}

func taskKey(step int, taskID string) string {
	return fmt.Sprintf("%d/%s", step, taskID)
}

// Derive folds the transition log into final step and task statuses.
// The log is authoritative: later transitions win.
func (s *Store) Derive(ctx context.Context, txID string) (*DerivedState, int, error) {
	transitions, err := s.ListTransitions(ctx, txID)
	if err != nil {
		return nil, 0, err
	}

	derived := &DerivedState{
		Steps: make(map[int]progress.StepStatus),
		Tasks: make(map[string]progress.TaskStatus),
	}
	for _, tr := range transitions {
		switch tr.Entity {
		case progress.EntityStep:
			derived.Steps[tr.Step] = progress.StepStatus(tr.To)
		case progress.EntityTask:
			derived.Tasks[taskKey(tr.Step, tr.TaskID)] = progress.TaskStatus(tr.To)
		default:
			return nil, 0, fmt.Errorf("replay: unknown entity %q at seq %d", tr.Entity, tr.Seq)
		}
	}
	return derived, len(transitions), nil
}

// VerifyReplay replays the audit log and compares the derived state with the
// live progress tables. Rows with no transitions are expected to still be
// pending; anything else is a mismatch.
func (s *Store) VerifyReplay(ctx context.Context, txID string) (*ReplayReport, error) {
	derived, count, err := s.Derive(ctx, txID)
	if err != nil {
		return nil, err
	}

	report := &ReplayReport{TransactionID: txID, Transitions: count}

	steps, err := s.ListSteps(ctx, txID)
	if err != nil {
		return nil, err
	}
	for _, sp := range steps {
		want, ok := derived.Steps[sp.Step]
		if !ok {
			want = progress.StepPending
		}
		if sp.Status != want {
			report.Mismatches = append(report.Mismatches, ReplayMismatch{
				Entity:  progress.EntityStep,
				Step:    sp.Step,
				Derived: string(want),
				Stored:  string(sp.Status),
			})
		}

		tasks, err := s.ListTasks(ctx, txID, sp.Step)
		if err != nil {
			return nil, err
		}
		for _, tp := range tasks {
			want, ok := derived.Tasks[taskKey(tp.Step, tp.TaskID)]
			if !ok {
				want = progress.TaskPending
			}
			if tp.Status != want {
				report.Mismatches = append(report.Mismatches, ReplayMismatch{
					Entity:  progress.EntityTask,
					Step:    tp.Step,
					TaskID:  tp.TaskID,
					Derived: string(want),
					Stored:  string(tp.Status),
				})
			}
		}
	}

	return report, nil
}
