package workflow

import (
	"context"
	"sort"

	"github.com/keyturn/keyturn/internal/catalog"
	"github.com/keyturn/keyturn/internal/progress"
)

// WorkflowStatus is the read-only summary of one transaction's closing.
type WorkflowStatus struct {
	TransactionID      string              `json:"transaction_id"`
	CurrentPhase       string              `json:"current_phase,omitempty"` // earliest unfinished step's phase; empty when done
	ActiveSteps        []int               `json:"active_steps,omitempty"`  // in_progress, ascending
	NextAvailableSteps []int               `json:"next_available_steps,omitempty"`
	Blockers           map[int][]Blocker   `json:"blockers,omitempty"`
	CompletedSteps     int                 `json:"completed_steps"`
	CancelledSteps     int                 `json:"cancelled_steps,omitempty"`
	TotalSteps         int                 `json:"total_steps"`
	OverallProgress    float64             `json:"overall_progress"` // completed / total
}

// StepRequirement reports one precondition of a step together with whether
// it currently holds.
type StepRequirement struct {
	Kind      BlockerKind          `json:"kind"`
	Step      int                  `json:"step,omitempty"`     // for dependencies
	Document  catalog.DocumentType `json:"document,omitempty"` // for documents
	TaskID    string               `json:"task_id,omitempty"`  // for tasks
	Satisfied bool                 `json:"satisfied"`
}

// StepRequirements is the full requirement card for one step: what it waits
// on, what it must collect, and which of its tasks remain.
type StepRequirements struct {
	TransactionID string              `json:"transaction_id"`
	Step          int                 `json:"step"`
	Status        progress.StepStatus `json:"status"`
	Dependencies  []StepRequirement   `json:"dependencies,omitempty"`
	Documents     []StepRequirement   `json:"documents,omitempty"`
	Tasks         []StepRequirement   `json:"tasks,omitempty"`
	CanStart      bool                `json:"can_start"`
	CanComplete   bool                `json:"can_complete"`
}

// Status assembles the workflow summary for a transaction. Progress rows
// are initialized lazily so a fresh transaction reports 25 pending steps
// rather than an error.
func (e *Engine) Status(ctx context.Context, txID string) (*WorkflowStatus, error) {
	if err := e.EnsureInitialized(ctx, txID); err != nil {
		return nil, err
	}

	steps, err := e.store.ListSteps(ctx, txID)
	if err != nil {
		return nil, err
	}
	statusByStep := make(map[int]progress.StepStatus, len(steps))
	for _, sp := range steps {
		statusByStep[sp.Step] = sp.Status
	}

	ws := &WorkflowStatus{
		TransactionID: txID,
		TotalSteps:    e.catalog.Len(),
		Blockers:      make(map[int][]Blocker),
	}

	for _, def := range e.catalog.Steps() {
		switch statusByStep[def.Number] {
		case progress.StepInProgress:
			ws.ActiveSteps = append(ws.ActiveSteps, def.Number)
		case progress.StepCompleted:
			ws.CompletedSteps++
		case progress.StepCancelled:
			ws.CancelledSteps++
		}
	}
	if ws.TotalSteps > 0 {
		ws.OverallProgress = float64(ws.CompletedSteps) / float64(ws.TotalSteps)
	}

	ws.CurrentPhase = e.currentPhase(statusByStep)

	next, err := e.NextAvailableSteps(ctx, txID)
	if err != nil {
		return nil, err
	}
	ws.NextAvailableSteps = next

	// Blockers are reported for the steps a caller is most likely to act
	// on: everything pending or in progress that is not startable now.
	for _, def := range e.catalog.Steps() {
		st := statusByStep[def.Number]
		if st != progress.StepPending && st != progress.StepInProgress {
			continue
		}
		blockers, err := e.StepBlockers(ctx, txID, def.Number)
		if err != nil {
			return nil, err
		}
		if len(blockers) > 0 {
			ws.Blockers[def.Number] = blockers
		}
	}

	return ws, nil
}

// currentPhase finds the phase of the lowest-numbered step that is not yet
// terminal. An all-terminal workflow has no current phase.
func (e *Engine) currentPhase(statusByStep map[int]progress.StepStatus) string {
	for _, def := range e.catalog.Steps() {
		if !statusByStep[def.Number].Terminal() {
			return def.Phase
		}
	}
	return ""
}

// Requirements builds the requirement card for one step.
func (e *Engine) Requirements(ctx context.Context, txID string, step int) (*StepRequirements, error) {
	def, err := e.catalog.Step(step)
	if err != nil {
		return nil, invalidStep(txID, step, err)
	}
	if err := e.EnsureInitialized(ctx, txID); err != nil {
		return nil, err
	}

	sp, err := e.store.GetStep(ctx, txID, step)
	if err != nil {
		return nil, err
	}

	req := &StepRequirements{
		TransactionID: txID,
		Step:          step,
		Status:        sp.Status,
	}

	for _, dep := range def.DependsOn {
		dp, err := e.store.GetStep(ctx, txID, dep)
		if err != nil {
			return nil, err
		}
		req.Dependencies = append(req.Dependencies, StepRequirement{
			Kind:      BlockerMissingDependency,
			Step:      dep,
			Satisfied: dp.Status == progress.StepCompleted,
		})
	}

	for _, doc := range def.RequiredDocuments {
		has, err := e.docs.HasDocument(ctx, txID, doc)
		if err != nil {
			return nil, err
		}
		req.Documents = append(req.Documents, StepRequirement{
			Kind:      BlockerMissingDocument,
			Document:  doc,
			Satisfied: has,
		})
	}

	tasks, err := e.store.ListTasks(ctx, txID, step)
	if err != nil {
		return nil, err
	}
	taskStatus := make(map[string]progress.TaskStatus, len(tasks))
	for _, tp := range tasks {
		taskStatus[tp.TaskID] = tp.Status
	}
	taskDefs, err := e.catalog.Tasks(step)
	if err != nil {
		return nil, err
	}
	for _, td := range taskDefs {
		req.Tasks = append(req.Tasks, StepRequirement{
			Kind:      BlockerIncompleteTask,
			TaskID:    td.ID,
			Satisfied: taskStatus[td.ID] == progress.TaskCompleted,
		})
	}

	req.CanStart = sp.Status == progress.StepPending && allSatisfied(req.Dependencies)
	req.CanComplete = sp.Status == progress.StepInProgress &&
		allSatisfied(req.Documents) && allSatisfied(req.Tasks)

	return req, nil
}

func allSatisfied(reqs []StepRequirement) bool {
	for _, r := range reqs {
		if !r.Satisfied {
			return false
		}
	}
	return true
}

// AvailableActions lists the actions ExecuteStep would currently accept for
// a step. Start appears only when the step is actually startable; complete
// appears whenever the step is in progress, even if blockers would still
// reject it, because the blocker list is the useful response there.
func (e *Engine) AvailableActions(ctx context.Context, txID string, step int) ([]ActionKind, error) {
	if _, err := e.catalog.Step(step); err != nil {
		return nil, invalidStep(txID, step, err)
	}
	if err := e.EnsureInitialized(ctx, txID); err != nil {
		return nil, err
	}

	sp, err := e.store.GetStep(ctx, txID, step)
	if err != nil {
		return nil, err
	}

	var actions []ActionKind
	switch sp.Status {
	case progress.StepPending:
		ok, err := e.CanStart(ctx, txID, step)
		if err != nil {
			return nil, err
		}
		if ok {
			actions = append(actions, ActionStart)
		}
		actions = append(actions, ActionCancel)
	case progress.StepInProgress:
		actions = append(actions, ActionComplete, ActionTask, ActionCancel)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions, nil
}
