package workflow

import "github.com/keyturn/keyturn/internal/progress"

// ActionKind is the requested operation on a step.
type ActionKind string

const (
	// ActionStart moves a pending step to in_progress.
	ActionStart ActionKind = "start"
	// ActionComplete moves an in_progress step to completed.
	ActionComplete ActionKind = "complete"
	// ActionTask updates one task of an in_progress step.
	ActionTask ActionKind = "task"
	// ActionCancel is the explicit external escape hatch. Never fired by
	// automation.
	ActionCancel ActionKind = "cancel"
)

// Action describes what ExecuteStep should do.
type Action struct {
	Kind ActionKind

	// Task fields, used when Kind == ActionTask.
	TaskID      string
	TaskStatus  progress.TaskStatus // defaults to completed
	CompletedBy string

	// Notes is recorded on the step row for cancel actions.
	Notes string
}

// Start returns a start action.
func Start() Action {
	return Action{Kind: ActionStart}
}

// Complete returns an explicit complete action.
func Complete() Action {
	return Action{Kind: ActionComplete}
}

// CompleteTask returns a task action that marks the task completed.
func CompleteTask(taskID, by string) Action {
	return Action{Kind: ActionTask, TaskID: taskID, TaskStatus: progress.TaskCompleted, CompletedBy: by}
}

// SetTask returns a task action targeting an arbitrary status.
func SetTask(taskID string, status progress.TaskStatus) Action {
	return Action{Kind: ActionTask, TaskID: taskID, TaskStatus: status}
}

// Cancel returns a cancel action with an optional note.
func Cancel(notes string) Action {
	return Action{Kind: ActionCancel, Notes: notes}
}

// CascadeEntry records one automation target attempted after a completion.
type CascadeEntry struct {
	Rule    catalogRuleKind `json:"rule"`
	From    int             `json:"from"`
	Step    int             `json:"step"`
	Started bool            `json:"started"`
	Reason  string          `json:"reason,omitempty"` // set when not started (already active, prerequisites open)
	Err     error           `json:"-"`                // set when the start failed hard
	Failure string          `json:"failure,omitempty"`
}

// catalogRuleKind mirrors catalog.RuleKind without forcing callers of the
// result type to import the catalog package.
type catalogRuleKind = string

// StepExecutionResult reports what one ExecuteStep call did, including every
// automation target its cascade attempted.
type StepExecutionResult struct {
	TransactionID string              `json:"transaction_id"`
	Step          int                 `json:"step"`
	Action        ActionKind          `json:"action"`
	Status        progress.StepStatus `json:"status"`
	TaskID        string              `json:"task_id,omitempty"`
	TaskStatus    progress.TaskStatus `json:"task_status,omitempty"`
	// AutoCompleted is set when a task action completed the step's last task
	// and the step derived its own completion.
	AutoCompleted bool           `json:"auto_completed,omitempty"`
	Cascade       []CascadeEntry `json:"cascade,omitempty"`
}
