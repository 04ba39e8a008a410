// Package progress defines the mutable workflow state shared by the store
// and the engine: per-transaction step and task progress rows, free-form
// step details, and the append-only transition log.
package progress

import "time"

// StepStatus is the lifecycle status of a step instance.
//
// Steps transition pending -> in_progress -> completed. Cancelled is a
// terminal escape hatch reachable only by explicit external action, never by
// automation.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepCancelled  StepStatus = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepCancelled
}

// TaskStatus is the lifecycle status of a task instance. Tasks have no
// cancelled state; cancelling happens at step granularity.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

// StepProgress is one row of per-transaction step state. Unique on
// (TransactionID, Step).
type StepProgress struct {
	TransactionID string
	Step          int
	Status        StepStatus
	StartedAt     *time.Time
	CompletedAt   *time.Time
	Notes         string
}

// TaskProgress is one row of per-transaction task state. Unique on
// (TransactionID, Step, TaskID).
type TaskProgress struct {
	TransactionID string
	Step          int
	TaskID        string
	Status        TaskStatus
	CompletedAt   *time.Time
	CompletedBy   string
	Notes         string
}

// StepDetail is a free-form annotation recorded against a step instance by
// an activity hook (lender name, offer price, wire reference). Upsert by
// (TransactionID, Step, Key).
type StepDetail struct {
	TransactionID string
	Step          int
	Key           string
	Value         string
}

// EntityKind distinguishes step and task transitions in the audit log.
type EntityKind string

const (
	EntityStep EntityKind = "step"
	EntityTask EntityKind = "task"
)

// Transition is one append-only audit record. Seq is a per-transaction
// monotonic sequence; together with the canonical payload encoding it makes
// the log replayable and diffable.
type Transition struct {
	TransactionID string            `json:"transaction_id"`
	Seq           int64             `json:"seq"`
	Entity        EntityKind        `json:"entity"`
	Step          int               `json:"step"`
	TaskID        string            `json:"task_id,omitempty"` // empty for step transitions
	From          string            `json:"from"`
	To            string            `json:"to"`
	At            time.Time         `json:"at"`
	Payload       map[string]string `json:"payload,omitempty"` // details recorded with the transition
}
