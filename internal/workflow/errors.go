package workflow

import (
	"errors"
	"fmt"

	"github.com/keyturn/keyturn/internal/catalog"
)

// Code identifies the error category. Callers branch on codes, never on
// message text.
type Code string

const (
	// CodeInvalidStep indicates a catalog miss on the step number. Programmer
	// error; never retried.
	CodeInvalidStep Code = "INVALID_STEP"

	// CodeInvalidTask indicates a catalog miss on the task id.
	CodeInvalidTask Code = "INVALID_TASK"

	// CodeInvalidTransition indicates the requested action is illegal for the
	// step's current status. Reported to the caller, not retried.
	CodeInvalidTransition Code = "INVALID_TRANSITION"

	// CodePrerequisitesNotMet indicates dependency, document, or task gaps.
	// Carries the full blocker list; the caller may retry after satisfying
	// them.
	CodePrerequisitesNotMet Code = "PREREQUISITES_NOT_MET"

	// CodeActivityFailed indicates an external collaborator error or timeout.
	// The triggering transition was rolled back entirely.
	CodeActivityFailed Code = "ACTIVITY_FAILED"

	// CodeConcurrencyConflict indicates lock contention on the transaction.
	// The caller should retry the whole ExecuteStep call.
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"
)

// BlockerKind classifies an unmet prerequisite.
type BlockerKind string

const (
	BlockerMissingDependency BlockerKind = "missing_dependency"
	BlockerMissingDocument   BlockerKind = "missing_document"
	BlockerIncompleteTask    BlockerKind = "incomplete_task"
)

// Blocker is one unmet condition preventing a step from starting or
// completing. The validation engine enumerates every blocker, not just the
// first, so callers can present a complete checklist.
type Blocker struct {
	Kind       BlockerKind          `json:"kind"`
	Step       int                  `json:"step"`
	Dependency int                  `json:"dependency,omitempty"` // set for missing_dependency
	Document   catalog.DocumentType `json:"document,omitempty"`   // set for missing_document
	TaskID     string               `json:"task_id,omitempty"`    // set for incomplete_task
	Detail     string               `json:"detail,omitempty"`
}

func (b Blocker) String() string {
	switch b.Kind {
	case BlockerMissingDependency:
		return fmt.Sprintf("step %d requires step %d completed", b.Step, b.Dependency)
	case BlockerMissingDocument:
		return fmt.Sprintf("step %d requires document %s", b.Step, b.Document)
	case BlockerIncompleteTask:
		return fmt.Sprintf("step %d task %s not completed", b.Step, b.TaskID)
	default:
		return b.Detail
	}
}

// Error is the engine's structured error. It wraps the underlying cause (if
// any) and carries the blocker list for CodePrerequisitesNotMet.
type Error struct {
	Code          Code
	Message       string
	TransactionID string
	Step          int
	TaskID        string
	Blockers      []Blocker
	Err           error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Step > 0 {
		msg = fmt.Sprintf("%s: step %d: %s", e.Code, e.Step, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the engine error code, or "" if err is not an engine
// error.
func CodeOf(err error) Code {
	var we *Error
	if errors.As(err, &we) {
		return we.Code
	}
	return ""
}

// BlockersOf extracts the blocker list from a PrerequisitesNotMet error.
func BlockersOf(err error) []Blocker {
	var we *Error
	if errors.As(err, &we) {
		return we.Blockers
	}
	return nil
}

func invalidStep(txID string, step int, err error) *Error {
	return &Error{
		Code:          CodeInvalidStep,
		Message:       "step not in catalog",
		TransactionID: txID,
		Step:          step,
		Err:           err,
	}
}

func invalidTask(txID string, step int, taskID string, err error) *Error {
	return &Error{
		Code:          CodeInvalidTask,
		Message:       fmt.Sprintf("task %q not in catalog", taskID),
		TransactionID: txID,
		Step:          step,
		TaskID:        taskID,
		Err:           err,
	}
}

func invalidTransition(txID string, step int, message string) *Error {
	return &Error{
		Code:          CodeInvalidTransition,
		Message:       message,
		TransactionID: txID,
		Step:          step,
	}
}

func prerequisitesNotMet(txID string, step int, blockers []Blocker) *Error {
	return &Error{
		Code:          CodePrerequisitesNotMet,
		Message:       fmt.Sprintf("%d unmet prerequisites", len(blockers)),
		TransactionID: txID,
		Step:          step,
		Blockers:      blockers,
	}
}

func activityFailed(txID string, step int, hook string, err error) *Error {
	return &Error{
		Code:          CodeActivityFailed,
		Message:       fmt.Sprintf("%s activity failed", hook),
		TransactionID: txID,
		Step:          step,
		Err:           err,
	}
}

func concurrencyConflict(txID string, step int, err error) *Error {
	return &Error{
		Code:          CodeConcurrencyConflict,
		Message:       "transaction is being mutated concurrently",
		TransactionID: txID,
		Step:          step,
		Err:           err,
	}
}
