package store

import (
	"context"
	"fmt"
	"time"

	"github.com/keyturn/keyturn/internal/catalog"
	"github.com/keyturn/keyturn/internal/progress"
)

// EnsureInitialized creates pending StepProgress and TaskProgress rows for
// every definition not yet present for the transaction. Uses INSERT OR
// IGNORE so repeated calls and partially initialized transactions are safe.
//
// All rows default to pending. Historical back-fill is deliberately not
// supported here; it belongs to an auditable replay of start/complete
// actions.
func (s *Store) EnsureInitialized(ctx context.Context, txID string, steps []catalog.StepDefinition, tasks []catalog.TaskDefinition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ensure initialized: begin: %w", err)
	}
	defer tx.Rollback()

	for _, def := range steps {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO step_progress (transaction_id, step_number, status)
			VALUES (?, ?, ?)
		`, txID, def.Number, progress.StepPending)
		if err != nil {
			return fmt.Errorf("ensure initialized: step %d: %w", def.Number, err)
		}
	}

	for _, def := range tasks {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO task_progress (transaction_id, step_number, task_id, status)
			VALUES (?, ?, ?, ?)
		`, txID, def.Step, def.ID, progress.TaskPending)
		if err != nil {
			return fmt.Errorf("ensure initialized: task %d/%s: %w", def.Step, def.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ensure initialized: commit: %w", err)
	}
	return nil
}

// SetStepStatus performs a compare-and-set on a step row: the update applies
// only if the current status equals from. Timestamps are stamped according
// to the target status (started_at on in_progress, completed_at on
// completed). Returns ErrStale if the row was not in the expected status,
// which also guards a terminal completed row against silent regression.
func (u *Unit) SetStepStatus(ctx context.Context, txID string, step int, from, to progress.StepStatus, at time.Time) error {
	query := `
		UPDATE step_progress
		SET status = ?,
		    started_at = CASE WHEN ? = 'in_progress' THEN ? ELSE started_at END,
		    completed_at = CASE WHEN ? IN ('completed', 'cancelled') THEN ? ELSE completed_at END
		WHERE transaction_id = ? AND step_number = ? AND status = ?
	`
	ts := formatTime(at)
	res, err := u.tx.ExecContext(ctx, query, to, to, ts, to, ts, txID, step, from)
	if err != nil {
		return fmt.Errorf("set step %d status: %w", step, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set step %d status: rows affected: %w", step, err)
	}
	if n == 0 {
		return fmt.Errorf("set step %d status %s -> %s: %w", step, from, to, ErrStale)
	}
	return nil
}

// ForceStepStatus sets a step status unconditionally. This is the explicit
// override path that may regress a terminal status; ordinary transitions
// must use SetStepStatus.
func (u *Unit) ForceStepStatus(ctx context.Context, txID string, step int, to progress.StepStatus, at time.Time) error {
	query := `
		UPDATE step_progress
		SET status = ?,
		    completed_at = CASE WHEN ? IN ('completed', 'cancelled') THEN ? ELSE NULL END
		WHERE transaction_id = ? AND step_number = ?
	`
	ts := formatTime(at)
	if _, err := u.tx.ExecContext(ctx, query, to, to, ts, txID, step); err != nil {
		return fmt.Errorf("force step %d status: %w", step, err)
	}
	return nil
}

// SetTaskStatus performs a compare-and-set on a task row. completed_at and
// completed_by are stamped when the task reaches completed.
func (u *Unit) SetTaskStatus(ctx context.Context, txID string, step int, taskID string, from, to progress.TaskStatus, at time.Time, by string) error {
	query := `
		UPDATE task_progress
		SET status = ?,
		    completed_at = CASE WHEN ? = 'completed' THEN ? ELSE completed_at END,
		    completed_by = CASE WHEN ? = 'completed' THEN ? ELSE completed_by END
		WHERE transaction_id = ? AND step_number = ? AND task_id = ? AND status = ?
	`
	ts := formatTime(at)
	res, err := u.tx.ExecContext(ctx, query, to, to, ts, to, by, txID, step, taskID, from)
	if err != nil {
		return fmt.Errorf("set task %d/%s status: %w", step, taskID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set task %d/%s status: rows affected: %w", step, taskID, err)
	}
	if n == 0 {
		return fmt.Errorf("set task %d/%s status %s -> %s: %w", step, taskID, from, to, ErrStale)
	}
	return nil
}

// SetStepNotes records free-form notes on a step row, typically a
// cancellation reason.
func (u *Unit) SetStepNotes(ctx context.Context, txID string, step int, notes string) error {
	_, err := u.tx.ExecContext(ctx, `
		UPDATE step_progress SET notes = ?
		WHERE transaction_id = ? AND step_number = ?
	`, notes, txID, step)
	if err != nil {
		return fmt.Errorf("set step %d notes: %w", step, err)
	}
	return nil
}

// PutDetail upserts a step detail by (transaction, step, key).
func (u *Unit) PutDetail(ctx context.Context, txID string, step int, key, value string) error {
	_, err := u.tx.ExecContext(ctx, `
		INSERT INTO step_details (transaction_id, step_number, key, value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(transaction_id, step_number, key) DO UPDATE SET value = excluded.value
	`, txID, step, key, value)
	if err != nil {
		return fmt.Errorf("put detail %d/%s: %w", step, key, err)
	}
	return nil
}

// NextSeq returns the next per-transaction audit sequence number. Safe
// inside a unit: the single-writer connection serializes readers of MAX(seq).
func (u *Unit) NextSeq(ctx context.Context, txID string) (int64, error) {
	var seq int64
	err := u.tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM transitions WHERE transaction_id = ?
	`, txID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}
	return seq, nil
}

// AppendTransition appends one audit record. The payload is serialized to
// canonical JSON so identical transitions produce identical rows.
func (u *Unit) AppendTransition(ctx context.Context, tr progress.Transition) error {
	payload, err := progress.MarshalPayload(tr.Payload)
	if err != nil {
		return fmt.Errorf("append transition: %w", err)
	}

	_, err = u.tx.ExecContext(ctx, `
		INSERT INTO transitions
		(transaction_id, seq, entity, step_number, task_id, from_status, to_status, at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		tr.TransactionID,
		tr.Seq,
		tr.Entity,
		tr.Step,
		tr.TaskID,
		tr.From,
		tr.To,
		formatTime(tr.At),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("append transition seq %d: %w", tr.Seq, err)
	}
	return nil
}

// AddDocument records an uploaded document. Idempotent by
// (transaction, document type).
func (s *Store) AddDocument(ctx context.Context, txID string, docType catalog.DocumentType, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (transaction_id, doc_type, uploaded_at)
		VALUES (?, ?, ?)
		ON CONFLICT(transaction_id, doc_type) DO NOTHING
	`, txID, string(docType), formatTime(at))
	if err != nil {
		return fmt.Errorf("add document %s: %w", docType, err)
	}
	return nil
}
