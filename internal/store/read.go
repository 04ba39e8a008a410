package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/keyturn/keyturn/internal/catalog"
	"github.com/keyturn/keyturn/internal/progress"
)

// ErrNotFound is returned when a progress row does not exist. Callers that
// expect lazy initialization should run EnsureInitialized first.
var ErrNotFound = errors.New("progress row not found")

// GetStep returns the progress row for one step.
func (s *Store) GetStep(ctx context.Context, txID string, step int) (progress.StepProgress, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT status, started_at, completed_at, notes
		FROM step_progress
		WHERE transaction_id = ? AND step_number = ?
	`, txID, step)

	var (
		status               string
		startedAt, completed sql.NullString
		notes                string
	)
	if err := row.Scan(&status, &startedAt, &completed, &notes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return progress.StepProgress{}, fmt.Errorf("step %d for %s: %w", step, txID, ErrNotFound)
		}
		return progress.StepProgress{}, fmt.Errorf("get step %d: %w", step, err)
	}

	started, err := parseTime(startedAt)
	if err != nil {
		return progress.StepProgress{}, err
	}
	done, err := parseTime(completed)
	if err != nil {
		return progress.StepProgress{}, err
	}

	return progress.StepProgress{
		TransactionID: txID,
		Step:          step,
		Status:        progress.StepStatus(status),
		StartedAt:     started,
		CompletedAt:   done,
		Notes:         notes,
	}, nil
}

// ListSteps returns every step progress row for a transaction in ascending
// step order.
func (s *Store) ListSteps(ctx context.Context, txID string) ([]progress.StepProgress, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step_number, status, started_at, completed_at, notes
		FROM step_progress
		WHERE transaction_id = ?
		ORDER BY step_number
	`, txID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var out []progress.StepProgress
	for rows.Next() {
		var (
			step                 int
			status               string
			startedAt, completed sql.NullString
			notes                string
		)
		if err := rows.Scan(&step, &status, &startedAt, &completed, &notes); err != nil {
			return nil, fmt.Errorf("list steps: scan: %w", err)
		}
		started, err := parseTime(startedAt)
		if err != nil {
			return nil, err
		}
		done, err := parseTime(completed)
		if err != nil {
			return nil, err
		}
		out = append(out, progress.StepProgress{
			TransactionID: txID,
			Step:          step,
			Status:        progress.StepStatus(status),
			StartedAt:     started,
			CompletedAt:   done,
			Notes:         notes,
		})
	}
	return out, rows.Err()
}

// GetTask returns the progress row for one task.
func (s *Store) GetTask(ctx context.Context, txID string, step int, taskID string) (progress.TaskProgress, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT status, completed_at, completed_by, notes
		FROM task_progress
		WHERE transaction_id = ? AND step_number = ? AND task_id = ?
	`, txID, step, taskID)

	var (
		status    string
		completed sql.NullString
		by, notes string
	)
	if err := row.Scan(&status, &completed, &by, &notes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return progress.TaskProgress{}, fmt.Errorf("task %d/%s for %s: %w", step, taskID, txID, ErrNotFound)
		}
		return progress.TaskProgress{}, fmt.Errorf("get task %d/%s: %w", step, taskID, err)
	}

	done, err := parseTime(completed)
	if err != nil {
		return progress.TaskProgress{}, err
	}

	return progress.TaskProgress{
		TransactionID: txID,
		Step:          step,
		TaskID:        taskID,
		Status:        progress.TaskStatus(status),
		CompletedAt:   done,
		CompletedBy:   by,
		Notes:         notes,
	}, nil
}

// ListTasks returns the task rows for one step in task-id order.
func (s *Store) ListTasks(ctx context.Context, txID string, step int) ([]progress.TaskProgress, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, status, completed_at, completed_by, notes
		FROM task_progress
		WHERE transaction_id = ? AND step_number = ?
		ORDER BY task_id
	`, txID, step)
	if err != nil {
		return nil, fmt.Errorf("list tasks for step %d: %w", step, err)
	}
	defer rows.Close()

	var out []progress.TaskProgress
	for rows.Next() {
		var (
			taskID, status string
			completed      sql.NullString
			by, notes      string
		)
		if err := rows.Scan(&taskID, &status, &completed, &by, &notes); err != nil {
			return nil, fmt.Errorf("list tasks: scan: %w", err)
		}
		done, err := parseTime(completed)
		if err != nil {
			return nil, err
		}
		out = append(out, progress.TaskProgress{
			TransactionID: txID,
			Step:          step,
			TaskID:        taskID,
			Status:        progress.TaskStatus(status),
			CompletedAt:   done,
			CompletedBy:   by,
			Notes:         notes,
		})
	}
	return out, rows.Err()
}

// GetDetail returns the detail value stored under (step, key), if any.
func (s *Store) GetDetail(ctx context.Context, txID string, step int, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM step_details
		WHERE transaction_id = ? AND step_number = ? AND key = ?
	`, txID, step, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get detail %d/%s: %w", step, key, err)
	}
	return value, true, nil
}

// ListDetails returns every detail recorded against one step, keyed by
// detail key.
func (s *Store) ListDetails(ctx context.Context, txID string, step int) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value FROM step_details
		WHERE transaction_id = ? AND step_number = ?
	`, txID, step)
	if err != nil {
		return nil, fmt.Errorf("list details for step %d: %w", step, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("list details: scan: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// HasDocument reports whether an uploaded document of the given type is
// recorded for the transaction.
func (s *Store) HasDocument(ctx context.Context, txID string, docType catalog.DocumentType) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM documents
		WHERE transaction_id = ? AND doc_type = ?
	`, txID, string(docType)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("has document %s: %w", docType, err)
	}
	return count > 0, nil
}

// ListDocuments returns the recorded document types for a transaction.
func (s *Store) ListDocuments(ctx context.Context, txID string) ([]catalog.DocumentType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_type FROM documents
		WHERE transaction_id = ?
		ORDER BY doc_type
	`, txID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []catalog.DocumentType
	for rows.Next() {
		var dt string
		if err := rows.Scan(&dt); err != nil {
			return nil, fmt.Errorf("list documents: scan: %w", err)
		}
		out = append(out, catalog.DocumentType(dt))
	}
	return out, rows.Err()
}

// ListTransitions returns the audit log for a transaction in sequence order.
func (s *Store) ListTransitions(ctx context.Context, txID string) ([]progress.Transition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, entity, step_number, task_id, from_status, to_status, at, payload
		FROM transitions
		WHERE transaction_id = ?
		ORDER BY seq
	`, txID)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var out []progress.Transition
	for rows.Next() {
		var (
			tr      progress.Transition
			entity  string
			at      string
			payload string
		)
		tr.TransactionID = txID
		if err := rows.Scan(&tr.Seq, &entity, &tr.Step, &tr.TaskID, &tr.From, &tr.To, &at, &payload); err != nil {
			return nil, fmt.Errorf("list transitions: scan: %w", err)
		}
		tr.Entity = progress.EntityKind(entity)
		ts, err := parseTime(sql.NullString{String: at, Valid: true})
		if err != nil {
			return nil, err
		}
		tr.At = *ts
		if payload != "" && payload != "{}" {
			if err := json.Unmarshal([]byte(payload), &tr.Payload); err != nil {
				return nil, fmt.Errorf("list transitions: payload seq %d: %w", tr.Seq, err)
			}
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}
