package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"factcheck-orchestrator/internal/domain"
)

const taskSchema = `
CREATE TABLE IF NOT EXISTS pipeline_tasks (
	task_id TEXT PRIMARY KEY,
	input_text TEXT NOT NULL,
	phases_json TEXT NOT NULL DEFAULT '{}',
	meta_json TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS pipeline_phase_snapshots (
	task_id TEXT NOT NULL REFERENCES pipeline_tasks(task_id) ON DELETE CASCADE,
	phase TEXT NOT NULL,
	status TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	payload_json TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (task_id, phase)
);
`

// TaskStore is the Task/Phase Store (spec.md §2 row E, §3.7): pipeline task
// rows plus UPSERT-keyed (task_id, phase) snapshots for resumption.
type TaskStore struct {
	db *sql.DB
}

// OpenTaskStore opens (creating if absent) the pipeline_tasks/
// pipeline_phase_snapshots database at path, falling back to a tempdir copy
// on disk I/O error.
func OpenTaskStore(path string, tempDirFallback bool) (*TaskStore, error) {
	db, err := openWithFallback(path, tempDirFallback)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(taskSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &TaskStore{db: db}, nil
}

func (s *TaskStore) Close() error { return s.db.Close() }

// EnsureTask inserts a task row if absent, leaving an existing row untouched.
func (s *TaskStore) EnsureTask(ctx context.Context, taskID, inputText string) (domain.Task, error) {
	now := time.Now().UTC()
	task := domain.Task{
		TaskID:    taskID,
		InputText: inputText,
		Phases:    map[string]domain.PhaseStatus{},
		Meta:      map[string]any{},
		UpdatedAt: now,
	}
	phasesJSON, _ := json.Marshal(task.Phases)
	metaJSON, _ := json.Marshal(task.Meta)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO pipeline_tasks (task_id, input_text, phases_json, meta_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (task_id) DO NOTHING`, taskID, inputText, string(phasesJSON), string(metaJSON), now, now)
	if err != nil {
		return domain.Task{}, err
	}
	return s.GetTask(ctx, taskID)
}

func scanTask(row interface{ Scan(...any) error }) (domain.Task, error) {
	var task domain.Task
	var phasesJSON, metaJSON string
	if err := row.Scan(&task.TaskID, &task.InputText, &phasesJSON, &metaJSON, &task.UpdatedAt); err != nil {
		return domain.Task{}, err
	}
	task.Phases = map[string]domain.PhaseStatus{}
	_ = json.Unmarshal([]byte(phasesJSON), &task.Phases)
	task.Meta = map[string]any{}
	_ = json.Unmarshal([]byte(metaJSON), &task.Meta)
	return task, nil
}

// GetTask returns one Task by id.
func (s *TaskStore) GetTask(ctx context.Context, taskID string) (domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT task_id, input_text, phases_json, meta_json, updated_at
FROM pipeline_tasks WHERE task_id = ?`, taskID)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, ErrNotFound
	}
	return task, err
}

// SavePhase UPSERTs a (task_id, phase) snapshot: "writes are UPSERT on the
// composite key (task_id, phase); the latest write wins" (spec.md §3.7).
// It also refreshes the Task row's phases map to match, making
// phases[phase] eventually consistent with the last snapshot's status.
func (s *TaskStore) SavePhase(ctx context.Context, snap domain.PhaseSnapshot) error {
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now().UTC()
	}
	if snap.Payload == nil {
		snap.Payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(snap.Payload)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO pipeline_phase_snapshots (task_id, phase, status, updated_at, duration_ms, error_message, payload_json)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (task_id, phase) DO UPDATE SET
	status = excluded.status,
	updated_at = excluded.updated_at,
	duration_ms = excluded.duration_ms,
	error_message = excluded.error_message,
	payload_json = excluded.payload_json`,
		snap.TaskID, snap.Phase, string(snap.Status), snap.UpdatedAt, snap.DurationMS, snap.ErrorMessage, string(payloadJSON)); err != nil {
		return err
	}

	row := tx.QueryRowContext(ctx, `SELECT phases_json FROM pipeline_tasks WHERE task_id = ?`, snap.TaskID)
	var phasesJSON string
	if err := row.Scan(&phasesJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	phases := map[string]domain.PhaseStatus{}
	_ = json.Unmarshal([]byte(phasesJSON), &phases)
	phases[snap.Phase] = snap.Status
	updatedPhasesJSON, err := json.Marshal(phases)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE pipeline_tasks SET phases_json = ?, updated_at = ? WHERE task_id = ?`,
		string(updatedPhasesJSON), snap.UpdatedAt, snap.TaskID); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadLatestPhase returns the current snapshot for (taskID, phase).
func (s *TaskStore) LoadLatestPhase(ctx context.Context, taskID, phase string) (domain.PhaseSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT task_id, phase, status, updated_at, duration_ms, error_message, payload_json
FROM pipeline_phase_snapshots WHERE task_id = ? AND phase = ?`, taskID, phase)
	var snap domain.PhaseSnapshot
	var status, payloadJSON string
	if err := row.Scan(&snap.TaskID, &snap.Phase, &status, &snap.UpdatedAt, &snap.DurationMS, &snap.ErrorMessage, &payloadJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PhaseSnapshot{}, ErrNotFound
		}
		return domain.PhaseSnapshot{}, err
	}
	snap.Status = domain.PhaseStatus(status)
	snap.Payload = map[string]any{}
	_ = json.Unmarshal([]byte(payloadJSON), &snap.Payload)
	return snap, nil
}

// LoadLatestForTask returns every phase's current snapshot for a task.
func (s *TaskStore) LoadLatestForTask(ctx context.Context, taskID string) ([]domain.PhaseSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT task_id, phase, status, updated_at, duration_ms, error_message, payload_json
FROM pipeline_phase_snapshots WHERE task_id = ? ORDER BY phase ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.PhaseSnapshot{}
	for rows.Next() {
		var snap domain.PhaseSnapshot
		var status, payloadJSON string
		if err := rows.Scan(&snap.TaskID, &snap.Phase, &status, &snap.UpdatedAt, &snap.DurationMS, &snap.ErrorMessage, &payloadJSON); err != nil {
			return nil, err
		}
		snap.Status = domain.PhaseStatus(status)
		snap.Payload = map[string]any{}
		_ = json.Unmarshal([]byte(payloadJSON), &snap.Payload)
		out = append(out, snap)
	}
	return out, rows.Err()
}

// ReapStaleRunning marks phase snapshots stuck in "running" older than
// maxAge as "failed" (spec.md §5: "a cancelled turn may leave its Phase
// Snapshots in state running; recovery on next resume treats
// running > threshold_age as failed").
func (s *TaskStore) ReapStaleRunning(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	res, err := s.db.ExecContext(ctx, `
UPDATE pipeline_phase_snapshots
SET status = ?, error_message = 'reaped: stale running snapshot'
WHERE status = ? AND updated_at < ?`, string(domain.PhaseFailed), string(domain.PhaseRunning), cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
