package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"factcheck-orchestrator/internal/domain"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS analysis_history (
	id TEXT PRIMARY KEY,
	created_at TIMESTAMP NOT NULL,
	input_text TEXT NOT NULL,
	risk_label TEXT NOT NULL,
	risk_score REAL NOT NULL,
	detected_scenario TEXT NOT NULL,
	evidence_domains_json TEXT NOT NULL DEFAULT '[]',
	report_json TEXT NOT NULL DEFAULT '{}',
	detect_json TEXT NOT NULL DEFAULT '{}',
	simulation_json TEXT NOT NULL DEFAULT '{}',
	content_json TEXT NOT NULL DEFAULT '{}',
	feedback_status TEXT NOT NULL DEFAULT '',
	feedback_note TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS analysis_history_created_idx ON analysis_history(created_at DESC);
`

// HistoryStore is the History Store (spec.md §2 row F, §3.8): an
// append-only analysis-record table whose scalar fields freeze on insert,
// with feedback/simulation/content updatable afterward.
type HistoryStore struct {
	db *sql.DB
}

// OpenHistoryStore opens (creating if absent) the analysis_history database
// at path, falling back to a tempdir copy on disk I/O error.
func OpenHistoryStore(path string, tempDirFallback bool) (*HistoryStore, error) {
	db, err := openWithFallback(path, tempDirFallback)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, err
	}
	return &HistoryStore{db: db}, nil
}

func (s *HistoryStore) Close() error { return s.db.Close() }

// Create inserts a new History Record. The frozen scalar fields (input_text,
// risk_label, risk_score, detected_scenario, evidence_domains, report,
// detect_data) are set once here and never mutated again.
func (s *HistoryStore) Create(ctx context.Context, rec domain.HistoryRecord) (domain.HistoryRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	domainsJSON, err := json.Marshal(rec.EvidenceDomains)
	if err != nil {
		return domain.HistoryRecord{}, err
	}
	reportJSON, err := json.Marshal(rec.Report)
	if err != nil {
		return domain.HistoryRecord{}, err
	}
	detectJSON, err := json.Marshal(rec.DetectData)
	if err != nil {
		return domain.HistoryRecord{}, err
	}
	simJSON, err := json.Marshal(rec.Simulation)
	if err != nil {
		return domain.HistoryRecord{}, err
	}
	contentJSON, err := json.Marshal(rec.Content)
	if err != nil {
		return domain.HistoryRecord{}, err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO analysis_history (
	id, created_at, input_text, risk_label, risk_score, detected_scenario,
	evidence_domains_json, report_json, detect_json, simulation_json, content_json,
	feedback_status, feedback_note
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CreatedAt, rec.InputText, string(rec.RiskLabel), rec.RiskScore, string(rec.DetectedScenario),
		string(domainsJSON), string(reportJSON), string(detectJSON), string(simJSON), string(contentJSON),
		string(rec.FeedbackStatus), rec.FeedbackNote)
	if err != nil {
		return domain.HistoryRecord{}, err
	}
	return rec, nil
}

func scanHistory(row interface{ Scan(...any) error }) (domain.HistoryRecord, error) {
	var rec domain.HistoryRecord
	var riskLabel, scenario, domainsJSON, reportJSON, detectJSON, simJSON, contentJSON, feedbackStatus string
	if err := row.Scan(&rec.ID, &rec.CreatedAt, &rec.InputText, &riskLabel, &rec.RiskScore, &scenario,
		&domainsJSON, &reportJSON, &detectJSON, &simJSON, &contentJSON, &feedbackStatus, &rec.FeedbackNote); err != nil {
		return domain.HistoryRecord{}, err
	}
	rec.RiskLabel = domain.RiskLabel(riskLabel)
	rec.DetectedScenario = domain.Scenario(scenario)
	rec.FeedbackStatus = domain.FeedbackStatus(feedbackStatus)
	_ = json.Unmarshal([]byte(domainsJSON), &rec.EvidenceDomains)
	if strings.TrimSpace(reportJSON) != "" && reportJSON != "null" {
		var report domain.Report
		if err := json.Unmarshal([]byte(reportJSON), &report); err == nil {
			rec.Report = &report
		}
	}
	rec.DetectData = map[string]any{}
	_ = json.Unmarshal([]byte(detectJSON), &rec.DetectData)
	rec.Simulation = map[string]any{}
	_ = json.Unmarshal([]byte(simJSON), &rec.Simulation)
	rec.Content = map[string]any{}
	_ = json.Unmarshal([]byte(contentJSON), &rec.Content)
	return rec, nil
}

// Get returns one History Record by id; lookups tolerate absence by
// returning ErrNotFound rather than panicking, since session.meta.record_id
// is only a weak reference (spec.md §3.9).
func (s *HistoryStore) Get(ctx context.Context, id string) (domain.HistoryRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, created_at, input_text, risk_label, risk_score, detected_scenario,
	evidence_domains_json, report_json, detect_json, simulation_json, content_json,
	feedback_status, feedback_note
FROM analysis_history WHERE id = ?`, id)
	rec, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.HistoryRecord{}, ErrNotFound
	}
	return rec, err
}

// List returns History Records newest-first, capped at limit.
func (s *HistoryStore) List(ctx context.Context, limit int) ([]domain.HistoryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, created_at, input_text, risk_label, risk_score, detected_scenario,
	evidence_domains_json, report_json, detect_json, simulation_json, content_json,
	feedback_status, feedback_note
FROM analysis_history ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.HistoryRecord{}
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpdateFeedback sets feedback_status/feedback_note, the one post-insert
// mutation spec.md §3.8 allows alongside simulation and content.
func (s *HistoryStore) UpdateFeedback(ctx context.Context, id string, status domain.FeedbackStatus, note string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE analysis_history SET feedback_status = ?, feedback_note = ? WHERE id = ?`, string(status), note, id)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(res)
}

// UpdateSimulation sets the simulation payload, the second post-insert
// mutation spec.md §3.8 allows.
func (s *HistoryStore) UpdateSimulation(ctx context.Context, id string, simulation map[string]any) error {
	simJSON, err := json.Marshal(simulation)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE analysis_history SET simulation_json = ? WHERE id = ?`, string(simJSON), id)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(res)
}

// UpdateContent sets the generated-content payload, the third post-insert
// mutation spec.md §3.8 allows.
func (s *HistoryStore) UpdateContent(ctx context.Context, id string, content map[string]any) error {
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE analysis_history SET content_json = ? WHERE id = ?`, string(contentJSON), id)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(res)
}

func rowsAffectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
