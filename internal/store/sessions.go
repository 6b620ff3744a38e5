package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"factcheck-orchestrator/internal/domain"
)

const sessionSchema = `
CREATE TABLE IF NOT EXISTS chat_sessions (
	session_id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	meta_json TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS chat_messages (
	message_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES chat_sessions(session_id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	actions_json TEXT NOT NULL DEFAULT '[]',
	references_json TEXT NOT NULL DEFAULT '[]',
	created_at TIMESTAMP NOT NULL,
	meta_json TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS chat_messages_session_created_idx ON chat_messages(session_id, created_at);
`

// SessionStore is the Session Store (spec.md §2 row D, §3.5/§3.6): Sessions,
// Messages, and the additively-updated session meta bag.
type SessionStore struct {
	db *sql.DB
}

// OpenSessionStore opens (creating if absent) the chat_sessions/chat_messages
// database at path, falling back to a tempdir copy on disk I/O error.
func OpenSessionStore(path string, tempDirFallback bool) (*SessionStore, error) {
	db, err := openWithFallback(path, tempDirFallback)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sessionSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &SessionStore{db: db}, nil
}

func (s *SessionStore) Close() error { return s.db.Close() }

// CreateSession inserts a new Session with an empty meta bag.
func (s *SessionStore) CreateSession(ctx context.Context, title string) (domain.Session, error) {
	now := time.Now().UTC()
	sess := domain.Session{
		SessionID: uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Meta:      map[string]any{},
	}
	metaJSON, err := json.Marshal(sess.Meta)
	if err != nil {
		return domain.Session{}, err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO chat_sessions (session_id, title, created_at, updated_at, meta_json)
VALUES (?, ?, ?, ?, ?)`, sess.SessionID, sess.Title, sess.CreatedAt, sess.UpdatedAt, string(metaJSON))
	if err != nil {
		return domain.Session{}, err
	}
	return sess, nil
}

func scanSession(row interface{ Scan(...any) error }) (domain.Session, error) {
	var sess domain.Session
	var metaJSON string
	if err := row.Scan(&sess.SessionID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt, &metaJSON); err != nil {
		return domain.Session{}, err
	}
	sess.Meta = map[string]any{}
	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &sess.Meta); err != nil {
			return domain.Session{}, err
		}
	}
	return sess, nil
}

// GetSession returns one Session by id.
func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT session_id, title, created_at, updated_at, meta_json
FROM chat_sessions WHERE session_id = ?`, sessionID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, ErrNotFound
	}
	return sess, err
}

// ListSessions returns sessions ordered by most recently updated, capped at limit.
func (s *SessionStore) ListSessions(ctx context.Context, limit int) ([]domain.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT session_id, title, created_at, updated_at, meta_json
FROM chat_sessions ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// UpdateMeta performs the additive read-modify-write update spec.md §3.5
// requires: patch's keys overwrite, all other existing keys survive. The
// caller is responsible for serializing concurrent calls for the same
// session_id (internal/concurrency.SessionLocks).
func (s *SessionStore) UpdateMeta(ctx context.Context, sessionID string, patch map[string]any) error {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	for k, v := range patch {
		sess.Meta[k] = v
	}
	metaJSON, err := json.Marshal(sess.Meta)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
UPDATE chat_sessions SET meta_json = ?, updated_at = ? WHERE session_id = ?`,
		string(metaJSON), time.Now().UTC(), sessionID)
	return err
}

// AppendMessage inserts one Message and bumps the owning session's updated_at.
func (s *SessionStore) AppendMessage(ctx context.Context, msg domain.Message) error {
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.Meta == nil {
		msg.Meta = map[string]any{}
	}
	actionsJSON, err := json.Marshal(msg.Actions)
	if err != nil {
		return err
	}
	referencesJSON, err := json.Marshal(msg.References)
	if err != nil {
		return err
	}
	metaJSON, err := json.Marshal(msg.Meta)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `
INSERT INTO chat_messages (message_id, session_id, role, content, actions_json, references_json, created_at, meta_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.MessageID, msg.SessionID, msg.Role, msg.Content, string(actionsJSON), string(referencesJSON), msg.CreatedAt, string(metaJSON)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE chat_sessions SET updated_at = ? WHERE session_id = ?`, msg.CreatedAt, msg.SessionID); err != nil {
		return err
	}
	return tx.Commit()
}

// ListMessages returns a session's messages in chronological order.
func (s *SessionStore) ListMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	query := `
SELECT message_id, session_id, role, content, actions_json, references_json, created_at, meta_json
FROM chat_messages WHERE session_id = ? ORDER BY created_at ASC`
	args := []any{sessionID}
	if limit > 0 {
		query = `
SELECT message_id, session_id, role, content, actions_json, references_json, created_at, meta_json FROM (
	SELECT message_id, session_id, role, content, actions_json, references_json, created_at, meta_json
	FROM chat_messages WHERE session_id = ? ORDER BY created_at DESC LIMIT ?
) sub ORDER BY created_at ASC`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Message{}
	for rows.Next() {
		var msg domain.Message
		var actionsJSON, referencesJSON, metaJSON string
		if err := rows.Scan(&msg.MessageID, &msg.SessionID, &msg.Role, &msg.Content, &actionsJSON, &referencesJSON, &msg.CreatedAt, &metaJSON); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(actionsJSON), &msg.Actions)
		_ = json.Unmarshal([]byte(referencesJSON), &msg.References)
		msg.Meta = map[string]any{}
		_ = json.Unmarshal([]byte(metaJSON), &msg.Meta)
		out = append(out, msg)
	}
	return out, rows.Err()
}
