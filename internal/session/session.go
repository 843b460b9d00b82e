package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role of one turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrRoleOrder is returned when a turn would break the strict
	// user/assistant alternation within a session.
	ErrRoleOrder = errors.New("turn role breaks session alternation")
	// ErrSessionNotFound is returned on operations against an unknown session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTurnNotLast is returned when a turn cannot be removed because it is
	// missing or no longer the last of its session.
	ErrTurnNotLast = errors.New("turn is not the last of its session")
)

// Turn is one recorded message within a session.
type Turn struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Ordinal    int       `json:"ordinal"`
	Role       string    `json:"role"`
	Text       string    `json:"text"`
	TaskType   string    `json:"task_type,omitempty"`
	BackendID  string    `json:"backend_id,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Sources    []string  `json:"sources,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Metadata carries the optional assistant-turn annotations.
type Metadata struct {
	TaskType   string
	BackendID  string
	Confidence float64
	Sources    []string
}

// Store persists conversation turns in SQLite. Appends within one session
// are serialized so ordinals stay monotonic and roles alternate.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS turns (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			task_type TEXT NOT NULL DEFAULT '',
			backend_id TEXT NOT NULL DEFAULT '',
			confidence REAL NOT NULL DEFAULT 0,
			sources TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(session_id, ordinal)
		);
		CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, ordinal);
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate session schema: %w", err)
	}
	return nil
}

// AppendTurn records one turn at the next ordinal. The first turn of a
// session must be a user turn; roles must alternate afterwards.
func (s *Store) AppendTurn(ctx context.Context, sessionID, role, text string, meta *Metadata) (string, error) {
	if role != RoleUser && role != RoleAssistant {
		return "", fmt.Errorf("unknown turn role %q", role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO sessions (id) VALUES (?)", sessionID); err != nil {
		return "", err
	}

	var lastRole sql.NullString
	var lastOrdinal sql.NullInt64
	err = tx.QueryRowContext(ctx,
		"SELECT role, ordinal FROM turns WHERE session_id = ? ORDER BY ordinal DESC LIMIT 1",
		sessionID).Scan(&lastRole, &lastOrdinal)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	expected := RoleUser
	if lastRole.Valid && lastRole.String == RoleUser {
		expected = RoleAssistant
	}
	if role != expected {
		return "", fmt.Errorf("%w: got %s, expected %s", ErrRoleOrder, role, expected)
	}

	ordinal := 1
	if lastOrdinal.Valid {
		ordinal = int(lastOrdinal.Int64) + 1
	}

	turnID := uuid.New().String()
	var taskType, backendID string
	var confidence float64
	sourcesJSON := "[]"
	if meta != nil {
		taskType = meta.TaskType
		backendID = meta.BackendID
		confidence = meta.Confidence
		if len(meta.Sources) > 0 {
			if data, err := json.Marshal(meta.Sources); err == nil {
				sourcesJSON = string(data)
			}
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO turns (id, session_id, ordinal, role, text, task_type, backend_id, confidence, sources)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		turnID, sessionID, ordinal, role, text, taskType, backendID, confidence, sourcesJSON)
	if err != nil {
		return "", fmt.Errorf("failed to append turn: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return turnID, nil
}

// Turns returns all turns of a session in insertion order.
func (s *Store) Turns(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, ordinal, role, text, task_type, backend_id, confidence, sources, created_at
		FROM turns WHERE session_id = ? ORDER BY ordinal ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var sourcesJSON string
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Ordinal, &t.Role, &t.Text,
			&t.TaskType, &t.BackendID, &t.Confidence, &sourcesJSON, &t.CreatedAt); err != nil {
			return nil, err
		}
		if sourcesJSON != "" && sourcesJSON != "[]" {
			_ = json.Unmarshal([]byte(sourcesJSON), &t.Sources)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// DeleteTurn removes one turn, but only while it is still the last of its
// session, so the alternation invariant survives the removal. Callers use it
// to roll back a user turn whose task failed before an assistant turn was
// produced.
func (s *Store) DeleteTurn(ctx context.Context, sessionID, turnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM turns WHERE id = ? AND session_id = ?
		AND ordinal = (SELECT MAX(ordinal) FROM turns WHERE session_id = ?)`,
		turnID, sessionID, sessionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTurnNotLast
	}
	return nil
}

func (s *Store) UpdateTitle(ctx context.Context, sessionID, title string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET title = ? WHERE id = ?", title, sessionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM turns WHERE session_id = ?", sessionID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID); err != nil {
		return err
	}
	return tx.Commit()
}

// Ping verifies storage reachability for the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
