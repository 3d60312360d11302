package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrSessionNotFound is returned by reads for unknown sessions.
var ErrSessionNotFound = fmt.Errorf("session not found")

// Store is the durable tier: an append-only message log plus a session
// index, backed by SQLite. Summarization never touches it; the full history
// stays here.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the store at path. ":memory:" gives an
// ephemeral store for tests.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent sessions.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id    TEXT PRIMARY KEY,
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL,
		metadata_json TEXT NOT NULL DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS messages (
		monotonic_id  INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id    TEXT NOT NULL REFERENCES sessions(session_id),
		role          TEXT NOT NULL,
		content       TEXT NOT NULL,
		capture_time  TEXT NOT NULL,
		metadata_json TEXT NOT NULL DEFAULT '{}'
	);

	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func isoNow() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// EnsureSession creates the session row if absent and bumps updated_at.
func (s *Store) EnsureSession(ctx context.Context, sessionID string, metadata map[string]string) error {
	metaJSON, err := json.Marshal(orEmpty(metadata))
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	now := isoNow()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, created_at, updated_at, metadata_json)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET updated_at = excluded.updated_at`,
		sessionID, now, now, string(metaJSON))
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

// AppendMessage appends one message and bumps the session's updated_at in a
// single transaction. The monotonic id is assigned by the store.
func (s *Store) AppendMessage(ctx context.Context, msg Message) error {
	metaJSON, err := json.Marshal(orEmpty(msg.Metadata))
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	captureTime := msg.CaptureTime
	if captureTime.IsZero() {
		captureTime = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (session_id, role, content, capture_time, metadata_json)
		VALUES (?, ?, ?, ?, ?)`,
		msg.SessionID, msg.Role, msg.Content,
		captureTime.Format(time.RFC3339Nano), string(metaJSON)); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE session_id = ?`,
		isoNow(), msg.SessionID); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}

	return tx.Commit()
}

// RecentMessages returns the most recent limit messages in chronological
// order, with contiguous per-session sequence numbers starting at 1 for the
// oldest returned message.
func (s *Store) RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, capture_time, metadata_json
		FROM messages
		WHERE session_id = ?
		ORDER BY monotonic_id DESC
		LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var reversed []Message
	for rows.Next() {
		var msg Message
		var captureTime, metaJSON string
		if err := rows.Scan(&msg.Role, &msg.Content, &captureTime, &metaJSON); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.SessionID = sessionID
		msg.CaptureTime, _ = time.Parse(time.RFC3339Nano, captureTime)
		if metaJSON != "" && metaJSON != "{}" {
			_ = json.Unmarshal([]byte(metaJSON), &msg.Metadata)
		}
		reversed = append(reversed, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	messages := make([]Message, len(reversed))
	for i := range reversed {
		messages[i] = reversed[len(reversed)-1-i]
		messages[i].Sequence = int64(i + 1)
	}
	return messages, nil
}

// GetSession reads the session row.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var createdAt, updatedAt, metaJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT created_at, updated_at, metadata_json
		FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&createdAt, &updatedAt, &metaJSON)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	session := &Session{ID: sessionID}
	session.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	session.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if metaJSON != "" && metaJSON != "{}" {
		_ = json.Unmarshal([]byte(metaJSON), &session.Metadata)
	}
	return session, nil
}

// MessageCount returns the durable message count for a session.
func (s *Store) MessageCount(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// RecentSessions lists sessions by updated_at descending.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, created_at, updated_at, metadata_json
		FROM sessions
		ORDER BY updated_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var session Session
		var createdAt, updatedAt, metaJSON string
		if err := rows.Scan(&session.ID, &createdAt, &updatedAt, &metaJSON); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		session.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		session.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		if metaJSON != "" && metaJSON != "{}" {
			_ = json.Unmarshal([]byte(metaJSON), &session.Metadata)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// Sweep deletes sessions whose updated_at is older than cutoff, and their
// messages. Idempotent; returns the number of sessions removed.
func (s *Store) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	cutoffStr := cutoff.UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM messages WHERE session_id IN (
			SELECT session_id FROM sessions WHERE updated_at < ?
		)`, cutoffStr); err != nil {
		return 0, fmt.Errorf("failed to sweep messages: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM sessions WHERE updated_at < ?`, cutoffStr)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep sessions: %w", err)
	}

	removed, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(removed), nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
