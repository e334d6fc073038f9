// Package memory persists marketplace sessions and the dialog log.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"marketbot/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.DialogStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) FindSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var sess domain.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, merchant_id, current_phase, status, created_at FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&sess.SessionID, &sess.MerchantID, &sess.CurrentPhase, &sess.Status, &sess.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find session %s: %w", sessionID, err)
	}
	return &sess, nil
}

func (s *SQLiteStore) CreateSession(ctx context.Context, sess domain.Session) error {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (session_id, merchant_id, current_phase, status, created_at, last_active_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.SessionID, sess.MerchantID, sess.CurrentPhase, sess.Status, sess.CreatedAt, sess.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create session %s: %w", sess.SessionID, err)
	}
	return nil
}

func (s *SQLiteStore) CreateDialogMessage(ctx context.Context, m domain.DialogMessage) error {
	if m.ProcessedAt.IsZero() {
		m.ProcessedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dialog_messages (message_id, session_id, message_type, content, ai_response, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.MessageID, m.SessionID, m.MessageType, m.Content, m.AIResponse, m.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("create dialog message %s: %w", m.MessageID, err)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_active_at = ? WHERE session_id = ?`, m.ProcessedAt, m.SessionID,
	); err != nil {
		s.logger.Warn("cannot update session activity", "session", m.SessionID, "err", err)
	}
	return nil
}

func (s *SQLiteStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.DialogMessage, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, session_id, message_type, content, ai_response, processed_at
		 FROM dialog_messages WHERE session_id = ?
		 ORDER BY processed_at DESC, rowid DESC LIMIT ?`, sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent messages %s: %w", sessionID, err)
	}
	defer rows.Close()

	var msgs []domain.DialogMessage
	for rows.Next() {
		var m domain.DialogMessage
		var content, reply sql.NullString
		if err := rows.Scan(&m.MessageID, &m.SessionID, &m.MessageType, &content, &reply, &m.ProcessedAt); err != nil {
			return nil, err
		}
		m.Content, m.AIResponse = content.String, reply.String
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// Ping checks that the database file is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
