package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"marketbot/internal/domain"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id     TEXT PRIMARY KEY,
	merchant_id    TEXT NOT NULL DEFAULT '',
	current_phase  TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_active_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_sessions_merchant ON sessions(merchant_id, last_active_at);

CREATE TABLE IF NOT EXISTS dialog_messages (
	id           BIGSERIAL PRIMARY KEY,
	message_id   TEXT NOT NULL UNIQUE,
	session_id   TEXT NOT NULL REFERENCES sessions(session_id),
	message_type TEXT NOT NULL,
	content      TEXT NOT NULL DEFAULT '',
	ai_response  TEXT NOT NULL DEFAULT '',
	processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_dialog_session ON dialog_messages(session_id, processed_at);
`

// PostgresStore implements domain.DialogStore on a pgx connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresStore(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	logger.Info("connected to postgres", "max_conns", cfg.MaxConns)
	return &PostgresStore{pool: pool, logger: logger}, nil
}

func (s *PostgresStore) FindSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var sess domain.Session
	err := s.pool.QueryRow(ctx,
		`SELECT session_id, merchant_id, current_phase, status, created_at FROM sessions WHERE session_id = $1`, sessionID,
	).Scan(&sess.SessionID, &sess.MerchantID, &sess.CurrentPhase, &sess.Status, &sess.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find session %s: %w", sessionID, err)
	}
	return &sess, nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess domain.Session) error {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (session_id, merchant_id, current_phase, status, created_at, last_active_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (session_id) DO NOTHING`,
		sess.SessionID, sess.MerchantID, sess.CurrentPhase, sess.Status, sess.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create session %s: %w", sess.SessionID, err)
	}
	return nil
}

func (s *PostgresStore) CreateDialogMessage(ctx context.Context, m domain.DialogMessage) error {
	if m.ProcessedAt.IsZero() {
		m.ProcessedAt = time.Now()
	}

	batch := &pgx.Batch{}
	batch.Queue(
		`INSERT INTO dialog_messages (message_id, session_id, message_type, content, ai_response, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		m.MessageID, m.SessionID, m.MessageType, m.Content, m.AIResponse, m.ProcessedAt,
	)
	batch.Queue(`UPDATE sessions SET last_active_at = $1 WHERE session_id = $2`, m.ProcessedAt, m.SessionID)

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("create dialog message %s: %w", m.MessageID, err)
	}
	return nil
}

func (s *PostgresStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.DialogMessage, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT message_id, session_id, message_type, content, ai_response, processed_at
		 FROM dialog_messages WHERE session_id = $1
		 ORDER BY processed_at DESC, id DESC LIMIT $2`, sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent messages %s: %w", sessionID, err)
	}

	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.DialogMessage, error) {
		var m domain.DialogMessage
		err := row.Scan(&m.MessageID, &m.SessionID, &m.MessageType, &m.Content, &m.AIResponse, &m.ProcessedAt)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("recent messages %s: %w", sessionID, err)
	}
	return msgs, nil
}

// Ping checks that the pool can reach the server.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
