package agent

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"marketbot/internal/domain"
)

// SessionManager finds or opens dialog sessions and reads their history.
type SessionManager struct {
	store  domain.DialogStore
	logger *slog.Logger
	mu     sync.RWMutex
}

func NewSessionManager(store domain.DialogStore, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{store: store, logger: logger}
}

// GetOrCreate returns the stored session, creating an ACTIVE marketplace
// session for merchantID when none exists.
func (sm *SessionManager) GetOrCreate(ctx context.Context, sessionID, merchantID string) (*domain.Session, error) {
	// Fast path: read lock (most calls hit here)
	sm.mu.RLock()
	sess, err := sm.store.FindSession(ctx, sessionID)
	sm.mu.RUnlock()
	if err != nil || sess != nil {
		return sess, err
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	sess, err = sm.store.FindSession(ctx, sessionID)
	if err != nil || sess != nil {
		return sess, err
	}

	created := domain.Session{
		SessionID:    sessionID,
		MerchantID:   merchantID,
		CurrentPhase: domain.PhaseMarketplace,
		Status:       domain.StatusActive,
		CreatedAt:    time.Now(),
	}
	if err := sm.store.CreateSession(ctx, created); err != nil {
		return nil, err
	}
	sm.logger.Info("created new session", "session", sessionID, "merchant", merchantID)
	return &created, nil
}

// Recent returns up to limit messages of the session, most recent first.
func (sm *SessionManager) Recent(ctx context.Context, sessionID string, limit int) ([]domain.DialogMessage, error) {
	return sm.store.RecentMessages(ctx, sessionID, limit)
}

// Save appends one turn to the dialog log. Failures are logged and dropped.
func (sm *SessionManager) Save(ctx context.Context, m domain.DialogMessage) bool {
	if err := sm.store.CreateDialogMessage(ctx, m); err != nil {
		sm.logger.Warn("failed to save dialog message", "session", m.SessionID, "message", m.MessageID, "err", err)
		return false
	}
	return true
}

// buildContext renders the conversation context handed to the text
// generator: mode, merchant, then the recent turns newest first.
func buildContext(intent domain.Intent, merchantID string, recent []domain.DialogMessage) string {
	var sb strings.Builder
	sb.WriteString("会话模式: " + string(intent) + "\n")
	sb.WriteString("商家ID: " + merchantID + "\n")
	if len(recent) > 0 {
		sb.WriteString("最近对话:\n")
		for _, m := range recent {
			sb.WriteString("用户: " + m.Content + "\n")
			sb.WriteString("助手: " + m.AIResponse + "\n")
		}
	}
	return sb.String()
}
