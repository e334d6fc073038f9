package domain

import (
	"context"
	"time"
)

// Session phases and statuses.
const (
	PhaseMarketplace = "marketplace"
	StatusActive     = "ACTIVE"
)

// DialogStore persists sessions and the per-turn dialog log.
type DialogStore interface {
	// FindSession returns nil, nil when the session does not exist.
	FindSession(ctx context.Context, sessionID string) (*Session, error)
	CreateSession(ctx context.Context, s Session) error

	CreateDialogMessage(ctx context.Context, m DialogMessage) error
	// RecentMessages returns up to limit messages, most recent first.
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]DialogMessage, error)

	Close() error
}

type Session struct {
	SessionID    string    `json:"sessionId"`
	MerchantID   string    `json:"merchantId"`
	CurrentPhase string    `json:"currentPhase"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

// DialogMessage is one processed turn: what the user sent and what they got back.
type DialogMessage struct {
	MessageID   string    `json:"messageId"`
	SessionID   string    `json:"sessionId"`
	MessageType string    `json:"messageType"` // intent name
	Content     string    `json:"content"`
	AIResponse  string    `json:"aiResponse"`
	ProcessedAt time.Time `json:"processedAt"`
}
