package kalshorb

import (
	"context"
	"time"

	"kalshorb/pkg/advisor"
)

// Action names accepted in InboundRequest.Action.
const (
	ActionChat        = "chat"
	ActionQuickAction = "quick_action"
)

// InboundRequest is a decoded client request.
type InboundRequest struct {
	UserID         string
	SessionID      string
	Message        string
	Action         string
	IncludeContext bool
}

// Response is the payload returned for a successful request.
type Response struct {
	Message          string           `json:"message"`
	Confidence       int              `json:"confidence"`
	SuggestedActions []advisor.Action `json:"suggested_actions"`
	MarketData       []any            `json:"market_data,omitempty"`
	SessionID        string           `json:"session_id,omitempty"`
}

// MessageRecord is a persisted chat turn.
type MessageRecord struct {
	ID               string           `json:"id,omitempty"`
	UserID           string           `json:"user_id"`
	SessionID        string           `json:"session_id"`
	Role             advisor.Role     `json:"role"`
	Content          string           `json:"content"`
	ConfidenceScore  *int             `json:"confidence_score,omitempty"`
	SuggestedActions []advisor.Action `json:"suggested_actions,omitempty"`
	MarketContext    map[string]any   `json:"market_context,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// SessionRecord is a conversation session's metadata.
type SessionRecord struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Title         string     `json:"title"`
	Summary       string     `json:"summary,omitempty"`
	MessageCount  int        `json:"message_count"`
	IsArchived    bool       `json:"is_archived"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

// SessionUpdate carries the fields refreshed after every exchange.
type SessionUpdate struct {
	Summary       string    `json:"summary"`
	UpdatedAt     time.Time `json:"updated_at"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// Store persists chat turns and sessions and reads account context.
type Store interface {
	SaveMessage(ctx context.Context, msg MessageRecord) error
	SessionExists(ctx context.Context, sessionID string) (bool, error)
	CreateSession(ctx context.Context, session SessionRecord) error
	UpdateSession(ctx context.Context, sessionID string, update SessionUpdate) error
	// RecentMessages returns up to limit messages, most recent first.
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]MessageRecord, error)
	ListSessions(ctx context.Context, userID string, limit int) ([]SessionRecord, error)

	OpenPositions(ctx context.Context, userID string, limit int) ([]advisor.Position, error)
	// CurrentRiskAssessment and ActivePortfolio return nil, nil when absent.
	CurrentRiskAssessment(ctx context.Context, userID string) (*advisor.RiskAssessment, error)
	ActivePortfolio(ctx context.Context, userID string) (*advisor.Portfolio, error)
}

// CompletionRequest is one upstream chat-completion call.
type CompletionRequest struct {
	System      string
	Messages    []advisor.Turn
	Temperature float64
	MaxTokens   int
	// TopP is omitted from the call when zero.
	TopP float64
}

// Completer is an upstream chat-completion API.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
