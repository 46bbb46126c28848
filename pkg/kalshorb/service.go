package kalshorb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"kalshorb/pkg/advisor"
)

const (
	// HistoryLimit is the number of recent turns read for a chat.
	HistoryLimit = 10
	// MaxContextPositions bounds the open positions read into account context.
	MaxContextPositions = 5

	sessionTitleMax   = 50
	sessionSummaryMax = 100

	defaultTemperature    = 0.7
	defaultTopP           = 0.95
	defaultChatMaxTokens  = 1024
	defaultQuickMaxTokens = 512
	defaultSessionsLimit  = 20
	maxListLimit          = 100
)

// Options controls Service construction.
type Options struct {
	Store     Store
	Completer Completer
	Logger    *slog.Logger
	Now       func() time.Time

	Temperature    float64
	TopP           float64
	ChatMaxTokens  int
	QuickMaxTokens int
}

// Service dispatches advisor requests. It holds no per-request state and is
// safe for concurrent use.
type Service struct {
	store     Store
	completer Completer
	logger    *slog.Logger
	now       func() time.Time

	temperature    float64
	topP           float64
	chatMaxTokens  int
	quickMaxTokens int
}

// New builds a Service. A nil Store discards writes and reads nothing; a nil
// Completer always answers in fallback mode.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	store := opts.Store
	if store == nil {
		store = nopStore{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:          store,
		completer:      opts.Completer,
		logger:         logger,
		now:            now,
		temperature:    defaultFloat(opts.Temperature, defaultTemperature),
		topP:           defaultFloat(opts.TopP, defaultTopP),
		chatMaxTokens:  defaultInt(opts.ChatMaxTokens, defaultChatMaxTokens),
		quickMaxTokens: defaultInt(opts.QuickMaxTokens, defaultQuickMaxTokens),
	}
}

// Handle validates req and dispatches it by action.
func (s *Service) Handle(ctx context.Context, req InboundRequest) (*Response, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, NewError(ErrCodeInvalidInput, "User ID is required")
	}
	action := req.Action
	if action == "" {
		action = ActionChat
	}
	switch action {
	case ActionChat:
		return s.Chat(ctx, req)
	case ActionQuickAction:
		return s.QuickAction(ctx, req)
	default:
		return nil, NewError(ErrCodeUnknownAction, fmt.Sprintf("Unknown action: %s", action))
	}
}

// Chat answers one chat message, persisting both turns on a best-effort basis.
func (s *Service) Chat(ctx context.Context, req InboundRequest) (*Response, error) {
	if req.Message == "" || req.SessionID == "" {
		return nil, NewError(ErrCodeInvalidInput, "Message and session ID are required")
	}

	s.bestEffort(ctx, "save user message", func() error {
		return s.store.SaveMessage(ctx, MessageRecord{
			UserID:    req.UserID,
			SessionID: req.SessionID,
			Role:      advisor.RoleUser,
			Content:   req.Message,
			CreatedAt: s.now(),
		})
	})
	s.bestEffort(ctx, "ensure session", func() error {
		return s.ensureSession(ctx, req.UserID, req.SessionID, req.Message)
	})

	var account *advisor.AccountContext
	if req.IncludeContext {
		account = s.FetchAccountContext(ctx, req.UserID)
	}
	history := s.history(ctx, req.SessionID, req.Message)

	reply := s.generate(ctx, req.Message, history, account)

	var marketContext map[string]any
	if len(reply.MarketData) > 0 {
		marketContext = map[string]any{"markets": reply.MarketData}
	}
	confidence := reply.Confidence
	s.bestEffort(ctx, "save assistant message", func() error {
		return s.store.SaveMessage(ctx, MessageRecord{
			UserID:           req.UserID,
			SessionID:        req.SessionID,
			Role:             advisor.RoleAssistant,
			Content:          reply.Message,
			ConfidenceScore:  &confidence,
			SuggestedActions: reply.SuggestedActions,
			MarketContext:    marketContext,
			CreatedAt:        s.now(),
		})
	})
	s.bestEffort(ctx, "update session", func() error {
		now := s.now()
		return s.store.UpdateSession(ctx, req.SessionID, SessionUpdate{
			Summary:       truncateRunes(req.Message, sessionSummaryMax),
			UpdatedAt:     now,
			LastMessageAt: now,
		})
	})

	return &Response{
		Message:          reply.Message,
		Confidence:       reply.Confidence,
		SuggestedActions: reply.SuggestedActions,
		MarketData:       reply.MarketData,
		SessionID:        req.SessionID,
	}, nil
}

// QuickAction answers a predefined action id carried in req.Message. Nothing
// is persisted.
func (s *Service) QuickAction(ctx context.Context, req InboundRequest) (*Response, error) {
	prompt := advisor.QuickActionPrompt(req.Message)
	completion, err := s.complete(ctx, CompletionRequest{
		System:      advisor.QuickActionSystemPrompt,
		Messages:    []advisor.Turn{{Role: advisor.RoleUser, Content: prompt}},
		Temperature: s.temperature,
		MaxTokens:   s.quickMaxTokens,
	})

	var reply advisor.Reply
	switch {
	case errors.Is(err, ErrEmptyCompletion):
		reply = advisor.Reply{
			Message:          advisor.QuickActionFallbackText,
			Confidence:       advisor.QuickActionConfidence,
			SuggestedActions: advisor.SuggestActions(prompt),
		}
	case err != nil:
		s.logFallback(ctx, "quick_action", err)
		reply = advisor.FallbackReply(req.Message, nil)
	default:
		reply = advisor.Reply{
			Message:          completion,
			Confidence:       advisor.QuickActionConfidence,
			SuggestedActions: advisor.SuggestActions(prompt),
		}
	}

	return &Response{
		Message:          reply.Message,
		Confidence:       reply.Confidence,
		SuggestedActions: reply.SuggestedActions,
		SessionID:        req.SessionID,
	}, nil
}

// FetchAccountContext reads positions, risk assessment and portfolio
// concurrently. A failed read leaves its field empty and never fails the others.
func (s *Service) FetchAccountContext(ctx context.Context, userID string) *advisor.AccountContext {
	account := &advisor.AccountContext{Positions: []advisor.Position{}}

	var g errgroup.Group
	g.Go(func() error {
		positions, err := s.store.OpenPositions(ctx, userID, MaxContextPositions)
		if err != nil {
			s.logger.WarnContext(ctx, "fetch open positions failed", "user_id", userID, "err", err)
			return nil
		}
		if positions != nil {
			account.Positions = positions
		}
		return nil
	})
	g.Go(func() error {
		risk, err := s.store.CurrentRiskAssessment(ctx, userID)
		if err != nil {
			s.logger.WarnContext(ctx, "fetch risk assessment failed", "user_id", userID, "err", err)
			return nil
		}
		account.RiskProfile = risk
		return nil
	})
	g.Go(func() error {
		portfolio, err := s.store.ActivePortfolio(ctx, userID)
		if err != nil {
			s.logger.WarnContext(ctx, "fetch portfolio failed", "user_id", userID, "err", err)
			return nil
		}
		account.Portfolio = portfolio
		return nil
	})
	_ = g.Wait()

	return account
}

// Sessions lists a user's sessions, most recently updated first.
func (s *Service) Sessions(ctx context.Context, userID string, limit int) ([]SessionRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, NewError(ErrCodeInvalidInput, "User ID is required")
	}
	sessions, err := s.store.ListSessions(ctx, userID, clampLimit(limit, defaultSessionsLimit))
	if err != nil {
		return nil, WrapError(ErrCodeStorage, "list sessions", err)
	}
	if sessions == nil {
		sessions = []SessionRecord{}
	}
	return sessions, nil
}

// Transcript returns a session's most recent messages in chronological order.
func (s *Service) Transcript(ctx context.Context, sessionID string, limit int) ([]MessageRecord, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, NewError(ErrCodeInvalidInput, "Session ID is required")
	}
	messages, err := s.store.RecentMessages(ctx, sessionID, clampLimit(limit, HistoryLimit))
	if err != nil {
		return nil, WrapError(ErrCodeStorage, "read messages", err)
	}
	reverse(messages)
	if messages == nil {
		messages = []MessageRecord{}
	}
	return messages, nil
}

func (s *Service) ensureSession(ctx context.Context, userID, sessionID, firstMessage string) error {
	exists, err := s.store.SessionExists(ctx, sessionID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	now := s.now()
	return s.store.CreateSession(ctx, SessionRecord{
		ID:           sessionID,
		UserID:       userID,
		Title:        ellipsize(firstMessage, sessionTitleMax),
		MessageCount: 1,
		IsArchived:   false,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

// history returns prior turns oldest-first. The current message was already
// saved, so a trailing copy of it is dropped before it is sent again.
func (s *Service) history(ctx context.Context, sessionID, current string) []advisor.Turn {
	records, err := s.store.RecentMessages(ctx, sessionID, HistoryLimit)
	if err != nil {
		s.logger.WarnContext(ctx, "fetch history failed", "session_id", sessionID, "err", err)
		return nil
	}
	reverse(records)

	turns := make([]advisor.Turn, 0, len(records))
	for _, r := range records {
		role := advisor.RoleUser
		if r.Role == advisor.RoleAssistant {
			role = advisor.RoleAssistant
		}
		turns = append(turns, advisor.Turn{Role: role, Content: r.Content})
	}
	if n := len(turns); n > 0 && turns[n-1].Role == advisor.RoleUser && turns[n-1].Content == current {
		turns = turns[:n-1]
	}
	return turns
}

func (s *Service) generate(ctx context.Context, message string, history []advisor.Turn, account *advisor.AccountContext) advisor.Reply {
	trimmed := advisor.TrimHistory(history)
	messages := make([]advisor.Turn, 0, len(trimmed)+1)
	messages = append(messages, trimmed...)
	messages = append(messages, advisor.Turn{Role: advisor.RoleUser, Content: message})

	completion, err := s.complete(ctx, CompletionRequest{
		System:      advisor.BuildSystemPrompt(account, s.now()),
		Messages:    messages,
		Temperature: s.temperature,
		MaxTokens:   s.chatMaxTokens,
		TopP:        s.topP,
	})
	if err != nil {
		s.logFallback(ctx, "chat", err)
		return advisor.FallbackReply(message, account)
	}
	return advisor.AnnotateCompletion(completion, message)
}

func (s *Service) complete(ctx context.Context, req CompletionRequest) (string, error) {
	if s.completer == nil {
		return "", ErrNotConfigured
	}
	return s.completer.Complete(ctx, req)
}

func (s *Service) logFallback(ctx context.Context, action string, err error) {
	if errors.Is(err, ErrNotConfigured) {
		s.logger.DebugContext(ctx, "language model not configured, using fallback", "action", action)
		return
	}
	s.logger.WarnContext(ctx, "language model request failed, using fallback", "action", action, "err", err)
}

// bestEffort runs a persistence side effect exactly once. A failure is logged
// and neither retried nor returned.
func (s *Service) bestEffort(ctx context.Context, op string, fn func() error) {
	if err := fn(); err != nil {
		s.logger.WarnContext(ctx, "persistence failed", "op", op, "err", err)
	}
}

func ellipsize(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func reverse[T any](items []T) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}

func clampLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func defaultFloat(v, fallback float64) float64 {
	if v <= 0 {
		return fallback
	}
	return v
}

func defaultInt(v int, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

type nopStore struct{}

func (nopStore) SaveMessage(context.Context, MessageRecord) error          { return nil }
func (nopStore) SessionExists(context.Context, string) (bool, error)       { return true, nil }
func (nopStore) CreateSession(context.Context, SessionRecord) error        { return nil }
func (nopStore) UpdateSession(context.Context, string, SessionUpdate) error { return nil }
func (nopStore) RecentMessages(context.Context, string, int) ([]MessageRecord, error) {
	return nil, nil
}
func (nopStore) ListSessions(context.Context, string, int) ([]SessionRecord, error) {
	return nil, nil
}
func (nopStore) OpenPositions(context.Context, string, int) ([]advisor.Position, error) {
	return nil, nil
}
func (nopStore) CurrentRiskAssessment(context.Context, string) (*advisor.RiskAssessment, error) {
	return nil, nil
}
func (nopStore) ActivePortfolio(context.Context, string) (*advisor.Portfolio, error) {
	return nil, nil
}
