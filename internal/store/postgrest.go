package store

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"kalshorb/pkg/advisor"
	"kalshorb/pkg/kalshorb"
)

// PostgRESTOptions configures the hosted store.
type PostgRESTOptions struct {
	// URL is the project URL; "/rest/v1" is appended.
	URL string
	// ServiceKey is sent as both the apikey header and bearer token.
	ServiceKey string
	Timeout    time.Duration
	Logger     *slog.Logger
}

// PostgREST is a kalshorb.Store backed by a Supabase PostgREST endpoint.
type PostgREST struct {
	client *resty.Client
	logger *slog.Logger
}

var _ kalshorb.Store = (*PostgREST)(nil)

// NewPostgREST builds the store. It performs no network calls.
func NewPostgREST(opts PostgRESTOptions) (*PostgREST, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.URL), "/")
	if base == "" {
		return nil, fmt.Errorf("postgrest url is required")
	}
	if strings.TrimSpace(opts.ServiceKey) == "" {
		return nil, fmt.Errorf("postgrest service key is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(base + "/rest/v1")
	client.SetTimeout(timeout)
	client.SetHeader("apikey", opts.ServiceKey)
	client.SetAuthToken(opts.ServiceKey)

	return &PostgREST{client: client, logger: logger}, nil
}

func (p *PostgREST) SaveMessage(ctx context.Context, msg kalshorb.MessageRecord) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	return p.insert(ctx, "chat_messages", msg)
}

func (p *PostgREST) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	var rows []struct {
		ID string `json:"id"`
	}
	err := p.get(ctx, "conversation_sessions", map[string]string{
		"select": "id",
		"id":     "eq." + sessionID,
	}, &rows)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (p *PostgREST) CreateSession(ctx context.Context, session kalshorb.SessionRecord) error {
	return p.insert(ctx, "conversation_sessions", session)
}

func (p *PostgREST) UpdateSession(ctx context.Context, sessionID string, update kalshorb.SessionUpdate) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Prefer", "return=minimal").
		SetQueryParam("id", "eq."+sessionID).
		SetBody(update).
		Patch("/conversation_sessions")
	return p.check("update conversation_sessions", resp, err)
}

func (p *PostgREST) RecentMessages(ctx context.Context, sessionID string, limit int) ([]kalshorb.MessageRecord, error) {
	var rows []kalshorb.MessageRecord
	err := p.get(ctx, "chat_messages", map[string]string{
		"session_id": "eq." + sessionID,
		"order":      "created_at.desc",
		"limit":      strconv.Itoa(limit),
	}, &rows)
	return rows, err
}

func (p *PostgREST) ListSessions(ctx context.Context, userID string, limit int) ([]kalshorb.SessionRecord, error) {
	var rows []kalshorb.SessionRecord
	err := p.get(ctx, "conversation_sessions", map[string]string{
		"user_id": "eq." + userID,
		"order":   "updated_at.desc",
		"limit":   strconv.Itoa(limit),
	}, &rows)
	return rows, err
}

func (p *PostgREST) OpenPositions(ctx context.Context, userID string, limit int) ([]advisor.Position, error) {
	rows := []advisor.Position{}
	err := p.get(ctx, "positions", map[string]string{
		"user_id": "eq." + userID,
		"status":  "eq.open",
		"limit":   strconv.Itoa(limit),
	}, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (p *PostgREST) CurrentRiskAssessment(ctx context.Context, userID string) (*advisor.RiskAssessment, error) {
	var rows []advisor.RiskAssessment
	err := p.get(ctx, "risk_assessments", map[string]string{
		"user_id":    "eq." + userID,
		"is_current": "eq.true",
		"limit":      "1",
	}, &rows)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

func (p *PostgREST) ActivePortfolio(ctx context.Context, userID string) (*advisor.Portfolio, error) {
	var rows []advisor.Portfolio
	err := p.get(ctx, "portfolios", map[string]string{
		"user_id":   "eq." + userID,
		"is_active": "eq.true",
		"limit":     "1",
	}, &rows)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

func (p *PostgREST) get(ctx context.Context, table string, query map[string]string, out any) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetResult(out).
		Get("/" + table)
	return p.check("read "+table, resp, err)
}

func (p *PostgREST) insert(ctx context.Context, table string, body any) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Prefer", "return=minimal").
		SetBody(body).
		Post("/" + table)
	return p.check("insert "+table, resp, err)
}

func (p *PostgREST) check(op string, resp *resty.Response, err error) error {
	if err != nil {
		return kalshorb.WrapError(kalshorb.ErrCodeStorage, op, err)
	}
	if resp.IsError() {
		p.logger.Debug("postgrest error response", "op", op, "status", resp.StatusCode(), "body", truncateBody(resp.String()))
		return kalshorb.WrapError(kalshorb.ErrCodeStorage, op, fmt.Errorf("status %d: %s", resp.StatusCode(), truncateBody(resp.String())))
	}
	return nil
}

func truncateBody(s string) string {
	const max = 512
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
