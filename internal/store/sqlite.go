package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"kalshorb/pkg/advisor"
	"kalshorb/pkg/kalshorb"
)

// timeLayout is fixed width so text columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteOptions controls SQLite initialization.
type SQLiteOptions struct {
	Path   string
	Logger *slog.Logger
}

// SQLite is an embedded kalshorb.Store.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
	path   string
}

var _ kalshorb.Store = (*SQLite)(nil)

// OpenSQLite opens or creates the database at opts.Path.
func OpenSQLite(opts SQLiteOptions) (*SQLite, error) {
	if opts.Path == "" {
		return nil, errors.New("db path is required")
	}
	cleanPath := filepath.Clean(opts.Path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", cleanPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite performs best with a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logger.Warn("pragma busy_timeout failed", "err", err)
	}

	if err := initDatabase(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init database: %w", err)
	}
	return &SQLite{db: db, logger: logger, path: cleanPath}, nil
}

// Close releases database resources.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the underlying database path.
func (s *SQLite) Path() string {
	return s.path
}

// WithTx executes fn within a transaction, rolling back on error or panic.
func (s *SQLite) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return kalshorb.WrapError(kalshorb.ErrCodeStorage, "failed to begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("transaction rollback failed on panic", "error", rbErr, "panic_value", p)
			}
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("transaction rollback failed", "error", rbErr, "original_error", err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return kalshorb.WrapError(kalshorb.ErrCodeStorage, "failed to commit transaction", err)
	}
	return nil
}

func (s *SQLite) SaveMessage(ctx context.Context, msg kalshorb.MessageRecord) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	actions, err := marshalNullable(msg.SuggestedActions, len(msg.SuggestedActions) > 0)
	if err != nil {
		return err
	}
	market, err := marshalNullable(msg.MarketContext, len(msg.MarketContext) > 0)
	if err != nil {
		return err
	}
	var confidence any
	if msg.ConfidenceScore != nil {
		confidence = *msg.ConfidenceScore
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, user_id, session_id, role, content, confidence_score, suggested_actions, market_context, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.UserID, msg.SessionID, string(msg.Role), msg.Content, confidence, actions, market, formatTime(msg.CreatedAt))
	if err != nil {
		return kalshorb.WrapError(kalshorb.ErrCodeStorage, "save message", err)
	}
	return nil
}

func (s *SQLite) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM conversation_sessions WHERE id = ?", sessionID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, kalshorb.WrapError(kalshorb.ErrCodeStorage, "check session", err)
	}
	return true, nil
}

func (s *SQLite) CreateSession(ctx context.Context, session kalshorb.SessionRecord) error {
	var lastMessageAt any
	if session.LastMessageAt != nil {
		lastMessageAt = formatTime(*session.LastMessageAt)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_sessions (id, user_id, title, summary, message_count, is_archived, created_at, updated_at, last_message_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, session.ID, session.UserID, session.Title, nullString(session.Summary), session.MessageCount,
		boolToInt(session.IsArchived), formatTime(session.CreatedAt), formatTime(session.UpdatedAt), lastMessageAt)
	if err != nil {
		return kalshorb.WrapError(kalshorb.ErrCodeStorage, "create session", err)
	}
	return nil
}

func (s *SQLite) UpdateSession(ctx context.Context, sessionID string, update kalshorb.SessionUpdate) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversation_sessions SET summary = ?, updated_at = ?, last_message_at = ? WHERE id = ?
	`, update.Summary, formatTime(update.UpdatedAt), formatTime(update.LastMessageAt), sessionID)
	if err != nil {
		return kalshorb.WrapError(kalshorb.ErrCodeStorage, "update session", err)
	}
	return nil
}

func (s *SQLite) RecentMessages(ctx context.Context, sessionID string, limit int) ([]kalshorb.MessageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, session_id, role, content, confidence_score, suggested_actions, market_context, created_at
		FROM chat_messages
		WHERE session_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, kalshorb.WrapError(kalshorb.ErrCodeStorage, "query messages", err)
	}
	defer rows.Close()

	var out []kalshorb.MessageRecord
	for rows.Next() {
		var (
			m          kalshorb.MessageRecord
			role       string
			confidence sql.NullInt64
			actions    sql.NullString
			market     sql.NullString
			createdAt  string
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.SessionID, &role, &m.Content, &confidence, &actions, &market, &createdAt); err != nil {
			return nil, kalshorb.WrapError(kalshorb.ErrCodeStorage, "scan message", err)
		}
		m.Role = advisor.Role(role)
		if confidence.Valid {
			c := int(confidence.Int64)
			m.ConfidenceScore = &c
		}
		if actions.Valid {
			if err := json.Unmarshal([]byte(actions.String), &m.SuggestedActions); err != nil {
				s.logger.Warn("decode suggested actions failed", "message_id", m.ID, "err", err)
			}
		}
		if market.Valid {
			if err := json.Unmarshal([]byte(market.String), &m.MarketContext); err != nil {
				s.logger.Warn("decode market context failed", "message_id", m.ID, "err", err)
			}
		}
		m.CreatedAt = parseTime(createdAt)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, kalshorb.WrapError(kalshorb.ErrCodeStorage, "iterate messages", err)
	}
	return out, nil
}

func (s *SQLite) ListSessions(ctx context.Context, userID string, limit int) ([]kalshorb.SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, summary, message_count, is_archived, created_at, updated_at, last_message_at
		FROM conversation_sessions
		WHERE user_id = ?
		ORDER BY updated_at DESC, rowid DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, kalshorb.WrapError(kalshorb.ErrCodeStorage, "query sessions", err)
	}
	defer rows.Close()

	var out []kalshorb.SessionRecord
	for rows.Next() {
		var (
			sr            kalshorb.SessionRecord
			summary       sql.NullString
			archived      int
			createdAt     string
			updatedAt     string
			lastMessageAt sql.NullString
		)
		if err := rows.Scan(&sr.ID, &sr.UserID, &sr.Title, &summary, &sr.MessageCount, &archived, &createdAt, &updatedAt, &lastMessageAt); err != nil {
			return nil, kalshorb.WrapError(kalshorb.ErrCodeStorage, "scan session", err)
		}
		sr.Summary = summary.String
		sr.IsArchived = archived != 0
		sr.CreatedAt = parseTime(createdAt)
		sr.UpdatedAt = parseTime(updatedAt)
		if lastMessageAt.Valid {
			t := parseTime(lastMessageAt.String)
			sr.LastMessageAt = &t
		}
		out = append(out, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, kalshorb.WrapError(kalshorb.ErrCodeStorage, "iterate sessions", err)
	}
	return out, nil
}

func (s *SQLite) OpenPositions(ctx context.Context, userID string, limit int) ([]advisor.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(portfolio_id, ''), user_id, market_ticker, market_title, side, quantity, avg_price, current_price, status
		FROM positions
		WHERE user_id = ? AND status = 'open'
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, kalshorb.WrapError(kalshorb.ErrCodeStorage, "query positions", err)
	}
	defer rows.Close()

	out := []advisor.Position{}
	for rows.Next() {
		var (
			p            advisor.Position
			title        sql.NullString
			currentPrice sql.NullFloat64
		)
		if err := rows.Scan(&p.ID, &p.PortfolioID, &p.UserID, &p.MarketTicker, &title, &p.Side, &p.Quantity, &p.AvgPrice, &currentPrice, &p.Status); err != nil {
			return nil, kalshorb.WrapError(kalshorb.ErrCodeStorage, "scan position", err)
		}
		if title.Valid {
			p.MarketTitle = &title.String
		}
		p.CurrentPrice = nullFloat(currentPrice)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, kalshorb.WrapError(kalshorb.ErrCodeStorage, "iterate positions", err)
	}
	return out, nil
}

func (s *SQLite) CurrentRiskAssessment(ctx context.Context, userID string) (*advisor.RiskAssessment, error) {
	var (
		r       advisor.RiskAssessment
		score   sql.NullFloat64
		current int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, risk_score, risk_classification, is_current
		FROM risk_assessments
		WHERE user_id = ? AND is_current = 1
		LIMIT 1
	`, userID).Scan(&r.ID, &r.UserID, &score, &r.RiskClassification, &current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, kalshorb.WrapError(kalshorb.ErrCodeStorage, "query risk assessment", err)
	}
	r.RiskScore = nullFloat(score)
	r.IsCurrent = current != 0
	return &r, nil
}

func (s *SQLite) ActivePortfolio(ctx context.Context, userID string) (*advisor.Portfolio, error) {
	var (
		p                                                advisor.Portfolio
		totalValue, pnlTotal, pnlPercent, sharpe, kelly sql.NullFloat64
		active                                           int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, total_value, pnl_total, pnl_percent, sharpe_ratio, kelly_fraction, is_active
		FROM portfolios
		WHERE user_id = ? AND is_active = 1
		LIMIT 1
	`, userID).Scan(&p.ID, &p.UserID, &p.Name, &totalValue, &pnlTotal, &pnlPercent, &sharpe, &kelly, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, kalshorb.WrapError(kalshorb.ErrCodeStorage, "query portfolio", err)
	}
	p.TotalValue = nullFloat(totalValue)
	p.PnLTotal = nullFloat(pnlTotal)
	p.PnLPercent = nullFloat(pnlPercent)
	p.SharpeRatio = nullFloat(sharpe)
	p.KellyFraction = nullFloat(kelly)
	p.IsActive = active != 0
	return &p, nil
}

// SavePortfolio stores p as the user's only active portfolio and returns its id.
func (s *SQLite) SavePortfolio(ctx context.Context, p advisor.Portfolio) (string, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "UPDATE portfolios SET is_active = 0 WHERE user_id = ?", p.UserID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO portfolios (id, user_id, name, total_value, pnl_total, pnl_percent, sharpe_ratio, kelly_fraction, is_active, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				total_value = excluded.total_value,
				pnl_total = excluded.pnl_total,
				pnl_percent = excluded.pnl_percent,
				sharpe_ratio = excluded.sharpe_ratio,
				kelly_fraction = excluded.kelly_fraction,
				is_active = 1
		`, p.ID, p.UserID, p.Name, floatArg(p.TotalValue), floatArg(p.PnLTotal), floatArg(p.PnLPercent),
			floatArg(p.SharpeRatio), floatArg(p.KellyFraction), formatTime(time.Now()))
		return err
	})
	if err != nil {
		return "", kalshorb.WrapError(kalshorb.ErrCodeStorage, "save portfolio", err)
	}
	return p.ID, nil
}

// SavePosition inserts a position and returns its id. An empty status is open.
func (s *SQLite) SavePosition(ctx context.Context, p advisor.Position) (string, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = "open"
	}
	var title any
	if p.MarketTitle != nil {
		title = *p.MarketTitle
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (id, portfolio_id, user_id, market_ticker, market_title, side, quantity, avg_price, current_price, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, nullString(p.PortfolioID), p.UserID, p.MarketTicker, title, p.Side, p.Quantity, p.AvgPrice,
		floatArg(p.CurrentPrice), p.Status, formatTime(time.Now()))
	if err != nil {
		return "", kalshorb.WrapError(kalshorb.ErrCodeStorage, "save position", err)
	}
	return p.ID, nil
}

// SaveRiskAssessment stores r as the user's current assessment, retiring
// earlier ones, and returns its id.
func (s *SQLite) SaveRiskAssessment(ctx context.Context, r advisor.RiskAssessment) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "UPDATE risk_assessments SET is_current = 0 WHERE user_id = ?", r.UserID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO risk_assessments (id, user_id, risk_score, risk_classification, is_current, created_at)
			VALUES (?, ?, ?, ?, 1, ?)
		`, r.ID, r.UserID, floatArg(r.RiskScore), r.RiskClassification, formatTime(time.Now()))
		return err
	})
	if err != nil {
		return "", kalshorb.WrapError(kalshorb.ErrCodeStorage, "save risk assessment", err)
	}
	return r.ID, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		if t, err = time.Parse(time.RFC3339Nano, s); err != nil {
			return time.Time{}
		}
	}
	return t
}

func marshalNullable(v any, present bool) (any, error) {
	if !present {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, kalshorb.WrapError(kalshorb.ErrCodeInternal, "encode json column", err)
	}
	return string(raw), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func floatArg(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
