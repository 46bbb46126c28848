package advisor

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of conversation history, ordered oldest-first.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Position is an open market position held by the user.
type Position struct {
	ID           string   `json:"id,omitempty"`
	PortfolioID  string   `json:"portfolio_id,omitempty"`
	UserID       string   `json:"user_id,omitempty"`
	MarketTicker string   `json:"market_ticker,omitempty"`
	MarketTitle  *string  `json:"market_title,omitempty"`
	Side         string   `json:"side,omitempty"`
	Quantity     float64  `json:"quantity"`
	AvgPrice     float64  `json:"avg_price"`
	CurrentPrice *float64 `json:"current_price,omitempty"`
	Status       string   `json:"status,omitempty"`
}

// RiskAssessment is the user's current behavioral risk assessment.
type RiskAssessment struct {
	ID                 string   `json:"id,omitempty"`
	UserID             string   `json:"user_id,omitempty"`
	RiskScore          *float64 `json:"risk_score,omitempty"`
	RiskClassification string   `json:"risk_classification,omitempty"`
	IsCurrent          bool     `json:"is_current,omitempty"`
}

// Portfolio is the user's active portfolio summary. Nil or zero numeric
// fields are treated as absent.
type Portfolio struct {
	ID            string   `json:"id,omitempty"`
	UserID        string   `json:"user_id,omitempty"`
	Name          string   `json:"name,omitempty"`
	TotalValue    *float64 `json:"total_value,omitempty"`
	PnLTotal      *float64 `json:"pnl_total,omitempty"`
	PnLPercent    *float64 `json:"pnl_percent,omitempty"`
	SharpeRatio   *float64 `json:"sharpe_ratio,omitempty"`
	KellyFraction *float64 `json:"kelly_fraction,omitempty"`
	IsActive      bool     `json:"is_active,omitempty"`
}

// AccountContext is a read-only snapshot of the user's account.
type AccountContext struct {
	Positions   []Position      `json:"positions"`
	RiskProfile *RiskAssessment `json:"risk_profile,omitempty"`
	Portfolio   *Portfolio      `json:"portfolio,omitempty"`
}

// Action is a follow-up the client can offer after a reply.
type Action struct {
	Label  string `json:"label"`
	Action string `json:"action"`
	Path   string `json:"path,omitempty"`
	Ticker string `json:"ticker,omitempty"`
}

// Reply is the advisory answer returned for a message.
type Reply struct {
	Message          string   `json:"message"`
	Confidence       int      `json:"confidence"`
	SuggestedActions []Action `json:"suggested_actions"`
	MarketData       []any    `json:"market_data,omitempty"`
}

func (c *AccountContext) positions() []Position {
	if c == nil {
		return nil
	}
	return c.Positions
}

func (c *AccountContext) riskProfile() *RiskAssessment {
	if c == nil {
		return nil
	}
	return c.RiskProfile
}

func (c *AccountContext) portfolio() *Portfolio {
	if c == nil {
		return nil
	}
	return c.Portfolio
}

// Float returns a pointer to v, for building optional fields.
func Float(v float64) *float64 {
	return &v
}

func present(v *float64) bool {
	return v != nil && *v != 0
}

func valueOr(v *float64, fallback float64) float64 {
	if !present(v) {
		return fallback
	}
	return *v
}
