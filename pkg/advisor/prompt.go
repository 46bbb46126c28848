package advisor

import (
	"fmt"
	"strings"
	"time"
)

// MaxPromptHistory is the number of trailing history turns sent upstream.
const MaxPromptHistory = 8

const basePrompt = `You are Kalshorb, an expert AI advisor specializing in prediction markets, with deep knowledge of platforms like Kalshi and Polymarket.

Your expertise includes:
- Prediction market mechanics, pricing, and liquidity analysis
- Risk management and portfolio optimization strategies
- Kelly Criterion for optimal position sizing
- Market analysis and identifying trading opportunities
- Understanding probabilities, expected value, and edge calculation
- Behavioral finance and avoiding common trading biases

Your personality:
- Professional but approachable
- Data-driven and analytical
- Honest about uncertainty and limitations
- Educational when explaining concepts
- Focused on risk-adjusted returns, not gambling

Guidelines:
- Provide actionable insights when possible
- Always consider risk management
- Explain your reasoning clearly
- Use prediction market terminology appropriately
- Avoid definitive price predictions; focus on framework and analysis
- Encourage diversification and proper position sizing`

const promptClosing = "Respond naturally and helpfully. Always emphasize proper risk management."

// BuildSystemPrompt renders the system instruction for a chat completion.
// Fields missing from ctx are left out rather than rendered as placeholders.
func BuildSystemPrompt(ctx *AccountContext, now time.Time) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	fmt.Fprintf(&b, "\n\nCurrent date: %s", now.UTC().Format("2006-01-02"))

	var lines []string
	if p := ctx.portfolio(); p != nil {
		if present(p.TotalValue) {
			lines = append(lines, fmt.Sprintf("- Total Value: $%s", formatMoney(*p.TotalValue)))
		}
		lines = append(lines, fmt.Sprintf("- Kelly Fraction: %s%%", formatFraction(kellyFraction(p))))
	}
	if r := ctx.riskProfile(); r != nil {
		classification := r.RiskClassification
		if classification == "" {
			classification = "Moderate"
		}
		lines = append(lines,
			fmt.Sprintf("- Risk Classification: %s", classification),
			fmt.Sprintf("- Risk Score: %s/100", formatScore(valueOr(r.RiskScore, DefaultRiskScore))),
		)
	}
	if n := len(ctx.positions()); n > 0 {
		lines = append(lines, fmt.Sprintf("- Open Positions: %d", n))
	}
	if len(lines) > 0 {
		b.WriteString("\n\nUser's Portfolio Context:\n")
		b.WriteString(strings.Join(lines, "\n"))
	}

	b.WriteString("\n\n")
	b.WriteString(promptClosing)
	return b.String()
}

// TrimHistory returns at most the last MaxPromptHistory turns.
func TrimHistory(history []Turn) []Turn {
	if len(history) <= MaxPromptHistory {
		return history
	}
	return history[len(history)-MaxPromptHistory:]
}

// QuickActionSystemPrompt is the short instruction used for quick actions.
const QuickActionSystemPrompt = "You are Kalshorb, an expert AI advisor for prediction markets. Provide a concise, helpful response."

// QuickActionConfidence is the fixed confidence of a generated quick-action reply.
const QuickActionConfidence = 80

// QuickActionFallbackText replaces an empty quick-action completion.
const QuickActionFallbackText = "I apologize, but I couldn't process that request. Please try again."

const defaultQuickAction = "market_overview"

var quickActionPrompts = map[string]string{
	"analyze_portfolio":  "Analyze my current portfolio positions and suggest improvements for risk-adjusted returns.",
	"find_opportunities": "What prediction markets are currently showing good opportunities based on liquidity and potential edge?",
	"check_risk":         "Review my risk profile and tell me if my current exposure is appropriate.",
	"market_overview":    "Give me a brief overview of the current prediction market landscape.",
	"kelly_sizing":       "Explain how I should size my positions using the Kelly Criterion for my risk level.",
}

// QuickActionPrompt returns the canned instruction for a quick-action id.
// Unknown ids map to the market overview prompt.
func QuickActionPrompt(id string) string {
	if prompt, ok := quickActionPrompts[id]; ok {
		return prompt
	}
	return quickActionPrompts[defaultQuickAction]
}

// QuickActionIDs lists the predefined quick-action ids.
func QuickActionIDs() []string {
	return []string{"analyze_portfolio", "find_opportunities", "check_risk", "market_overview", "kelly_sizing"}
}
