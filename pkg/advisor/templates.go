package advisor

import (
	"fmt"
	"strings"
)

type renderer func(ctx *AccountContext) Reply

var renderers = map[Category]renderer{
	CategoryMarketBasics:    renderMarketBasics,
	CategoryKelly:           renderKelly,
	CategoryPortfolio:       renderPortfolio,
	CategoryRisk:            renderRisk,
	CategoryRecommendations: renderRecommendations,
	CategoryPerformance:     renderPerformance,
	CategoryKalshi:          renderKalshi,
	CategoryGreeting:        renderGreeting,
}

// FallbackReply builds a local templated reply for message. ctx may be nil.
func FallbackReply(message string, ctx *AccountContext) Reply {
	return Render(Classify(message), ctx)
}

// Render builds the templated reply for a category.
func Render(category Category, ctx *AccountContext) Reply {
	render, ok := renderers[category]
	if !ok {
		render = renderGreeting
	}
	return render(ctx)
}

const marketBasicsText = `Prediction markets are financial exchanges where participants trade contracts whose payouts depend on the outcomes of future events.

Here's how they work:

**Core Mechanics:**
- You buy "Yes" or "No" contracts on specific outcomes (e.g., "Will X win the election?")
- Contracts typically pay $1 if correct, $0 if wrong
- Current prices reflect the crowd's probability estimate

**Key Platforms:**
- **Kalshi** - CFTC-regulated, focuses on economic and political events
- **Polymarket** - Crypto-based, broader event coverage
- **PredictIt** - Academic-focused political markets

**Why They Matter:**
- Aggregate diverse information efficiently
- Often more accurate than polls or expert forecasts
- Provide real-time probability updates

Would you like me to explain trading strategies or risk management?`

func renderMarketBasics(_ *AccountContext) Reply {
	return Reply{
		Message:    marketBasicsText,
		Confidence: 92,
		SuggestedActions: []Action{
			verb("Learn Trading Strategies", "learn_strategies"),
			navigate("Explore Markets", "/markets"),
		},
	}
}

const kellyTemplate = `The Kelly Criterion is a mathematical formula for optimal bet sizing that maximizes long-term growth while managing risk.

**The Formula:**
Kelly %% = (p × b - q) / b

Where:
- p = probability of winning
- q = probability of losing (1 - p)
- b = odds received (payout ratio)

**Example:**
If you believe a market has 60%% chance but is priced at 50 cents:
- Edge = 0.60 × 1 - 0.40 = 0.20 (20%% edge)
- Kelly suggests betting 20%% of bankroll

**In Practice:**
- Most traders use "fractional Kelly" (typically 25-50%% of full Kelly)
- Your current Kelly fraction is set to %s%%
- This provides a buffer against estimation errors

**Benefits of Fractional Kelly:**
- Reduces volatility significantly
- Protects against overconfidence in probability estimates
- Still captures most of the long-term growth

Would you like me to calculate position sizes for specific markets?`

func kellyFraction(p *Portfolio) float64 {
	if p == nil {
		return DefaultKellyFraction
	}
	return valueOr(p.KellyFraction, DefaultKellyFraction)
}

func renderKelly(ctx *AccountContext) Reply {
	return Reply{
		Message:    fmt.Sprintf(kellyTemplate, formatFraction(kellyFraction(ctx.portfolio()))),
		Confidence: 88,
		SuggestedActions: []Action{
			verb("Calculate Position Size", "calculate_kelly"),
			navigate("Adjust Kelly Settings", "/settings"),
		},
	}
}

const noPositionsText = `I don't see any open positions in your portfolio yet.

**Getting Started:**
1. Browse available markets to find opportunities
2. Use the Kelly Criterion to size your positions appropriately
3. Start with smaller positions to get comfortable with the platform
4. Diversify across different event types to manage risk

**Recommended First Steps:**
- Set your risk tolerance in Settings
- Review AI-generated recommendations
- Start with high-liquidity markets (higher volume = easier entry/exit)

Would you like me to show you some recommended markets based on your risk profile?`

const portfolioHealthText = `**Portfolio Health Tips:**
- Monitor correlation between positions (avoid concentration in similar events)
- Review position sizes relative to your Kelly fraction
- Set mental stop-losses for each position
- Regularly reassess your probability estimates`

func renderPortfolio(ctx *AccountContext) Reply {
	positions := ctx.positions()
	if len(positions) == 0 {
		return Reply{
			Message:    noPositionsText,
			Confidence: 80,
			SuggestedActions: []Action{
				navigate("Get Recommendations", "/recommendations"),
				navigate("Browse Markets", "/markets"),
			},
		}
	}

	plural := ""
	if len(positions) > 1 {
		plural = "s"
	}

	var b strings.Builder
	b.WriteString("Here's your portfolio overview:\n\n")
	b.WriteString("**Current Holdings:**\n")
	fmt.Fprintf(&b, "- %d open position%s\n", len(positions), plural)
	fmt.Fprintf(&b, "- Estimated value: $%s\n\n", PositionsValue(positions).StringFixed(2))
	b.WriteString(portfolioHealthText)
	b.WriteString("\n\n")
	if p := ctx.portfolio(); p != nil && present(p.PnLTotal) {
		fmt.Fprintf(&b, "**Performance:** $%s (%s%%)\n\n", formatMoney(*p.PnLTotal), formatFixed(valueOr(p.PnLPercent, 0), 1))
	}
	b.WriteString("Would you like a detailed analysis of any specific position?")

	return Reply{
		Message:    b.String(),
		Confidence: 85,
		SuggestedActions: []Action{
			navigate("View All Positions", "/portfolio"),
			verb("Optimize Portfolio", "optimize_portfolio"),
		},
	}
}

const riskTemplate = `Based on your trading patterns, here's your risk assessment:

**Risk Profile: %s**
- Risk Score: %s/100

**What This Means:**
%s

**Risk Management Tips:**
- Never risk more than 1-5%% of portfolio on a single trade
- Diversify across uncorrelated events
- Use fractional Kelly sizing
- Set clear exit criteria before entering positions
- Review and adjust regularly

Would you like recommendations aligned with your risk profile?`

const noRiskProfileText = `I don't have enough trading history to fully assess your risk profile yet.

**Building Your Risk Profile:**
As you make trades, I'll analyze your behavior to understand:
- Position sizing preferences
- Risk tolerance patterns
- Trading frequency
- Reaction to market movements

**In the Meantime:**
You can set your preferred risk level in Settings. This helps me provide better recommendations tailored to your comfort level.

**Risk Levels Explained:**
- **Conservative**: Focus on high-probability, lower-return trades
- **Moderate**: Balanced approach with reasonable risk/reward
- **Aggressive**: Higher risk trades with larger potential returns
- **Speculative**: Maximum risk tolerance for experienced traders`

var riskActions = []Action{
	navigate("View Risk Details", "/analytics"),
	navigate("Adjust Risk Settings", "/settings"),
}

func renderRisk(ctx *AccountContext) Reply {
	profile := ctx.riskProfile()
	if profile == nil {
		return Reply{
			Message:          noRiskProfileText,
			Confidence:       75,
			SuggestedActions: append([]Action(nil), riskActions...),
		}
	}

	level := profile.RiskClassification
	if level == "" {
		level = "moderate"
	}
	score := "unknown"
	if profile.RiskScore != nil {
		score = formatScore(*profile.RiskScore)
	}
	return Reply{
		Message:          fmt.Sprintf(riskTemplate, capitalize(level), score, RiskExplanation(level)),
		Confidence:       85,
		SuggestedActions: append([]Action(nil), riskActions...),
	}
}

var riskExplanations = map[string]string{
	"conservative": `Your conservative approach prioritizes capital preservation. This means:
- Smaller position sizes relative to portfolio
- Focus on higher-probability trades
- Lower expected volatility in returns
- Suitable for steady, consistent growth`,
	"moderate": `Your balanced approach seeks reasonable returns with manageable risk. This means:
- Standard position sizing using Kelly fraction
- Mix of high and moderate probability trades
- Moderate portfolio volatility
- Good for most prediction market participants`,
	"aggressive": `Your aggressive approach accepts higher risk for potential higher returns. This means:
- Larger position sizes relative to bankroll
- Willingness to take lower-probability trades
- Higher expected volatility
- Requires strict discipline and risk management`,
	"speculative": `Your speculative approach maximizes risk exposure. This means:
- Maximum position sizes
- Comfort with high-variance outcomes
- Significant drawdown risk
- Only suitable for experienced traders with high risk tolerance`,
}

const defaultRiskExplanation = `Your risk profile helps determine appropriate position sizes and trade selection.`

// RiskExplanation returns the explanatory paragraph for a risk classification.
// Unknown classifications get a generic paragraph.
func RiskExplanation(classification string) string {
	if text, ok := riskExplanations[strings.ToLower(classification)]; ok {
		return text
	}
	return defaultRiskExplanation
}

const recommendationsText = `Here are my recommendations for finding good prediction market opportunities:

**Key Factors to Evaluate:**

1. **Liquidity** - Higher volume markets allow easier entry/exit
2. **Information Edge** - Do you have insight the market hasn't priced in?
3. **Time to Resolution** - Shorter timeframes mean faster capital turnover
4. **Probability Mispricing** - Look for markets where you disagree with current odds

**Current Market Categories Worth Watching:**
- Political events (elections, policy decisions)
- Economic indicators (inflation, employment data)
- Sports outcomes (if legal in your jurisdiction)
- Technology milestones

**Strategy Tips:**
- Start with markets you understand well
- Compare your probability estimates to market prices
- Calculate expected value before trading
- Consider correlation with your existing positions

Check the Recommendations page for AI-curated opportunities matching your profile.`

func renderRecommendations(_ *AccountContext) Reply {
	return Reply{
		Message:    recommendationsText,
		Confidence: 78,
		SuggestedActions: []Action{
			navigate("View Recommendations", "/recommendations"),
			navigate("Browse All Markets", "/markets"),
		},
	}
}

const performanceTipsText = `**Understanding Your Performance:**
- Sharpe Ratio > 1.0 indicates good risk-adjusted returns
- Track win rate alongside P&L (50% win rate can still be profitable with good sizing)
- Compare returns to a passive benchmark

**Improvement Tips:**
- Review losing trades for patterns
- Assess if position sizes match conviction levels
- Consider if you're overtrading in certain categories`

const noPerformanceText = `I don't have enough trading data to show detailed performance metrics yet.

**What I'll Track:**
- Win/loss rate and P&L
- Risk-adjusted returns (Sharpe ratio)
- Performance by market category
- Position sizing effectiveness

Start trading to build your performance history!`

func renderPerformance(ctx *AccountContext) Reply {
	actions := []Action{
		navigate("View Full Analytics", "/analytics"),
		navigate("View Portfolio", "/portfolio"),
	}
	p := ctx.portfolio()
	if p == nil || !present(p.TotalValue) {
		return Reply{Message: noPerformanceText, Confidence: 70, SuggestedActions: actions}
	}

	var b strings.Builder
	b.WriteString("Here's your performance summary:\n\n")
	b.WriteString("**Portfolio Metrics:**\n")
	fmt.Fprintf(&b, "- Total Value: $%s\n", formatMoney(*p.TotalValue))
	fmt.Fprintf(&b, "- Total P&L: $%s (%s%%)\n", formatMoney(valueOr(p.PnLTotal, 0)), formatFixed(valueOr(p.PnLPercent, 0), 1))
	if present(p.SharpeRatio) {
		fmt.Fprintf(&b, "- Sharpe Ratio: %s\n", formatFixed(*p.SharpeRatio, 2))
	}
	b.WriteString("\n")
	b.WriteString(performanceTipsText)

	return Reply{Message: b.String(), Confidence: 88, SuggestedActions: actions}
}

const kalshiText = `Kalshi is a CFTC-regulated prediction market exchange based in the US.

**Key Features:**
- First legally regulated prediction market in the US
- Contracts on economic, political, and weather events
- Binary yes/no contracts paying $0 or $1
- Real-time trading with order book model

**Popular Market Types:**
- Economic indicators (CPI, unemployment, GDP)
- Federal Reserve decisions (rate changes)
- Political outcomes
- Weather and climate events

**Trading Mechanics:**
- Contracts priced 0-99 cents (representing probability)
- Can buy Yes or No positions
- Limit and market orders available
- Positions can be closed before event resolution

**Tips for Kalshi:**
- Watch the spread between bid/ask
- Higher volume markets have better liquidity
- Economic calendar events often have predictable volume spikes

Would you like me to explain any specific Kalshi market type?`

func renderKalshi(_ *AccountContext) Reply {
	return Reply{
		Message:    kalshiText,
		Confidence: 90,
		SuggestedActions: []Action{
			navigate("Browse Kalshi Markets", "/markets"),
			navigate("View Recommendations", "/recommendations"),
		},
	}
}

const greetingText = `I'm Kalshorb, your AI advisor for prediction market trading. I'm here to help you make better-informed decisions.

**What I Can Help With:**

📊 **Market Analysis**
- Evaluate prediction market opportunities
- Understand probability pricing and edge

💼 **Portfolio Management**
- Review your positions and allocation
- Optimize for risk-adjusted returns

🎯 **Position Sizing**
- Kelly Criterion calculations
- Fractional betting strategies

📈 **Risk Assessment**
- Analyze your trading patterns
- Provide personalized risk recommendations

📚 **Education**
- Explain prediction market concepts
- Share trading strategies and best practices

What would you like to explore today?`

func renderGreeting(_ *AccountContext) Reply {
	return Reply{
		Message:    greetingText,
		Confidence: 85,
		SuggestedActions: []Action{
			verb("Analyze My Portfolio", "analyze_portfolio"),
			navigate("Get Recommendations", "/recommendations"),
			verb("Learn About Markets", "learn_markets"),
		},
	}
}
