package advisor

import "strings"

// Category is the topic a message is classified into for fallback replies.
type Category string

const (
	CategoryMarketBasics    Category = "market_basics"
	CategoryKelly           Category = "kelly"
	CategoryPortfolio       Category = "portfolio"
	CategoryRisk            Category = "risk"
	CategoryRecommendations Category = "recommendations"
	CategoryPerformance     Category = "performance"
	CategoryKalshi          Category = "kalshi"
	CategoryGreeting        Category = "greeting"
)

type intentRule struct {
	category Category
	match    func(lower string) bool
}

// intentRules is evaluated top to bottom and the first match wins. A message
// touching several topics is resolved by position in this list only.
var intentRules = []intentRule{
	{CategoryMarketBasics, func(s string) bool {
		return strings.Contains(s, "what") && containsAny(s, "prediction market", "prediction markets")
	}},
	{CategoryKelly, func(s string) bool {
		return strings.Contains(s, "kelly") || (strings.Contains(s, "position") && strings.Contains(s, "size"))
	}},
	{CategoryPortfolio, func(s string) bool {
		return containsAny(s, "portfolio", "positions", "holdings")
	}},
	{CategoryRisk, func(s string) bool {
		return containsAny(s, "risk", "danger", "safe")
	}},
	{CategoryRecommendations, func(s string) bool {
		return containsAny(s, "recommend", "suggest", "opportunity", "what should")
	}},
	{CategoryPerformance, func(s string) bool {
		return containsAny(s, "performance", "return", "profit", "analytics")
	}},
	{CategoryKalshi, func(s string) bool {
		return strings.Contains(s, "kalshi")
	}},
}

// Classify maps a free-text message to exactly one Category.
func Classify(message string) Category {
	lower := strings.ToLower(message)
	for _, rule := range intentRules {
		if rule.match(lower) {
			return rule.category
		}
	}
	return CategoryGreeting
}
