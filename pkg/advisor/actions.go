package advisor

import "strings"

// MaxSuggestedActions caps the number of actions attached to an LLM reply.
const MaxSuggestedActions = 3

func navigate(label, path string) Action {
	return Action{Label: label, Action: "navigate", Path: path}
}

func verb(label, action string) Action {
	return Action{Label: label, Action: action}
}

type actionRule struct {
	match   func(lower string) bool
	actions []Action
}

// actionRules is independent from intentRules; the keyword sets differ on
// purpose and must not be merged.
var actionRules = []actionRule{
	{
		match: func(s string) bool { return containsAny(s, "portfolio", "position") },
		actions: []Action{
			navigate("View Portfolio", "/portfolio"),
			verb("Optimize Positions", "optimize_portfolio"),
		},
	},
	{
		match: func(s string) bool { return containsAny(s, "risk", "safe") },
		actions: []Action{
			navigate("Check Risk Profile", "/analytics"),
			navigate("Adjust Risk Settings", "/settings"),
		},
	},
	{
		match: func(s string) bool { return containsAny(s, "market", "opportunity") },
		actions: []Action{
			navigate("Browse Markets", "/markets"),
			navigate("View Recommendations", "/recommendations"),
		},
	},
	{
		match: func(s string) bool { return containsAny(s, "kelly", "size", "allocation") },
		actions: []Action{
			verb("Calculate Position Size", "calculate_kelly"),
			navigate("Portfolio Settings", "/settings"),
		},
	},
}

var defaultActions = []Action{
	navigate("Explore Markets", "/markets"),
	navigate("View Analytics", "/analytics"),
}

// SuggestActions picks follow-up actions for a message. It never returns more
// than MaxSuggestedActions items.
func SuggestActions(message string) []Action {
	lower := strings.ToLower(message)
	selected := defaultActions
	for _, rule := range actionRules {
		if rule.match(lower) {
			selected = rule.actions
			break
		}
	}
	if len(selected) > MaxSuggestedActions {
		selected = selected[:MaxSuggestedActions]
	}
	return append([]Action(nil), selected...)
}

type confidenceRule struct {
	match func(lower string) bool
	score int
}

var confidenceRules = []confidenceRule{
	{func(s string) bool { return containsAny(s, "how", "what is", "explain") }, 88},
	{func(s string) bool { return containsAny(s, "should i", "recommend") }, 72},
	{func(s string) bool { return containsAny(s, "predict", "will") }, 65},
}

const defaultLLMConfidence = 78

// ScoreConfidence assigns a confidence to an LLM reply from the user's message.
func ScoreConfidence(userMessage string) int {
	lower := strings.ToLower(userMessage)
	for _, rule := range confidenceRules {
		if rule.match(lower) {
			return rule.score
		}
	}
	return defaultLLMConfidence
}

// AnnotateCompletion wraps raw model output into a Reply. The text is kept
// exactly as the model produced it.
func AnnotateCompletion(completion, userMessage string) Reply {
	return Reply{
		Message:          completion,
		Confidence:       ScoreConfidence(userMessage),
		SuggestedActions: SuggestActions(userMessage),
	}
}
