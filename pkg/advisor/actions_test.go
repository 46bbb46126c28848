package advisor

import (
	"strings"
	"testing"
)

func TestSuggestActions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		message string
		labels  []string
	}{
		{"show my portfolio", []string{"View Portfolio", "Optimize Positions"}},
		{"position risk", []string{"View Portfolio", "Optimize Positions"}},
		{"is it safe", []string{"Check Risk Profile", "Adjust Risk Settings"}},
		{"any market opportunity", []string{"Browse Markets", "View Recommendations"}},
		{"kelly allocation", []string{"Calculate Position Size", "Portfolio Settings"}},
		{"what size", []string{"Calculate Position Size", "Portfolio Settings"}},
		{"hello", []string{"Explore Markets", "View Analytics"}},
	}
	for _, tc := range tests {
		got := SuggestActions(tc.message)
		if len(got) != len(tc.labels) {
			t.Fatalf("%q: got %d actions", tc.message, len(got))
		}
		for i, label := range tc.labels {
			if got[i].Label != label {
				t.Fatalf("%q: action %d = %q, want %q", tc.message, i, got[i].Label, label)
			}
		}
	}
}

func TestSuggestActionsCap(t *testing.T) {
	t.Parallel()

	messages := []string{"", "portfolio", "risk", "market", "kelly", strings.Repeat("x", 1000),
		"Analyze my current portfolio positions and suggest improvements for risk-adjusted returns."}
	messages = append(messages, QuickActionIDs()...)
	for _, m := range messages {
		if n := len(SuggestActions(m)); n > MaxSuggestedActions {
			t.Fatalf("%q: %d actions exceeds cap", m, n)
		}
	}
}

func TestSuggestActionsReturnsCopy(t *testing.T) {
	t.Parallel()

	first := SuggestActions("hello")
	first[0].Label = "mutated"
	if SuggestActions("hello")[0].Label != "Explore Markets" {
		t.Fatalf("shared action slice was mutated")
	}
}

func TestScoreConfidence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		message string
		want    int
	}{
		{"How do spreads work?", 88},
		{"what is an order book", 88},
		{"explain edge", 88},
		{"should I buy yes", 72},
		{"recommend a market", 72},
		{"predict the election", 65},
		{"it will rain", 65},
		{"yes or no", 78},
		{"how should i size, and will it win", 88},
	}
	for _, tc := range tests {
		if got := ScoreConfidence(tc.message); got != tc.want {
			t.Fatalf("ScoreConfidence(%q) = %d, want %d", tc.message, got, tc.want)
		}
	}
}

func TestAnnotateCompletionKeepsText(t *testing.T) {
	t.Parallel()

	raw := "  **Model** output\nwith spacing  "
	reply := AnnotateCompletion(raw, "explain my portfolio")
	if reply.Message != raw {
		t.Fatalf("model text was altered: %q", reply.Message)
	}
	if reply.Confidence != 88 {
		t.Fatalf("confidence = %d, want 88", reply.Confidence)
	}
	if len(reply.SuggestedActions) != 2 || reply.SuggestedActions[0].Label != "View Portfolio" {
		t.Fatalf("unexpected actions: %+v", reply.SuggestedActions)
	}
}
