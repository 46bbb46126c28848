package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"kalshorb/pkg/kalshorb"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	messageStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 1).
			Width(80)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	actionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	highStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	midStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	lowStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
)

func confidenceStyle(confidence int) lipgloss.Style {
	switch {
	case confidence >= 85:
		return highStyle
	case confidence >= 70:
		return midStyle
	default:
		return lowStyle
	}
}

func renderResponse(w io.Writer, resp *kalshorb.Response) {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Kalshorb"))
	b.WriteString(" ")
	b.WriteString(confidenceStyle(resp.Confidence).Render(fmt.Sprintf("confidence %d%%", resp.Confidence)))
	if resp.SessionID != "" {
		b.WriteString(" ")
		b.WriteString(mutedStyle.Render("session " + resp.SessionID))
	}
	b.WriteString("\n")
	b.WriteString(messageStyle.Render(resp.Message))
	b.WriteString("\n")

	if len(resp.SuggestedActions) > 0 {
		b.WriteString(mutedStyle.Render("Suggested actions:"))
		b.WriteString("\n")
		for _, action := range resp.SuggestedActions {
			line := "  • " + actionStyle.Render(action.Label) + " " + mutedStyle.Render("("+action.Action+")")
			if action.Path != "" {
				line += " " + mutedStyle.Render(action.Path)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	_, _ = io.WriteString(w, b.String())
}

func renderSessions(w io.Writer, sessions []kalshorb.SessionRecord) {
	if len(sessions) == 0 {
		_, _ = io.WriteString(w, mutedStyle.Render("no sessions")+"\n")
		return
	}
	var b strings.Builder
	for _, session := range sessions {
		b.WriteString(actionStyle.Render(session.ID))
		b.WriteString("  ")
		b.WriteString(session.Title)
		b.WriteString("  ")
		b.WriteString(mutedStyle.Render(session.UpdatedAt.Format("2006-01-02 15:04")))
		b.WriteString("\n")
	}
	_, _ = io.WriteString(w, b.String())
}
