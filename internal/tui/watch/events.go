package watch

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/irqd/internal/events"
)

const shownNotices = 8

func renderNoticeStream(log []events.Notice, theme Theme, width int) string {
	innerWidth := width - 4

	if len(log) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("NOTICES"),
			theme.Dim.Render("  Waiting for notices..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, n := range log {
		if i >= shownNotices {
			break
		}
		lines = append(lines, formatNotice(n, theme))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("NOTICES"),
		lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n")),
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatNotice(n events.Notice, theme Theme) string {
	ts := theme.Dim.Render(n.At.Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch {
	case strings.HasSuffix(n.Type, ".completed"):
		typeStyle = theme.StatusOK
	case strings.HasSuffix(n.Type, ".failed"):
		typeStyle = theme.StatusFailed
	case strings.HasSuffix(n.Type, ".started"):
		typeStyle = theme.StatusRunning
	case strings.HasPrefix(n.Type, "dispatcher."):
		typeStyle = theme.Highlight
	default:
		typeStyle = theme.Dim
	}

	raw := string(n.Data)
	if len(raw) > 60 {
		raw = raw[:60] + "..."
	}
	return fmt.Sprintf("%s %s %s", ts, typeStyle.Render(fmt.Sprintf("%-22s", n.Type)), raw)
}
