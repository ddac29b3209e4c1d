// Package watch implements the irqd watch TUI: a live view of the dispatcher
// fed by the API's /events stream and /healthz.
package watch

import "github.com/charmbracelet/lipgloss"

// Theme centralizes all styling for the watch TUI.
type Theme struct {
	StatusOK       lipgloss.Style
	StatusRunning  lipgloss.Style
	StatusFailed   lipgloss.Style
	StatusQueued   lipgloss.Style
	StatusTimedOut lipgloss.Style

	Border    lipgloss.Style
	Title     lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style
	Spinner   lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		StatusOK:       lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		StatusRunning:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		StatusFailed:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		StatusQueued:   lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		StatusTimedOut: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#61AFEF")),
		Spinner:   lipgloss.NewStyle().Foreground(purple),
	}
}

// ForStatus picks the style for an interrupt status.
func (t Theme) ForStatus(status string) lipgloss.Style {
	switch status {
	case "completed", "recovered":
		return t.StatusOK
	case "running":
		return t.StatusRunning
	case "failed":
		return t.StatusFailed
	case "timed_out", "no_input":
		return t.StatusTimedOut
	default:
		return t.StatusQueued
	}
}
