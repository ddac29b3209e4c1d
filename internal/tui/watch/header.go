package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// HealthState tracks dispatcher health from /healthz polling.
type HealthState struct {
	Status        string
	UptimeSeconds int64
	QueueDepth    int
	Pending       int
	Draining      bool
	Connected     bool
	LastCheck     time.Time
}

func renderHeader(health HealthState, spin string, lastNotice time.Time, theme Theme, width int) string {
	innerWidth := width - 4

	statusText := theme.StatusOK.Render("RUNNING")
	switch {
	case !health.Connected:
		statusText = theme.StatusFailed.Render("CONNECTING")
	case health.Draining:
		statusText = theme.StatusTimedOut.Render("DRAINING")
	case health.Status != "ok" && health.Status != "":
		statusText = theme.StatusFailed.Render(strings.ToUpper(health.Status))
	}

	lastStr := "never"
	if !lastNotice.IsZero() {
		lastStr = fmt.Sprintf("%s ago", time.Since(lastNotice).Round(time.Second))
	}

	clock := theme.Dim.Render(time.Now().Format("15:04:05"))
	titleText := fmt.Sprintf(" IRQD WATCH %s", spin)
	pad := innerWidth - lipgloss.Width(titleText) - lipgloss.Width(clock) - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	statsLine := fmt.Sprintf(" %s  up %s  Waiting: %d  Pending: %d",
		statusText,
		formatDuration(time.Duration(health.UptimeSeconds)*time.Second),
		health.QueueDepth,
		health.Pending,
	)
	activityLine := fmt.Sprintf(" Last notice: %s", lastStr)

	content := lipgloss.JoinVertical(lipgloss.Left, titleLine, statsLine, activityLine)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
