package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/irqd/internal/events"
)

const (
	maxNoticeLog   = 50
	healthInterval = 5 * time.Second
	reconnectDelay = 3 * time.Second
)

// Model is the BubbleTea model for the watch TUI.
type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	health     HealthState
	tracker    *Tracker
	noticeLog  []events.Notice
	lastNotice time.Time

	spinner spinner.Model
	table   table.Model
	theme   Theme

	notices chan events.Notice

	lastError string
}

// New creates a new watch TUI model.
func New(apiURL, apiKey string) *Model {
	theme := NewDefaultTheme()
	return &Model{
		apiURL:  apiURL,
		apiKey:  apiKey,
		tracker: NewTracker(),
		spinner: spinner.New(spinner.WithSpinner(spinner.MiniDot), spinner.WithStyle(theme.Spinner)),
		table:   newInterruptTable(),
		theme:   theme,
		notices: make(chan events.Notice, 100),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.apiURL, m.apiKey, m.notices),
		receiveNextNotice(m.notices),
		func() tea.Msg { return fetchHealth(m.apiURL) },
		m.spinner.Tick,
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if s := msg.String(); s == "q" || s == "ctrl+c" {
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(max(m.width-8, 20))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case noticeMsg:
		n := events.Notice(msg)
		m.noticeLog = append([]events.Notice{n}, m.noticeLog...)
		if len(m.noticeLog) > maxNoticeLog {
			m.noticeLog = m.noticeLog[:maxNoticeLog]
		}
		m.lastNotice = time.Now()
		m.tracker.Apply(n)
		m.table.SetRows(tableRows(m.tracker.Recent()))
		if n.Type == events.TypeDraining {
			m.health.Draining = true
		}
		m.health.Connected = true
		m.lastError = ""
		return m, receiveNextNotice(m.notices)

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.QueueDepth = msg.QueueDepth
		m.health.Pending = msg.Pending
		m.health.Draining = msg.Draining
		m.health.Connected = true
		m.health.LastCheck = time.Now()
		m.lastError = ""
		return m, m.scheduleHealth()

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		// The pending receiveNextNotice keeps reading the same channel.
		return m, tea.Tick(reconnectDelay, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, subscribeToEvents(m.apiURL, m.apiKey, m.notices)

	case errMsg:
		m.lastError = msg.Error()
		return m, m.scheduleHealth()
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) scheduleHealth() tea.Cmd {
	return tea.Tick(healthInterval, func(time.Time) tea.Msg { return fetchHealth(m.apiURL) })
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to irqd..."
	}

	header := renderHeader(m.health, m.spinner.View(), m.lastNotice, m.theme, m.width)
	interrupts := m.theme.Border.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left, m.theme.Title.Render("INTERRUPTS"), m.table.View()),
	)
	notices := renderNoticeStream(m.noticeLog, m.theme, m.width)

	parts := []string{header, interrupts, notices}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(fmt.Sprintf(" ! %s", m.lastError)))
	}
	parts = append(parts, m.theme.Dim.Render(" [q] Quit  [up/down] Scroll"))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

// Run starts the TUI and blocks until the user quits.
func Run(apiURL, apiKey string) error {
	_, err := tea.NewProgram(New(apiURL, apiKey)).Run()
	return err
}
