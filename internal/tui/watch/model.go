package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/pqd/internal/journal"
	"github.com/mattjoyce/pqd/internal/tui"
)

const maxEntries = 50

// Model is the BubbleTea model for the watch view.
type Model struct {
	ctx     context.Context
	baseURL string
	token   string

	width  int
	height int

	health     HealthState
	procedures map[string]*ProcedureState
	settings   map[string]*SettingState
	replay     ReplayState
	entries    []journal.Entry
	lastID     int64

	spinner  spinner.Model
	activity *Activity

	theme    tui.Theme
	selected int

	stream chan journal.Entry

	lastError string
}

// New creates a watch view of the daemon API at baseURL. token is sent as
// a bearer token when set. The stream stops when ctx is cancelled.
func New(ctx context.Context, baseURL, token string) Model {
	activity := NewActivity()
	return Model{
		ctx:        ctx,
		baseURL:    baseURL,
		token:      token,
		procedures: make(map[string]*ProcedureState),
		settings:   make(map[string]*SettingState),
		spinner:    spinner.New(spinner.WithSpinner(spinner.Dot)),
		activity:   &activity,
		theme:      tui.NewDefaultTheme(),
		stream:     make(chan journal.Entry, 100),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribe(m.ctx, m.baseURL, m.token, 0, m.stream),
		receive(m.stream),
		func() tea.Msg { return fetchHealth(m.baseURL) },
		m.spinner.Tick,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.procedures)-1 {
				m.selected++
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case entryMsg:
		e := journal.Entry(msg)
		if e.ID > 0 && e.ID <= m.lastID {
			return m, receive(m.stream)
		}
		m.lastID = max(m.lastID, e.ID)

		m.entries = append([]journal.Entry{e}, m.entries...)
		if len(m.entries) > maxEntries {
			m.entries = m.entries[:maxEntries]
		}
		m.activity.OnEvent()
		updateProcedures(m.procedures, e)
		updateSettings(&m.replay, m.settings, e)

		m.health.Connected = true
		m.lastError = ""
		return m, receive(m.stream)

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.Revision = msg.Revision
		m.health.Digest = msg.Digest
		m.health.Procedures = msg.Procedures
		m.health.Connected = true
		m.health.LastCheck = time.Now()
		m.lastError = ""
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return fetchHealth(m.baseURL)
		})

	case streamClosedMsg:
		m.health.Connected = false
		m.lastError = "event stream closed, reconnecting..."
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg {
			return reconnectMsg{}
		})

	case reconnectMsg:
		// The pending receive keeps reading the same channel.
		return m, subscribe(m.ctx, m.baseURL, m.token, m.lastID, m.stream)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return fetchHealth(m.baseURL)
		})
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to " + m.baseURL + "..."
	}

	header := renderHeader(m.health, m.spinner.View(), m.activity, m.theme, m.width)
	procs := renderProcedures(m.procedures, m.selected, m.theme, m.width)
	settings := renderSettings(m.replay, m.settings, m.theme, m.width)
	stream := renderEventStream(m.entries, m.theme, m.width)

	parts := []string{header, procs, settings, stream}
	if m.lastError != "" {
		parts = append(parts, m.theme.Failed.Render(fmt.Sprintf(" ⚠ %s", m.lastError)))
	}
	parts = append(parts, m.theme.Dim.Render(" [q] Quit • [↑/↓] Select procedure"))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
