// Package tui implements the signboard monitor, a terminal view of a running
// service's event stream.
package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ccpd/signboard/internal/events"
)

const (
	maxEventLog   = 200
	maxIngestRows = 50
	reconnectWait = 2 * time.Second
	healthEvery   = 5 * time.Second
)

// Counters tallies events seen since the monitor started.
type Counters struct {
	DashboardUpdates int
	Playlists        int
	IngestFailures   int
	FilesReceived    int
	SnapshotFailures int
}

// IngestRow is one playlist submission outcome.
type IngestRow struct {
	At     time.Time
	OK     bool
	Items  int
	Media  int
	Detail string
}

// Model is the bubbletea model behind `signboard monitor`.
type Model struct {
	ctx    context.Context
	apiURL string
	token  string
	theme  Theme

	width  int
	height int

	health    healthMsg
	connected bool
	lastErr   error
	lastID    int64

	counters Counters
	ingests  []IngestRow
	eventLog []events.Event
	ch       chan events.Event

	table    table.Model
	viewport viewport.Model
}

// NewMonitor returns a monitor for the service at apiURL. token is sent as a
// bearer token and needs the events:ro scope when auth is enabled.
func NewMonitor(ctx context.Context, apiURL, token string) *Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Time", Width: 8},
			{Title: "Items", Width: 5},
			{Title: "Media", Width: 5},
			{Title: "Detail", Width: 40},
		}),
		table.WithFocused(true),
		table.WithHeight(8),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return &Model{
		ctx:      ctx,
		apiURL:   strings.TrimRight(apiURL, "/"),
		token:    token,
		theme:    NewDefaultTheme(),
		ch:       make(chan events.Event, 100),
		table:    t,
		viewport: viewport.New(80, 10),
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.ctx, m.apiURL, m.token, 0, m.ch),
		receiveNextEvent(m.ch),
		func() tea.Msg { return fetchHealth(m.apiURL) },
	)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(m.width - 6)
		m.viewport.Width = m.width - 6
		m.viewport.Height = max(m.height/3, 3)
		m.refreshViews()

	case eventMsg:
		m.connected = true
		m.Apply(events.Event(msg))
		m.refreshViews()
		return m, receiveNextEvent(m.ch)

	case sseDisconnectedMsg:
		m.connected = false
		if msg.lastID > m.lastID {
			m.lastID = msg.lastID
		}
		return m, tea.Tick(reconnectWait, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, subscribeToEvents(m.ctx, m.apiURL, m.token, m.lastID, m.ch)

	case healthMsg:
		m.health = msg
		m.lastErr = nil
		return m, m.scheduleHealth()

	case errMsg:
		m.lastErr = msg.err
		return m, m.scheduleHealth()
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *Model) scheduleHealth() tea.Cmd {
	return tea.Tick(healthEvery, func(time.Time) tea.Msg { return fetchHealth(m.apiURL) })
}

// Apply folds one event into the monitor's counters and tables.
func (m *Model) Apply(e events.Event) {
	if e.ID > m.lastID {
		m.lastID = e.ID
	}
	m.eventLog = append([]events.Event{e}, m.eventLog...)
	if len(m.eventLog) > maxEventLog {
		m.eventLog = m.eventLog[:maxEventLog]
	}

	var data map[string]any
	_ = json.Unmarshal(e.Data, &data)

	switch e.Type {
	case events.TypeDashboardUpdate:
		m.counters.DashboardUpdates++
	case events.TypePlaylistAssembled:
		m.counters.Playlists++
		m.addIngest(IngestRow{At: e.At, OK: true, Items: intField(data, "items"), Media: intField(data, "media")})
	case events.TypeIngestFailed:
		m.counters.IngestFailures++
		detail, _ := data["error"].(string)
		if kind, ok := data["kind"].(string); ok && kind != "" {
			detail = kind + ": " + detail
		}
		m.addIngest(IngestRow{At: e.At, Items: intField(data, "items"), Detail: detail})
	case events.TypeFileReceived:
		m.counters.FilesReceived++
	case events.TypeSnapshotFailed:
		m.counters.SnapshotFailures++
	}
}

// Counters returns the tallies so far.
func (m *Model) Counters() Counters { return m.counters }

// Ingests returns playlist outcomes, newest first.
func (m *Model) Ingests() []IngestRow { return m.ingests }

func (m *Model) addIngest(row IngestRow) {
	m.ingests = append([]IngestRow{row}, m.ingests...)
	if len(m.ingests) > maxIngestRows {
		m.ingests = m.ingests[:maxIngestRows]
	}
}

func intField(data map[string]any, key string) int {
	v, _ := data[key].(float64)
	return int(v)
}

func (m *Model) refreshViews() {
	rows := make([]table.Row, 0, len(m.ingests))
	for _, in := range m.ingests {
		st := m.theme.StatusOK.Render("●")
		if !in.OK {
			st = m.theme.StatusFailed.Render("∅")
		}
		rows = append(rows, table.Row{
			st,
			in.At.Format("15:04:05"),
			fmt.Sprint(in.Items),
			fmt.Sprint(in.Media),
			in.Detail,
		})
	}
	m.table.SetRows(rows)

	var lines []string
	for _, e := range m.eventLog {
		data := string(e.Data)
		if w := m.viewport.Width - 34; w > 0 && len(data) > w {
			data = data[:w] + "…"
		}
		lines = append(lines, fmt.Sprintf("%s | %-20s | %s", e.At.Format("15:04:05"), e.Type, data))
	}
	if len(lines) == 0 {
		lines = []string{"  No events yet..."}
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
}

// --- View ---

func (m *Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	ingests := m.theme.Border.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Title.Render("Playlists"),
			m.table.View(),
		),
	)
	stream := m.theme.Border.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Title.Render("Event Stream"),
			m.viewport.View(),
		),
	)
	help := m.theme.Dim.Render(" [q] Quit • [↑/↓] Scroll")

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), ingests, stream, help),
	)
}

func (m *Model) renderHeader() string {
	status := m.theme.StatusOK.Render("LIVE")
	switch {
	case m.lastErr != nil:
		status = m.theme.StatusFailed.Render("UNREACHABLE")
	case !m.connected:
		status = m.theme.StatusWarn.Render("CONNECTING")
	case m.health.Status != "" && m.health.Status != "ok":
		status = m.theme.StatusFailed.Render("DEGRADED")
	}

	items := []string{
		"Status: " + status,
		"Uptime: " + (time.Duration(m.health.UptimeSeconds) * time.Second).String(),
		fmt.Sprintf("Version: %d", m.health.DashboardVersion),
		fmt.Sprintf("Displays: %d", m.health.DisplaysConnected),
		fmt.Sprintf("OK/Failed: %d/%d", m.counters.Playlists, m.counters.IngestFailures),
	}
	cols := make([]string, len(items))
	w := (m.width - 4) / len(items)
	for i, it := range items {
		cols[i] = lipgloss.NewStyle().Width(w).Render(it)
	}
	return m.theme.Border.Width(m.width - 4).Render(lipgloss.JoinHorizontal(lipgloss.Top, cols...))
}
