// Package tui is a terminal monitor for the gateway: health plus the
// most recent archived traces, refreshed on an interval.
package tui

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/outlethq/mcp-outlet/internal/store"
)

const refreshInterval = 2 * time.Second

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	unhealthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)

	tableBorderStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(lipgloss.Color("240"))
)

type tickMsg time.Time

type refreshMsg struct {
	healthy bool
	traces  []store.TraceRecord
	err     error
}

// Monitor polls the gateway API and renders recent traces.
type Monitor struct {
	baseURL string
	token   string
	client  *http.Client

	tbl       table.Model
	healthy   bool
	lastErr   error
	refreshed time.Time
	width     int
}

// NewMonitor builds a monitor against the gateway at baseURL,
// authenticating with the given bearer token.
func NewMonitor(baseURL, token string) *Monitor {
	columns := []table.Column{
		{Title: "Trace ID", Width: 36},
		{Title: "Method", Width: 24},
		{Title: "Status", Width: 8},
		{Title: "Started", Width: 20},
		{Title: "Spans", Width: 6},
	}

	tbl := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	tbl.SetStyles(styles)

	return &Monitor{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 5 * time.Second},
		tbl:     tbl,
	}
}

// Run starts the interactive monitor, blocking until the user quits.
func (m *Monitor) Run() error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func (m *Monitor) Init() tea.Cmd {
	return tea.Batch(m.refresh, tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Monitor) refresh() tea.Msg {
	msg := refreshMsg{healthy: m.checkHealth()}

	traces, err := m.fetchTraces()
	if err != nil {
		msg.err = err
		return msg
	}
	msg.traces = traces
	return msg
}

func (m *Monitor) checkHealth() bool {
	resp, err := m.client.Get(m.baseURL + "/healthz")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (m *Monitor) fetchTraces() ([]store.TraceRecord, error) {
	req, err := http.NewRequest(http.MethodGet, m.baseURL+"/traces?limit=50", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+m.token)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("traces endpoint returned %d", resp.StatusCode)
	}

	var body struct {
		Traces []store.TraceRecord `json:"traces"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Traces, nil
}

func (m *Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.refresh
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.tbl.SetHeight(msg.Height - 8)

	case tickMsg:
		return m, tea.Batch(m.refresh, tick())

	case refreshMsg:
		m.healthy = msg.healthy
		m.lastErr = msg.err
		m.refreshed = time.Now()
		if msg.err == nil {
			m.tbl.SetRows(traceRows(msg.traces))
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.tbl, cmd = m.tbl.Update(msg)
	return m, cmd
}

func traceRows(records []store.TraceRecord) []table.Row {
	rows := make([]table.Row, 0, len(records))
	for _, rec := range records {
		status := "error"
		if rec.Success {
			status = "ok"
		}
		rows = append(rows, table.Row{
			rec.TraceID,
			rec.Method,
			status,
			rec.StartedAt.Local().Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%d", len(rec.Spans)),
		})
	}
	return rows
}

func (m *Monitor) View() string {
	title := titleStyle.Render("mcp-outlet monitor")

	health := unhealthyStyle.Render("● unreachable")
	if m.healthy {
		health = healthyStyle.Render("● healthy")
	}

	status := fmt.Sprintf("%s  %s", health, m.baseURL)
	if m.lastErr != nil {
		status += "  " + unhealthyStyle.Render(m.lastErr.Error())
	}

	bar := "q quit · r refresh"
	if !m.refreshed.IsZero() {
		bar += fmt.Sprintf(" · updated %s", m.refreshed.Format("15:04:05"))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		status,
		tableBorderStyle.Render(m.tbl.View()),
		statusBarStyle.Render(bar),
	)
}
