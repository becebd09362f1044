package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"nexus-sim/internal/broadcast"
	"nexus-sim/internal/telemetry"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// streamMsg wraps a decoded server message.
type streamMsg struct{ broadcast.Message }

// disconnectedMsg reports the end of the subscription.
type disconnectedMsg struct{ err error }

const maxEvents = 500

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("51"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	healthyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	criticalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

func statusStyle(s telemetry.Status) lipgloss.Style {
	switch s {
	case telemetry.StatusCritical:
		return criticalStyle
	case telemetry.StatusWarning:
		return warningStyle
	}
	return healthyStyle
}

func integrityStyle(v float64) lipgloss.Style {
	switch {
	case v < 50:
		return criticalStyle
	case v < 100:
		return warningStyle
	}
	return healthyStyle
}

type tuiModel struct {
	url        string
	table      table.Model
	vp         viewport.Model
	events     []string
	snapshot   telemetry.Snapshot
	haveState  bool
	clientID   string
	err        error
	wrap       bool
	autoscroll bool
	width      int
	height     int
}

func newTUIModel(url string) tuiModel {
	cols := []table.Column{
		{Title: "Service", Width: 12},
		{Title: "Status", Width: 10},
		{Title: "Latency", Width: 9},
		{Title: "Errors", Width: 8},
		{Title: "Traffic", Width: 8},
		{Title: "Updated", Width: 10},
	}
	t := table.New(table.WithColumns(cols), table.WithHeight(6))
	return tuiModel{
		url:        url,
		table:      t,
		vp:         viewport.New(0, 0),
		autoscroll: true,
	}
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.updateViewportHeight()
		m.refreshViewport()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
			return m, nil
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
			return m, nil
		}
		if !m.autoscroll {
			var cmd tea.Cmd
			m.vp, cmd = m.vp.Update(msg)
			return m, cmd
		}
	case streamMsg:
		m.apply(msg.Message)
	case disconnectedMsg:
		m.err = msg.err
		m.addEvent(dimStyle.Render("disconnected"))
	}
	return m, nil
}

func (m *tuiModel) apply(msg broadcast.Message) {
	switch v := msg.(type) {
	case broadcast.ConnectionAck:
		m.clientID = v.ClientID
		m.addEvent(dimStyle.Render(fmt.Sprintf("[%s] %s as %s", clockTime(v.Timestamp), v.Message, v.ClientID)))
	case broadcast.StateUpdate:
		m.snapshot = v.Snapshot
		m.haveState = true
		m.table.SetRows(serviceRows(v.Services))
	case broadcast.Alert:
		line := fmt.Sprintf("[%s] %s %s %s", clockTime(v.Timestamp),
			criticalStyle.Render("ALERT "+strings.ToUpper(string(v.Severity))), v.ServiceID, v.Message)
		if v.Analysis != "" {
			line += dimStyle.Render(" :: ") + v.Analysis
		}
		m.addEvent(line)
	case broadcast.RemediationResult:
		style := healthyStyle
		if !v.Success {
			style = criticalStyle
		}
		m.addEvent(fmt.Sprintf("[%s] %s %s %s", clockTime(v.Timestamp),
			style.Render("REMEDIATE"), v.ServiceID, v.Message))
	}
}

func (m *tuiModel) addEvent(line string) {
	m.events = append(m.events, line)
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
	m.refreshViewport()
}

func serviceRows(services []telemetry.EntityState) []table.Row {
	rows := make([]table.Row, 0, len(services))
	for _, s := range services {
		rows = append(rows, table.Row{
			s.ServiceID,
			string(s.Status),
			fmt.Sprintf("%dms", s.LatencyMS),
			fmt.Sprintf("%.1f%%", s.ErrorRate*100),
			fmt.Sprintf("%d", s.TrafficVolume),
			clockTime(s.LastUpdated),
		})
	}
	return rows
}

func clockTime(t time.Time) string {
	if t.IsZero() {
		return "--:--:--"
	}
	return t.Local().Format("15:04:05")
}

func (m *tuiModel) updateViewportHeight() {
	h := m.height - lipgloss.Height(m.renderHeader()) - lipgloss.Height(m.table.View()) - 4
	if h < 1 {
		h = 1
	}
	m.vp.Height = h
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshViewport() {
	lines := make([]string, 0, len(m.events))
	for _, l := range m.events {
		if m.wrap && m.vp.Width > 0 {
			lines = append(lines, wordwrap.String(l, m.vp.Width))
		} else {
			lines = append(lines, l)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m tuiModel) renderHeader() string {
	title := titleStyle.Render("NEXUS PROTOCOL")
	if !m.haveState {
		return title + dimStyle.Render("  waiting for state from "+m.url)
	}
	s := m.snapshot
	integrity := integrityStyle(s.SystemIntegrity).Render(fmt.Sprintf("%.1f%%", s.SystemIntegrity))
	var badges []string
	for _, svc := range s.Services {
		badges = append(badges, statusStyle(svc.Status).Render("●")+" "+svc.ServiceID)
	}
	return fmt.Sprintf("%s  integrity %s  incidents %d  uptime %s\n%s",
		title, integrity, s.ActiveIncidents, time.Duration(s.UptimeSeconds)*time.Second,
		strings.Join(badges, "  "))
}

func (m tuiModel) View() string {
	divider := dimStyle.Render(strings.Repeat("─", m.vp.Width))
	help := dimStyle.Render("q quit • w wrap • s autoscroll")
	return strings.Join([]string{
		m.renderHeader(),
		divider,
		m.table.View(),
		divider,
		m.vp.View(),
		help,
	}, "\n")
}
