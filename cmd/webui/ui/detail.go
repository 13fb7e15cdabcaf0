package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"job-relay/backend/app/dto"
)

// BackToDashboardMsg signals transition back to dashboard
type BackToDashboardMsg struct{}

const (
	FocusHistory = iota
	FocusCommand
)

const historyLimit = 30

type DeviceDetailModel struct {
	Session  *Session
	DeviceID string
	Width    int
	Height   int

	History     table.Model
	Pending     string
	Events      viewport.Model
	CommandForm *CommandFormModel
	LogContent  string

	Focus int
	Err   error
}

type detailLoadedMsg struct {
	Queue dto.QueueResponse
	Logs  []dto.AgentLogEntry
	Err   error
}

func NewDeviceDetailModel(s *Session, deviceID string, width, height int) DeviceDetailModel {
	columns := []table.Column{
		{Title: "Command", Width: 16},
		{Title: "Action", Width: 9},
		{Title: "Value", Width: 30},
		{Title: "Status", Width: 10},
		{Title: "Via", Width: 5},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(max(height-14, 5)),
	)
	t.SetStyles(tableStyles())

	vp := viewport.New(max(width/2-8, 30), 8)
	vp.Style = lipgloss.NewStyle().PaddingLeft(1)

	form := NewCommandFormModel(deviceID, s, max(width/2-8, 30), max(height/2, 10))

	return DeviceDetailModel{
		Session:     s,
		DeviceID:    deviceID,
		Width:       width,
		Height:      height,
		History:     t,
		Events:      vp,
		CommandForm: &form,
		Focus:       FocusHistory,
	}
}

func (m DeviceDetailModel) Init() tea.Cmd {
	return m.load
}

func (m DeviceDetailModel) load() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q, err := m.Session.Queue(ctx, m.DeviceID, historyLimit)
	if err != nil {
		return detailLoadedMsg{Err: err}
	}
	logs, err := m.Session.Logs(ctx, m.DeviceID, 20)
	return detailLoadedMsg{Queue: q, Logs: logs, Err: err}
}

// historyRows lists what is waiting first, then the journal.
func historyRows(q dto.QueueResponse) []table.Row {
	rows := make([]table.Row, 0, len(q.Queued)+len(q.History)+1)
	if q.Pending != nil {
		c := q.Pending.Command
		rows = append(rows, table.Row{c.ID, c.Action, c.Value, "awaiting", ""})
	}
	for _, c := range q.Queued {
		rows = append(rows, table.Row{c.ID, c.Action, c.Value, "queued", ""})
	}
	for _, h := range q.History {
		if h.Status == "queued" || (q.Pending != nil && h.CommandID == q.Pending.Command.ID) {
			continue
		}
		rows = append(rows, table.Row{h.CommandID, h.Action, h.Value, h.Status, h.Transport})
	}
	return rows
}

func eventLines(logs []dto.AgentLogEntry) string {
	var b strings.Builder
	for _, l := range logs {
		preview := strings.Join(strings.Fields(l.Payload), " ")
		if len(preview) > 60 {
			preview = preview[:60] + "..."
		}
		fmt.Fprintf(&b, "%s %-19s %s\n", l.EventTime.Local().Format(time.TimeOnly), l.Kind, preview)
	}
	return b.String()
}

func (m DeviceDetailModel) Update(msg tea.Msg) (DeviceDetailModel, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			if m.Focus == FocusCommand && m.CommandForm.State == StateFilling {
				break
			}
			return m, func() tea.Msg { return BackToDashboardMsg{} }
		case "tab":
			if m.Focus == FocusHistory {
				m.Focus = FocusCommand
				m.History.Blur()
				return m, nil
			}
			if m.CommandForm.State == StateSelecting {
				m.Focus = FocusHistory
				m.History.Focus()
				return m, nil
			}
		case "r":
			if m.Focus == FocusHistory {
				return m, m.load
			}
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.History.SetHeight(max(msg.Height-14, 5))
		m.Events.Width = max(msg.Width/2-8, 30)
		formMsg := tea.WindowSizeMsg{Width: max(msg.Width/2-8, 30), Height: max(msg.Height/2, 10)}
		*m.CommandForm, _ = m.CommandForm.Update(formMsg)
		return m, nil

	case detailLoadedMsg:
		m.Err = msg.Err
		if msg.Err == nil {
			m.History.SetRows(historyRows(msg.Queue))
			m.Pending = ""
			if msg.Queue.Pending != nil {
				m.Pending = msg.Queue.Pending.Command.Value
			}
			m.Events.SetContent(eventLines(msg.Logs))
		}
		return m, nil

	case refreshTickMsg:
		return m, m.load

	case CommandSentMsg:
		line := msg.Log
		if msg.Err != nil {
			line = "error: " + msg.Err.Error()
		}
		m.LogContent += line + "\n"
		m.CommandForm.State = StateSelecting
		return m, m.load
	}

	if m.Focus == FocusHistory {
		m.History, cmd = m.History.Update(msg)
	} else {
		*m.CommandForm, cmd = m.CommandForm.Update(msg)
	}
	cmds = append(cmds, cmd)
	m.Events, cmd = m.Events.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m DeviceDetailModel) View() string {
	header := titleStyle.Render("Device " + m.DeviceID)
	if m.Pending != "" {
		header += "  " + pendingStyle.Render("awaiting navigation_complete for "+m.Pending)
	}

	width := max(m.Width/2-6, 34)
	active := panelStyle.BorderForeground(lipgloss.Color("205")).Width(width)
	inactive := panelStyle.Width(width)

	left, right := inactive, inactive
	if m.Focus == FocusHistory {
		left = active
	} else {
		right = active
	}

	historyView := left.Render(lipgloss.JoinVertical(lipgloss.Left,
		focusedStyle.Render("Commands"), m.History.View()))

	rightBody := m.CommandForm.View()
	if m.LogContent != "" {
		rightBody += "\n" + statusMessageStyle(strings.TrimRight(m.LogContent, "\n"))
	}
	commandView := right.Render(rightBody)

	var b strings.Builder
	b.WriteString(header + "\n\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, historyView, commandView))
	b.WriteString("\n" + focusedStyle.Render("Recent events") + "\n")
	b.WriteString(m.Events.View())
	b.WriteString("\n" + blurredStyle.Render("tab: switch panel  r: refresh  esc: back"))
	if m.Err != nil {
		b.WriteString("\n" + errorMessageStyle(m.Err.Error()))
	}
	return b.String()
}
