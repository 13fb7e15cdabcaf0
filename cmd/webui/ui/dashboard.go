package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"job-relay/backend/app/dto"
)

type DashboardModel struct {
	Session  *Session
	Table    table.Model
	Devices  []dto.DeviceSummary
	Interval time.Duration
	Status   string
	Err      error
}

type DeviceSelectedMsg struct {
	DeviceID string
}

type devicesLoadedMsg struct {
	Devices []dto.DeviceSummary
	Err     error
}

type refreshTickMsg time.Time

type confirmationClearedMsg struct {
	DeviceID string
	Resp     dto.ClearConfirmationResponse
	Err      error
}

func NewDashboardModel(s *Session, interval time.Duration, height int) DashboardModel {
	columns := []table.Column{
		{Title: "Device ID", Width: 28},
		{Title: "Push", Width: 5},
		{Title: "Queue", Width: 6},
		{Title: "Events", Width: 7},
		{Title: "Last Event", Width: 20},
		{Title: "Last Seen", Width: 10},
		{Title: "Awaiting", Width: 40},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(max(height-10, 5)),
	)
	t.SetStyles(tableStyles())

	if interval <= 0 {
		interval = 2 * time.Second
	}
	return DashboardModel{Session: s, Table: t, Interval: interval}
}

func (m DashboardModel) Init() tea.Cmd {
	return tea.Batch(m.fetch, m.tick())
}

func (m DashboardModel) fetch() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	devs, err := m.Session.Devices(ctx)
	return devicesLoadedMsg{Devices: devs, Err: err}
}

func (m DashboardModel) tick() tea.Cmd {
	return tea.Tick(m.Interval, func(t time.Time) tea.Msg { return refreshTickMsg(t) })
}

func (m DashboardModel) clear(deviceID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		resp, err := m.Session.ClearConfirmation(ctx, deviceID)
		return confirmationClearedMsg{DeviceID: deviceID, Resp: resp, Err: err}
	}
}

func (m DashboardModel) Update(msg tea.Msg) (DashboardModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "r":
			return m, m.fetch
		case "c":
			if row := m.Table.SelectedRow(); len(row) > 0 {
				return m, m.clear(row[0])
			}
			return m, nil
		case "enter":
			if row := m.Table.SelectedRow(); len(row) > 0 {
				id := row[0]
				return m, func() tea.Msg { return DeviceSelectedMsg{DeviceID: id} }
			}
			return m, nil
		case "q":
			return m, tea.Quit
		}

	case refreshTickMsg:
		return m, tea.Batch(m.fetch, m.tick())

	case devicesLoadedMsg:
		m.Err = msg.Err
		if msg.Err == nil {
			m.Devices = msg.Devices
			m.Table.SetRows(deviceRows(msg.Devices, time.Now()))
		}
		return m, nil

	case confirmationClearedMsg:
		switch {
		case msg.Err != nil:
			m.Err = msg.Err
		case msg.Resp.Cleared && msg.Resp.Command != nil:
			m.Status = fmt.Sprintf("Cleared %s on %s", msg.Resp.Command.Value, msg.DeviceID)
		default:
			m.Status = "Nothing to clear on " + msg.DeviceID
		}
		return m, m.fetch
	}

	var cmd tea.Cmd
	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

// deviceRows renders summaries as table rows; the first column is the id.
func deviceRows(devs []dto.DeviceSummary, now time.Time) []table.Row {
	rows := make([]table.Row, 0, len(devs))
	for _, d := range devs {
		push := "-"
		if d.Online {
			push = "yes"
		}
		awaiting := ""
		if d.PendingURL != "" {
			awaiting = d.PendingURL + " (" + d.PendingFor + ")"
		}
		rows = append(rows, table.Row{
			d.DeviceID,
			push,
			fmt.Sprint(d.QueueLength),
			fmt.Sprint(d.EventCount),
			string(d.LastEvent),
			ago(now, d.LastSeen),
			awaiting,
		})
	}
	return rows
}

func ago(now, t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t).Truncate(time.Second)
	if d < time.Second {
		return "now"
	}
	return d.String()
}

func (m DashboardModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Relay Console - %d device(s)", len(m.Devices))) + "\n\n")
	b.WriteString(m.Table.View())
	b.WriteString("\n\n")
	b.WriteString(blurredStyle.Render("enter: details  c: clear confirmation  r: refresh  q: quit"))

	if m.Status != "" {
		b.WriteString("\n" + statusMessageStyle(m.Status))
	}
	if m.Err != nil {
		b.WriteString("\n" + errorMessageStyle(m.Err.Error()))
	}
	return b.String()
}
