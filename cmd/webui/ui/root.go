package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

type state int

const (
	stateLogin state = iota
	stateDashboard
	stateDeviceDetail
)

type RootModel struct {
	State     state
	Session   *Session
	Interval  time.Duration
	Login     LoginModel
	Dashboard DashboardModel
	Detail    DeviceDetailModel
	Quitting  bool
	width     int
	height    int
}

// NewRootModel starts on the dashboard when a token is supplied and on the
// connect form otherwise.
func NewRootModel(base, token string, interval time.Duration) RootModel {
	m := RootModel{Interval: interval, Login: NewLoginModel(base, token), height: 24, width: 100}
	if token != "" {
		m.Session = NewSession(base, token)
		m.State = stateDashboard
		m.Dashboard = NewDashboardModel(m.Session, interval, m.height)
	}
	return m
}

func (m RootModel) Init() tea.Cmd {
	if m.State == stateDashboard {
		return m.Dashboard.Init()
	}
	return m.Login.Init()
}

func (m RootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.Dashboard.Table.SetHeight(max(msg.Height-10, 5))
		if m.State == stateDeviceDetail {
			m.Detail, cmd = m.Detail.Update(msg)
		}
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.Quitting = true
			return m, tea.Quit
		}

	case loginResultMsg:
		if msg.Err != nil || msg.Session == nil {
			m.Login, cmd = m.Login.Update(msg)
			return m, cmd
		}
		m.Session = msg.Session
		m.State = stateDashboard
		m.Dashboard = NewDashboardModel(m.Session, m.Interval, m.height)
		return m, m.Dashboard.Init()

	case refreshTickMsg:
		// the dashboard owns the ticker and keeps polling in every view
		var cmds []tea.Cmd
		m.Dashboard, cmd = m.Dashboard.Update(msg)
		cmds = append(cmds, cmd)
		if m.State == stateDeviceDetail {
			m.Detail, cmd = m.Detail.Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)

	case devicesLoadedMsg, confirmationClearedMsg:
		m.Dashboard, cmd = m.Dashboard.Update(msg)
		return m, cmd
	}

	switch m.State {
	case stateLogin:
		m.Login, cmd = m.Login.Update(msg)

	case stateDashboard:
		if sel, ok := msg.(DeviceSelectedMsg); ok {
			m.State = stateDeviceDetail
			m.Detail = NewDeviceDetailModel(m.Session, sel.DeviceID, m.width, m.height)
			return m, m.Detail.Init()
		}
		m.Dashboard, cmd = m.Dashboard.Update(msg)

	case stateDeviceDetail:
		if _, ok := msg.(BackToDashboardMsg); ok {
			m.State = stateDashboard
			return m, m.Dashboard.fetch
		}
		m.Detail, cmd = m.Detail.Update(msg)
	}
	return m, cmd
}

func (m RootModel) View() string {
	if m.Quitting {
		return "Bye!\n"
	}
	switch m.State {
	case stateLogin:
		return m.Login.View()
	case stateDashboard:
		return m.Dashboard.View()
	case stateDeviceDetail:
		return m.Detail.View()
	}
	return "Unknown state"
}
