package ui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type LoginModel struct {
	Inputs   []textinput.Model
	FocusIdx int
	Err      error
}

const (
	inputRelay = iota
	inputToken
)

type loginResultMsg struct {
	Session *Session
	Err     error
}

func NewLoginModel(base, token string) LoginModel {
	inputs := make([]textinput.Model, 2)

	inputs[inputRelay] = textinput.New()
	inputs[inputRelay].Placeholder = "http://127.0.0.1:8787"
	inputs[inputRelay].Prompt = "Relay: "
	inputs[inputRelay].SetValue(base)
	inputs[inputRelay].Focus()

	inputs[inputToken] = textinput.New()
	inputs[inputToken].Placeholder = "output of `relay token`"
	inputs[inputToken].Prompt = "Token: "
	inputs[inputToken].EchoMode = textinput.EchoPassword
	inputs[inputToken].CharLimit = 4096
	inputs[inputToken].SetValue(token)

	return LoginModel{Inputs: inputs}
}

func (m LoginModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m LoginModel) Update(msg tea.Msg) (LoginModel, tea.Cmd) {
	cmds := make([]tea.Cmd, len(m.Inputs))

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEnter:
			if m.FocusIdx == len(m.Inputs)-1 {
				return m, m.LoginCmd
			}
			m.nextInput()
		case tea.KeyTab, tea.KeyDown:
			m.nextInput()
		case tea.KeyShiftTab, tea.KeyUp:
			m.prevInput()
		}
	case loginResultMsg:
		m.Err = msg.Err
	}

	for i := range m.Inputs {
		m.Inputs[i], cmds[i] = m.Inputs[i].Update(msg)
	}
	return m, tea.Batch(cmds...)
}

func (m *LoginModel) nextInput() {
	m.Inputs[m.FocusIdx].Blur()
	m.FocusIdx = (m.FocusIdx + 1) % len(m.Inputs)
	m.Inputs[m.FocusIdx].Focus()
}

func (m *LoginModel) prevInput() {
	m.Inputs[m.FocusIdx].Blur()
	m.FocusIdx--
	if m.FocusIdx < 0 {
		m.FocusIdx = len(m.Inputs) - 1
	}
	m.Inputs[m.FocusIdx].Focus()
}

// LoginCmd checks the token by listing devices once.
func (m LoginModel) LoginCmd() tea.Msg {
	base := strings.TrimSpace(m.Inputs[inputRelay].Value())
	token := strings.TrimSpace(m.Inputs[inputToken].Value())
	if base == "" || token == "" {
		return loginResultMsg{Err: errors.New("relay URL and token are required")}
	}
	s := NewSession(base, token)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.Devices(ctx); err != nil {
		return loginResultMsg{Err: err}
	}
	return loginResultMsg{Session: s}
}

func (m LoginModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Relay Console - Connect") + "\n\n")
	for i := range m.Inputs {
		b.WriteString(m.Inputs[i].View())
		if i < len(m.Inputs)-1 {
			b.WriteRune('\n')
		}
	}
	b.WriteString("\n\n")
	b.WriteString(blurredStyle.Render("Tab to change fields, Enter to connect"))

	if m.Err != nil {
		b.WriteString("\n\n")
		b.WriteString(errorMessageStyle(m.Err.Error()))
	}
	return b.String()
}
