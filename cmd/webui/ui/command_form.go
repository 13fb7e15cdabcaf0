package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type FormState int

const (
	StateSelecting FormState = iota
	StateFilling
)

type cmdItem struct {
	title, desc string
	index       int
}

func (i cmdItem) Title() string       { return i.title }
func (i cmdItem) Description() string { return i.desc }
func (i cmdItem) FilterValue() string { return i.title }

// CommandSentMsg reports the outcome of a submitted command.
type CommandSentMsg struct {
	Log string
	Err error
}

type CommandFormModel struct {
	DeviceID    string
	Session     *Session
	State       FormState
	List        list.Model
	Inputs      []textinput.Model
	Focused     int
	SelectedCmd int
}

type CommandDef struct {
	// Action is empty for the free-form entry, whose first field names it.
	Action      string
	Description string
	Fields      []FieldDef
}

type FieldDef struct {
	Name        string
	Placeholder string
	Required    bool
	Default     string
}

var availableCommands = []CommandDef{
	{
		Action:      "NAVIGATE",
		Description: "Open a URL (held until navigation_complete)",
		Fields:      []FieldDef{{Name: "url", Placeholder: "https://www.linkedin.com/company/...", Required: true}},
	},
	{
		Action:      "SCROLL",
		Description: "Scroll the current page",
		Fields:      []FieldDef{{Name: "amount", Placeholder: "optional"}},
	},
	{
		Action:      "CLICK",
		Description: "Click an element",
		Fields:      []FieldDef{{Name: "selector", Placeholder: "#apply-button", Required: true}},
	},
	{
		Description: "Any action with a value",
		Fields: []FieldDef{
			{Name: "action", Placeholder: "e.g. TYPE", Required: true},
			{Name: "value", Placeholder: "optional"},
		},
	},
}

func (c CommandDef) title() string {
	if c.Action == "" {
		return "Custom"
	}
	return c.Action
}

func NewCommandFormModel(deviceID string, session *Session, width, height int) CommandFormModel {
	items := []list.Item{}
	for i, cmd := range availableCommands {
		items = append(items, cmdItem{title: cmd.title(), desc: cmd.Description, index: i})
	}

	l := list.New(items, list.NewDefaultDelegate(), width, height)
	l.Title = "Send Command"
	l.SetShowHelp(false)

	return CommandFormModel{
		DeviceID: deviceID,
		Session:  session,
		State:    StateSelecting,
		List:     l,
	}
}

func (m *CommandFormModel) initInputs() {
	if m.SelectedCmd < 0 || m.SelectedCmd >= len(availableCommands) {
		m.SelectedCmd = 0
	}
	cmd := availableCommands[m.SelectedCmd]
	m.Inputs = make([]textinput.Model, len(cmd.Fields))
	for i, field := range cmd.Fields {
		ti := textinput.New()
		ti.Placeholder = field.Placeholder
		ti.CharLimit = 2048
		if field.Default != "" {
			ti.SetValue(field.Default)
		}
		if i == 0 {
			ti.Focus()
		}
		m.Inputs[i] = ti
	}
	m.Focused = 0
}

func (m CommandFormModel) Init() tea.Cmd {
	return nil
}

func (m CommandFormModel) Update(msg tea.Msg) (CommandFormModel, tea.Cmd) {
	var cmd tea.Cmd

	if m.State == StateSelecting {
		switch msg := msg.(type) {
		case tea.KeyMsg:
			if msg.String() == "enter" {
				if i, ok := m.List.SelectedItem().(cmdItem); ok {
					m.SelectedCmd = i.index
					m.State = StateFilling
					m.initInputs()
					return m, textinput.Blink
				}
			}
		case tea.WindowSizeMsg:
			m.List.SetWidth(msg.Width)
			m.List.SetHeight(msg.Height)
		}
		m.List, cmd = m.List.Update(msg)
		return m, cmd
	}

	if key, ok := msg.(tea.KeyMsg); ok {
		last := len(m.Inputs) + 1 // submit, then back
		switch key.String() {
		case "esc":
			m.State = StateSelecting
			return m, nil
		case "enter":
			switch m.Focused {
			case len(m.Inputs):
				return m, m.submitCommand()
			case last:
				m.State = StateSelecting
				return m, nil
			}
			m.Focused++
			m.updateFocus()
			return m, nil
		case "tab", "down":
			m.Focused++
			if m.Focused > last {
				m.Focused = 0
			}
			m.updateFocus()
			return m, nil
		case "shift+tab", "up":
			m.Focused--
			if m.Focused < 0 {
				m.Focused = last
			}
			m.updateFocus()
			return m, nil
		}
	}
	if m.Focused >= 0 && m.Focused < len(m.Inputs) {
		m.Inputs[m.Focused], cmd = m.Inputs[m.Focused].Update(msg)
	}
	return m, cmd
}

func (m *CommandFormModel) updateFocus() {
	for i := range m.Inputs {
		if i == m.Focused {
			m.Inputs[i].Focus()
		} else {
			m.Inputs[i].Blur()
		}
	}
}

func (m CommandFormModel) renderButton(text string, focused bool) string {
	if focused {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("205")).Padding(0, 3).Bold(true).Render(text)
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("254")).Background(lipgloss.Color("240")).Padding(0, 3).Render(text)
}

func (m CommandFormModel) View() string {
	if m.State == StateSelecting {
		return m.List.View()
	}

	cmd := availableCommands[m.SelectedCmd]
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).Render("Parameters: "+cmd.title()) + "\n\n")

	for i, field := range cmd.Fields {
		label := field.Name
		if field.Required {
			label += " *"
		}
		labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
		if i == m.Focused {
			labelStyle = labelStyle.Foreground(lipgloss.Color("205")).Bold(true)
		}
		b.WriteString(labelStyle.Render(label) + "\n")
		b.WriteString(m.Inputs[i].View() + "\n\n")
	}

	submitBtn := m.renderButton("Submit", m.Focused == len(m.Inputs))
	backBtn := m.renderButton("Back", m.Focused == len(m.Inputs)+1)
	b.WriteString("\n" + lipgloss.JoinHorizontal(lipgloss.Top, submitBtn, lipgloss.NewStyle().MarginLeft(2).Render(backBtn)))

	return lipgloss.NewStyle().Padding(1, 2).Render(b.String())
}

// buildCommand turns the form into an action and value, checking required
// fields.
func buildCommand(def CommandDef, values []string) (action, value string, err error) {
	for i, f := range def.Fields {
		if f.Required && strings.TrimSpace(values[i]) == "" {
			return "", "", fmt.Errorf("%s is required", f.Name)
		}
	}
	if def.Action == "" {
		action = strings.ToUpper(strings.TrimSpace(values[0]))
		if len(values) > 1 {
			value = strings.TrimSpace(values[1])
		}
		return action, value, nil
	}
	if len(values) > 0 {
		value = strings.TrimSpace(values[0])
	}
	return def.Action, value, nil
}

func (m CommandFormModel) submitCommand() tea.Cmd {
	def := availableCommands[m.SelectedCmd]
	values := make([]string, len(m.Inputs))
	for i := range m.Inputs {
		values[i] = m.Inputs[i].Value()
	}
	deviceID, session := m.DeviceID, m.Session
	return func() tea.Msg {
		action, value, err := buildCommand(def, values)
		if err != nil {
			return CommandSentMsg{Err: err}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		resp, err := session.SendCommand(ctx, deviceID, action, value)
		if err != nil {
			return CommandSentMsg{Err: err}
		}
		return CommandSentMsg{Log: fmt.Sprintf("%s %s -> %s (%s)", action, value, resp.Outcome, resp.Command.ID)}
	}
}
