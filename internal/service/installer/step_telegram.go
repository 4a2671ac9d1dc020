package installer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// TelegramTokenStep collects the Telegram bot token. An empty token disables
// the bot and leaves only the console.
type TelegramTokenStep struct {
	input textinput.Model
}

func NewTelegramTokenStep() Step {
	ti := textinput.New()
	ti.Focus()
	ti.CharLimit = 255
	ti.Width = 40
	ti.Placeholder = "123456789:ABCDEF..."
	ti.EchoMode = textinput.EchoPassword
	ti.EchoCharacter = '•'

	return &TelegramTokenStep{
		input: ti,
	}
}

func (s *TelegramTokenStep) Init() tea.Cmd {
	return textinput.Blink
}

func (s *TelegramTokenStep) Update(msg tea.Msg, state *InstallState, width, height int) (Step, tea.Cmd) {
	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "enter" {
			state.Telegram.Token = strings.TrimSpace(s.input.Value())
			return nil, nil
		}
	}
	return s, cmd
}

func (s *TelegramTokenStep) View(state *InstallState) string {
	return "Enter your Telegram Bot Token (empty for console only):\n\n" +
		s.input.View() + "\n\n" +
		"(press enter to confirm)\n"
}

// SuperAdminsStep collects the Telegram user ids that are super admins.
type SuperAdminsStep struct {
	input textinput.Model
	err   error
}

func NewSuperAdminsStep() Step {
	ti := textinput.New()
	ti.Focus()
	ti.CharLimit = 255
	ti.Width = 40
	ti.Placeholder = "123456789, 987654321"
	ti.EchoMode = textinput.EchoNormal

	return &SuperAdminsStep{
		input: ti,
	}
}

func (s *SuperAdminsStep) Init() tea.Cmd {
	return textinput.Blink
}

func (s *SuperAdminsStep) Update(msg tea.Msg, state *InstallState, width, height int) (Step, tea.Cmd) {
	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "enter" {
			ids, err := parseIDs(s.input.Value())
			if err != nil {
				s.err = err
				return s, cmd
			}
			state.App.SuperAdminIDs = ids
			return nil, nil
		}
	}
	return s, cmd
}

func (s *SuperAdminsStep) View(state *InstallState) string {
	view := "Enter the Telegram user ids of the super admins, comma separated:\n\n" +
		s.input.View() + "\n\n"
	if s.err != nil {
		view += errorStyle.Render(s.err.Error()) + "\n\n"
	}
	return view + "(press enter to confirm)\n"
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("not a valid user id: %q", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("enter at least one user id")
	}
	return ids, nil
}
