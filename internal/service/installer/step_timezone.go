package installer

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

const defaultTimezone = "Asia/Singapore"

// TimezoneStep sets the school's timezone, used for the day boundary, the
// purge time and reminder windows.
type TimezoneStep struct {
	input textinput.Model
	err   error
}

func NewTimezoneStep() Step {
	ti := textinput.New()
	ti.Focus()
	ti.Width = 40
	ti.Placeholder = defaultTimezone

	return &TimezoneStep{input: ti}
}

func (s *TimezoneStep) Init() tea.Cmd {
	return textinput.Blink
}

func (s *TimezoneStep) Update(msg tea.Msg, state *InstallState, width, height int) (Step, tea.Cmd) {
	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)

	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "enter" {
		tz := strings.TrimSpace(s.input.Value())
		if tz == "" {
			tz = defaultTimezone
		}
		if _, err := time.LoadLocation(tz); err != nil {
			s.err = fmt.Errorf("unknown timezone %q", tz)
			return s, cmd
		}
		state.App.Timezone = tz
		return nil, nil
	}
	return s, cmd
}

func (s *TimezoneStep) View(state *InstallState) string {
	view := "Enter the school's timezone:\n\n" + s.input.View() + "\n\n"
	if s.err != nil {
		view += errorStyle.Render(s.err.Error()) + "\n\n"
	}
	return view + "(press enter for " + defaultTimezone + ")\n"
}
