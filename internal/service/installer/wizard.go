package installer

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	itemStyle  = lipgloss.NewStyle().PaddingLeft(2)
	selStyle   = lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("5"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

var errSetupAborted = errors.New("reliefdesk setup interrupted")

// Step is one screen of the setup wizard. Update returns nil when the step
// is done, or a replacement step to branch.
type Step interface {
	Init() tea.Cmd
	Update(msg tea.Msg, state *InstallState, width, height int) (Step, tea.Cmd)
	View(state *InstallState) string
}

func deskSteps() []Step {
	return []Step{
		NewProviderStep(),
		NewAPIKeyStep(),
		NewCustomURLStep(),
		NewModelStep(),
		NewTelegramTokenStep(),
		NewSuperAdminsStep(),
		NewTimezoneStep(),
		NewSaveEnvStep(),
		NewInitializeFilesStep(),
	}
}

type item struct {
	id    string
	title string
	desc  string
}

func (i item) Title() string       { return i.title }
func (i item) Description() string { return i.desc }
func (i item) FilterValue() string { return i.id }

type modelsMsg []list.Item
type errMsg error
type nextMsg struct{}

type wizard struct {
	steps   []Step
	pos     int
	state   *InstallState
	aborted bool
	fatal   error
	width   int
	height  int
}

func newWizard(steps []Step) wizard {
	return wizard{steps: steps, state: NewInstallState()}
}

func (w wizard) done() bool { return w.pos >= len(w.steps) }

func (w wizard) Init() tea.Cmd {
	if w.done() {
		return nil
	}
	return w.steps[w.pos].Init()
}

func (w wizard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			w.aborted = true
			return w, tea.Quit
		}
	case tea.WindowSizeMsg:
		w.width, w.height = msg.Width, msg.Height
	case errMsg:
		w.fatal = msg
		return w, nil
	}
	if w.aborted || w.done() {
		return w, tea.Quit
	}

	next, cmd := w.steps[w.pos].Update(msg, w.state, w.width, w.height)
	if next != nil {
		w.steps[w.pos] = next
		return w, cmd
	}

	w.pos++
	if w.done() {
		return w, tea.Quit
	}
	return w, w.steps[w.pos].Init()
}

func (w wizard) View() string {
	switch {
	case w.aborted:
		return "Setup cancelled, nothing else was written.\n"
	case w.fatal != nil:
		return errorStyle.Render(fmt.Sprintf("Setup failed: %v", w.fatal)) + "\n\n" + hintStyle.Render("ctrl+c to quit") + "\n"
	case w.done():
		return "ReliefDesk is configured. Run `desk start` to bring it up.\n"
	}

	header := titleStyle.Render("ReliefDesk setup 📋") + " " + hintStyle.Render(fmt.Sprintf("step %d of %d", w.pos+1, len(w.steps)))
	return header + "\n\n" + w.steps[w.pos].View(w.state)
}

// RunWizard walks the operator through the settings .env needs.
func RunWizard() (*InstallState, error) {
	final, err := tea.NewProgram(newWizard(deskSteps()), tea.WithAltScreen()).Run()
	if err != nil {
		return nil, err
	}
	w := final.(wizard)
	if w.aborted {
		return nil, errSetupAborted
	}
	return w.state, nil
}
