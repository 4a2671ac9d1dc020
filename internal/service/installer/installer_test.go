package installer

import (
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sandevgo/reliefdesk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enter() tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyEnter} }

func TestRenderEnv(t *testing.T) {
	state := NewInstallState()
	state.LLM.Provider = "anthropic"
	state.LLM.APIKey = "sk-ant-1"
	state.App.SuperAdminIDs = []int64{11, 22}
	state.App.Timezone = "Asia/Singapore"

	out, err := RenderEnv(state)
	require.NoError(t, err)
	assert.Contains(t, out, "LLM_PROVIDER=anthropic\n")
	assert.Contains(t, out, "LLM_API_KEY=sk-ant-1\n")
	assert.Contains(t, out, "DESK_SUPER_ADMIN_IDS=11,22\n")
	assert.Contains(t, out, "DESK_TIMEZONE=Asia/Singapore\n")
	assert.Contains(t, out, "DESK_ENABLE_TELEGRAM=false\n")
	assert.NotContains(t, out, "TELEGRAM_TOKEN")

	state.Telegram.Token = "123:abc"
	out, err = RenderEnv(state)
	require.NoError(t, err)
	assert.Contains(t, out, "TELEGRAM_TOKEN=123:abc\n")
	assert.NotContains(t, out, "DESK_ENABLE_TELEGRAM")
}

func TestSaveEnv_DoesNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	state := NewInstallState()
	state.LLM.Provider = "openai"

	require.NoError(t, SaveEnv(dir, state))
	data, err := os.ReadFile(filepath.Join(dir, ".env"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "LLM_PROVIDER=openai\n")

	err = SaveEnv(dir, state)
	assert.ErrorContains(t, err, "already exists")
}

func TestInitializeFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, InitializeFiles(dir))

	assert.DirExists(t, filepath.Join(dir, "storage"))
	assert.DirExists(t, filepath.Join(dir, "inbox"))

	sources, err := config.LoadSources(filepath.Join(dir, "sources.yaml"))
	require.NoError(t, err)
	require.Len(t, sources.Sources, 1)
	assert.Equal(t, config.SourceFolder, sources.Sources[0].Type)
	assert.Equal(t, filepath.Join(dir, "inbox"), sources.Sources[0].Root)

	// A second run keeps an edited file.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sources.yaml"), []byte("sources: []\n"), 0644))
	require.NoError(t, InitializeFiles(dir))
	sources, err = config.LoadSources(filepath.Join(dir, "sources.yaml"))
	require.NoError(t, err)
	assert.Empty(t, sources.Sources)
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs("11, 22 33")
	require.NoError(t, err)
	assert.Equal(t, []int64{11, 22, 33}, ids)

	_, err = parseIDs("11, abc")
	assert.ErrorContains(t, err, `"abc"`)
	_, err = parseIDs("  ")
	assert.Error(t, err)
}

func TestProviderStep_SelectsWithKeys(t *testing.T) {
	state := NewInstallState()
	step := NewProviderStep()

	step, _ = step.Update(tea.KeyMsg{Type: tea.KeyDown}, state, 80, 24)
	require.NotNil(t, step)
	next, _ := step.Update(enter(), state, 80, 24)
	assert.Nil(t, next)
	assert.Equal(t, "openai", state.LLM.Provider)
}

func TestCustomURLStep_SkippedForKnownProviders(t *testing.T) {
	state := NewInstallState()
	state.LLM.Provider = "anthropic"
	next, _ := NewCustomURLStep().Update(enter(), state, 80, 24)
	assert.Nil(t, next)
	assert.Empty(t, state.LLM.BaseURL)
}

func TestTimezoneStep_DefaultsAndValidates(t *testing.T) {
	state := NewInstallState()
	next, _ := NewTimezoneStep().Update(enter(), state, 80, 24)
	assert.Nil(t, next)
	assert.Equal(t, defaultTimezone, state.App.Timezone)

	step := NewTimezoneStep()
	for _, r := range "Mars/Olympus" {
		step, _ = step.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}, state, 80, 24)
	}
	next, _ = step.Update(enter(), state, 80, 24)
	assert.NotNil(t, next)
	assert.Contains(t, next.View(state), "unknown timezone")
}

type finishOnEnter struct{ seen *int }

func (s finishOnEnter) Init() tea.Cmd             { return nil }
func (s finishOnEnter) View(*InstallState) string { return "press enter" }
func (s finishOnEnter) Update(msg tea.Msg, _ *InstallState, _, _ int) (Step, tea.Cmd) {
	*s.seen++
	if k, ok := msg.(tea.KeyMsg); ok && k.Type == tea.KeyEnter {
		return nil, nil
	}
	return s, nil
}

func TestWizard_AdvancesThroughSteps(t *testing.T) {
	var seen int
	w := newWizard([]Step{finishOnEnter{&seen}, finishOnEnter{&seen}})

	assert.Contains(t, w.View(), "step 1 of 2")

	m, _ := w.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	w = m.(wizard)
	assert.Equal(t, 0, w.pos)

	m, _ = w.Update(enter())
	w = m.(wizard)
	assert.Equal(t, 1, w.pos)
	assert.Contains(t, w.View(), "step 2 of 2")

	m, cmd := w.Update(enter())
	w = m.(wizard)
	assert.True(t, w.done())
	assert.NotNil(t, cmd)
	assert.Equal(t, 3, seen)
}

func TestWizard_CtrlCAborts(t *testing.T) {
	var seen int
	w := newWizard([]Step{finishOnEnter{&seen}})

	m, _ := w.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	w = m.(wizard)
	assert.True(t, w.aborted)
	assert.Zero(t, seen)
	assert.Contains(t, w.View(), "Setup cancelled")
}
