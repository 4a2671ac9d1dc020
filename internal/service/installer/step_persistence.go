package installer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sandevgo/reliefdesk/internal/config"
	"github.com/sandevgo/reliefdesk/pkg/env"
)

const inboxDir = "inbox"

// SaveEnvStep writes the collected configuration to .env file
type SaveEnvStep struct {
	err   error
	saved bool
}

func NewSaveEnvStep() Step {
	return &SaveEnvStep{}
}

func (s *SaveEnvStep) Init() tea.Cmd {
	return func() tea.Msg { return nextMsg{} }
}

func (s *SaveEnvStep) Update(msg tea.Msg, state *InstallState, width, height int) (Step, tea.Cmd) {
	if s.saved {
		return nil, nil
	}

	if err := SaveEnv(config.GetRuntimePath(), state); err != nil {
		s.err = err
		return s, nil
	}

	s.saved = true
	return nil, nil // Signal completion
}

func (s *SaveEnvStep) View(state *InstallState) string {
	if s.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", s.err)) + "\n\n(press ctrl+c to quit)\n"
	}
	if s.saved {
		return "Configuration saved successfully!\n"
	}
	return "Saving configuration...\n"
}

// SaveEnv writes state as <dir>/.env. An existing file is never overwritten.
func SaveEnv(dir string, state *InstallState) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create runtime directory: %w", err)
	}

	envPath := filepath.Join(dir, ".env")
	if _, err := os.Stat(envPath); err == nil {
		return fmt.Errorf(".env file already exists at %s", envPath)
	}

	content, err := RenderEnv(state)
	if err != nil {
		return err
	}
	return os.WriteFile(envPath, []byte(content), 0600)
}

// RenderEnv renders the non-default settings of state in .env syntax.
func RenderEnv(state *InstallState) (string, error) {
	var sb strings.Builder
	for _, c := range []any{&state.App, &state.LLM, &state.Telegram} {
		part, err := env.MarshalEnv(c)
		if err != nil {
			return "", err
		}
		sb.WriteString(part)
	}

	// Telegram is on by default, so disabling it has to be explicit.
	if state.Telegram.Token == "" {
		sb.WriteString("DESK_ENABLE_TELEGRAM=false\n")
	}
	return sb.String(), nil
}

// InitializeFilesStep creates the runtime layout and a sources file that
// syncs the local inbox folder.
type InitializeFilesStep struct {
	err  error
	done bool
}

func NewInitializeFilesStep() Step {
	return &InitializeFilesStep{}
}

func (s *InitializeFilesStep) Init() tea.Cmd {
	return func() tea.Msg { return nextMsg{} }
}

func (s *InitializeFilesStep) Update(msg tea.Msg, state *InstallState, width, height int) (Step, tea.Cmd) {
	if s.done {
		return nil, nil
	}

	if err := InitializeFiles(config.GetRuntimePath()); err != nil {
		s.err = err
		return s, nil
	}

	s.done = true
	return nil, nil
}

func (s *InitializeFilesStep) View(state *InstallState) string {
	if s.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", s.err)) + "\n\n(press ctrl+c to quit)\n"
	}
	if s.done {
		return "Runtime files initialized successfully!\n"
	}
	return "Initializing runtime files...\n"
}

// InitializeFiles creates the storage and inbox directories and, when absent,
// a sources.yaml with one folder source over the inbox.
func InitializeFiles(dir string) error {
	inbox := filepath.Join(dir, inboxDir)
	for _, p := range []string{filepath.Join(dir, "storage"), inbox} {
		if err := os.MkdirAll(p, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", p, err)
		}
	}

	sourcesPath := filepath.Join(dir, "sources.yaml")
	if _, err := os.Stat(sourcesPath); err == nil {
		return nil
	}

	sources := &config.SourcesConfig{Sources: []config.SourceConfig{{
		Name:     inboxDir,
		Type:     config.SourceFolder,
		Root:     inbox,
		Interval: "5m",
	}}}
	return sources.Save(sourcesPath)
}
