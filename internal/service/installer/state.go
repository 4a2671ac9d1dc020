package installer

import (
	"github.com/sandevgo/reliefdesk/internal/config"
)

// InstallState collects typed configuration while the wizard runs. Only
// fields the operator sets are written; everything else keeps its default.
type InstallState struct {
	App      config.AppConfig
	LLM      config.LLMConfig
	Telegram config.TelegramConfig
}

func NewInstallState() *InstallState {
	return &InstallState{}
}
