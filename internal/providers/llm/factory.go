package llm

import (
	"context"
	"fmt"

	"github.com/sandevgo/reliefdesk/internal/config"
	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/sandevgo/reliefdesk/pkg/log"
	"github.com/sandevgo/reliefdesk/pkg/retry"
)

// NewProvider creates the configured AIProvider wrapped with per-attempt
// timeouts and transient-error retries.
func NewProvider(ctx context.Context, cfg *config.LLMConfig) (*Resilient, error) {
	log.FromCtx(ctx).Info().
		Str("provider", cfg.Provider).
		Str("model", cfg.Model).
		Msg("starting llm provider")

	var p core.AIProvider
	switch cfg.Provider {
	case "anthropic":
		p = NewAnthropic(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.MaxTokens)
	case "openai":
		p = NewOpenAI(cfg.APIKey, cfg.Model, cfg.MaxTokens)
	case "openrouter":
		p = NewOpenRouter(cfg.APIKey, cfg.Model, cfg.MaxTokens)
	case "custom":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("custom llm provider requires LLM_BASE_URL")
		}
		p = NewCustomOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}

	retryCfg := retry.NewDefaultConfig()
	retryCfg.MaxRetries = cfg.MaxRetries
	return NewResilient(p, retryCfg, cfg.Timeout), nil
}
