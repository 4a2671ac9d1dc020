package config

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/reliefdesk/pkg/log"
)

type LLMConfig struct {
	Provider   string        `env:"LLM_PROVIDER" envDefault:"anthropic"`
	APIKey     string        `env:"LLM_API_KEY"`
	Model      string        `env:"LLM_MODEL" envDefault:"claude-sonnet-4-20250514"`
	BaseURL    string        `env:"LLM_BASE_URL"`
	Timeout    time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`
	MaxRetries int           `env:"LLM_MAX_RETRIES" envDefault:"3"`
	MaxTokens  int           `env:"LLM_MAX_TOKENS" envDefault:"2048"`
}

func NewLLMConfig(ctx context.Context) *LLMConfig {
	c := &LLMConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse LLM config")
	}
	return c
}
