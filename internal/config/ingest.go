package config

import (
	"context"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/reliefdesk/pkg/log"
)

type IngestConfig struct {
	MaxPages           int     `env:"INGEST_MAX_PAGES" envDefault:"10"`
	MaxFallbackPages   int     `env:"INGEST_MAX_FALLBACK_PAGES" envDefault:"2"`
	SparseCharsPerPage int     `env:"INGEST_SPARSE_CHARS_PER_PAGE" envDefault:"100"`
	RenderDPI          float64 `env:"INGEST_RENDER_DPI" envDefault:"150"`
	MaxArtifactBytes   int64   `env:"INGEST_MAX_ARTIFACT_BYTES" envDefault:"20971520"`
}

func NewIngestConfig(ctx context.Context) *IngestConfig {
	c := &IngestConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Ingest config")
	}
	return c
}
