// Package source implements the external feeds that the sync coordinator
// merges into the entry store.
package source

import (
	"fmt"

	"github.com/sandevgo/reliefdesk/internal/config"
	"github.com/sandevgo/reliefdesk/internal/core"
)

// New builds the source described by cfg.
func New(cfg config.SourceConfig, classifier *Classifier) (core.Source, error) {
	switch cfg.Type {
	case config.SourceFolder:
		return NewFolder(cfg.Name, cfg.Root, cfg.Every(), cfg.Category, classifier), nil
	case config.SourceHTTP:
		return NewHTTP(cfg.Name, cfg.URL, cfg.Token(), cfg.Every(), cfg.Category, classifier)
	default:
		return nil, fmt.Errorf("unknown source type %q", cfg.Type)
	}
}

// NewAll builds every configured source.
func NewAll(cfg *config.SourcesConfig, classifier *Classifier) ([]core.Source, error) {
	out := make([]core.Source, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		s, err := New(sc, classifier)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
