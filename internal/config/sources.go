package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	SourceFolder = "folder"
	SourceHTTP   = "http"

	defaultSourceInterval = 15 * time.Minute
)

// SourcesConfig is the sources.yaml file describing external feeds.
type SourcesConfig struct {
	Sources []SourceConfig `yaml:"sources"`
}

type SourceConfig struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Root     string `yaml:"root,omitempty"`
	URL      string `yaml:"url,omitempty"`
	Interval string `yaml:"interval,omitempty"`
	Category string `yaml:"category,omitempty"`
	// TokenEnv names the environment variable holding the bearer credential.
	TokenEnv string `yaml:"token_env,omitempty"`
}

func (s SourceConfig) Every() time.Duration {
	d, err := time.ParseDuration(s.Interval)
	if err != nil || d <= 0 {
		return defaultSourceInterval
	}
	return d
}

func (s SourceConfig) Token() string {
	if s.TokenEnv == "" {
		return ""
	}
	return os.Getenv(s.TokenEnv)
}

func (s SourceConfig) validate() error {
	if s.Name == "" {
		return errors.New("source without name")
	}
	if s.Interval != "" {
		if _, err := time.ParseDuration(s.Interval); err != nil {
			return fmt.Errorf("source %s: interval: %w", s.Name, err)
		}
	}
	switch s.Type {
	case SourceFolder:
		if s.Root == "" {
			return fmt.Errorf("source %s: folder source needs root", s.Name)
		}
	case SourceHTTP:
		if s.URL == "" {
			return fmt.Errorf("source %s: http source needs url", s.Name)
		}
	default:
		return fmt.Errorf("source %s: unknown type %q", s.Name, s.Type)
	}
	return nil
}

// LoadSources reads path. A missing file means no sources.
func LoadSources(path string) (*SourcesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &SourcesConfig{}, nil
		}
		return nil, fmt.Errorf("read sources: %w", err)
	}

	var cfg SourcesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse sources: %w", err)
	}

	seen := make(map[string]bool, len(cfg.Sources))
	for _, s := range cfg.Sources {
		if err := s.validate(); err != nil {
			return nil, err
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("duplicate source name %q", s.Name)
		}
		seen[s.Name] = true
	}
	return &cfg, nil
}

func (c *SourcesConfig) Find(name string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return SourceConfig{}, false
}

// Save writes the configuration as YAML to path.
func (c *SourcesConfig) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode sources: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write sources: %w", err)
	}
	return nil
}
