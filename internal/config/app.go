package config

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/sandevgo/reliefdesk/pkg/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type AppConfig struct {
	RuntimePath   string  `env:"DESK_RUNTIME_PATH" envDefault:".reliefdesk"`
	DatabasePath  string  `env:"DESK_DATABASE_PATH"`
	StoragePath   string  `env:"DESK_STORAGE_PATH"`
	SourcesFile   string  `env:"DESK_SOURCES_FILE"`
	SuperAdminIDs []int64 `env:"DESK_SUPER_ADMIN_IDS"`
	Timezone      string  `env:"DESK_TIMEZONE" envDefault:"Local"`
	LogFormat     string  `env:"DESK_LOG_FORMAT" envDefault:"console"`

	// Transport Flags
	EnableTelegram bool `env:"DESK_ENABLE_TELEGRAM" envDefault:"true"`

	Categories         []string `env:"DESK_CATEGORIES" envDefault:"relief,absent,event,venue_change,duty_roster,general"`
	CoverageCategories []string `env:"DESK_COVERAGE_CATEGORIES" envDefault:"relief"`

	// Conversation
	UploadNotice    bool          `env:"DESK_UPLOAD_NOTICE" envDefault:"true"`
	SessionTimeout  time.Duration `env:"DESK_SESSION_TIMEOUT" envDefault:"10m"`
	CodeMaxAttempts int           `env:"DESK_CODE_MAX_ATTEMPTS" envDefault:"3"`
	RoleOverrideTTL time.Duration `env:"DESK_ROLE_OVERRIDE_TTL" envDefault:"1h"`

	Purge    PurgeConfig
	Reminder ReminderConfig
}

type PurgeConfig struct {
	At            string `env:"DESK_PURGE_AT" envDefault:"23:00"`
	RetentionDays int    `env:"DESK_PURGE_RETENTION_DAYS" envDefault:"1"`
}

type ReminderConfig struct {
	ActiveFrom   string            `env:"DESK_REMINDER_ACTIVE_FROM" envDefault:"07:00"`
	ActiveTo     string            `env:"DESK_REMINDER_ACTIVE_TO" envDefault:"17:00"`
	PollInterval time.Duration     `env:"DESK_REMINDER_POLL_INTERVAL" envDefault:"1m"`
	Lead         time.Duration     `env:"DESK_REMINDER_LEAD" envDefault:"5m"`
	MaxAttempts  int               `env:"DESK_REMINDER_MAX_ATTEMPTS" envDefault:"3"`
	MaxAge       time.Duration     `env:"DESK_REMINDER_MAX_AGE" envDefault:"2h"`
	PeriodTimes  map[string]string `env:"DESK_PERIOD_TIMES" envKeyValSeparator:"="`
}

func NewAppConfig(ctx context.Context) *AppConfig {
	c := &AppConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse App config")
	}
	if err := c.normalize(); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("invalid App config")
	}
	return c
}

func (c *AppConfig) normalize() error {
	c.RuntimePath = resolveRuntimePath(c.RuntimePath)
	if len(c.Reminder.PeriodTimes) == 0 {
		c.Reminder.PeriodTimes = DefaultPeriodTimes()
	}
	if c.CodeMaxAttempts < 1 {
		return fmt.Errorf("DESK_CODE_MAX_ATTEMPTS must be positive")
	}
	if c.Purge.RetentionDays < 1 {
		return fmt.Errorf("DESK_PURGE_RETENTION_DAYS must be positive")
	}
	for _, name := range c.CoverageCategories {
		if !slices.Contains(c.Categories, name) {
			return fmt.Errorf("coverage category %q is not in DESK_CATEGORIES", name)
		}
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	for _, clock := range []string{c.Purge.At, c.Reminder.ActiveFrom, c.Reminder.ActiveTo} {
		if _, err := ParseClock(clock); err != nil {
			return err
		}
	}
	return nil
}

func (c AppConfig) GetRuntimePath() string {
	return c.RuntimePath
}

func (c AppConfig) GetDatabasePath() string {
	if c.DatabasePath != "" {
		return c.DatabasePath
	}
	return filepath.Join(c.RuntimePath, "reliefdesk.db")
}

func (c AppConfig) GetStoragePath() string {
	if c.StoragePath != "" {
		return c.StoragePath
	}
	return filepath.Join(c.RuntimePath, "storage")
}

func (c AppConfig) GetSourcesPath() string {
	if c.SourcesFile != "" {
		return c.SourcesFile
	}
	return filepath.Join(c.RuntimePath, "sources.yaml")
}

func (c AppConfig) IsTelegramSelected() bool {
	return c.EnableTelegram
}

func (c AppConfig) IsSuperAdmin(id int64) bool {
	return slices.Contains(c.SuperAdminIDs, id)
}

func (c AppConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

var categoryLabels = map[string]string{
	"relief":       "Relief",
	"absent":       "Absent",
	"event":        "Event",
	"venue_change": "Venue Change",
	"duty_roster":  "Duty Roster",
	"general":      "General",
}

// CategoryList returns the configured categories in display order.
func (c AppConfig) CategoryList() []core.Category {
	title := cases.Title(language.English)
	out := make([]core.Category, 0, len(c.Categories))
	for _, name := range c.Categories {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		label, ok := categoryLabels[name]
		if !ok {
			label = title.String(strings.ReplaceAll(name, "_", " "))
		}
		out = append(out, core.Category{
			Name:     name,
			Label:    label,
			Coverage: slices.Contains(c.CoverageCategories, name),
		})
	}
	return out
}

// DefaultPeriodTimes is the school timetable: period 0 at 07:35, period 1 at
// 08:00 and every following period 20 minutes later, up to period 25.
func DefaultPeriodTimes() map[string]string {
	periods := map[string]string{"0": "07:35"}
	start := 8 * 60
	for p := 1; p <= 25; p++ {
		minutes := start + (p-1)*20
		periods[fmt.Sprint(p)] = fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
	}
	return periods
}

// ParseClock parses "HH:MM" into a duration since midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: want HH:MM", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
