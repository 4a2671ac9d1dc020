package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppConfig_Defaults(t *testing.T) {
	t.Setenv("DESK_RUNTIME_PATH", t.TempDir())
	t.Setenv("DESK_TIMEZONE", "UTC")

	c := &AppConfig{}
	require.NoError(t, env.Parse(c))
	require.NoError(t, c.normalize())

	assert.Equal(t, 10*time.Minute, c.SessionTimeout)
	assert.Equal(t, 3, c.CodeMaxAttempts)
	assert.True(t, c.UploadNotice)
	assert.Equal(t, "23:00", c.Purge.At)
	assert.Equal(t, "07:35", c.Reminder.PeriodTimes["0"])
	assert.Equal(t, "08:00", c.Reminder.PeriodTimes["1"])
	assert.Equal(t, "08:20", c.Reminder.PeriodTimes["2"])
	assert.Equal(t, "16:00", c.Reminder.PeriodTimes["25"])
	assert.Equal(t, filepath.Join(c.RuntimePath, "reliefdesk.db"), c.GetDatabasePath())

	cats := c.CategoryList()
	require.Len(t, cats, 6)
	assert.Equal(t, "relief", cats[0].Name)
	assert.True(t, cats[0].Coverage)
	assert.Equal(t, "Venue Change", cats[3].Label)
	assert.False(t, cats[3].Coverage)
}

func TestAppConfig_ParsesLists(t *testing.T) {
	t.Setenv("DESK_RUNTIME_PATH", t.TempDir())
	t.Setenv("DESK_SUPER_ADMIN_IDS", "11,22")
	t.Setenv("DESK_CATEGORIES", "relief,field_trip")
	t.Setenv("DESK_PERIOD_TIMES", "1=09:00,2=09:30")

	c := &AppConfig{}
	require.NoError(t, env.Parse(c))
	require.NoError(t, c.normalize())

	assert.True(t, c.IsSuperAdmin(22))
	assert.False(t, c.IsSuperAdmin(33))
	assert.Equal(t, "09:30", c.Reminder.PeriodTimes["2"])
	assert.Equal(t, "Field Trip", c.CategoryList()[1].Label)
}

func TestAppConfig_RejectsUnknownCoverageCategory(t *testing.T) {
	t.Setenv("DESK_RUNTIME_PATH", t.TempDir())
	t.Setenv("DESK_CATEGORIES", "general")

	c := &AppConfig{}
	require.NoError(t, env.Parse(c))
	assert.Error(t, c.normalize())
}

func TestParseClock(t *testing.T) {
	d, err := ParseClock("07:35")
	require.NoError(t, err)
	assert.Equal(t, 7*time.Hour+35*time.Minute, d)

	_, err = ParseClock("7pm")
	assert.Error(t, err)
}

func TestLoadSources(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sources.yaml")

	cfg, err := LoadSources(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Sources)

	content := `sources:
  - name: drive
    type: folder
    root: /srv/drive
    interval: 5m
  - name: bulletin
    type: http
    url: https://example.org/index.json
    token_env: BULLETIN_TOKEN
    category: event
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("BULLETIN_TOKEN", "secret")

	cfg, err = LoadSources(path)
	require.NoError(t, err)
	require.Len(t, cfg.Sources, 2)
	assert.Equal(t, 5*time.Minute, cfg.Sources[0].Every())

	bulletin, ok := cfg.Find("bulletin")
	require.True(t, ok)
	assert.Equal(t, "secret", bulletin.Token())
	assert.Equal(t, 15*time.Minute, bulletin.Every())
}

func TestLoadSources_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sources:\n  - name: x\n    type: ftp\n"), 0o644))

	_, err := LoadSources(path)
	assert.Error(t, err)
}
