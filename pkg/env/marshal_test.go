package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type innerConfig struct {
	Token string `env:"TOKEN"`
}

type sampleConfig struct {
	Name     string            `env:"NAME"`
	Count    int               `env:"COUNT"`
	Enabled  bool              `env:"ENABLED"`
	Timeout  time.Duration     `env:"TIMEOUT"`
	IDs      []int64           `env:"IDS"`
	Periods  map[string]string `env:"PERIODS"`
	Empty    string            `env:"EMPTY"`
	Phrase   string            `env:"PHRASE"`
	Inner    innerConfig       `envPrefix:"TG_"`
	internal string
}

func TestMarshalEnv(t *testing.T) {
	cfg := &sampleConfig{
		Name:     "desk",
		Count:    3,
		Enabled:  true,
		Timeout:  10 * time.Minute,
		IDs:      []int64{11, 22},
		Periods:  map[string]string{"2": "08:20", "1": "08:00"},
		Phrase:   "two words",
		Inner:    innerConfig{Token: "abc"},
		internal: "hidden",
	}

	out, err := MarshalEnv(cfg)
	require.NoError(t, err)

	assert.Equal(t, "NAME=desk\n"+
		"COUNT=3\n"+
		"ENABLED=true\n"+
		"TIMEOUT=10m0s\n"+
		"IDS=11,22\n"+
		"PERIODS=1:08:00,2:08:20\n"+
		"PHRASE=\"two words\"\n"+
		"TG_TOKEN=abc\n", out)
}

func TestMarshalEnv_RejectsNonPointer(t *testing.T) {
	_, err := MarshalEnv(sampleConfig{})
	assert.Error(t, err)
}
