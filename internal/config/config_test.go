package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planbiir/gpace/internal/segment"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, segment.DefaultParams(), cfg.Params())
}

func TestLoadFlags(t *testing.T) {
	cfg, err := Load([]string{
		"--zip", "export.zip",
		"--top", "3",
		"--distances", "400, 1000,21097.5",
		"--max-speed", "25.5",
		"--penalty-seconds", "5",
		"--start-date", "20211201",
		"--no-progress",
		"--debug",
		"-o", "out.txt",
	})
	require.NoError(t, err)

	assert.Equal(t, "export.zip", cfg.Zip)
	assert.Equal(t, 3, cfg.Top)
	assert.Equal(t, []float64{400, 1000, 21097.5}, cfg.Distances)
	assert.Equal(t, 25.5, cfg.MaxSpeedKmh)
	assert.Equal(t, 5.0, cfg.PenaltySeconds)
	assert.Equal(t, "20211201", cfg.StartDate)
	assert.False(t, cfg.Progress)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "out.txt", cfg.OutputFile)
	require.NoError(t, cfg.Validate())
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("GPACE_MAX_SPEED", "30")
	t.Setenv("GPACE_ZIP", "/data/export.zip")
	t.Setenv("GPACE_DISTANCES", "800,1600")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 30.0, cfg.MaxSpeedKmh)
	assert.Equal(t, "/data/export.zip", cfg.Zip)
	assert.Equal(t, []float64{800, 1600}, cfg.Distances)

	// flags win
	cfg, err = Load([]string{"--max-speed", "18"})
	require.NoError(t, err)
	assert.Equal(t, 18.0, cfg.MaxSpeedKmh)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gpace.yaml")
	content := "zip: export.zip\ntop: 7\ndistances: [400, 5000]\nspeed-penalty: 2\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load([]string{"--config", path, "--top", "9"})
	require.NoError(t, err)
	assert.Equal(t, "export.zip", cfg.Zip)
	assert.Equal(t, 9, cfg.Top)
	assert.Equal(t, []float64{400, 5000}, cfg.Distances)
	assert.Equal(t, 2.0, cfg.PenaltySeconds)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load([]string{"--bogus"})
	assert.Error(t, err)

	_, err = Load([]string{"--distances", "400,abc"})
	assert.ErrorContains(t, err, "abc")

	_, err = Load([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)

	_, err = Load([]string{"--help"})
	assert.ErrorIs(t, err, pflag.ErrHelp)
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.Zip = "export.zip"
	require.NoError(t, valid.Validate())

	cases := map[string]func(c *Config){
		"no input":         func(c *Config) { c.Zip = "" },
		"both inputs":      func(c *Config) { c.Dir = "routes" },
		"zero top":         func(c *Config) { c.Top = 0 },
		"no distances":     func(c *Config) { c.Distances = nil },
		"zero distance":    func(c *Config) { c.Distances = []float64{0} },
		"negative speed":   func(c *Config) { c.MaxSpeedKmh = -1 },
		"negative penalty": func(c *Config) { c.PenaltySeconds = -1 },
		"bad date":         func(c *Config) { c.StartDate = "2021-13-45" },
		"inverted range": func(c *Config) {
			c.StartDate = "20220101"
			c.EndDate = "20211231"
		},
		"duplicate distance": func(c *Config) {
			c.Distances = []float64{400, 1000, 400}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid
			c.Distances = append([]float64(nil), valid.Distances...)
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestUsageListsAlias(t *testing.T) {
	usage := Usage()
	assert.Contains(t, usage, "--speed-penalty")
	assert.Contains(t, usage, "--penalty-seconds")
	assert.Contains(t, usage, "-o, --output-file")
}
