package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/nvidiamon/internal/config"
	"codeberg.org/mutker/nvidiamon/internal/errors"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "nvidiamon.toml")
	err := os.WriteFile(configPath, []byte(content), 0o600)
	require.NoError(t, err)

	return configPath
}

func TestLoad(t *testing.T) {
	configPath := writeConfigFile(t, `
interval = 500
listen = ":8080"
historysize = 20
ratewindow = 5
provider = "smi"
burnmarkers = ["gpu-burn", "gpu_burn"]
processfilters = ["xorg", "shell", "gnome"]
telemetry = true
telemetrydb = "/path/to/telemetry.db"
`)
	t.Setenv("NVIDIAMON_CONFIG", configPath)

	cfg, err := config.Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Interval, "Expected Interval 500")
	assert.Equal(t, ":8080", cfg.Listen, "Expected Listen :8080")
	assert.Equal(t, 20, cfg.HistorySize, "Expected HistorySize 20")
	assert.Equal(t, 5, cfg.RateWindow, "Expected RateWindow 5")
	assert.Equal(t, "smi", cfg.Provider, "Expected Provider smi")
	assert.Equal(t, []string{"gpu-burn", "gpu_burn"}, cfg.BurnMarkers)
	assert.Equal(t, []string{"xorg", "shell", "gnome"}, cfg.ProcessFilters)
	assert.True(t, cfg.Telemetry, "Expected Telemetry true")
	assert.Equal(t, "/path/to/telemetry.db", cfg.TelemetryDB)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("NVIDIAMON_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))

	cfg, err := config.Load(nil)
	require.NoError(t, err, "Failed to load config")

	assert.Equal(t, config.DefaultInterval, cfg.Interval)
	assert.Equal(t, config.DefaultListen, cfg.Listen)
	assert.Equal(t, config.DefaultHistorySize, cfg.HistorySize)
	assert.Equal(t, config.DefaultRateWindow, cfg.RateWindow)
	assert.Equal(t, config.DefaultProvider, cfg.Provider)
	assert.Equal(t, []string{"gpu-burn"}, cfg.BurnMarkers)
	assert.Equal(t, []string{"xorg", "shell"}, cfg.ProcessFilters)
	assert.False(t, cfg.Telemetry, "Expected Telemetry false")
}

func TestLoadFlagsOverrideFile(t *testing.T) {
	configPath := writeConfigFile(t, `
interval = 500
listen = ":8080"
`)
	t.Setenv("NVIDIAMON_CONFIG", configPath)

	cfg, err := config.Load([]string{"--interval", "100", "--database", "/tmp/t.db"})
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Interval, "Expected flag to override file")
	assert.Equal(t, ":8080", cfg.Listen, "Expected file value to survive")
	assert.Equal(t, "/tmp/t.db", cfg.TelemetryDB)
}

func TestLoadInvalidFormat(t *testing.T) {
	configPath := writeConfigFile(t, `
This is not a valid TOML file
`)
	t.Setenv("NVIDIAMON_CONFIG", configPath)

	_, err := config.Load(nil)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		return &config.Config{
			Interval:    config.DefaultInterval,
			Listen:      config.DefaultListen,
			HistorySize: config.DefaultHistorySize,
			RateWindow:  config.DefaultRateWindow,
			Provider:    config.DefaultProvider,
			BurnMarkers: []string{"gpu-burn"},
		}
	}

	cases := []struct {
		name   string
		mutate func(*config.Config)
		code   errors.ErrorCode
	}{
		{"zero interval", func(c *config.Config) { c.Interval = 0 }, errors.ErrInvalidInterval},
		{"negative interval", func(c *config.Config) { c.Interval = -250 }, errors.ErrInvalidInterval},
		{"zero history size", func(c *config.Config) { c.HistorySize = 0 }, errors.ErrInvalidHistorySize},
		{"zero rate window", func(c *config.Config) { c.RateWindow = 0 }, errors.ErrInvalidRateWindow},
		{"no burn markers", func(c *config.Config) { c.BurnMarkers = nil }, errors.ErrMissingMarkers},
		{"unknown provider", func(c *config.Config) { c.Provider = "cuda" }, errors.ErrInvalidProvider},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var appErr errors.Error
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tc.code, appErr.Code())
		})
	}

	require.NoError(t, valid().Validate())
}
