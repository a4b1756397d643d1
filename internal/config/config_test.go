package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smarttraffic/trafficd/internal/model"
)

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Validate(Default()))
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.Timing.MinGreen)
	assert.Equal(t, 120, cfg.Timing.MaxGreen)
	assert.Equal(t, 30, cfg.Timing.BaseGreen)
	assert.Equal(t, model.AlgorithmAdaptive, cfg.Cycle.Algorithm)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
timing:
  min_green: 10
  base_green: 25
  max_green: 90
cycle:
  algorithm: linear
  interval_sec: 12
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), content, 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Timing.MinGreen)
	assert.Equal(t, 25, cfg.Timing.BaseGreen)
	assert.Equal(t, 90, cfg.Timing.MaxGreen)
	assert.Equal(t, model.AlgorithmLinear, cfg.Cycle.Algorithm)
	assert.Equal(t, 12.0, cfg.Cycle.IntervalSec)
	// Untouched sections keep defaults
	assert.Equal(t, 3, cfg.Timing.YellowTime)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TRAFFICD_DETECTOR_URL", "http://detector:9000")
	t.Setenv("TRAFFICD_LOG_LEVEL", "debug")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "http://detector:9000", cfg.Detector.BaseURL)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("timing: ["), 0644))

	_, err := Load(dir)
	var ce *model.ConfigError
	require.True(t, errors.As(err, &ce), "want ConfigError, got %v", err)
}

func TestValidate_TimingInvariant(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.Config)
	}{
		{"zero min_green", func(c *model.Config) { c.Timing.MinGreen = 0 }},
		{"negative min_green", func(c *model.Config) { c.Timing.MinGreen = -5 }},
		{"base below min", func(c *model.Config) { c.Timing.BaseGreen = 10 }},
		{"max below base", func(c *model.Config) { c.Timing.MaxGreen = 20 }},
		{"negative weight", func(c *model.Config) {
			c.Timing.Weights[model.VehicleBus] = -1.0
		}},
		{"negative multiplier", func(c *model.Config) { c.Timing.VehicleMultiplier = -2 }},
		{"alpha above one", func(c *model.Config) { c.Timing.Alpha = 1.5 }},
		{"no sources", func(c *model.Config) { c.Camera.Sources = nil }},
		{"duplicate source index", func(c *model.Config) {
			c.Camera.Sources = append(c.Camera.Sources, c.Camera.Sources[0])
		}},
		{"directory source without spool", func(c *model.Config) {
			c.Camera.Sources = []model.SourceConfig{{Index: 0, Kind: "directory"}}
		}},
		{"unknown source kind", func(c *model.Config) {
			c.Camera.Sources = []model.SourceConfig{{Index: 0, Kind: "rtsp"}}
		}},
		{"unknown algorithm", func(c *model.Config) { c.Cycle.Algorithm = "neural" }},
		{"zero interval", func(c *model.Config) { c.Cycle.IntervalSec = 0 }},
		{"unknown history backend", func(c *model.Config) { c.History.Backend = "redis" }},
		{"postgres without url", func(c *model.Config) {
			c.History.Backend = "postgres"
			c.History.PostgresURL = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := Validate(cfg)
			var ce *model.ConfigError
			require.True(t, errors.As(err, &ce), "want ConfigError, got %v", err)
		})
	}
}

func TestWeight_DefaultsToOne(t *testing.T) {
	tc := model.TimingConfig{Weights: map[model.VehicleType]float64{model.VehicleBus: 2.0}}
	assert.Equal(t, 2.0, tc.Weight(model.VehicleBus))
	assert.Equal(t, 1.0, tc.Weight(model.VehicleCar))
}

func TestSetup(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Setup(dir, "test-intersection"))

	// Layout created
	for _, d := range []string{"spool", "state", "locks", "logs", "reports", "quarantine"} {
		info, err := os.Stat(filepath.Join(dir, d))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	// Generated config loads and validates
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "test-intersection", cfg.Project.Name)

	// Second setup refuses to overwrite
	require.Error(t, Setup(dir, "again"))
}
