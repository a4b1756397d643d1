// Package config loads and validates the controller configuration: a YAML
// file in the data directory, overridable through environment variables
// (optionally sourced from a .env file by the caller).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/smarttraffic/trafficd/internal/model"
)

const ConfigFileName = "config.yaml"

// Default returns the built-in configuration.
func Default() model.Config {
	return model.Config{
		Project: model.ProjectConfig{
			Name:        "intersection",
			Description: "Adaptive traffic signal controller",
		},
		Timing: model.TimingConfig{
			MinGreen:          15,
			MaxGreen:          120,
			BaseGreen:         30,
			VehicleMultiplier: 2.0,
			YellowTime:        3,
			AllRedTime:        2,
			Weights: map[model.VehicleType]float64{
				model.VehicleCar:        1.0,
				model.VehicleMotorcycle: 0.5,
				model.VehicleBus:        2.0,
				model.VehicleTruck:      1.5,
			},
			Alpha:         0.7,
			HistoryWindow: 20,
		},
		Camera: model.CameraConfig{
			Sources: []model.SourceConfig{
				{Index: 0, Kind: "synthetic", Width: 1920, Height: 1080},
			},
			MaxAttempts:        3,
			RetryDelayMs:       2000,
			AttemptTimeoutSec:  5,
			FailureThreshold:   3,
			ReprobeCooldownSec: 30,
			QueueSize:          10,
			CaptureInterval:    5.0,
		},
		Detector: model.DetectorConfig{
			Kind:                "http",
			BaseURL:             "http://localhost:8000",
			TimeoutSec:          10,
			ConfidenceThreshold: 0.5,
			NMSThreshold:        0.4,
		},
		History: model.HistoryConfig{
			Backend:         "file",
			File:            "history.jsonl",
			AggregateWindow: 50,
		},
		Cycle: model.CycleConfig{
			Mode:        "single",
			IntervalSec: 30.0,
			Algorithm:   model.AlgorithmAdaptive,
		},
		Daemon: model.DaemonConfig{
			ShutdownTimeoutSec: 10,
		},
		Logging: model.LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads dataDir/config.yaml on top of the defaults, applies environment
// overrides, and validates the result. A missing config file is not an
// error; the defaults plus environment carry a test setup on their own.
func Load(dataDir string) (model.Config, error) {
	cfg := Default()

	path := filepath.Join(dataDir, ConfigFileName)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yamlv3.Unmarshal(data, &cfg); err != nil {
			return cfg, &model.ConfigError{Field: ConfigFileName, Err: err}
		}
	case os.IsNotExist(err):
		// fall through to env overrides
	default:
		return cfg, &model.ConfigError{Field: ConfigFileName, Err: err}
	}

	applyEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv layers TRAFFICD_* environment variables over the file config.
func applyEnv(cfg *model.Config) {
	cfg.Detector.BaseURL = getEnv("TRAFFICD_DETECTOR_URL", cfg.Detector.BaseURL)
	cfg.Detector.Kind = getEnv("TRAFFICD_DETECTOR_KIND", cfg.Detector.Kind)
	cfg.Detector.TimeoutSec = getEnvInt("TRAFFICD_DETECTOR_TIMEOUT_SEC", cfg.Detector.TimeoutSec)
	cfg.History.Backend = getEnv("TRAFFICD_HISTORY_BACKEND", cfg.History.Backend)
	cfg.History.PostgresURL = getEnv("TRAFFICD_POSTGRES_URL", cfg.History.PostgresURL)
	cfg.Logging.Level = getEnv("TRAFFICD_LOG_LEVEL", cfg.Logging.Level)
}

// Validate enforces the timing invariants and structural requirements.
// Violations are ConfigError: fatal to the run, never a skipped cycle.
func Validate(cfg model.Config) error {
	t := cfg.Timing
	if t.MinGreen <= 0 {
		return &model.ConfigError{Field: "timing.min_green", Err: errors.New("must be positive")}
	}
	if t.BaseGreen < t.MinGreen {
		return &model.ConfigError{
			Field: "timing.base_green",
			Err:   fmt.Errorf("base_green %d below min_green %d", t.BaseGreen, t.MinGreen),
		}
	}
	if t.MaxGreen < t.BaseGreen {
		return &model.ConfigError{
			Field: "timing.max_green",
			Err:   fmt.Errorf("max_green %d below base_green %d", t.MaxGreen, t.BaseGreen),
		}
	}
	for vt, w := range t.Weights {
		if w < 0 {
			return &model.ConfigError{
				Field: fmt.Sprintf("timing.weights.%s", vt),
				Err:   fmt.Errorf("weight %v must be non-negative", w),
			}
		}
	}
	if t.VehicleMultiplier < 0 {
		return &model.ConfigError{Field: "timing.vehicle_multiplier", Err: errors.New("must be non-negative")}
	}
	if t.YellowTime < 0 || t.AllRedTime < 0 {
		return &model.ConfigError{Field: "timing", Err: errors.New("yellow_time and all_red_time must be non-negative")}
	}
	if t.Alpha < 0 || t.Alpha > 1 {
		return &model.ConfigError{Field: "timing.alpha", Err: fmt.Errorf("blend weight %v outside [0,1]", t.Alpha)}
	}
	if t.HistoryWindow < 0 {
		return &model.ConfigError{Field: "timing.history_window", Err: errors.New("must be non-negative")}
	}

	if len(cfg.Camera.Sources) == 0 {
		return &model.ConfigError{Field: "camera.sources", Err: errors.New("at least one source required")}
	}
	seen := map[int]bool{}
	for _, s := range cfg.Camera.Sources {
		if seen[s.Index] {
			return &model.ConfigError{
				Field: "camera.sources",
				Err:   fmt.Errorf("duplicate source index %d", s.Index),
			}
		}
		seen[s.Index] = true
		switch s.Kind {
		case "directory":
			if s.SpoolDir == "" {
				return &model.ConfigError{
					Field: fmt.Sprintf("camera.sources[%d].spool_dir", s.Index),
					Err:   errors.New("required for directory sources"),
				}
			}
		case "synthetic":
		default:
			return &model.ConfigError{
				Field: fmt.Sprintf("camera.sources[%d].kind", s.Index),
				Err:   fmt.Errorf("unknown kind %q", s.Kind),
			}
		}
	}

	if !model.ValidAlgorithm(cfg.Cycle.Algorithm) {
		return &model.ConfigError{
			Field: "cycle.algorithm",
			Err:   fmt.Errorf("unknown algorithm %q", cfg.Cycle.Algorithm),
		}
	}
	if cfg.Cycle.IntervalSec <= 0 {
		return &model.ConfigError{Field: "cycle.interval_sec", Err: errors.New("must be positive")}
	}

	switch cfg.History.Backend {
	case "file", "memory":
	case "postgres":
		if cfg.History.PostgresURL == "" {
			return &model.ConfigError{Field: "history.postgres_url", Err: errors.New("required for postgres backend")}
		}
	default:
		return &model.ConfigError{
			Field: "history.backend",
			Err:   fmt.Errorf("unknown backend %q", cfg.History.Backend),
		}
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
