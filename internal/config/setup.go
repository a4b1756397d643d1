package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/smarttraffic/trafficd/internal/storage"
)

// Setup initializes a controller data directory: the subdirectory layout and
// a default config.yaml ready for editing. Fails if the directory already
// holds a config.
func Setup(dataDir, projectName string) error {
	absDir, err := filepath.Abs(dataDir)
	if err != nil {
		return fmt.Errorf("resolve data dir: %w", err)
	}

	cfgPath := filepath.Join(absDir, ConfigFileName)
	if _, err := os.Stat(cfgPath); err == nil {
		return fmt.Errorf("%s already exists", cfgPath)
	}

	dirs := []string{
		"spool",
		"state",
		"locks",
		"logs",
		"reports",
		"quarantine",
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(absDir, d), 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	cfg := Default()
	if projectName != "" {
		cfg.Project.Name = projectName
	}

	if err := storage.AtomicWriteYAML(cfgPath, cfg); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}

	return nil
}
