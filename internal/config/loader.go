package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load loads configuration with layered overrides.
// Load order (later sources override earlier):
//  1. Built-in defaults
//  2. User config (~/.notion-backup/config.yaml) - optional
//  3. Project config (./notion-backup.yaml or explicit path)
//  4. Environment variables (NOTION_BACKUP_*)
func Load(path string) (*Config, error) {
	cfg := Default()

	// 2. User config
	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, AppDir, ConfigFileName)
		if _, err := os.Stat(userPath); err == nil {
			if err := mergeFromFile(cfg, userPath); err != nil {
				slog.Warn("failed to load user config", "path", userPath, "error", err)
			}
		}
	}

	// 3. Project config
	if path != "" {
		if err := mergeFromFile(cfg, path); err != nil {
			return nil, err // Explicit config errors are fatal
		}
	} else {
		projectPath := "notion-backup.yaml"
		if _, err := os.Stat(projectPath); err == nil {
			if err := mergeFromFile(cfg, projectPath); err != nil {
				return nil, err
			}
		}
	}

	// 4. Environment variables
	ApplyEnvVars(cfg)

	return cfg, nil
}

// mergeFromFile merges configuration from a YAML file into cfg.
// Fields absent from the file keep their current values.
func mergeFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	return nil
}
