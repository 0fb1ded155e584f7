package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/benaskins/kiln/internal/tasklog"
)

// Config holds user preferences loaded from ~/.kiln/config.yaml. Command-line
// flags override every field.
type Config struct {
	Style            string `yaml:"style"`     // "indent" | "flat" | "number" | "debug"
	Verbosity        string `yaml:"verbosity"` // "mute" | "warn" | "info" | "verbose" | "debug"
	ShowTaskDuration bool   `yaml:"show_task_duration"`
	LogOnStderr      bool   `yaml:"log_on_stderr"`
	Color            string `yaml:"color"`     // "auto" | "always" | "never"
	AuditLog         string `yaml:"audit_log"` // NDJSON record of every process run
}

// DefaultPath returns the default config file path: ~/.kiln/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".kiln", "config.yaml")
}

// Load reads a YAML config file from path. If the file does not exist,
// it returns an empty Config and no error. An empty or all-comment file
// also returns an empty Config with no error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the enumerated fields. Empty values select defaults.
func (c *Config) Validate() error {
	if _, err := tasklog.ParseStyle(c.Style); err != nil {
		return err
	}
	if _, err := tasklog.ParseVerbosity(c.Verbosity); err != nil {
		return err
	}
	switch c.Color {
	case "", "auto", "always", "never":
	default:
		return fmt.Errorf("color must be \"auto\", \"always\" or \"never\", got %q", c.Color)
	}
	return nil
}
