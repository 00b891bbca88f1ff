// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for the timeloop CLI.
type Config struct {
	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Format is the on-disk record format for newly created stores:
	// "text_json" or "compact_binary". An existing store's format is
	// fixed at creation; opening it with a different format fails with
	// FormatMismatch.
	Format string `yaml:"format"`

	// Compaction configures the compaction policy that `timeloop
	// compact` applies. The command line has no flag that overrides it.
	Compaction CompactionConfig `yaml:"compaction"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory under which per-store subdirectories
	// are created when a store name (rather than an absolute path) is
	// given to a subcommand.
	Root string `yaml:"root"`

	// Backups is a directory for backup archives. It is created by
	// EnsurePaths; `timeloop backup` always takes its destination path
	// as an argument and does not read this field.
	Backups string `yaml:"backups"`
}

// CompactionConfig configures the default compaction policy.
type CompactionConfig struct {
	// Policy is one of "none", "size_threshold", "event_threshold",
	// "time_window".
	Policy string `yaml:"policy"`

	// SizeThresholdBytes is the summed encoded payload size, in bytes,
	// of one session's events that makes the session eligible for
	// compaction under the size_threshold policy.
	SizeThresholdBytes int64 `yaml:"size_threshold_bytes"`

	// EventThreshold is the event count that triggers compaction under
	// the event_threshold policy.
	EventThreshold int `yaml:"event_threshold"`

	// TimeWindow is a duration string (e.g. "24h") under the
	// time_window policy: events older than this are eligible for
	// compaction.
	TimeWindow string `yaml:"time_window"`
}

// Default returns the default configuration. These defaults ensure all
// fields have sensible zero-values before a config file (if any) is
// loaded over them — they are not a substitute for TIMELOOP_DATA_DIR,
// which remains the authoritative source for where a specific store
// lives.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "share", "timeloop")

	return &Config{
		Paths: PathsConfig{
			Root:    defaultRoot,
			Backups: filepath.Join(defaultRoot, "backups"),
		},
		Format: "compact_binary",
		Compaction: CompactionConfig{
			Policy:             "size_threshold",
			SizeThresholdBytes: 64 * 1024 * 1024,
			EventThreshold:     100_000,
			TimeWindow:         "24h",
		},
	}
}

// Load loads configuration from the path named by the TIMELOOP_CONFIG
// environment variable. Returns Default() unmodified if the variable is
// unset — unlike a store's data directory, the settings file is
// optional.
func Load() (*Config, error) {
	configPath := os.Getenv("TIMELOOP_CONFIG")
	if configPath == "" {
		return Default(), nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, layering it
// over Default().
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.expandVariables()

	return cfg, nil
}

// loadFile reads and unmarshals a single configuration file into cfg.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, c)
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in path
// fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"TIMELOOP_ROOT": c.Paths.Root,
		"HOME":          os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["TIMELOOP_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.Backups = expandVars(c.Paths.Backups, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns, preferring
// vars over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

var validPolicies = []string{"none", "size_threshold", "event_threshold", "time_window"}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}

	if c.Format != "text_json" && c.Format != "compact_binary" {
		errs = append(errs, fmt.Errorf("format must be text_json or compact_binary, got %q", c.Format))
	}

	if !contains(validPolicies, c.Compaction.Policy) {
		errs = append(errs, fmt.Errorf("compaction.policy must be one of %v, got %q", validPolicies, c.Compaction.Policy))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Paths.Root, c.Paths.Backups} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
