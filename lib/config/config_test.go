// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Format != "compact_binary" {
		t.Errorf("expected format=compact_binary, got %s", cfg.Format)
	}

	if cfg.Compaction.Policy != "size_threshold" {
		t.Errorf("expected compaction.policy=size_threshold, got %s", cfg.Compaction.Policy)
	}

	if cfg.Paths.Root == "" {
		t.Error("expected non-empty default root")
	}
}

func TestLoad_NoTimeloopConfigReturnsDefault(t *testing.T) {
	origConfig := os.Getenv("TIMELOOP_CONFIG")
	defer os.Setenv("TIMELOOP_CONFIG", origConfig)
	os.Unsetenv("TIMELOOP_CONFIG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	if cfg.Format != Default().Format {
		t.Errorf("expected default config, got %+v", cfg)
	}
}

func TestLoad_WithTimeloopConfig(t *testing.T) {
	origConfig := os.Getenv("TIMELOOP_CONFIG")
	defer os.Setenv("TIMELOOP_CONFIG", origConfig)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "timeloop.yaml")

	configContent := `
paths:
  root: /test/root
format: text_json
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	os.Setenv("TIMELOOP_CONFIG", configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Paths.Root != "/test/root" {
		t.Errorf("expected root=/test/root, got %s", cfg.Paths.Root)
	}
	if cfg.Format != "text_json" {
		t.Errorf("expected format=text_json, got %s", cfg.Format)
	}
}

func TestLoadFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "timeloop.yaml")

	configContent := `
paths:
  root: /custom/root
  backups: /custom/backups

format: text_json

compaction:
  policy: event_threshold
  event_threshold: 5000
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Paths.Root != "/custom/root" {
		t.Errorf("expected root=/custom/root, got %s", cfg.Paths.Root)
	}
	if cfg.Paths.Backups != "/custom/backups" {
		t.Errorf("expected backups=/custom/backups, got %s", cfg.Paths.Backups)
	}
	if cfg.Format != "text_json" {
		t.Errorf("expected format=text_json, got %s", cfg.Format)
	}
	if cfg.Compaction.Policy != "event_threshold" {
		t.Errorf("expected policy=event_threshold, got %s", cfg.Compaction.Policy)
	}
	if cfg.Compaction.EventThreshold != 5000 {
		t.Errorf("expected event_threshold=5000, got %d", cfg.Compaction.EventThreshold)
	}
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{
			input:    "${HOME}/timeloop",
			vars:     map[string]string{"HOME": "/home/user"},
			expected: "/home/user/timeloop",
		},
		{
			input:    "${MISSING:-default}",
			vars:     map[string]string{},
			expected: "default",
		},
		{
			input:    "${PRESENT:-default}",
			vars:     map[string]string{"PRESENT": "value"},
			expected: "value",
		},
		{
			input:    "${A}/${B}",
			vars:     map[string]string{"A": "first", "B": "second"},
			expected: "first/second",
		},
		{
			input:    "no variables here",
			vars:     map[string]string{},
			expected: "no variables here",
		},
	}

	for _, tt := range tests {
		result := expandVars(tt.input, tt.vars)
		if result != tt.expected {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "empty root path",
			modify: func(c *Config) {
				c.Paths.Root = ""
			},
			wantErr: true,
		},
		{
			name: "invalid format",
			modify: func(c *Config) {
				c.Format = "xml"
			},
			wantErr: true,
		},
		{
			name: "invalid compaction policy",
			modify: func(c *Config) {
				c.Compaction.Policy = "bogus"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnsurePaths(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := Default()
	cfg.Paths.Root = filepath.Join(tmpDir, "timeloop")
	cfg.Paths.Backups = filepath.Join(cfg.Paths.Root, "backups")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths failed: %v", err)
	}

	for _, path := range []string{cfg.Paths.Root, cfg.Paths.Backups} {
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("path %s not created: %v", path, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("path %s is not a directory", path)
		}
	}
}
