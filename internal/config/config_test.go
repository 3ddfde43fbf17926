package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Dispatch.Workers != 4 {
		t.Errorf("Dispatch.Workers = %d, want 4", cfg.Dispatch.Workers)
	}
	if cfg.Clang.Binary != "clang" {
		t.Errorf("Clang.Binary = %q, want clang", cfg.Clang.Binary)
	}
	if cfg.Completion.MaxCandidates != 0 {
		t.Errorf("Completion.MaxCandidates = %d, want 0 (uncapped)", cfg.Completion.MaxCandidates)
	}
	if !cfg.Completion.CaseInsensitive {
		t.Error("Completion.CaseInsensitive should default to true")
	}
	if !cfg.Watcher.Enabled {
		t.Error("Watcher.Enabled should default to true")
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := `
completion:
  maxCandidates: 50
cache:
  maxEntries: 8
flags:
  fallback: ["-std=c++17", "-Wall"]
clang:
  binary: clang-18
logging:
  level: debug
`
	if err := os.WriteFile(filepath.Join(dir, ".ccd.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Completion.MaxCandidates != 50 {
		t.Errorf("MaxCandidates = %d, want 50", cfg.Completion.MaxCandidates)
	}
	if cfg.Cache.MaxEntries != 8 {
		t.Errorf("MaxEntries = %d, want 8", cfg.Cache.MaxEntries)
	}
	if len(cfg.Flags.Fallback) != 2 || cfg.Flags.Fallback[0] != "-std=c++17" {
		t.Errorf("Fallback = %v, want [-std=c++17 -Wall]", cfg.Flags.Fallback)
	}
	if cfg.Clang.Binary != "clang-18" {
		t.Errorf("Clang.Binary = %q, want clang-18", cfg.Clang.Binary)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}

	// Untouched sections keep defaults
	if cfg.Dispatch.QueueSize != 32 {
		t.Errorf("Dispatch.QueueSize = %d, want default 32", cfg.Dispatch.QueueSize)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(c *Config) {}, false},
		{"zero workers", func(c *Config) { c.Dispatch.Workers = 0 }, true},
		{"negative cache", func(c *Config) { c.Cache.MaxEntries = -1 }, true},
		{"empty binary", func(c *Config) { c.Clang.Binary = "" }, true},
		{"negative cap", func(c *Config) { c.Completion.MaxCandidates = -5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
