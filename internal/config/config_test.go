package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"distill/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.LogDir = filepath.Join(cfg.Paths.DataDir, "logs")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed on defaults: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if resolved != path {
		t.Fatalf("expected resolved path %s, got %s", path, resolved)
	}
	if cfg.Tool.Binary != "claude" {
		t.Fatalf("expected default tool binary, got %q", cfg.Tool.Binary)
	}
	if cfg.Reaper.StaleClaimMinutes != 10 {
		t.Fatalf("expected default stale claim minutes, got %d", cfg.Reaper.StaleClaimMinutes)
	}
}

func TestLoadAppliesFileValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `
[analysis]
consent = true
batch_size = 3

[payload]
max_bytes = 2048

[reaper]
stale_claim_minutes = 2
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected exists=true")
	}
	if !cfg.Analysis.Consent {
		t.Fatal("expected consent true")
	}
	if cfg.Analysis.BatchSize != 3 {
		t.Fatalf("expected batch size 3, got %d", cfg.Analysis.BatchSize)
	}
	if cfg.Payload.MaxBytes != 2048 {
		t.Fatalf("expected max bytes 2048, got %d", cfg.Payload.MaxBytes)
	}
	if cfg.Reaper.StaleClaimMinutes != 2 {
		t.Fatalf("expected stale claim minutes 2, got %d", cfg.Reaper.StaleClaimMinutes)
	}
	// Unset sections keep defaults.
	if cfg.Payload.Learning.MaxMessages != 60 {
		t.Fatalf("expected default learning caps, got %d", cfg.Payload.Learning.MaxMessages)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name     string
		contents string
	}{
		{"tiny payload budget", "[payload]\nmax_bytes = 12\n"},
		{"bad log format", "[logging]\nformat = \"xml\"\n"},
		{"bad log level", "[logging]\nlevel = \"verbose\"\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tc.contents), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, _, _, err := config.Load(path); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.WriteSample(path); err != nil {
		t.Fatalf("WriteSample failed: %v", err)
	}
	if err := config.WriteSample(path); err == nil {
		t.Fatal("expected error overwriting existing config")
	}
}
