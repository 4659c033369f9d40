package testsupport

import (
	"path/filepath"
	"testing"

	"distill/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Analysis.Consent = true

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithoutConsent clears the analysis consent flag on the test config.
func WithoutConsent() ConfigOption {
	return func(cfg *config.Config) {
		cfg.Analysis.Consent = false
	}
}

// WithToolBinary overrides the external tool binary on the test config.
func WithToolBinary(binary string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Tool.Binary = binary
	}
}

// WithMaxPayloadBytes overrides the batch byte budget on the test config.
func WithMaxPayloadBytes(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Payload.MaxBytes = n
	}
}
