package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTool()
	c.normalizeAnalysis()
	c.normalizePayload()
	c.normalizeReaper()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTool() {
	c.Tool.Binary = strings.TrimSpace(c.Tool.Binary)
	if c.Tool.Binary == "" {
		c.Tool.Binary = defaultToolBinary
	}
	if c.Tool.TimeoutSeconds <= 0 {
		c.Tool.TimeoutSeconds = defaultToolTimeoutSeconds
	}
	if c.Tool.VerifyTimeoutSeconds <= 0 {
		c.Tool.VerifyTimeoutSeconds = defaultVerifyTimeoutSeconds
	}
}

func (c *Config) normalizeAnalysis() {
	c.Analysis.Backend = strings.TrimSpace(c.Analysis.Backend)
	if c.Analysis.Backend == "" {
		c.Analysis.Backend = defaultAnalysisBackend
	}
	c.Analysis.Version = strings.TrimSpace(c.Analysis.Version)
	if c.Analysis.Version == "" {
		c.Analysis.Version = defaultAnalysisVersion
	}
	if c.Analysis.BatchSize <= 0 {
		c.Analysis.BatchSize = defaultBatchSize
	}
	if c.Analysis.SchemaVersion <= 0 {
		c.Analysis.SchemaVersion = defaultSchemaVersion
	}
}

func (c *Config) normalizePayload() {
	if c.Payload.MaxBytes <= 0 {
		c.Payload.MaxBytes = defaultMaxPayloadBytes
	}
	defaults := Default().Payload
	normalizeCaps(&c.Payload.Workflow, defaults.Workflow)
	normalizeCaps(&c.Payload.Learning, defaults.Learning)
	normalizeCaps(&c.Payload.Summary, defaults.Summary)
	normalizeCaps(&c.Payload.Dedupe, defaults.Dedupe)
}

func normalizeCaps(caps *Caps, fallback Caps) {
	if caps.MaxMessages <= 0 {
		caps.MaxMessages = fallback.MaxMessages
	}
	if caps.MessageChars <= 0 {
		caps.MessageChars = fallback.MessageChars
	}
}

func (c *Config) normalizeReaper() {
	if c.Reaper.StaleClaimMinutes <= 0 {
		c.Reaper.StaleClaimMinutes = defaultStaleClaimMinutes
	}
	if c.Reaper.IntervalMinutes <= 0 {
		c.Reaper.IntervalMinutes = defaultReaperIntervalMin
	}
	if c.Reaper.RetentionDays <= 0 {
		c.Reaper.RetentionDays = defaultRetentionDays
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path: %w", err)
	}
	return abs, nil
}
