package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTool(); err != nil {
		return err
	}
	if err := c.validatePayload(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateTool() error {
	if c.Tool.Binary == "" {
		return errors.New("tool.binary must be set")
	}
	if c.Tool.TimeoutSeconds < c.Tool.VerifyTimeoutSeconds {
		return errors.New("tool.timeout_seconds must not be below tool.verify_timeout_seconds")
	}
	return nil
}

func (c *Config) validatePayload() error {
	if c.Payload.MaxBytes < 1024 {
		return errors.New("payload.max_bytes must be at least 1024")
	}
	for name, caps := range map[string]Caps{
		"payload.workflow": c.Payload.Workflow,
		"payload.learning": c.Payload.Learning,
		"payload.summary":  c.Payload.Summary,
		"payload.dedupe":   c.Payload.Dedupe,
	} {
		if caps.MaxMessages <= 0 || caps.MessageChars <= 0 {
			return fmt.Errorf("%s caps must be positive", name)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
