package llmtool

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"distill/internal/config"
	"distill/internal/logging"
	"distill/internal/services"
)

// Option configures the client.
type Option func(*Client)

// WithRunner injects a custom subprocess runner (primarily for tests).
func WithRunner(runner Runner) Option {
	return func(c *Client) {
		if runner != nil {
			c.runner = runner
		}
	}
}

// Client runs analysis batches through the external tool. All preconditions
// (consent, capability probe, no-tools verification) are checked per call;
// probe and verification successes are cached for the process lifetime.
type Client struct {
	binary        string
	timeout       time.Duration
	verifyTimeout time.Duration
	noSession     bool
	consent       bool
	logger        *slog.Logger
	runner        Runner

	mu       sync.Mutex
	probed   bool
	verified bool
}

// New constructs a tool client from configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	binary := strings.TrimSpace(cfg.Tool.Binary)
	if binary == "" {
		return nil, errors.New("tool binary required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	client := &Client{
		binary:        binary,
		timeout:       time.Duration(cfg.Tool.TimeoutSeconds) * time.Second,
		verifyTimeout: time.Duration(cfg.Tool.VerifyTimeoutSeconds) * time.Second,
		noSession:     cfg.Tool.NoSession,
		consent:       cfg.Analysis.Consent,
		logger:        logger.With(slog.String(logging.FieldComponent, "llmtool")),
		runner:        commandRunner{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Execute runs one tool invocation for a prepared batch input and returns the
// normalized JSON text of the model's answer.
func (c *Client) Execute(ctx context.Context, input string) (string, error) {
	if err := c.ensureReady(ctx); err != nil {
		return "", err
	}

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	stdout, stderr, err := c.runner.Run(runCtx, c.binary, c.invocationArgs(), input)
	if err != nil {
		return "", c.classifyRunError(runCtx, err, stderr)
	}
	c.logger.Debug("tool run complete",
		slog.Duration("elapsed", time.Since(started)),
		slog.Int("stdout_bytes", len(stdout)))

	return decodeWrapper(stdout)
}

// ensureReady checks consent, then the cached capability probe and no-tools
// verification. Consent is a caller precondition, never persisted on items.
func (c *Client) ensureReady(ctx context.Context) error {
	if !c.consent {
		return services.Wrap(services.ErrConsent, "llmtool", "execute", "analysis consent not granted", nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.probed {
		if err := c.probeCapabilities(ctx); err != nil {
			return err
		}
		c.probed = true
		c.logger.Info("tool capabilities verified", slog.String("binary", c.binary))
	}
	if !c.verified {
		if err := c.verifyNoTools(ctx); err != nil {
			return err
		}
		c.verified = true
		c.logger.Info("tool sandbox verified")
	}
	return nil
}

// invocationArgs are fixed and independent of analysis type.
func (c *Client) invocationArgs() []string {
	args := []string{
		"--print",
		"--tools", "",
		"--output-format", "json",
		"--input-format", "text",
	}
	if c.noSession {
		args = append(args, "--no-session")
	}
	return args
}

func (c *Client) classifyRunError(ctx context.Context, err error, stderr string) error {
	switch {
	case errors.Is(err, exec.ErrNotFound):
		return services.Wrap(services.ErrTransient, "llmtool", "execute",
			"tool binary not found: "+c.binary, err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, "llmtool", "execute",
			"tool run exceeded wall-clock timeout", err)
	case errors.Is(ctx.Err(), context.Canceled):
		return services.Wrap(services.ErrTransient, "llmtool", "execute", "tool run cancelled", err)
	}
	detail := strings.TrimSpace(stderr)
	if len(detail) > 500 {
		detail = detail[:500]
	}
	if isAuthError(detail) {
		return services.Wrap(services.ErrAuthRequired, "llmtool", "execute", detail, err)
	}
	return services.Wrap(services.ErrExternalTool, "llmtool", "execute", detail, err)
}
