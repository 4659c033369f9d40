package llmtool

import (
	"context"
	"fmt"
	"strings"

	"distill/internal/services"
)

// The four capabilities every compatible tool build must advertise in its
// --help output. A binary missing any of them cannot be sandboxed safely.
var requiredCapabilities = []struct {
	flag string
	what string
}{
	{"--tools", "tool-use disable list"},
	{"--input-format", "text stdin mode"},
	{"--output-format", "JSON output mode"},
	{"--print", "non-interactive print mode"},
}

// probeCapabilities runs the one-time --help check. Success is cached by the
// caller; failures are returned each time so a binary installed later is
// picked up.
func (c *Client) probeCapabilities(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.verifyTimeout)
	defer cancel()

	helpText, stderr, err := c.runner.Run(ctx, c.binary, []string{"--help"}, "")
	if err != nil {
		return c.classifyRunError(ctx, err, stderr)
	}

	var missing []string
	for _, capability := range requiredCapabilities {
		if !strings.Contains(helpText, capability.flag) {
			missing = append(missing, fmt.Sprintf("%s (%s)", capability.flag, capability.what))
		}
	}
	if len(missing) > 0 {
		return services.Wrap(services.ErrExternalTool, "llmtool", "probe",
			fmt.Sprintf("binary %s missing capabilities: %s", c.binary, strings.Join(missing, ", ")), nil)
	}
	return nil
}

// verifyNoTools makes one minimal real call confirming the tool-disable flag
// is actually honored, not just advertised. Runs only after consent, once per
// process lifetime; only success is cached, so transient auth failures do not
// poison the check.
func (c *Client) verifyNoTools(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.verifyTimeout)
	defer cancel()

	const prompt = "List the names of the tools you are able to call in this session " +
		"as a JSON array of strings. Respond with the JSON array only."

	stdout, stderr, err := c.runner.Run(ctx, c.binary, c.invocationArgs(), prompt)
	if err != nil {
		return c.classifyRunError(ctx, err, stderr)
	}
	result, err := decodeWrapper(stdout)
	if err != nil {
		return err
	}
	if compact := strings.Join(strings.Fields(result), ""); compact != "[]" {
		return services.Wrap(services.ErrExternalTool, "llmtool", "verify",
			fmt.Sprintf("tool-use disable flag not honored, tools visible: %s", result), nil)
	}
	return nil
}
