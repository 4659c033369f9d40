package llmtool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Output caps keep a runaway tool from exhausting memory; the pipes are
// always drained to completion regardless so the child never blocks writing.
const (
	maxStdoutBytes = 10 << 20
	maxStderrBytes = 256 << 10

	// How long a terminated process gets to exit before it is force-killed.
	killGracePeriod = 5 * time.Second
)

// Runner abstracts one subprocess invocation for testability.
type Runner interface {
	Run(ctx context.Context, binary string, args []string, stdin string) (stdout, stderr string, err error)
}

type commandRunner struct{}

// Run spawns the tool, writes stdin, and drains both output streams
// concurrently with execution. Draining must start before Wait: output past
// the platform pipe buffer would otherwise deadlock parent and child.
// Context cancellation sends SIGTERM; the kill escalates after the grace
// period.
func (commandRunner) Run(ctx context.Context, binary string, args []string, stdin string) (string, string, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Env = append(os.Environ(), "NO_COLOR=1", "TERM=dumb", "CI=true")
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = killGracePeriod

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return "", "", fmt.Errorf("stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return "", "", fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return "", "", err
	}

	stdout := newCappedBuffer(maxStdoutBytes)
	stderr := newCappedBuffer(maxStderrBytes)

	var wg sync.WaitGroup
	wg.Add(2)
	go drain(&wg, stdout, stdoutPipe)
	go drain(&wg, stderr, stderrPipe)
	wg.Wait()

	waitErr := cmd.Wait()
	return stdout.String(), stderr.String(), waitErr
}

func drain(wg *sync.WaitGroup, dst io.Writer, src io.Reader) {
	defer wg.Done()
	_, _ = io.Copy(dst, src)
}

// cappedBuffer stores up to max bytes and silently consumes the rest, so
// copying never errors and the pipe keeps draining.
type cappedBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func newCappedBuffer(max int) *cappedBuffer {
	return &cappedBuffer{max: max}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if remaining := b.max - b.buf.Len(); remaining > 0 {
		if len(p) > remaining {
			b.buf.Write(p[:remaining])
			b.truncated = true
		} else {
			b.buf.Write(p)
		}
	} else if len(p) > 0 {
		b.truncated = true
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}
