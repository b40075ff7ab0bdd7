package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds a single agent invocation.
	DefaultTimeout = 5 * time.Minute

	// DefaultMaxOutput caps captured stdout and stderr.
	DefaultMaxOutput = 10 * 1024 * 1024
)

// CommandAgent runs an external command per invocation. The rendered prompt is
// written to stdin and the generated text is read from stdout. The stage role is
// exported to the process as TEAMFLOW_ROLE.
type CommandAgent struct {
	Command   []string
	Dir       string
	Timeout   time.Duration
	MaxOutput int
}

// NewCommandAgent creates a CommandAgent with default limits.
func NewCommandAgent(command []string) (*CommandAgent, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("agent command cannot be empty")
	}
	return &CommandAgent{
		Command:   command,
		Timeout:   DefaultTimeout,
		MaxOutput: DefaultMaxOutput,
	}, nil
}

// Generate runs the command and returns its trimmed stdout.
func (a *CommandAgent) Generate(ctx context.Context, role, prompt string) (string, error) {
	if len(a.Command) == 0 {
		return "", fmt.Errorf("agent command cannot be empty")
	}

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limit := a.MaxOutput
	if limit <= 0 {
		limit = DefaultMaxOutput
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, a.Command[0], a.Command[1:]...)
	cmd.Dir = a.Dir
	cmd.Env = append(os.Environ(), "TEAMFLOW_ROLE="+role)

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return "", fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	stdoutBuf := &bytes.Buffer{}
	stderrBuf := &bytes.Buffer{}
	cmd.Stdout = &limitedWriter{w: stdoutBuf, limit: limit}
	cmd.Stderr = &limitedWriter{w: stderrBuf, limit: limit}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("%w: failed to start %s: %v", ErrUpstream, a.Command[0], err)
	}

	go func() {
		defer stdinPipe.Close()
		if _, err := io.WriteString(stdinPipe, prompt); err != nil {
			log.Printf("[Agent] WARN failed to write prompt to stdin: %v", err)
		}
	}()

	err = cmd.Wait()

	if stdoutBuf.Len() >= limit {
		return "", fmt.Errorf("%w: output exceeded %d bytes", ErrUpstream, limit)
	}

	if err != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: invocation timed out after %s", ErrUpstream, timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("%w: process exited with code %d: %s",
				ErrUpstream, exitErr.ExitCode(), strings.TrimSpace(stderrBuf.String()))
		}
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	output := strings.TrimSpace(stdoutBuf.String())
	if output == "" {
		return "", fmt.Errorf("%w: empty output", ErrUpstream)
	}
	return output, nil
}

// limitedWriter discards everything past limit bytes.
type limitedWriter struct {
	w       io.Writer
	limit   int
	written int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	remaining := lw.limit - lw.written
	if remaining <= 0 {
		return len(p), nil
	}

	toWrite := p
	if len(p) > remaining {
		toWrite = p[:remaining]
	}

	n, err := lw.w.Write(toWrite)
	lw.written += n
	if err != nil {
		return n, err
	}
	return len(p), nil
}
