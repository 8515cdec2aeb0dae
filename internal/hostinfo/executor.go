package hostinfo

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CommandExecutor runs a system command and returns its stdout
type CommandExecutor interface {
	Execute(ctx context.Context, name string, args ...string) (string, error)
}

// NewCommandExecutor returns an executor that kills commands running longer than timeout
func NewCommandExecutor(timeout time.Duration) CommandExecutor {
	return &defaultCommandExecutor{timeout: timeout}
}

type defaultCommandExecutor struct {
	timeout time.Duration
}

func (e *defaultCommandExecutor) Execute(ctx context.Context, name string, args ...string) (string, error) {
	timeout := e.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(timeoutCtx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if timeoutCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("command %q timed out after %v", name, timeout)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("command %q failed: %w: %s", name, err, msg)
		}
		return "", fmt.Errorf("command %q failed: %w", name, err)
	}

	return stdout.String(), nil
}
