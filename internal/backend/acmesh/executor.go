package acmesh

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Executor runs the external signing tool. The indirection exists so
// tests and alternative ACME clients can be substituted without
// spawning real processes.
type Executor interface {
	// Run executes name with args and the given environment, returning
	// the combined stdout+stderr, the exit code, and an error. A
	// non-zero exit is reported through the exit code, not the error;
	// the error covers failures to run at all, including an expired
	// context.
	Run(ctx context.Context, name string, args []string, env []string) ([]byte, int, error)
}

// execExecutor is the shipped Executor, backed by os/exec.
type execExecutor struct{}

func (execExecutor) Run(ctx context.Context, name string, args []string, env []string) ([]byte, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env
	// Grandchildren of the tool can hold the output pipe open after the
	// kill; don't let that turn an expired budget into a hang.
	cmd.WaitDelay = 10 * time.Second

	output, err := cmd.CombinedOutput()
	if err == nil {
		return output, 0, nil
	}

	// A kill caused by context expiry surfaces as an ExitError; report
	// it as the context's error instead.
	if ctxErr := ctx.Err(); ctxErr != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return output, code, fmt.Errorf("%s: %w", name, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return output, exitErr.ExitCode(), nil
	}

	return output, -1, fmt.Errorf("failed to run %s: %w", name, err)
}
