package launcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"time"

	"github.com/spf13/afero"
)

// ExecLauncher runs scenarios as local child processes
type ExecLauncher struct {
	fs afero.Fs

	// Timeout bounds the scenario's run time; zero means no limit
	Timeout time.Duration
}

// NewExecLauncher creates a launcher that creates test directories on fs
func NewExecLauncher(fs afero.Fs) *ExecLauncher {
	return &ExecLauncher{fs: fs}
}

// Launch runs spec.Args with exactly spec.Env as the child environment
func (l *ExecLauncher) Launch(ctx context.Context, spec Spec) (*Outcome, error) {
	if len(spec.Args) == 0 {
		return nil, fmt.Errorf("scenario command is empty")
	}

	if spec.Dir != "" {
		if err := l.fs.MkdirAll(spec.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create test directory %s: %w", spec.Dir, err)
		}
	}

	execCtx := ctx
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(execCtx, spec.Args[0], spec.Args[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env.Environ()

	stdoutBuf := &bytes.Buffer{}
	stderrBuf := &bytes.Buffer{}
	stdout := &limitedWriter{w: stdoutBuf, limit: maxOutputSize}
	stderr := &limitedWriter{w: stderrBuf, limit: maxOutputSize}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	log.Printf("[INFO] Launching scenario: run_id=%s command=%v", spec.RunID, spec.Args)
	startedAt := time.Now()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scenario: %w", err)
	}

	err := cmd.Wait()
	outcome := &Outcome{
		Stdout:    stdoutBuf.String(),
		Stderr:    stderrBuf.String(),
		StartedAt: startedAt,
		Duration:  time.Since(startedAt),
		Truncated: stdout.dropped || stderr.dropped,
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to wait for scenario: %w", err)
		}
		if execCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("scenario timed out after %s", l.Timeout)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		outcome.ExitCode = exitErr.ExitCode()
	}

	if outcome.Truncated {
		log.Printf("[WARN] Scenario output exceeded 10MB limit and was truncated: run_id=%s", spec.RunID)
	}
	log.Printf("[INFO] Scenario finished: run_id=%s exit_code=%d duration=%s",
		spec.RunID, outcome.ExitCode, outcome.Duration)

	return outcome, nil
}
