package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/DotoriPicnic/condition-pick/internal/apperrors"
)

// minWaitDelay bounds how long Wait keeps reading output after the program
// has exited but a descendant still holds its pipes.
const minWaitDelay = time.Second

// ExecConfig configures the local process backend.
type ExecConfig struct {
	Command   string        // Checked by Ready
	KillGrace time.Duration // Time between SIGTERM and SIGKILL
	Encoding  string        // Output encoding, see Decode
}

// ExecRunner runs the screening program as a local child process.
type ExecRunner struct {
	command  string
	grace    time.Duration
	encoding string
	logger   *slog.Logger
}

// NewExecRunner creates a local process runner.
func NewExecRunner(cfg ExecConfig) *ExecRunner {
	encoding := cfg.Encoding
	if encoding == "" {
		encoding = EncodingUTF8
	}
	return &ExecRunner{
		command:  cfg.Command,
		grace:    max(cfg.KillGrace, 0),
		encoding: encoding,
		logger:   slog.With("component", "runner", "backend", "exec"),
	}
}

// Run starts the program and waits for it. See Runner.
func (r *ExecRunner) Run(ctx context.Context, spec Spec) (*Result, error) {
	if spec.Timeout <= 0 {
		return nil, apperrors.Validation("timeout", "run timeout must be positive")
	}
	logger := r.logger.With("runId", spec.RunID)

	var stdout, stderr bytes.Buffer
	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = buildEnv(r.encoding, os.Environ(), spec.Env)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = max(r.grace, minWaitDelay)
	configureProcess(cmd)

	res := &Result{ExitCode: -1, StartedAt: time.Now()}
	if err := cmd.Start(); err != nil {
		res.FinishedAt = time.Now()
		return res, apperrors.Launch(spec.Command, err)
	}
	res.PID = cmd.Process.Pid
	logger.Debug("Screener started", "pid", res.PID, "command", spec.Command)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(spec.Timeout)
	defer timer.Stop()

	var waitErr, runErr error
	select {
	case waitErr = <-done:
	case <-timer.C:
		logger.Warn("Screener exceeded timeout, terminating", "timeout", spec.Timeout, "pid", res.PID)
		waitErr = r.terminate(logger, cmd, done)
		runErr = apperrors.Timeout(spec.Timeout)
	case <-ctx.Done():
		logger.Info("Run cancelled, terminating screener", "pid", res.PID)
		waitErr = r.terminate(logger, cmd, done)
		runErr = fmt.Errorf("screening run cancelled: %w", ctx.Err())
	}

	res.FinishedAt = time.Now()
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	res.Stdout = Decode(r.encoding, stdout.Bytes())
	res.Stderr = Decode(r.encoding, stderr.Bytes())

	if runErr != nil {
		return res, runErr
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil, errors.As(waitErr, &exitErr):
	case errors.Is(waitErr, exec.ErrWaitDelay):
		logger.Warn("Screener exited but its output pipes stayed open", "pid", res.PID)
	default:
		return res, apperrors.Internal("runner.wait", waitErr)
	}

	logger.Debug("Screener exited", "exitCode", res.ExitCode, "duration", res.Duration())
	return res, nil
}

// terminate stops the process group politely, then forcefully after the
// grace period, and returns the Wait result.
func (r *ExecRunner) terminate(logger *slog.Logger, cmd *exec.Cmd, done <-chan error) error {
	interruptProcess(cmd)

	grace := time.NewTimer(r.grace)
	defer grace.Stop()

	select {
	case err := <-done:
		return err
	case <-grace.C:
	}

	logger.Warn("Screener ignored termination, killing", "grace", r.grace)
	killProcess(cmd)
	return <-done
}

// Ready checks that the configured command resolves to an executable.
func (r *ExecRunner) Ready(ctx context.Context) error {
	if r.command == "" {
		return fmt.Errorf("no screener command configured")
	}
	_, err := exec.LookPath(r.command)
	return err
}

// Close is a no-op for the exec backend.
func (r *ExecRunner) Close() error {
	return nil
}
