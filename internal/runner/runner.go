// Package runner launches the external screening program and captures its output.
//
// A Runner owns exactly one concern: start the program, wait for it to exit or
// for its deadline to pass, and hand back everything it wrote. It never
// interprets the output and never treats a non-zero exit as its own failure;
// callers decide what an exit code means.
//
// # Termination
//
// When the timeout elapses or the caller's context is cancelled, the program
// is asked to stop (SIGTERM to its process group on Unix, a container stop on
// Docker), given the configured grace period, and then killed. Run does not
// return until the program is gone, so the caller can release any admission it
// holds immediately afterwards.
package runner

import (
	"context"
	"time"
)

// Spec describes a single invocation of the screening program.
type Spec struct {
	RunID   string            // Correlation ID, used for logs and container labels
	Command string            // Executable (exec backend) or container command
	Args    []string          // Arguments passed verbatim
	Env     map[string]string // Extra environment, layered over the parent's
	Dir     string            // Working directory (empty = inherit)
	Timeout time.Duration     // Hard deadline for the whole run
}

// Result captures what one invocation produced.
// It is returned even when Run also returns an error, as long as the program
// was started.
type Result struct {
	PID        int
	ExitCode   int // -1 when the program was terminated or never exited normally
	Stdout     string
	Stderr     string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the program ran.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Runner executes the screening program.
type Runner interface {
	// Run starts the program and blocks until it exits, times out, or ctx is
	// cancelled. Launch problems return apperrors.ErrLaunch; an elapsed
	// timeout returns apperrors.ErrTimeout together with the partial Result.
	Run(ctx context.Context, spec Spec) (*Result, error)

	// Ready checks that the backend can start the program.
	Ready(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
