//go:build !windows

package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/DotoriPicnic/condition-pick/internal/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/korean"
)

// TestHelperProcess is not a real test. It is re-executed by the tests below
// as a stand-in for the screening program.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 2 {
		os.Exit(2)
	}

	switch args[1] {
	case "echo":
		fmt.Fprintln(os.Stdout, "hello stdout")
		fmt.Fprintln(os.Stderr, "hello stderr")
	case "exit":
		fmt.Fprintln(os.Stderr, "login failed")
		os.Exit(3)
	case "env":
		fmt.Fprintf(os.Stdout, "%s|%s", os.Getenv("PYTHONIOENCODING"), os.Getenv("SCREENER_TEST"))
	case "euckr":
		out, _ := korean.EUCKR.NewEncoder().String("삼성전자")
		fmt.Fprint(os.Stdout, out)
	case "hang":
		fmt.Fprintln(os.Stdout, "partial output")
		time.Sleep(time.Hour)
	case "ignore-term":
		signal.Ignore(syscall.SIGTERM)
		fmt.Fprintln(os.Stdout, "ignoring")
		time.Sleep(time.Hour)
	case "spawn":
		// Leave a grandchild holding our stdout, then hang.
		child := exec.Command(os.Args[0], "-test.run=TestHelperProcess", "--", "hang")
		child.Env = os.Environ()
		child.Stdout = os.Stdout
		if err := child.Start(); err != nil {
			os.Exit(4)
		}
		time.Sleep(time.Hour)
	}
}

func helperSpec(mode string, timeout time.Duration) Spec {
	return Spec{
		RunID:   "test-" + mode,
		Command: os.Args[0],
		Args:    []string{"-test.run=TestHelperProcess", "--", mode},
		Env:     map[string]string{"GO_WANT_HELPER_PROCESS": "1"},
		Timeout: timeout,
	}
}

func TestExecRunner_CapturesStreamsSeparately(t *testing.T) {
	t.Parallel()
	r := NewExecRunner(ExecConfig{KillGrace: time.Second})

	res, err := r.Run(context.Background(), helperSpec("echo", 10*time.Second))
	require.NoError(t, err)

	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello stdout\n", res.Stdout)
	assert.Equal(t, "hello stderr\n", res.Stderr)
	assert.NotZero(t, res.PID)
	assert.False(t, res.FinishedAt.Before(res.StartedAt))
}

func TestExecRunner_NonZeroExitIsNotAnError(t *testing.T) {
	t.Parallel()
	r := NewExecRunner(ExecConfig{KillGrace: time.Second})

	res, err := r.Run(context.Background(), helperSpec("exit", 10*time.Second))
	require.NoError(t, err)

	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "login failed\n", res.Stderr)
}

func TestExecRunner_LaunchFailure(t *testing.T) {
	t.Parallel()
	r := NewExecRunner(ExecConfig{})

	_, err := r.Run(context.Background(), Spec{
		Command: "/nonexistent/screener",
		Timeout: time.Second,
	})
	require.ErrorIs(t, err, apperrors.ErrLaunch)
}

func TestExecRunner_RejectsNonPositiveTimeout(t *testing.T) {
	t.Parallel()
	r := NewExecRunner(ExecConfig{})

	_, err := r.Run(context.Background(), helperSpec("echo", 0))
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestExecRunner_Environment(t *testing.T) {
	t.Parallel()
	r := NewExecRunner(ExecConfig{})

	spec := helperSpec("env", 10*time.Second)
	spec.Env["SCREENER_TEST"] = "extra"

	res, err := r.Run(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, "utf-8|extra", res.Stdout)
}

func TestExecRunner_DecodesEUCKR(t *testing.T) {
	t.Parallel()
	for _, enc := range []string{EncodingEUCKR, EncodingAuto} {
		t.Run(enc, func(t *testing.T) {
			t.Parallel()
			r := NewExecRunner(ExecConfig{Encoding: enc})

			res, err := r.Run(context.Background(), helperSpec("euckr", 10*time.Second))
			require.NoError(t, err)
			assert.Equal(t, "삼성전자", res.Stdout)
		})
	}
}

func TestExecRunner_TimeoutTerminatesProcess(t *testing.T) {
	t.Parallel()
	r := NewExecRunner(ExecConfig{KillGrace: 500 * time.Millisecond})

	start := time.Now()
	res, err := r.Run(context.Background(), helperSpec("hang", 300*time.Millisecond))
	elapsed := time.Since(start)

	require.ErrorIs(t, err, apperrors.ErrTimeout)
	require.NotNil(t, res)
	assert.Equal(t, -1, res.ExitCode)
	assert.Contains(t, res.Stdout, "partial output")
	assert.Less(t, elapsed, 5*time.Second)

	// The child has been reaped: signalling it must fail.
	assert.Error(t, syscall.Kill(res.PID, 0))
}

func TestExecRunner_EscalatesToKill(t *testing.T) {
	t.Parallel()
	grace := 300 * time.Millisecond
	timeout := time.Second
	r := NewExecRunner(ExecConfig{KillGrace: grace})

	start := time.Now()
	res, err := r.Run(context.Background(), helperSpec("ignore-term", timeout))
	elapsed := time.Since(start)

	require.ErrorIs(t, err, apperrors.ErrTimeout)
	if strings.Contains(res.Stdout, "ignoring") {
		assert.GreaterOrEqual(t, elapsed, timeout+grace)
	}
	assert.Less(t, elapsed, 10*time.Second)
}

func TestExecRunner_KillsProcessGroup(t *testing.T) {
	t.Parallel()
	r := NewExecRunner(ExecConfig{KillGrace: 200 * time.Millisecond})

	start := time.Now()
	_, err := r.Run(context.Background(), helperSpec("spawn", 500*time.Millisecond))

	require.ErrorIs(t, err, apperrors.ErrTimeout)
	// Without a group kill the grandchild would hold stdout open until WaitDelay.
	assert.Less(t, time.Since(start), 500*time.Millisecond+minWaitDelay)
}

func TestExecRunner_ContextCancellation(t *testing.T) {
	t.Parallel()
	r := NewExecRunner(ExecConfig{KillGrace: 200 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	_, err := r.Run(ctx, helperSpec("hang", time.Minute))
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, apperrors.ErrTimeout)
}

func TestExecRunner_Ready(t *testing.T) {
	t.Parallel()

	assert.NoError(t, NewExecRunner(ExecConfig{Command: os.Args[0]}).Ready(context.Background()))
	assert.Error(t, NewExecRunner(ExecConfig{Command: "definitely-not-a-screener"}).Ready(context.Background()))
	assert.Error(t, NewExecRunner(ExecConfig{}).Ready(context.Background()))
}
