package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestValidation(t *testing.T) {
	t.Parallel()
	err := Validation("interval", "interval must be positive")

	if !errors.Is(err, ErrValidation) {
		t.Error("expected error to match ErrValidation")
	}
	if err.Error() != "interval must be positive" {
		t.Errorf("expected message 'interval must be positive', got %q", err.Error())
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Field != "interval" {
		t.Errorf("expected field 'interval', got %q", appErr.Field)
	}
}

func TestNotFound(t *testing.T) {
	t.Parallel()
	err := NotFound("condition", "7")

	if !errors.Is(err, ErrNotFound) {
		t.Error("expected error to match ErrNotFound")
	}
	if err.Error() != "condition 7 not found" {
		t.Errorf("expected message 'condition 7 not found', got %q", err.Error())
	}
}

func TestAlreadyRunning(t *testing.T) {
	t.Parallel()
	err := AlreadyRunning()

	if !errors.Is(err, ErrAlreadyRunning) {
		t.Error("expected error to match ErrAlreadyRunning")
	}
	if !errors.Is(err, ErrConflict) {
		t.Error("expected AlreadyRunning to classify as a conflict")
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Resource != "screening" {
		t.Errorf("expected resource 'screening', got %q", appErr.Resource)
	}
}

func TestInternal(t *testing.T) {
	t.Parallel()
	cause := fmt.Errorf("docker daemon unavailable")
	err := Internal("docker.ping", cause)

	if !errors.Is(err, ErrInternal) {
		t.Error("expected error to match ErrInternal")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the cause")
	}
	if err.Error() != "docker.ping: docker daemon unavailable" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestLaunch(t *testing.T) {
	t.Parallel()
	cause := errors.New("exec: \"python\": executable file not found in $PATH")
	err := Launch("python", cause)

	if !errors.Is(err, ErrLaunch) {
		t.Error("expected error to match ErrLaunch")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable")
	}
	if !strings.Contains(err.Error(), `"python"`) {
		t.Errorf("expected command in message, got %q", err.Error())
	}
}

func TestTimeout(t *testing.T) {
	t.Parallel()
	err := Timeout(3 * time.Minute)

	if !errors.Is(err, ErrTimeout) {
		t.Error("expected error to match ErrTimeout")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected timeout to match context.DeadlineExceeded")
	}
	if !strings.Contains(err.Error(), "3m0s") {
		t.Errorf("expected duration in message, got %q", err.Error())
	}
}

func TestParse_KeepsFullOutput(t *testing.T) {
	t.Parallel()
	candidate := strings.Repeat("x", 2000)
	err := Parse(candidate, errors.New("invalid character 'x'"))

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Output != candidate {
		t.Error("expected full candidate in Output")
	}
	if len(err.Error()) >= len(candidate) {
		t.Errorf("expected message to be truncated, got %d bytes", len(err.Error()))
	}
}

func TestExitStatus(t *testing.T) {
	t.Parallel()
	err := ExitStatus(2, "Traceback: login failed")

	if !errors.Is(err, ErrExitStatus) {
		t.Error("expected error to match ErrExitStatus")
	}
	if err.Error() != "screener exited with code 2: Traceback: login failed" {
		t.Errorf("unexpected message: %q", err.Error())
	}
	if ExitStatus(1, "").Error() != "screener exited with code 1" {
		t.Errorf("unexpected message without stderr: %q", ExitStatus(1, "").Error())
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"validation", Validation("id", "required"), http.StatusBadRequest},
		{"not found", NotFound("condition", "1"), http.StatusNotFound},
		{"conflict", Conflict("screening", "", "busy"), http.StatusConflict},
		{"already running", AlreadyRunning(), http.StatusConflict},
		{"empty", Empty(), http.StatusServiceUnavailable},
		{"timeout", Timeout(time.Second), http.StatusGatewayTimeout},
		{"launch", Launch("python", errors.New("missing")), http.StatusBadGateway},
		{"parse", Parse("garbage", errors.New("bad")), http.StatusBadGateway},
		{"screener", Screener("login failed"), http.StatusBadGateway},
		{"exit status", ExitStatus(1, ""), http.StatusBadGateway},
		{"persistence", Persistence("store.save", errors.New("disk full")), http.StatusInternalServerError},
		{"internal", Internal("op", fmt.Errorf("fail")), http.StatusInternalServerError},
		{"sentinel conflict", ErrConflict, http.StatusConflict},
		{"wrapped timeout", fmt.Errorf("run: %w", Timeout(time.Second)), http.StatusGatewayTimeout},
		{"unknown error", fmt.Errorf("unknown"), http.StatusInternalServerError},
		{"nil error", nil, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := HTTPStatus(tt.err)
			if got != tt.expected {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestReason(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{AlreadyRunning(), "already_running"},
		{Launch("x", errors.New("no")), "launch"},
		{Timeout(time.Second), "timeout"},
		{Parse("", errors.New("empty")), "parse"},
		{Screener("bad"), "screener"},
		{ExitStatus(3, ""), "exit_status"},
		{context.Canceled, "canceled"},
		{errors.New("other"), "internal"},
	}

	for _, tt := range tests {
		if got := Reason(tt.err); got != tt.want {
			t.Errorf("Reason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestErrorsIsWithWrapping(t *testing.T) {
	t.Parallel()
	original := Screener("login failed")
	wrapped := fmt.Errorf("service error: %w", original)
	doubleWrapped := fmt.Errorf("handler error: %w", wrapped)

	if !errors.Is(doubleWrapped, ErrScreener) {
		t.Error("expected errors.Is to find ErrScreener through multiple wraps")
	}
}
