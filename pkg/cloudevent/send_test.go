package cloudevent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNew_GeneratesID(t *testing.T) {
	t.Parallel()
	a := New("test.event", "test", "", "", nil)
	b := New("test.event", "test", "", "", nil)

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("expected distinct generated IDs, got %q and %q", a.ID, b.ID)
	}
	if got := New("test.event", "test", "", "fixed", nil).ID; got != "fixed" {
		t.Errorf("expected explicit ID to be kept, got %q", got)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	if err := New("t", "s", "", "", nil).Validate(); err != nil {
		t.Errorf("expected valid event, got %v", err)
	}

	err := (&CloudEvent{SpecVersion: "0.3"}).Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"specversion", "type", "source", "id"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %s, got %q", want, err)
		}
	}
}

func TestSender_Send(t *testing.T) {
	t.Parallel()
	const key = "secret"
	var gotHeader http.Header
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	event := New("condition.screening.result.updated", "test", "run-1", "", map[string]any{"count": 2})
	if err := NewSender(5*time.Second).Send(context.Background(), server.URL, event, SendOptions{SigningKey: key}); err != nil {
		t.Fatalf("Send() = %v", err)
	}

	if gotHeader.Get("Ce-Id") != event.ID {
		t.Errorf("expected Ce-Id %q, got %q", event.ID, gotHeader.Get("Ce-Id"))
	}
	if gotHeader.Get("Ce-Subject") != "run-1" {
		t.Errorf("expected Ce-Subject run-1, got %q", gotHeader.Get("Ce-Subject"))
	}
	if gotHeader.Get("User-Agent") != userAgent {
		t.Errorf("expected User-Agent %q, got %q", userAgent, gotHeader.Get("User-Agent"))
	}
	if !Verify(gotBody, gotHeader.Get(SignatureHeader), key) {
		t.Error("signature does not verify against the received body")
	}

	var decoded CloudEvent
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if decoded.Data["count"] != float64(2) {
		t.Errorf("unexpected data %v", decoded.Data)
	}
}

func TestSender_SendErrorBody(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, strings.Repeat("x", 1000), http.StatusBadRequest)
	}))
	defer server.Close()

	err := NewSender(5*time.Second).Send(context.Background(), server.URL, New("t", "s", "", "", nil), SendOptions{})
	if !IsClientError(err) {
		t.Fatalf("expected client error, got %v", err)
	}
	if len(err.Error()) > maxErrorBody+len("HTTP 400: ") {
		t.Errorf("error body not truncated: %d bytes", len(err.Error()))
	}
}

func TestSender_RejectsInvalidEvent(t *testing.T) {
	t.Parallel()
	err := NewSender(time.Second).Send(context.Background(), "http://127.0.0.1:0", &CloudEvent{}, SendOptions{})
	if err == nil || !strings.Contains(err.Error(), "invalid event") {
		t.Errorf("expected invalid event error, got %v", err)
	}
}

func TestHTTPError_Error(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err      *HTTPError
		expected string
	}{
		{&HTTPError{StatusCode: 400}, "HTTP 400"},
		{&HTTPError{StatusCode: 503}, "HTTP 503"},
		{&HTTPError{StatusCode: 422, Body: "missing field"}, "HTTP 422: missing field"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			t.Parallel()
			if tt.err.Error() != tt.expected {
				t.Errorf("Error() = %q, want %q", tt.err.Error(), tt.expected)
			}
		})
	}
}

func TestIsClientError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"400 Bad Request", &HTTPError{StatusCode: 400}, true},
		{"404 Not Found", &HTTPError{StatusCode: 404}, true},
		{"408 Request Timeout is transient", &HTTPError{StatusCode: 408}, false},
		{"429 Too Many Requests is transient", &HTTPError{StatusCode: 429}, false},
		{"499 client error boundary", &HTTPError{StatusCode: 499}, true},
		{"500 Internal Server Error", &HTTPError{StatusCode: 500}, false},
		{"399 not a client error", &HTTPError{StatusCode: 399}, false},
		{"wrapped", fmt.Errorf("deliver: %w", &HTTPError{StatusCode: 410}), true},
		{"non-HTTP error", context.DeadlineExceeded, false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := IsClientError(tt.err)
			if got != tt.expected {
				t.Errorf("IsClientError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestVerify(t *testing.T) {
	t.Parallel()
	payload := []byte(`{"test":"data"}`)
	signature := generateSignature(payload, "secret-key")

	if !strings.HasPrefix(signature, "sha256=") || len(signature) != 7+64 {
		t.Errorf("unexpected signature format %q", signature)
	}

	tests := []struct {
		name      string
		body      []byte
		signature string
		key       string
		expected  bool
	}{
		{"valid", payload, signature, "secret-key", true},
		{"wrong key", payload, signature, "different-key", false},
		{"tampered body", []byte(`{"test":"date"}`), signature, "secret-key", false},
		{"missing prefix", payload, strings.TrimPrefix(signature, "sha256="), "secret-key", false},
		{"not hex", payload, "sha256=zz", "secret-key", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Verify(tt.body, tt.signature, tt.key); got != tt.expected {
				t.Errorf("Verify() = %v, want %v", got, tt.expected)
			}
		})
	}
}
