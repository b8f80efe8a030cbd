package observability

import (
	"context"
	"testing"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, handler, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	if metrics == nil {
		t.Fatal("Expected metrics to be non-nil")
	}

	if handler == nil {
		t.Fatal("Expected handler to be non-nil")
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordHTTPRequest(ctx, "GET", "/livez", 200, 0.001)
	metrics.RecordHTTPRequest(ctx, "POST", "/api/condition/search", 200, 12.5)
	metrics.RecordHTTPRequest(ctx, "POST", "/api/condition/search", 409, 0.001)
	metrics.RecordHTTPRequest(ctx, "GET", "/api/condition/result", 503, 0.002)
	metrics.RecordHTTPRequest(ctx, "GET", "/wp-login.php", 404, 0.001)
}

func TestRecordScreeningMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordRunStarted(ctx, "scheduled")
	metrics.RecordRunFinished(ctx, "scheduled", "ok", 42.0)
	metrics.RecordRunStarted(ctx, "manual")
	metrics.RecordRunFinished(ctx, "manual", "timeout", 180.0)
	metrics.RecordRunRejected(ctx, "manual")
	metrics.RecordResultItems(ctx, 17)
	metrics.RecordPersistFailure(ctx)
	metrics.RecordLiveConnected(ctx, 1)
	metrics.RecordLiveConnected(ctx, -1)
	metrics.RecordLiveDropped(ctx)
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected string
	}{
		{"/livez", "/livez"},
		{"/api/condition/search", "/api/condition/search"},
		{"/api/condition/auto/result", "/api/condition/auto/result"},
		{"/ws", "/ws"},
		{"/api/condition/unknown", "{other}"},
		{"/.env", "{other}"},
	}

	for _, tt := range tests {
		result := normalizePath(tt.input)
		if result != tt.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
