package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics implementing the golden 4 signals:
// - Latency: How long requests/screening runs take
// - Traffic: Request/run throughput
// - Errors: Rate of failures and rejected admissions
// - Saturation: Whether a run is in flight, queue sizes, live connections
type Metrics struct {
	meter metric.Meter

	// HTTP metrics (Latency, Traffic, Errors)
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Screening metrics (Latency, Traffic, Errors, Saturation)
	RunDuration      metric.Float64Histogram
	RunsTotal        metric.Int64Counter
	RunsActive       metric.Int64UpDownCounter
	RunRejections    metric.Int64Counter
	ResultItems      metric.Int64Gauge
	PersistFailures  metric.Int64Counter
	LiveConnections  metric.Int64UpDownCounter
	LiveDroppedTotal metric.Int64Counter

	// Dispatcher metrics (Latency, Traffic, Errors, Saturation)
	DispatcherDuration   metric.Float64Histogram
	DispatcherDelivered  metric.Int64Counter
	DispatcherFailed     metric.Int64Counter
	DispatcherDropped    metric.Int64Counter
	DispatcherRequeued   metric.Int64Counter
	DispatcherQueueSize  metric.Int64Gauge
	DispatcherBufferSize int64 // config value for saturation calculation
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("condition-pick")
	m := &Metrics{meter: meter}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 180),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Screening metrics
	m.RunDuration, err = meter.Float64Histogram(
		"screening_run_duration_seconds",
		metric.WithDescription("Screener execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 2.5, 5, 10, 20, 30, 60, 120, 180, 300),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RunsTotal, err = meter.Int64Counter(
		"screening_runs_total",
		metric.WithDescription("Total number of admitted screening runs by outcome"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RunsActive, err = meter.Int64UpDownCounter(
		"screening_runs_active",
		metric.WithDescription("Number of screener processes currently running (0 or 1)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RunRejections, err = meter.Int64Counter(
		"screening_rejections_total",
		metric.WithDescription("Total number of run requests rejected because a run was in flight"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ResultItems, err = meter.Int64Gauge(
		"screening_result_items",
		metric.WithDescription("Number of items in the last good screening result"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PersistFailures, err = meter.Int64Counter(
		"screening_persist_failures_total",
		metric.WithDescription("Total number of failed writes of the result document"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.LiveConnections, err = meter.Int64UpDownCounter(
		"live_connections",
		metric.WithDescription("Number of connected live update clients"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.LiveDroppedTotal, err = meter.Int64Counter(
		"live_dropped_total",
		metric.WithDescription("Total live clients disconnected for falling behind"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Dispatcher metrics
	m.DispatcherDuration, err = meter.Float64Histogram(
		"dispatcher_duration_seconds",
		metric.WithDescription("Webhook delivery latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatcherDelivered, err = meter.Int64Counter(
		"dispatcher_delivered_total",
		metric.WithDescription("Total events successfully delivered"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatcherFailed, err = meter.Int64Counter(
		"dispatcher_failed_total",
		metric.WithDescription("Total events failed after retries"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatcherDropped, err = meter.Int64Counter(
		"dispatcher_dropped_total",
		metric.WithDescription("Total events dropped (buffer full or max requeues)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatcherRequeued, err = meter.Int64Counter(
		"dispatcher_requeued_total",
		metric.WithDescription("Total events requeued due to open circuit"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatcherQueueSize, err = meter.Int64Gauge(
		"dispatcher_queue_size",
		metric.WithDescription("Current number of events in dispatcher queue (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordRunStarted records an admitted run starting.
func (m *Metrics) RecordRunStarted(ctx context.Context, trigger string) {
	m.RunsActive.Add(ctx, 1, metric.WithAttributes(triggerAttr(trigger)))
}

// RecordRunFinished records an admitted run finishing with the given outcome.
func (m *Metrics) RecordRunFinished(ctx context.Context, trigger, outcome string, durationSeconds float64) {
	attrs := metric.WithAttributes(triggerAttr(trigger), outcomeAttr(outcome))
	m.RunDuration.Record(ctx, durationSeconds, attrs)
	m.RunsTotal.Add(ctx, 1, attrs)
	m.RunsActive.Add(ctx, -1, metric.WithAttributes(triggerAttr(trigger)))
}

// RecordRunRejected records a run request refused by the single-flight gate.
func (m *Metrics) RecordRunRejected(ctx context.Context, trigger string) {
	m.RunRejections.Add(ctx, 1, metric.WithAttributes(triggerAttr(trigger)))
}

// RecordResultItems records the size of the newly cached result.
func (m *Metrics) RecordResultItems(ctx context.Context, count int) {
	m.ResultItems.Record(ctx, int64(count))
}

// RecordPersistFailure records a failed result document write.
func (m *Metrics) RecordPersistFailure(ctx context.Context) {
	m.PersistFailures.Add(ctx, 1)
}

// RecordLiveConnected records a live client connecting (+1) or leaving (-1).
func (m *Metrics) RecordLiveConnected(ctx context.Context, delta int64) {
	m.LiveConnections.Add(ctx, delta)
}

// RecordLiveDropped records a slow live client being disconnected.
func (m *Metrics) RecordLiveDropped(ctx context.Context) {
	m.LiveDroppedTotal.Add(ctx, 1)
}

// RecordDispatcherDelivered records a successful event delivery with its duration.
func (m *Metrics) RecordDispatcherDelivered(ctx context.Context, durationSeconds float64) {
	m.DispatcherDelivered.Add(ctx, 1)
	m.DispatcherDuration.Record(ctx, durationSeconds)
}

// RecordDispatcherFailed records a failed event delivery.
func (m *Metrics) RecordDispatcherFailed(ctx context.Context) {
	m.DispatcherFailed.Add(ctx, 1)
}

// RecordDispatcherDropped records a dropped event.
func (m *Metrics) RecordDispatcherDropped(ctx context.Context) {
	m.DispatcherDropped.Add(ctx, 1)
}

// RecordDispatcherRequeued records a requeued event.
func (m *Metrics) RecordDispatcherRequeued(ctx context.Context) {
	m.DispatcherRequeued.Add(ctx, 1)
}

// RecordDispatcherQueueSize records the current queue size.
func (m *Metrics) RecordDispatcherQueueSize(ctx context.Context, size int64) {
	m.DispatcherQueueSize.Record(ctx, size)
}
