// Package observability provides metrics, tracing, and logging utilities.
package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys
const (
	attrMethod  = "method"
	attrPath    = "path"
	attrStatus  = "status"
	attrTrigger = "trigger"
	attrOutcome = "outcome"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	normalized := normalizePath(path)
	return attribute.String(attrPath, normalized)
}

func statusAttr(code int) attribute.KeyValue {
	// Group status codes to reduce cardinality
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	group := fmt.Sprintf("%dxx", code/100)
	return attribute.String(attrStatus, group)
}

func triggerAttr(trigger string) attribute.KeyValue {
	return attribute.String(attrTrigger, trigger)
}

func outcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String(attrOutcome, outcome)
}

// knownPaths are the routes served by the API. Anything else is folded into
// a single label so scanners cannot blow up cardinality.
var knownPaths = map[string]bool{
	"/api/status":                    true,
	"/api/condition/search":          true,
	"/api/condition/result":          true,
	"/api/condition/status":          true,
	"/api/condition/list":            true,
	"/api/condition/advanced/search": true,
	"/api/condition/advanced/result": true,
	"/api/condition/auto/result":     true,
	"/ws":                            true,
	"/livez":                         true,
	"/readyz":                        true,
}

// normalizePath maps unknown paths to a placeholder.
func normalizePath(path string) string {
	if knownPaths[path] {
		return path
	}
	return "{other}"
}

// WithMethod returns a metric option with the method attribute.
func WithMethod(method string) metric.MeasurementOption {
	return metric.WithAttributes(methodAttr(method))
}

// WithPath returns a metric option with the path attribute.
func WithPath(path string) metric.MeasurementOption {
	return metric.WithAttributes(pathAttr(path))
}

// WithStatus returns a metric option with the status attribute.
func WithStatus(code int) metric.MeasurementOption {
	return metric.WithAttributes(statusAttr(code))
}

// WithTrigger returns a metric option with the trigger attribute.
func WithTrigger(trigger string) metric.MeasurementOption {
	return metric.WithAttributes(triggerAttr(trigger))
}

// WithOutcome returns a metric option with the outcome attribute.
func WithOutcome(outcome string) metric.MeasurementOption {
	return metric.WithAttributes(outcomeAttr(outcome))
}
