// Package health provides health check functionality for liveness and readiness probes.
package health

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ReadinessChecker is the interface for readiness checks.
// Implemented by the screening service to verify its runner backend can
// start the screener.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// FreshnessFunc reports when the cached result was last refreshed.
// ok is false when nothing has been cached yet.
type FreshnessFunc func() (updated time.Time, ok bool)

// BreakerFunc returns the webhook destinations whose circuit is not closed.
type BreakerFunc func() []string

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// CheckResult contains the result of a health check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response is the health check response.
type Response struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Option configures optional checks.
type Option func(*Checker)

// WithFreshness reports the result check as degraded when nothing is cached
// or the cached result is older than maxAge. maxAge <= 0 disables the age
// limit.
func WithFreshness(fn FreshnessFunc, maxAge time.Duration) Option {
	return func(c *Checker) {
		c.freshness = fn
		c.maxAge = maxAge
	}
}

// WithBreakers reports webhook delivery as degraded while any destination's
// circuit is open.
func WithBreakers(fn BreakerFunc) Option {
	return func(c *Checker) {
		c.breakers = fn
	}
}

// Checker performs health checks on dependencies.
type Checker struct {
	runner    ReadinessChecker
	freshness FreshnessFunc
	maxAge    time.Duration
	breakers  BreakerFunc
	timeout   time.Duration
	now       func() time.Time

	mu           sync.RWMutex
	lastCheck    time.Time
	cachedReady  *Response
	shuttingDown bool
}

// NewChecker creates a new health checker.
func NewChecker(runner ReadinessChecker, opts ...Option) *Checker {
	c := &Checker{
		runner:  runner,
		timeout: 5 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Liveness returns true if the service is alive.
// This should be a lightweight check that doesn't depend on external services.
// Failing this probe should trigger a container restart.
func (c *Checker) Liveness(ctx context.Context) *Response {
	return &Response{
		Status: StatusHealthy,
	}
}

// Readiness checks if the service is ready to accept traffic.
//
// The runner check decides readiness. A missing or stale result and open
// webhook breakers only degrade the response, since cached reads and manual
// runs still work.
func (c *Checker) Readiness(ctx context.Context) *Response {
	c.mu.RLock()
	// Return unhealthy immediately if shutting down
	if c.shuttingDown {
		c.mu.RUnlock()
		return &Response{
			Status: StatusUnhealthy,
			Checks: map[string]CheckResult{
				"shutdown": {Status: StatusUnhealthy, Message: "service is shutting down"},
			},
		}
	}

	// Use cached result if recent (the docker runner pings the daemon)
	if c.cachedReady != nil && time.Since(c.lastCheck) < time.Second {
		cached := c.cachedReady
		c.mu.RUnlock()
		return cached
	}
	c.mu.RUnlock()

	checks := map[string]CheckResult{
		"runner": c.checkRunner(ctx),
	}
	if c.freshness != nil {
		checks["result"] = c.checkResult()
	}
	if c.breakers != nil {
		checks["webhooks"] = c.checkBreakers()
	}

	response := &Response{
		Status: overall(checks),
		Checks: checks,
	}

	// Cache the result
	c.mu.Lock()
	c.cachedReady = response
	c.lastCheck = time.Now()
	c.mu.Unlock()

	return response
}

func overall(checks map[string]CheckResult) Status {
	status := StatusHealthy
	for _, check := range checks {
		switch check.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// checkRunner verifies the runner backend can start the screener.
func (c *Checker) checkRunner(ctx context.Context) CheckResult {
	if c.runner == nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "runner not configured",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.runner.Ready(ctx); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: err.Error(),
		}
	}

	return CheckResult{
		Status: StatusHealthy,
	}
}

func (c *Checker) checkResult() CheckResult {
	updated, ok := c.freshness()
	if !ok {
		return CheckResult{Status: StatusDegraded, Message: "no screening result yet"}
	}
	if age := c.now().Sub(updated); c.maxAge > 0 && age > c.maxAge {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("last result is %s old", age.Round(time.Second)),
		}
	}
	return CheckResult{Status: StatusHealthy}
}

func (c *Checker) checkBreakers() CheckResult {
	if hosts := c.breakers(); len(hosts) > 0 {
		return CheckResult{
			Status:  StatusDegraded,
			Message: "webhook destinations unavailable: " + strings.Join(hosts, ", "),
		}
	}
	return CheckResult{Status: StatusHealthy}
}

// IsHealthy returns true if the overall status is healthy.
func (r *Response) IsHealthy() bool {
	return r.Status == StatusHealthy
}

// IsReady returns true unless the overall status is unhealthy.
func (r *Response) IsReady() bool {
	return r.Status != StatusUnhealthy
}

// SetShuttingDown marks the service as shutting down.
// This causes readiness checks to return unhealthy, signaling
// load balancers to stop sending new traffic.
func (c *Checker) SetShuttingDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shuttingDown = true
	c.cachedReady = nil // Clear cache to ensure immediate effect
}
