// Package circuitbreaker implements the circuit breaker pattern.
//
// A circuit breaker prevents cascading failures by tracking consecutive failures
// and temporarily blocking requests to failing services.
//
// States:
//   - Closed: Normal operation, requests allowed
//   - Open: Too many failures, requests blocked
//   - HalfOpen: Cooldown elapsed, a single probe request allowed
package circuitbreaker

import (
	"sync"
	"time"
)

// State represents the state of a circuit breaker.
type State int

const (
	Closed   State = iota // Normal operation, requests allowed
	Open                  // Failing, requests blocked
	HalfOpen              // Probing whether the resource recovered
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// StateChangeFunc is called after a breaker changes state. It runs without
// the breaker's lock held.
type StateChangeFunc func(key string, from, to State)

// Config holds configuration for a circuit breaker.
type Config struct {
	Threshold     int             // Failures before circuit opens (default: 5)
	Cooldown      time.Duration   // Time before half-open (default: 30s)
	OnStateChange StateChangeFunc // Optional
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Threshold: 5,
		Cooldown:  30 * time.Second,
	}
}

// Breaker implements the circuit breaker pattern for a single resource.
type Breaker struct {
	key      string
	onChange StateChangeFunc
	now      func() time.Time

	mu          sync.Mutex
	state       State
	probing     bool          // a half-open probe is in flight
	failures    int           // consecutive failures
	threshold   int           // failures before opening
	lastFailure time.Time     // when the last failure occurred
	cooldown    time.Duration // how long to wait before half-open
}

// New creates a new circuit breaker.
func New(cfg Config) *Breaker {
	return newBreaker("", cfg)
}

func newBreaker(key string, cfg Config) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{
		key:       key,
		onChange:  cfg.OnStateChange,
		now:       time.Now,
		state:     Closed,
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
	}
}

// Allow returns true if a request should be attempted.
//
// After the cooldown exactly one caller is let through as a probe; others
// are refused until that probe is recorded as a success or failure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()

	switch b.state {
	case Open:
		if b.now().Sub(b.lastFailure) < b.cooldown {
			b.mu.Unlock()
			return false
		}
		b.probing = true
		b.transition(HalfOpen) // unlocks
		return true

	case HalfOpen:
		allowed := !b.probing
		b.probing = true
		b.mu.Unlock()
		return allowed

	default:
		b.mu.Unlock()
		return true
	}
}

// RecordSuccess records a successful request.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	b.failures = 0
	b.probing = false
	b.transition(Closed)
}

// RecordFailure records a failed request.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	b.failures++
	b.lastFailure = b.now()
	b.probing = false

	// A failed probe reopens immediately.
	if b.state == HalfOpen || b.failures >= b.threshold {
		b.transition(Open)
		return
	}
	b.mu.Unlock()
}

// transition sets the state, releases b.mu, and reports the change.
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	b.mu.Unlock()

	if from != to && b.onChange != nil {
		b.onChange(b.key, from, to)
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
