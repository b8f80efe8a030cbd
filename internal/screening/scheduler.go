package screening

import (
	"context"
	"sync"
	"time"
)

// TickFunc performs one scheduled run. kicked is true for ticks requested
// through Kick rather than by the interval.
type TickFunc func(ctx context.Context, kicked bool)

type schedulerState int

const (
	schedulerIdle schedulerState = iota
	schedulerActive
	schedulerStopped
)

// Scheduler calls a TickFunc immediately on Start and then on every interval.
//
// Ticks run one after another on a single goroutine, so a slow tick delays the
// next one instead of overlapping it. The lifecycle is Idle -> Active ->
// Stopped and never goes back.
type Scheduler struct {
	interval time.Duration
	tick     TickFunc

	mu     sync.Mutex
	state  schedulerState
	cancel context.CancelFunc
	done   chan struct{}
	kick   chan struct{}
}

// NewScheduler creates an idle scheduler.
func NewScheduler(interval time.Duration, tick TickFunc) *Scheduler {
	return &Scheduler{
		interval: interval,
		tick:     tick,
		kick:     make(chan struct{}, 1),
	}
}

// Start begins ticking. It returns false and does nothing if the scheduler
// was already started or stopped, or if the interval is not positive.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != schedulerIdle || s.interval <= 0 {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = schedulerActive

	go s.loop(ctx)
	return true
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	s.tick(ctx, false)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, false)
		case <-s.kick:
			s.tick(ctx, true)
		}
	}
}

// Kick requests an extra tick as soon as the current one (if any) finishes.
// Multiple kicks before that tick coalesce into one. It returns false when
// the scheduler is not active.
func (s *Scheduler) Kick() bool {
	if !s.Active() {
		return false
	}
	select {
	case s.kick <- struct{}{}:
	default:
	}
	return true
}

// Stop cancels the scheduler and waits for the in-flight tick to return.
// The tick's context is cancelled, which terminates a running screener.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state != schedulerActive {
		s.state = schedulerStopped
		s.mu.Unlock()
		return
	}
	s.state = schedulerStopped
	s.cancel()
	done := s.done
	s.mu.Unlock()

	<-done
}

// Active reports whether the scheduler is running.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == schedulerActive
}
