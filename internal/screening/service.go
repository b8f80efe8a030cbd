package screening

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DotoriPicnic/condition-pick/internal/apperrors"
	"github.com/DotoriPicnic/condition-pick/internal/observability"
	"github.com/DotoriPicnic/condition-pick/internal/runner"
	"github.com/google/uuid"
)

// Bootstrap policies for a read that finds the cache empty.
const (
	BootstrapAsync = "async"
	BootstrapSync  = "sync"
)

// errClosed is returned for runs requested after Close.
var errClosed = fmt.Errorf("screening service closed: %w", context.Canceled)

// stderrTail bounds how much stderr is carried into an exit status error.
const stderrTail = 1024

// Config controls how the Service runs the screening program.
type Config struct {
	Spec            runner.Spec   // Invocation template; RunID is filled per run
	RefreshInterval time.Duration // 0 disables the scheduler
	BootstrapMode   string        // BootstrapAsync (default) or BootstrapSync
}

type runInfo struct {
	at       time.Time
	duration time.Duration
}

// Service is the single entry point for running and reading screenings.
//
// All state lives in the Service instance: the gate, the cache, the
// scheduler and the last run timestamp. Callers share one Service.
type Service struct {
	runner    runner.Runner
	spec      runner.Spec
	gate      Gate
	cache     *Cache
	scheduler *Scheduler
	bootstrap string
	metrics   *observability.Metrics
	logger    *slog.Logger

	notifiers    []Notifier
	bootstrapped atomic.Bool
	lastRun      atomic.Pointer[runInfo]

	// ctx is cancelled by Close and bounds every run, whatever its trigger.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	runs   sync.WaitGroup
	bg     sync.WaitGroup
}

// NewService creates a Service. metrics may be nil.
func NewService(r runner.Runner, cache *Cache, cfg Config, metrics *observability.Metrics) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	mode := cfg.BootstrapMode
	if mode == "" {
		mode = BootstrapAsync
	}

	s := &Service{
		runner:    r,
		spec:      cfg.Spec,
		cache:     cache,
		bootstrap: mode,
		metrics:   metrics,
		logger:    slog.With("component", "screening"),
		ctx:       ctx,
		cancel:    cancel,
	}
	if cfg.RefreshInterval > 0 {
		s.scheduler = NewScheduler(cfg.RefreshInterval, s.scheduledTick)
	}
	return s
}

// AddNotifier registers a receiver for run outcomes. It must be called
// before Start.
func (s *Service) AddNotifier(n Notifier) {
	s.notifiers = append(s.notifiers, n)
}

// Start starts the periodic scheduler, if one is configured.
// Calling Start more than once has no effect.
func (s *Service) Start() {
	if s.scheduler != nil && s.scheduler.Start() {
		s.logger.Info("Scheduler started", "interval", s.scheduler.interval)
	}
}

// RunNow runs the screener synchronously and returns its Result.
// It fails fast with apperrors.ErrAlreadyRunning if a run is in flight.
func (s *Service) RunNow(ctx context.Context) (*Result, error) {
	return s.run(ctx, TriggerManual)
}

// Cached returns the last good Result without running the screener.
//
// The first read that finds the cache empty bootstraps it: in async mode a
// run is started in the background and apperrors.ErrEmpty is returned; in
// sync mode the run happens before Cached returns. Later misses return
// apperrors.ErrEmpty.
func (s *Service) Cached(ctx context.Context) (*Result, time.Time, error) {
	if r, at, ok := s.cache.Get(); ok {
		return r, at, nil
	}

	if s.bootstrapped.CompareAndSwap(false, true) {
		if s.bootstrap == BootstrapSync {
			r, err := s.run(ctx, TriggerBootstrap)
			if err == nil {
				return r, r.RetrievedAt, nil
			}
			if !errors.Is(err, apperrors.ErrAlreadyRunning) {
				return nil, time.Time{}, err
			}
		} else {
			s.bootstrapAsync()
		}
	}

	return nil, time.Time{}, apperrors.Empty()
}

func (s *Service) bootstrapAsync() {
	if s.gate.Running() {
		s.logger.Info("Cache empty, a run is already in progress")
		return
	}
	if s.scheduler != nil && s.scheduler.Kick() {
		s.logger.Info("Cache empty, requested an immediate scheduled run")
		return
	}

	s.logger.Info("Cache empty, starting a background run")
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		_, _ = s.run(s.ctx, TriggerBootstrap)
	}()
}

func (s *Service) scheduledTick(ctx context.Context, kicked bool) {
	trigger := TriggerScheduled
	if kicked {
		trigger = TriggerBootstrap
	}
	_, _ = s.run(ctx, trigger)
}

// Status returns a snapshot of the screening state. It never blocks.
func (s *Service) Status() Status {
	st := Status{
		IsRunning:       s.gate.Running(),
		SchedulerActive: s.scheduler != nil && s.scheduler.Active(),
	}
	if r, at, ok := s.cache.Get(); ok {
		st.LastResult = r
		st.LastUpdate = &at
	}
	if msg, at, ok := s.cache.LastError(); ok {
		st.LastError = msg
		st.LastErrorAt = &at
	}
	if info := s.lastRun.Load(); info != nil {
		at := info.at
		st.LastRunAt = &at
		st.LastDuration = info.duration
	}
	return st
}

// Ready checks that the runner backend can start the screener.
func (s *Service) Ready(ctx context.Context) error {
	return s.runner.Ready(ctx)
}

// Close stops the scheduler, terminates any screener that is still running,
// manual runs included, and waits for it to exit. Runs requested afterwards
// fail immediately.
func (s *Service) Close() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.runs.Wait()
	s.bg.Wait()
}

// enter registers a run with Close. It reports false once Close has begun.
func (s *Service) enter() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.runs.Add(1)
	return true
}

// run is the pipeline shared by every trigger: admit, execute, extract, fold.
func (s *Service) run(ctx context.Context, trigger Trigger) (*Result, error) {
	if !s.enter() {
		return nil, errClosed
	}
	defer s.runs.Done()

	if !s.gate.TryAdmit() {
		if s.metrics != nil {
			s.metrics.RecordRunRejected(ctx, string(trigger))
		}
		s.logger.Info("Run rejected, another run is in progress", "trigger", trigger)
		return nil, apperrors.AlreadyRunning()
	}
	defer s.gate.Release()

	// The run ends when the caller gives up or the service closes.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(s.ctx, cancel)()

	run := &Run{ID: uuid.NewString(), Trigger: trigger, StartedAt: time.Now()}
	logger := s.logger.With("runId", run.ID, "trigger", trigger)
	logger.Info("Screening run started")
	if s.metrics != nil {
		s.metrics.RecordRunStarted(ctx, string(trigger))
	}

	spec := s.spec
	spec.RunID = run.ID
	res, err := s.runner.Run(ctx, spec)
	if res != nil {
		run.StartedAt = res.StartedAt
		finished := res.FinishedAt
		run.FinishedAt = &finished
		if res.ExitCode >= 0 {
			code := res.ExitCode
			run.ExitCode = &code
		}
		run.Stdout = res.Stdout
		run.Stderr = res.Stderr
	}
	if run.FinishedAt == nil {
		now := time.Now()
		run.FinishedAt = &now
	}

	result, err := fold(run, err)
	duration := run.FinishedAt.Sub(run.StartedAt)
	s.lastRun.Store(&runInfo{at: run.StartedAt, duration: duration})

	// The caller may have gone away; the outcome is still recorded.
	recordCtx := context.WithoutCancel(ctx)
	if s.metrics != nil {
		s.metrics.RecordRunFinished(recordCtx, string(trigger), apperrors.Reason(err), duration.Seconds())
	}

	ev := Event{RunID: run.ID, Trigger: trigger, Duration: duration.Seconds(), At: *run.FinishedAt}
	if err != nil {
		s.cache.SetError(err.Error(), *run.FinishedAt)
		logger.Error("Screening run failed", "error", err, "reason", apperrors.Reason(err),
			"exitCode", run.ExitCode, "duration", duration)
		if run.Stderr != "" {
			logger.Debug("Screener stderr", "stderr", tail(run.Stderr, stderrTail))
		}

		ev.Type = EventRunFailed
		ev.Error = err.Error()
		ev.Reason = apperrors.Reason(err)
		s.notify(recordCtx, ev)
		return nil, err
	}

	s.cache.Set(recordCtx, result)
	logger.Info("Screening run completed", "conditionName", result.ConditionName,
		"count", result.Count, "duration", duration)

	ev.Type = EventResultUpdated
	ev.Result = result
	s.notify(recordCtx, ev)
	return result, nil
}

// fold turns a finished run into a Result or the error that explains why
// there is none. A non-zero exit is a failure even if the output parses,
// but a payload that reports its own failure is the more useful error.
func fold(run *Run, runErr error) (*Result, error) {
	if runErr != nil {
		return nil, runErr
	}

	result, err := Extract(run.Stdout, *run.FinishedAt)
	if run.ExitCode != nil && *run.ExitCode != 0 {
		if errors.Is(err, apperrors.ErrScreener) {
			return nil, err
		}
		return nil, apperrors.ExitStatus(*run.ExitCode, tail(run.Stderr, stderrTail))
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) notify(ctx context.Context, ev Event) {
	for _, n := range s.notifiers {
		n.Notify(ctx, ev)
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[len(s)-n:], "")
}
