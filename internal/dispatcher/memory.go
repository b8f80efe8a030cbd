package dispatcher

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DotoriPicnic/condition-pick/pkg/backoff"
	"github.com/DotoriPicnic/condition-pick/pkg/circuitbreaker"
	"github.com/DotoriPicnic/condition-pick/pkg/cloudevent"
)

// MemoryDispatcher queues deliveries in a bounded channel served by a worker
// pool. When the buffer is full, deliveries are dropped (logged and counted).
type MemoryDispatcher struct {
	queue    chan *Delivery
	sender   *cloudevent.Sender
	breakers *circuitbreaker.Registry
	config   MemoryConfig
	logger   *slog.Logger
	metrics  MetricsRecorder

	queued       atomic.Int64
	delivered    atomic.Int64
	failed       atomic.Int64
	dropped      atomic.Int64
	requeued     atomic.Int64
	retriesTotal atomic.Int64

	wg       sync.WaitGroup
	shutdown chan struct{}
	closed   atomic.Bool
}

// MetricsRecorder is an optional interface for recording dispatcher metrics.
type MetricsRecorder interface {
	RecordDispatcherDelivered(ctx context.Context, durationSeconds float64)
	RecordDispatcherFailed(ctx context.Context)
	RecordDispatcherDropped(ctx context.Context)
	RecordDispatcherRequeued(ctx context.Context)
	RecordDispatcherQueueSize(ctx context.Context, size int64)
}

// NewMemory creates and starts an in-memory dispatcher.
func NewMemory(cfg MemoryConfig, metrics MetricsRecorder) *MemoryDispatcher {
	cfg = cfg.withDefaults()

	logger := slog.With("component", "dispatcher")
	d := &MemoryDispatcher{
		queue:  make(chan *Delivery, cfg.BufferSize),
		sender: cloudevent.NewSender(cfg.HTTPTimeout),
		breakers: circuitbreaker.NewRegistry(circuitbreaker.Config{
			Threshold: cfg.BreakerThreshold,
			Cooldown:  cfg.BreakerCooldown,
			OnStateChange: func(host string, from, to circuitbreaker.State) {
				logger.Info("Circuit breaker state changed", "destination", host, "from", from, "to", to)
			},
		}),
		config:   cfg,
		logger:   logger,
		metrics:  metrics,
		shutdown: make(chan struct{}),
	}

	d.wg.Add(cfg.Workers)
	for range cfg.Workers {
		go d.worker()
	}

	if metrics != nil {
		go d.reportQueueSize()
	}

	d.logger.Info("Dispatcher started", "workers", cfg.Workers, "buffer", cfg.BufferSize)
	return d
}

func (d *MemoryDispatcher) reportQueueSize() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-d.shutdown:
			return
		case <-ticker.C:
			d.metrics.RecordDispatcherQueueSize(context.Background(), int64(len(d.queue)))
		}
	}
}

// Dispatch queues a delivery.
func (d *MemoryDispatcher) Dispatch(delivery *Delivery) error {
	if d.closed.Load() {
		return ErrClosed
	}

	select {
	case d.queue <- delivery:
		d.queued.Add(1)
		return nil
	default:
		d.drop(delivery, "buffer full")
		return ErrBufferFull
	}
}

// Stats returns current dispatcher statistics.
func (d *MemoryDispatcher) Stats() Stats {
	return Stats{
		QueueDepth:   len(d.queue),
		Queued:       d.queued.Load(),
		Delivered:    d.delivered.Load(),
		Failed:       d.failed.Load(),
		Dropped:      d.dropped.Load(),
		Requeued:     d.requeued.Load(),
		RetriesTotal: d.retriesTotal.Load(),
		BreakersOpen: d.breakers.Stats().Open,
	}
}

// Unavailable returns the destination hosts whose circuit is not closed.
func (d *MemoryDispatcher) Unavailable() []string {
	return d.breakers.Unavailable()
}

// Close stops the workers after they drain the queue.
func (d *MemoryDispatcher) Close(ctx context.Context) error {
	if d.closed.Swap(true) {
		return nil
	}

	d.logger.Info("Dispatcher shutting down", "queued", len(d.queue))
	close(d.shutdown)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("Dispatcher shutdown complete",
			"delivered", d.delivered.Load(),
			"failed", d.failed.Load(),
			"dropped", d.dropped.Load(),
		)
		return nil
	case <-ctx.Done():
		d.logger.Warn("Dispatcher shutdown timed out", "remaining", len(d.queue))
		return ctx.Err()
	}
}

func (d *MemoryDispatcher) worker() {
	defer d.wg.Done()

	for {
		select {
		case <-d.shutdown:
			d.drainQueue()
			return
		case delivery := <-d.queue:
			d.deliver(delivery)
		}
	}
}

func (d *MemoryDispatcher) drainQueue() {
	for {
		select {
		case delivery := <-d.queue:
			d.deliver(delivery)
		default:
			return
		}
	}
}

// deliver sends one delivery with retry, guarded by the destination's breaker.
func (d *MemoryDispatcher) deliver(delivery *Delivery) {
	host := extractHost(delivery.Destination)
	breaker := d.breakers.Get(host)

	if !breaker.Allow() {
		d.requeue(delivery, host)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.deliveryBudget())
	defer cancel()

	start := time.Now()
	if err := d.sendWithRetry(ctx, delivery); err != nil {
		breaker.RecordFailure()
		d.failed.Add(1)
		if d.metrics != nil {
			d.metrics.RecordDispatcherFailed(ctx)
		}
		d.logger.Warn("Delivery failed",
			"destination", host,
			"type", delivery.Payload.Type,
			"runId", delivery.Payload.Subject,
			"error", err,
		)
		return
	}

	breaker.RecordSuccess()
	d.delivered.Add(1)
	if d.metrics != nil {
		d.metrics.RecordDispatcherDelivered(ctx, time.Since(start).Seconds())
	}
	d.logger.Debug("Delivered", "destination", host, "type", delivery.Payload.Type, "runId", delivery.Payload.Subject)
}

// deliveryBudget bounds one delivery including all retries and backoff waits.
func (d *MemoryDispatcher) deliveryBudget() time.Duration {
	budget := time.Duration(d.config.MaxRetries+1) * d.config.HTTPTimeout
	for attempt := 1; attempt <= d.config.MaxRetries; attempt++ {
		budget += backoff.Exponential(attempt, &d.config.Backoff)
	}
	return budget
}

// requeue puts a delivery back after the breaker cooldown.
func (d *MemoryDispatcher) requeue(delivery *Delivery, host string) {
	if delivery.Requeues >= d.config.MaxRequeues {
		d.drop(delivery, "max requeues reached")
		return
	}

	delivery.Requeues++
	d.requeued.Add(1)
	if d.metrics != nil {
		d.metrics.RecordDispatcherRequeued(context.Background())
	}

	go func() {
		timer := time.NewTimer(d.config.BreakerCooldown)
		defer timer.Stop()

		select {
		case <-d.shutdown:
			return
		case <-timer.C:
		}

		select {
		case d.queue <- delivery:
			d.logger.Debug("Delivery requeued", "destination", host, "requeues", delivery.Requeues)
		case <-d.shutdown:
		default:
			d.drop(delivery, "buffer full on requeue")
		}
	}()
}

func (d *MemoryDispatcher) drop(delivery *Delivery, reason string) {
	d.dropped.Add(1)
	if d.metrics != nil {
		d.metrics.RecordDispatcherDropped(context.Background())
	}
	d.logger.Warn("Delivery dropped",
		"reason", reason,
		"destination", extractHost(delivery.Destination),
		"type", delivery.Payload.Type,
		"requeues", delivery.Requeues,
	)
}

func (d *MemoryDispatcher) sendWithRetry(ctx context.Context, delivery *Delivery) error {
	opts := cloudevent.SendOptions{Signature: delivery.Signature}

	var lastErr error
	for attempt := range d.config.MaxRetries + 1 {
		if attempt > 0 {
			d.retriesTotal.Add(1)
			if err := backoff.Wait(ctx, backoff.Jittered(attempt, &d.config.Backoff)); err != nil {
				return err
			}
		}

		lastErr = d.sender.Send(ctx, delivery.Destination, delivery.Payload, opts)
		if lastErr == nil {
			return nil
		}
		if cloudevent.IsClientError(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// extractHost extracts the host from a URL for circuit breaker keying.
func extractHost(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Host
}

var _ Dispatcher = (*MemoryDispatcher)(nil)
