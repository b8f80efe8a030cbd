package screening

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/DotoriPicnic/condition-pick/internal/observability"
)

// Store persists the last good Result across restarts.
type Store interface {
	Save(ctx context.Context, r *Result) error
	Load(ctx context.Context) (*Result, error)
}

type failure struct {
	message string
	at      time.Time
}

// Cache holds the last good Result and the last failure.
//
// Both are swapped atomically and never hold a lock, so readers always see
// either the previous or the new value. A failure never clears the Result.
// Stored Results are shared with readers and must not be modified.
type Cache struct {
	result  atomic.Pointer[Result]
	failure atomic.Pointer[failure]
	store   Store
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewCache creates a cache. store and metrics may be nil.
func NewCache(store Store, metrics *observability.Metrics) *Cache {
	return &Cache{
		store:   store,
		metrics: metrics,
		logger:  slog.With("component", "cache"),
	}
}

// Get returns the cached Result and the time it was retrieved.
func (c *Cache) Get() (*Result, time.Time, bool) {
	r := c.result.Load()
	if r == nil {
		return nil, time.Time{}, false
	}
	return r, r.RetrievedAt, true
}

// Set replaces the cached Result, clears the last failure, and persists the
// Result. Persistence errors are logged, never returned.
func (c *Cache) Set(ctx context.Context, r *Result) {
	c.result.Store(r)
	c.failure.Store(nil)

	if c.metrics != nil {
		c.metrics.RecordResultItems(ctx, r.Count)
	}

	if c.store == nil {
		return
	}
	if err := c.store.Save(ctx, r); err != nil {
		c.logger.Error("Failed to persist screening result", "error", err)
		if c.metrics != nil {
			c.metrics.RecordPersistFailure(ctx)
		}
	}
}

// SetError records a failed run. The cached Result is kept.
func (c *Cache) SetError(message string, at time.Time) {
	c.failure.Store(&failure{message: message, at: at})
}

// LastError returns the most recent failure since the last successful run.
func (c *Cache) LastError() (string, time.Time, bool) {
	f := c.failure.Load()
	if f == nil {
		return "", time.Time{}, false
	}
	return f.message, f.at, true
}

// Restore loads the persisted Result, if any, into the cache.
// It does nothing when a Result is already cached.
func (c *Cache) Restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	r, err := c.store.Load(ctx)
	if err != nil {
		return err
	}
	if r == nil {
		return nil
	}

	if r.Items == nil {
		r.Items = []Item{}
	}
	r.Count = len(r.Items)

	if c.result.CompareAndSwap(nil, r) {
		c.logger.Info("Restored screening result", "conditionName", r.ConditionName,
			"count", r.Count, "retrievedAt", r.RetrievedAt)
	}
	return nil
}
