package screening

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DotoriPicnic/condition-pick/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_FirstTickImmediate(t *testing.T) {
	t.Parallel()
	var ticks atomic.Int32
	s := NewScheduler(time.Hour, func(ctx context.Context, kicked bool) {
		ticks.Add(1)
	})
	defer s.Stop()

	require.True(t, s.Start())
	testutil.MustWaitFor(t, func() bool { return ticks.Load() == 1 },
		testutil.WithTimeout(2*time.Second), testutil.WithInterval(5*time.Millisecond))
	assert.True(t, s.Active())
}

func TestScheduler_StartIsIdempotent(t *testing.T) {
	t.Parallel()
	var ticks atomic.Int32
	s := NewScheduler(time.Hour, func(ctx context.Context, kicked bool) {
		ticks.Add(1)
	})
	defer s.Stop()

	assert.True(t, s.Start())
	assert.False(t, s.Start())
	assert.False(t, s.Start())

	testutil.MustWaitFor(t, func() bool { return ticks.Load() >= 1 }, testutil.WithTimeout(2*time.Second))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), ticks.Load(), "a second Start must not create a second loop")
}

func TestScheduler_TicksOnInterval(t *testing.T) {
	t.Parallel()
	var ticks atomic.Int32
	s := NewScheduler(20*time.Millisecond, func(ctx context.Context, kicked bool) {
		ticks.Add(1)
	})
	defer s.Stop()

	s.Start()
	testutil.MustWaitFor(t, func() bool { return ticks.Load() >= 3 },
		testutil.WithTimeout(2*time.Second), testutil.WithInterval(5*time.Millisecond))
}

func TestScheduler_Kick(t *testing.T) {
	t.Parallel()
	var kicked atomic.Int32
	s := NewScheduler(time.Hour, func(ctx context.Context, k bool) {
		if k {
			kicked.Add(1)
		}
	})
	defer s.Stop()

	assert.False(t, s.Kick(), "kick before start must report inactive")

	s.Start()
	assert.True(t, s.Kick())
	testutil.MustWaitFor(t, func() bool { return kicked.Load() == 1 },
		testutil.WithTimeout(2*time.Second), testutil.WithInterval(5*time.Millisecond))
}

func TestScheduler_KicksCoalesce(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	var kicked atomic.Int32
	s := NewScheduler(time.Hour, func(ctx context.Context, k bool) {
		if k {
			kicked.Add(1)
			return
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
	})
	defer s.Stop()

	s.Start()
	// The first tick is blocked; these kicks collapse into one.
	for range 5 {
		s.Kick()
	}
	close(release)

	testutil.MustWaitFor(t, func() bool { return kicked.Load() >= 1 }, testutil.WithTimeout(2*time.Second))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), kicked.Load())
}

func TestScheduler_StopCancelsAndWaits(t *testing.T) {
	t.Parallel()
	var finished atomic.Bool
	started := make(chan struct{})
	s := NewScheduler(time.Hour, func(ctx context.Context, kicked bool) {
		close(started)
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
	})

	s.Start()
	<-started
	s.Stop()

	assert.True(t, finished.Load(), "Stop must wait for the in-flight tick")
	assert.False(t, s.Active())
	assert.False(t, s.Start(), "a stopped scheduler cannot restart")
	assert.False(t, s.Kick())
	s.Stop()
}

func TestScheduler_DisabledInterval(t *testing.T) {
	t.Parallel()
	s := NewScheduler(0, func(ctx context.Context, kicked bool) {
		t.Error("tick must not run")
	})

	assert.False(t, s.Start())
	assert.False(t, s.Active())
	s.Stop()
}
