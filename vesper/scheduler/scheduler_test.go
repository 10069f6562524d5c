package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnceFires(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Shutdown()

	fired := make(chan struct{})
	s.Once("id1", 10*time.Millisecond, func(context.Context) {
		close(fired)
	})
	assert.True(t, s.Armed("id1"))

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("one-shot never fired")
	}
	// Firing disarms the id.
	assert.Eventually(t, func() bool { return !s.Armed("id1") }, time.Second, 5*time.Millisecond)
}

func TestCancelPreventsFiring(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Shutdown()

	var fired atomic.Bool
	s.Once("id1", 20*time.Millisecond, func(context.Context) {
		fired.Store(true)
	})
	s.Cancel("id1")
	assert.False(t, s.Armed("id1"))

	time.Sleep(50 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestCancelUnknownIDIsNoop(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Shutdown()

	s.Cancel("never-armed")
}

func TestOnceReplacesArmedTimer(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Shutdown()

	var first, second atomic.Bool
	s.Once("id1", 20*time.Millisecond, func(context.Context) { first.Store(true) })
	s.Once("id1", 40*time.Millisecond, func(context.Context) { second.Store(true) })

	time.Sleep(80 * time.Millisecond)
	assert.False(t, first.Load())
	assert.True(t, second.Load())
}

func TestOnceRearmAtFireBoundaryKeepsNewTimer(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Shutdown()

	// Re-arm right as the old timer expires: a stale fire that lost the
	// race must not consume the new registration or run its task.
	var hourFired atomic.Int64
	for i := 0; i < 5000; i++ {
		s.Once("id1", 50*time.Microsecond, func(context.Context) {})
		time.Sleep(50 * time.Microsecond)
		s.Once("id1", time.Hour, func(context.Context) { hourFired.Add(1) })

		if !s.Armed("id1") {
			t.Fatalf("iteration %d: re-armed registration consumed by stale fire", i)
		}
		s.Cancel("id1")
	}

	// Give any stale goroutines time to (incorrectly) run.
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, hourFired.Load())
}

func TestEveryRunsRepeatedly(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Shutdown()

	var runs atomic.Int64
	require.NoError(t, s.Every(20*time.Millisecond, "tick", func(context.Context) {
		runs.Add(1)
	}))
	s.Start()

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestShutdownDropsOneShots(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	var fired atomic.Bool
	s.Once("id1", 20*time.Millisecond, func(context.Context) { fired.Store(true) })
	s.Shutdown()

	time.Sleep(50 * time.Millisecond)
	assert.False(t, fired.Load())
}
