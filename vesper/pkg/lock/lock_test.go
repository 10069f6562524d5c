package lock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithLockSerializesSameKey(t *testing.T) {
	l := New()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.WithLock("k", func() error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
}

func TestTryLock(t *testing.T) {
	l := New()

	require.True(t, l.TryLock("k"))
	assert.False(t, l.TryLock("k"))
	// Other keys are independent.
	assert.True(t, l.TryLock("other"))

	l.Unlock("k")
	assert.True(t, l.TryLock("k"))
}

func TestWithLock2SameKey(t *testing.T) {
	l := New()

	called := false
	err := l.WithLock2("k", "k", func() error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)

	// The single lock was released.
	assert.True(t, l.TryLock("k"))
}

func TestWithLock2OppositeOrdersDoNotDeadlock(t *testing.T) {
	l := New()

	var wg sync.WaitGroup
	total := 0
	var mu sync.Mutex
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = l.WithLock2("a", "b", func() error {
				mu.Lock()
				total++
				mu.Unlock()
				return nil
			})
		}()
		go func() {
			defer wg.Done()
			_ = l.WithLock2("b", "a", func() error {
				mu.Lock()
				total++
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, total)
}
