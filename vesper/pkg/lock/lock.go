// Package lock provides keyed mutexes for serializing multi-step
// read-modify-write sequences on the store: balance mutations keyed by
// (guild, user), counting and subscription posting keyed by channel.
package lock

import "sync"

type keyedMutex struct {
	mu sync.Mutex
}

// KeyedLock hands out one mutex per string key. Mutexes are created on
// first use and kept for the process lifetime; key cardinality is bounded
// by the number of active guild members and channels.
type KeyedLock struct {
	locks sync.Map // map[string]*keyedMutex
}

func New() *KeyedLock {
	return &KeyedLock{}
}

func (l *KeyedLock) get(key string) *keyedMutex {
	if v, ok := l.locks.Load(key); ok {
		return v.(*keyedMutex)
	}
	actual, _ := l.locks.LoadOrStore(key, &keyedMutex{})
	return actual.(*keyedMutex)
}

// Lock acquires the mutex for key, blocking until it is available.
func (l *KeyedLock) Lock(key string) {
	l.get(key).mu.Lock()
}

// Unlock releases the mutex for key.
func (l *KeyedLock) Unlock(key string) {
	if v, ok := l.locks.Load(key); ok {
		v.(*keyedMutex).mu.Unlock()
	}
}

// TryLock attempts to acquire the mutex for key without blocking.
func (l *KeyedLock) TryLock(key string) bool {
	return l.get(key).mu.TryLock()
}

// WithLock runs fn while holding the mutex for key.
func (l *KeyedLock) WithLock(key string, fn func() error) error {
	l.Lock(key)
	defer l.Unlock(key)
	return fn()
}

// WithLock2 runs fn while holding the mutexes for both keys. Keys are
// acquired in lexical order so two transfers touching the same pair of
// accounts cannot deadlock.
func (l *KeyedLock) WithLock2(a, b string, fn func() error) error {
	if a == b {
		return l.WithLock(a, fn)
	}
	first, second := a, b
	if b < a {
		first, second = b, a
	}
	l.Lock(first)
	defer l.Unlock(first)
	l.Lock(second)
	defer l.Unlock(second)
	return fn()
}
