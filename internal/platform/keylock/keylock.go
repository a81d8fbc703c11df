// Package keylock provides per-key mutual exclusion with a bounded wait, so
// operations on disjoint keys run fully in parallel while contended keys
// serialize.
package keylock

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrTimeout is returned when a lock cannot be acquired within the wait bound.
var ErrTimeout = errors.New("keylock: wait bound exceeded")

type entry struct {
	ch   chan struct{}
	refs int
}

type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*entry
	wait  time.Duration
}

func New(wait time.Duration) *KeyLock {
	return &KeyLock{
		locks: make(map[string]*entry),
		wait:  wait,
	}
}

func (l *KeyLock) get(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++

	return e
}

func (l *KeyLock) put(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.locks[key]
	if !ok {
		return
	}

	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// Acquire takes the lock for key, waiting at most the configured bound.
func (l *KeyLock) Acquire(ctx context.Context, key string) error {
	e := l.get(key)

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case e.ch <- struct{}{}:
		return nil
	case <-timer.C:
		l.put(key)
		return ErrTimeout
	case <-ctx.Done():
		l.put(key)
		return ctx.Err()
	}
}

// Release frees the lock for key. Must pair with a successful Acquire.
func (l *KeyLock) Release(key string) {
	l.mu.Lock()
	e, ok := l.locks[key]
	l.mu.Unlock()

	if !ok {
		return
	}

	<-e.ch
	l.put(key)
}

// AcquireAll takes every key in sorted order; overlapping ranges always
// contend in the same order, so they cannot deadlock. On failure every
// already-held key is released.
func (l *KeyLock) AcquireAll(ctx context.Context, keys []string) error {
	ordered := make([]string, len(keys))
	copy(ordered, keys)
	sort.Strings(ordered)

	for i, key := range ordered {
		if err := l.Acquire(ctx, key); err != nil {
			for j := i - 1; j >= 0; j-- {
				l.Release(ordered[j])
			}

			return err
		}
	}

	return nil
}

// ReleaseAll frees every key taken by AcquireAll.
func (l *KeyLock) ReleaseAll(keys []string) {
	for _, key := range keys {
		l.Release(key)
	}
}
