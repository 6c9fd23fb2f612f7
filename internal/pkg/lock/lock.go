// Package lock serializes work on a single trip.
//
// A trip's bankroll is a single-writer value: plan, commit and correction for
// the same trip must not interleave. Different trips never block each other.
package lock

import (
	"context"
	"sync"
	"time"
)

// tripMutex is a one-slot semaphore so that acquisition can be abandoned on
// timeout without leaving a goroutine behind.
type tripMutex struct {
	slot    chan struct{}
	waiters int
}

// TripLock provides per-trip mutual exclusion.
type TripLock struct {
	mu    sync.Mutex
	locks map[int64]*tripMutex
}

// NewTripLock creates a new TripLock instance.
func NewTripLock() *TripLock {
	return &TripLock{locks: make(map[int64]*tripMutex)}
}

// acquire registers interest in the trip's mutex and returns it.
func (tl *TripLock) acquire(tripID int64) *tripMutex {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	m, ok := tl.locks[tripID]
	if !ok {
		m = &tripMutex{slot: make(chan struct{}, 1)}
		tl.locks[tripID] = m
	}
	m.waiters++
	return m
}

// release drops interest; the entry is removed once nobody holds or waits for it.
func (tl *TripLock) release(tripID int64, m *tripMutex) {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	m.waiters--
	if m.waiters == 0 {
		delete(tl.locks, tripID)
	}
}

// Lock blocks until the trip's lock is held.
func (tl *TripLock) Lock(tripID int64) {
	m := tl.acquire(tripID)
	m.slot <- struct{}{}
}

// Unlock releases the trip's lock. Unlocking a trip that is not locked is a no-op.
func (tl *TripLock) Unlock(tripID int64) {
	tl.mu.Lock()
	m, ok := tl.locks[tripID]
	tl.mu.Unlock()
	if !ok {
		return
	}

	select {
	case <-m.slot:
		tl.release(tripID, m)
	default:
	}
}

// TryLock attempts to acquire the lock without blocking.
func (tl *TripLock) TryLock(tripID int64) bool {
	m := tl.acquire(tripID)
	select {
	case m.slot <- struct{}{}:
		return true
	default:
		tl.release(tripID, m)
		return false
	}
}

// LockContext waits for the lock until ctx is done or timeout elapses.
// A non-positive timeout waits on ctx alone.
func (tl *TripLock) LockContext(ctx context.Context, tripID int64, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	m := tl.acquire(tripID)
	select {
	case m.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		tl.release(tripID, m)
		if ctx.Err() == context.DeadlineExceeded {
			return ErrLockTimeout
		}
		return ctx.Err()
	}
}

// WithLock runs fn while holding the trip's lock.
func (tl *TripLock) WithLock(tripID int64, fn func() error) error {
	tl.Lock(tripID)
	defer tl.Unlock(tripID)
	return fn()
}

// WithLockContext runs fn while holding the trip's lock, giving up with
// ErrLockTimeout if it cannot be taken within timeout.
func (tl *TripLock) WithLockContext(ctx context.Context, tripID int64, timeout time.Duration, fn func() error) error {
	if err := tl.LockContext(ctx, tripID, timeout); err != nil {
		return err
	}
	defer tl.Unlock(tripID)
	return fn()
}

// IsLocked reports whether the trip's lock is currently held.
// The answer may be stale by the time the caller acts on it.
func (tl *TripLock) IsLocked(tripID int64) bool {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	m, ok := tl.locks[tripID]
	return ok && len(m.slot) == 1
}

// Len returns the number of trips with a holder or waiter.
func (tl *TripLock) Len() int {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return len(tl.locks)
}
