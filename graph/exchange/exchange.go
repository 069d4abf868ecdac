// Package exchange implements the wait-free single-slot handoff by which
// the topology thread publishes compiled render sequences to the audio
// thread (spec.md §4.6) without the audio thread ever blocking or
// allocating.
package exchange

import "sync"

// Exchange holds two owning slots, pending and live, plus a fresh flag.
// A try-lock protects all three fields. The zero value is ready to use
// with both slots nil.
type Exchange[T any] struct {
	mu      sync.Mutex
	pending *T
	live    *T
	fresh   bool
}

// New returns an Exchange with no live value yet.
func New[T any]() *Exchange[T] {
	return &Exchange[T]{}
}

// Publish installs v as the pending value and marks it fresh. Runs on the
// topology thread. May silently drop a previously-pending, never-acquired
// value — that is the intended churn-coalescing policy.
func (e *Exchange[T]) Publish(v *T) {
	e.mu.Lock()
	e.pending = v
	e.fresh = true
	e.mu.Unlock()
}

// Acquire attempts a non-blocking lock and, if the pending slot is fresh,
// swaps pending and live (a pointer swap, no destruction) and returns the
// new live value. On lock contention, or when nothing new has been
// published, it returns whatever live currently holds without blocking —
// possibly nil. Safe to call from the audio thread: it never allocates
// and never blocks longer than the try-lock.
func (e *Exchange[T]) Acquire() *T {
	if !e.mu.TryLock() {
		return e.live
	}
	if e.fresh {
		e.pending, e.live = e.live, e.pending
		e.fresh = false
	}
	live := e.live
	e.mu.Unlock()
	return live
}

// Janitor runs under the lock and, if the pending slot was not left fresh
// (meaning the last published value was already swapped into live, so
// pending holds the previously-live value or nil), clears it so the caller
// can release whatever it held. A value that Publish overwrites before it
// is ever acquired never reaches the janitor. Call this at low frequency from the topology
// thread; it is where previously-live sequences are finally freed, off
// the audio thread.
//
// The returned value is whatever pending held before being cleared, so
// the caller can dispose of it after unlocking; nil means there was
// nothing to collect this tick.
func (e *Exchange[T]) Janitor() *T {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fresh {
		return nil
	}
	stale := e.pending
	e.pending = nil
	return stale
}
