// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package semrw provides a reader/writer mutual exclusion lock built on a
// weighted semaphore, supporting non-blocking and deadline-bounded
// acquisition in both modes.
//
// It exists as the fully capable backing lock for guarded.Value: where
// *sync.RWMutex stops at TryLock/TryRLock, a semrw.Mutex additionally
// satisfies guarded.TimedLocker and guarded.TimedRWLocker.
package semrw

import (
	"context"
	"time"

	"github.com/tailscale/guarded"
	"golang.org/x/sync/semaphore"
)

// maxReaders caps concurrent shared holders. A writer acquires the whole
// weight, so one exclusive hold excludes everything else.
const maxReaders = 1 << 30

// Mutex is a reader/writer lock. It can be held by up to maxReaders readers
// or one writer at a time. Waiters, readers and writers alike, are served
// in FIFO order; that ordering comes from semaphore.Weighted, and in
// particular a blocked writer keeps later readers out until it has had its
// turn.
//
// The zero Mutex is not safe for use; use New. A Mutex must not be copied
// after first use.
type Mutex struct {
	sem *semaphore.Weighted
}

// New returns an unlocked Mutex.
func New() *Mutex {
	return &Mutex{sem: semaphore.NewWeighted(maxReaders)}
}

// Lock acquires m in exclusive mode, blocking until no shared or exclusive
// holder remains.
func (m *Mutex) Lock() { m.acquire(maxReaders) }

// Unlock releases an exclusive hold. It is a run-time error (a semaphore
// release panic) if m is not locked for writing.
func (m *Mutex) Unlock() { m.sem.Release(maxReaders) }

// RLock acquires m in shared mode, blocking while an exclusive holder or an
// earlier-queued writer exists.
func (m *Mutex) RLock() { m.acquire(1) }

// RUnlock releases one shared hold.
func (m *Mutex) RUnlock() { m.sem.Release(1) }

// TryLock attempts to acquire m in exclusive mode without blocking and
// reports whether it succeeded.
func (m *Mutex) TryLock() bool { return m.sem.TryAcquire(maxReaders) }

// TryRLock attempts to acquire m in shared mode without blocking and
// reports whether it succeeded.
func (m *Mutex) TryRLock() bool { return m.sem.TryAcquire(1) }

// TryLockFor attempts to acquire m in exclusive mode, giving up after d,
// and reports whether it succeeded.
func (m *Mutex) TryLockFor(d time.Duration) bool { return m.acquireFor(maxReaders, d) }

// TryLockUntil attempts to acquire m in exclusive mode, giving up at
// deadline, and reports whether it succeeded. An already-expired deadline
// always fails.
func (m *Mutex) TryLockUntil(deadline time.Time) bool { return m.acquireUntil(maxReaders, deadline) }

// TryRLockFor attempts to acquire m in shared mode, giving up after d, and
// reports whether it succeeded.
func (m *Mutex) TryRLockFor(d time.Duration) bool { return m.acquireFor(1, d) }

// TryRLockUntil attempts to acquire m in shared mode, giving up at
// deadline, and reports whether it succeeded. An already-expired deadline
// always fails.
func (m *Mutex) TryRLockUntil(deadline time.Time) bool { return m.acquireUntil(1, deadline) }

func (m *Mutex) acquire(n int64) {
	// Acquire cannot fail with a non-cancelable context.
	if err := m.sem.Acquire(context.Background(), n); err != nil {
		panic("semrw: unreachable: " + err.Error())
	}
}

func (m *Mutex) acquireFor(n int64, d time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return m.sem.Acquire(ctx, n) == nil
}

func (m *Mutex) acquireUntil(n int64, deadline time.Time) bool {
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()
	return m.sem.Acquire(ctx, n) == nil
}

var (
	_ guarded.TimedLocker   = (*Mutex)(nil)
	_ guarded.TimedRWLocker = (*Mutex)(nil)
)
