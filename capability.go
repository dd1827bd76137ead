// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package guarded

import (
	"sync"
	"time"
)

// The interfaces in this file describe the capability a lock type must
// provide to back the generic operations of this package. They are meant to
// be used as type parameter constraints: instantiating an operation with a
// lock type that lacks a required method fails at compile time, naming the
// missing method. There is no runtime capability probing anywhere in the
// package.
//
// Each interface is a strict superset of the one it embeds:
//
//	sync.Locker < TryLocker < TimedLocker          (exclusive mode)
//	sync.Locker < RWLocker < TryRWLocker < TimedRWLocker  (adds shared mode)
//
// Method names follow sync.RWMutex, so *sync.RWMutex is a TryRWLocker with
// no adapter in between.

// TryLocker is an exclusive lock whose acquisition can also be attempted
// without blocking.
type TryLocker interface {
	sync.Locker

	// TryLock attempts to acquire the lock without blocking and reports
	// whether it succeeded.
	TryLock() bool
}

// TimedLocker is a TryLocker whose acquisition can additionally be bounded
// by a duration or a deadline.
type TimedLocker interface {
	TryLocker

	// TryLockFor blocks for at most d while attempting to acquire the
	// lock and reports whether it succeeded.
	TryLockFor(d time.Duration) bool

	// TryLockUntil blocks until at most deadline while attempting to
	// acquire the lock and reports whether it succeeded.
	TryLockUntil(deadline time.Time) bool
}

// RWLocker is the minimum capability a lock needs to back a Value: blocking
// exclusive acquisition plus blocking shared acquisition. Lock and Unlock
// must not fail; RLock may be held by any number of callers concurrently,
// and excludes Lock holders (and vice versa).
type RWLocker interface {
	sync.Locker

	// RLock acquires the lock in shared mode, blocking while an
	// exclusive holder exists.
	RLock()

	// RUnlock releases one shared hold.
	RUnlock()
}

// TryRWLocker is an RWLocker whose shared acquisition can also be attempted
// without blocking.
type TryRWLocker interface {
	RWLocker

	// TryRLock attempts to acquire the lock in shared mode without
	// blocking and reports whether it succeeded.
	TryRLock() bool
}

// TimedRWLocker is a TryRWLocker whose shared acquisition can additionally
// be bounded by a duration or a deadline.
type TimedRWLocker interface {
	TryRWLocker

	// TryRLockFor blocks for at most d while attempting to acquire the
	// lock in shared mode and reports whether it succeeded.
	TryRLockFor(d time.Duration) bool

	// TryRLockUntil blocks until at most deadline while attempting to
	// acquire the lock in shared mode and reports whether it succeeded.
	TryRLockUntil(deadline time.Time) bool
}

var (
	_ TryLocker   = (*sync.Mutex)(nil)
	_ TryRWLocker = (*sync.RWMutex)(nil)
)
