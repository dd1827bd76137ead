// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package guarded makes an arbitrary value safe to share between
// goroutines by coupling it to a reader/writer lock it owns, and handing
// out access only through short-lived ReadAccess/WriteAccess handles that
// hold the lock for exactly their own lifetime.
//
// The protected value needs no synchronization awareness of its own. The
// backing lock is pluggable: anything satisfying RWLocker works, with
// *sync.RWMutex as the default and the semrw subpackage providing a
// deadline-capable alternative. Which operations a given backing lock
// supports is checked entirely at compile time via the constraint
// interfaces in this package.
//
// Acquiring a second access handle on the same Value from a goroutine that
// already holds one deadlocks, exactly as taking sync.RWMutex twice would;
// backing locks are assumed non-reentrant. The wrapper adds no fairness or
// FIFO promises beyond what the backing lock provides.
package guarded

import (
	"sync"
	"time"
)

// Value owns a resource of type T together with the reader/writer lock
// protecting it; the two live and die as one unit, and the resource is
// reachable only through the access handles Value creates.
//
// The zero Value is not safe for use; use New or NewWith.
//
// A Value must not be destroyed (or recycled) while any of its non-unsafe
// access handles is alive; nothing checks this at runtime.
type Value[T any, L RWLocker] struct {
	lk  L
	res T
}

// New returns a Value protecting initial, backed by a *sync.RWMutex.
func New[T any](initial T) *Value[T, *sync.RWMutex] {
	return NewWith(&sync.RWMutex{}, initial)
}

// NewWith returns a Value protecting initial, backed by lk. The Value takes
// sole ownership of lk; it must not be locked or unlocked by anyone else
// afterwards.
func NewWith[T any, L RWLocker](lk L, initial T) *Value[T, L] {
	return &Value[T, L]{lk: lk, res: initial}
}

// ReadAccess acquires the lock in shared mode, blocking while an exclusive
// holder exists, and returns a read-only handle to the resource. Any number
// of goroutines may hold read access concurrently.
func (v *Value[T, L]) ReadAccess() *ReadAccess[T] {
	return AcquireRead(v.lk, &v.res)
}

// WriteAccess acquires the lock in exclusive mode, blocking until no shared
// or exclusive holder remains, and returns a mutable handle to the
// resource.
func (v *Value[T, L]) WriteAccess() *WriteAccess[T] {
	return AcquireWrite(v.lk, &v.res)
}

// UnsafeReadAccess returns a read handle to the resource with no locking at
// all. It never blocks and leaves the lock state untouched. It is only
// sound when the caller independently guarantees no concurrent access is
// possible, such as single-threaded setup before the Value is shared.
func (v *Value[T, L]) UnsafeReadAccess() *ReadAccess[T] {
	return &ReadAccess[T]{res: &v.res}
}

// UnsafeWriteAccess returns a mutable handle to the resource with no
// locking at all. See UnsafeReadAccess for when this is sound.
func (v *Value[T, L]) UnsafeWriteAccess() *WriteAccess[T] {
	return &WriteAccess[T]{res: &v.res}
}

// The bounded acquisition operations below are package functions rather
// than methods because a method cannot narrow its receiver's type parameter
// constraint: the compile-time capability gate has to live on the
// function's own type parameter. Calling any of them on a Value whose lock
// lacks the capability does not compile.
//
// They all report failure as (nil, false); a busy lock is an expected
// outcome, not an error.

// TryReadAccess attempts to acquire read access without blocking.
func TryReadAccess[T any, L TryRWLocker](v *Value[T, L]) (*ReadAccess[T], bool) {
	if !v.lk.TryRLock() {
		return nil, false
	}
	return AdoptRead(v.lk, &v.res), true
}

// TryWriteAccess attempts to acquire write access without blocking.
func TryWriteAccess[T any, L interface {
	RWLocker
	TryLocker
}](v *Value[T, L]) (*WriteAccess[T], bool) {
	if !v.lk.TryLock() {
		return nil, false
	}
	return AdoptWrite(v.lk, &v.res), true
}

// ReadAccessFor attempts to acquire read access, giving up after d.
func ReadAccessFor[T any, L TimedRWLocker](v *Value[T, L], d time.Duration) (*ReadAccess[T], bool) {
	if !v.lk.TryRLockFor(d) {
		return nil, false
	}
	return AdoptRead(v.lk, &v.res), true
}

// ReadAccessUntil attempts to acquire read access, giving up at deadline.
func ReadAccessUntil[T any, L TimedRWLocker](v *Value[T, L], deadline time.Time) (*ReadAccess[T], bool) {
	if !v.lk.TryRLockUntil(deadline) {
		return nil, false
	}
	return AdoptRead(v.lk, &v.res), true
}

// WriteAccessFor attempts to acquire write access, giving up after d.
func WriteAccessFor[T any, L interface {
	RWLocker
	TimedLocker
}](v *Value[T, L], d time.Duration) (*WriteAccess[T], bool) {
	if !v.lk.TryLockFor(d) {
		return nil, false
	}
	return AdoptWrite(v.lk, &v.res), true
}

// WriteAccessUntil attempts to acquire write access, giving up at deadline.
func WriteAccessUntil[T any, L interface {
	RWLocker
	TimedLocker
}](v *Value[T, L], deadline time.Time) (*WriteAccess[T], bool) {
	if !v.lk.TryLockUntil(deadline) {
		return nil, false
	}
	return AdoptWrite(v.lk, &v.res), true
}
