// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package guarded

import "sync"

// rUnlocker is the one slice of RWLocker a ReadAccess needs to let go of its
// hold.
type rUnlocker interface {
	RUnlock()
}

// exclusive unlock; sync.Locker's Unlock half.
type unlocker interface {
	Unlock()
}

// ReadAccess is a handle granting shared (read-only) access to a value for
// as long as the handle is held. It owns one shared hold on the backing
// lock, released exactly once by Release, no matter how often Release is
// called or whether ownership was transferred away with Move first.
//
// The handle must not be used after Release. For resource types with
// reference semantics (maps, slices, pointers), mutating what Get returns
// defeats the read-only contract and is the caller's bug; the package cannot
// detect it.
type ReadAccess[T any] struct {
	lk  rUnlocker // nil once released or moved from, or for unsafe access
	res *T
}

// AcquireRead locks lk in shared mode, blocking until no exclusive holder
// remains, and returns a ReadAccess owning the hold.
func AcquireRead[T any, L RWLocker](lk L, res *T) *ReadAccess[T] {
	lk.RLock()
	return &ReadAccess[T]{lk: lk, res: res}
}

// AdoptRead returns a ReadAccess that takes ownership of a shared hold the
// caller has already acquired on lk. It does not lock.
func AdoptRead[T any, L RWLocker](lk L, res *T) *ReadAccess[T] {
	return &ReadAccess[T]{lk: lk, res: res}
}

// Get returns the protected value.
func (a *ReadAccess[T]) Get() T { return *a.res }

// Release gives up the shared hold. Only the first call has any effect;
// calling it again, or on a handle that was moved from or created by an
// unsafe accessor, does nothing.
func (a *ReadAccess[T]) Release() {
	if a.lk != nil {
		a.lk.RUnlock()
		a.lk = nil
	}
}

// Held reports whether a still owns a hold on the backing lock.
func (a *ReadAccess[T]) Held() bool { return a.lk != nil }

// Move transfers ownership of the hold (if any) to a new handle and leaves
// a inert: a's Release becomes a no-op, and only the returned handle
// releases the lock.
func (a *ReadAccess[T]) Move() *ReadAccess[T] {
	n := &ReadAccess[T]{lk: a.lk, res: a.res}
	a.lk = nil
	return n
}

// WriteAccess is a handle granting exclusive (read-write) access to a value
// for as long as the handle is held. Release semantics match ReadAccess:
// the exclusive hold is released exactly once.
type WriteAccess[T any] struct {
	lk  unlocker // nil once released or moved from, or for unsafe access
	res *T
}

// AcquireWrite locks lk in exclusive mode, blocking until no shared or
// exclusive holder remains, and returns a WriteAccess owning the hold.
func AcquireWrite[T any, L sync.Locker](lk L, res *T) *WriteAccess[T] {
	lk.Lock()
	return &WriteAccess[T]{lk: lk, res: res}
}

// AdoptWrite returns a WriteAccess that takes ownership of an exclusive
// hold the caller has already acquired on lk. It does not lock.
func AdoptWrite[T any, L sync.Locker](lk L, res *T) *WriteAccess[T] {
	return &WriteAccess[T]{lk: lk, res: res}
}

// Ptr returns a pointer to the protected value, valid until Release.
func (a *WriteAccess[T]) Ptr() *T { return a.res }

// Get returns the protected value.
func (a *WriteAccess[T]) Get() T { return *a.res }

// Set replaces the protected value.
func (a *WriteAccess[T]) Set(v T) { *a.res = v }

// Release gives up the exclusive hold. Only the first call has any effect;
// calling it again, or on a handle that was moved from or created by an
// unsafe accessor, does nothing.
func (a *WriteAccess[T]) Release() {
	if a.lk != nil {
		a.lk.Unlock()
		a.lk = nil
	}
}

// Held reports whether a still owns a hold on the backing lock.
func (a *WriteAccess[T]) Held() bool { return a.lk != nil }

// Move transfers ownership of the hold (if any) to a new handle and leaves
// a inert.
func (a *WriteAccess[T]) Move() *WriteAccess[T] {
	n := &WriteAccess[T]{lk: a.lk, res: a.res}
	a.lk = nil
	return n
}
