// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package guarded_test

import (
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/creachadair/taskgroup"
	"github.com/google/go-cmp/cmp"
	"github.com/tailscale/guarded"
	"github.com/tailscale/guarded/semrw"
)

func TestReadBlocksUntilWriteReleased(t *testing.T) {
	v := guarded.New(map[string]int{})
	wa := v.WriteAccess()

	got := make(chan map[string]int, 1)
	started := make(chan struct{})
	go func() {
		close(started)
		ra := v.ReadAccess()
		defer ra.Release()
		got <- maps.Clone(ra.Get())
	}()

	<-started
	// Give the reader a few moments to block on the lock.
	time.Sleep(10 * time.Millisecond)
	select {
	case <-got:
		t.Fatal("read access completed while write access was held")
	default:
	}

	wa.Get()["x"] = 1
	wa.Release()

	want := map[string]int{"x": 1}
	if diff := cmp.Diff(want, <-got); diff != "" {
		t.Errorf("resource mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteVisibleAfterRelease(t *testing.T) {
	v := guarded.New("a")

	wa := v.WriteAccess()
	wa.Set("b")
	wa.Release()

	ra := v.ReadAccess()
	defer ra.Release()
	if got := ra.Get(); got != "b" {
		t.Errorf("resource = %q, want %q", got, "b")
	}
}

func TestConcurrentReaders(t *testing.T) {
	const readers = 5
	v := guarded.New(map[string]int{"x": 1, "y": 2})

	var g taskgroup.Group
	var reading atomic.Int32
	allReading := make(chan struct{})
	release := make(chan struct{})
	for i := 0; i < readers; i++ {
		g.Go(func() error {
			ra := v.ReadAccess()
			defer ra.Release()
			if got := ra.Get()["x"]; got != 1 {
				return fmt.Errorf("read x = %d, want 1", got)
			}
			if reading.Add(1) == readers {
				close(allReading)
			}
			// Keep the shared hold until every reader has one,
			// proving readers don't block each other.
			<-release
			return nil
		})
	}

	select {
	case <-allReading:
	case <-time.After(5 * time.Second):
		t.Fatal("readers did not all hold read access simultaneously")
	}

	// A write issued now must block until the last reader releases.
	wrote := make(chan struct{})
	go func() {
		wa := v.WriteAccess()
		wa.Get()["z"] = 3
		wa.Release()
		close(wrote)
	}()
	time.Sleep(10 * time.Millisecond)
	select {
	case <-wrote:
		t.Fatal("write access completed while readers held the lock")
	default:
	}

	close(release)
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-wrote:
	case <-time.After(5 * time.Second):
		t.Fatal("write access still blocked after all readers released")
	}

	ra := v.ReadAccess()
	defer ra.Release()
	want := map[string]int{"x": 1, "y": 2, "z": 3}
	if diff := cmp.Diff(want, ra.Get()); diff != "" {
		t.Errorf("resource mismatch (-want +got):\n%s", diff)
	}
}

func TestTryAccess(t *testing.T) {
	v := guarded.New(0)

	wa := v.WriteAccess()
	if _, ok := guarded.TryReadAccess(v); ok {
		t.Error("TryReadAccess succeeded while write access was held")
	}
	if _, ok := guarded.TryWriteAccess(v); ok {
		t.Error("TryWriteAccess succeeded while write access was held")
	}
	wa.Release()

	ra, ok := guarded.TryReadAccess(v)
	if !ok {
		t.Fatal("TryReadAccess failed on an unlocked Value")
	}
	if _, ok := guarded.TryWriteAccess(v); ok {
		t.Error("TryWriteAccess succeeded while read access was held")
	}
	ra2, ok := guarded.TryReadAccess(v)
	if !ok {
		t.Error("TryReadAccess failed while only read access was held")
	} else {
		ra2.Release()
	}
	ra.Release()

	wa, ok = guarded.TryWriteAccess(v)
	if !ok {
		t.Fatal("TryWriteAccess failed on an unlocked Value")
	}
	wa.Set(7)
	wa.Release()

	ra = v.ReadAccess()
	defer ra.Release()
	if got := ra.Get(); got != 7 {
		t.Errorf("resource = %d, want 7", got)
	}
}

func TestTimedAccess(t *testing.T) {
	v := guarded.NewWith(semrw.New(), []string{"a"})

	ra := v.ReadAccess()
	if _, ok := guarded.WriteAccessFor(v, 20*time.Millisecond); ok {
		t.Fatal("bounded write access succeeded while a reader held the lock")
	}
	// Bounded reads are still compatible with a live reader.
	ra2, ok := guarded.ReadAccessFor(v, 20*time.Millisecond)
	if !ok {
		t.Fatal("bounded read access failed while only a reader held the lock")
	}
	ra2.Release()
	ra.Release()

	wa, ok := guarded.WriteAccessFor(v, time.Second)
	if !ok {
		t.Fatal("bounded write access failed on an unlocked Value")
	}
	wa.Set(append(wa.Get(), "b"))
	wa.Release()

	ra3, ok := guarded.ReadAccessUntil(v, time.Now().Add(time.Second))
	if !ok {
		t.Fatal("deadline read access failed on an unlocked Value")
	}
	defer ra3.Release()
	if diff := cmp.Diff([]string{"a", "b"}, ra3.Get()); diff != "" {
		t.Errorf("resource mismatch (-want +got):\n%s", diff)
	}
}

func TestUnsafeAccessBypassesLock(t *testing.T) {
	v := guarded.New(42)
	wa := v.WriteAccess() // exclusive hold for the whole test

	// Unsafe accessors must not block despite the exclusive holder...
	ura := v.UnsafeReadAccess()
	if got := ura.Get(); got != 42 {
		t.Errorf("unsafe read = %d, want 42", got)
	}
	if ura.Held() {
		t.Error("unsafe read access claims to hold the lock")
	}
	ura.Release()

	uwa := v.UnsafeWriteAccess()
	uwa.Set(43)
	uwa.Release()

	// ...and must not have touched the lock state.
	if _, ok := guarded.TryReadAccess(v); ok {
		t.Error("lock state changed by unsafe access")
	}
	if got := wa.Get(); got != 43 {
		t.Errorf("resource = %d, want 43", got)
	}
	wa.Release()
}

// countingRW counts lock transitions so tests can observe exactly how often
// the wrapper releases.
type countingRW struct {
	sync.RWMutex
	locks, unlocks, rlocks, runlocks atomic.Int32
}

func (c *countingRW) Lock()    { c.locks.Add(1); c.RWMutex.Lock() }
func (c *countingRW) Unlock()  { c.unlocks.Add(1); c.RWMutex.Unlock() }
func (c *countingRW) RLock()   { c.rlocks.Add(1); c.RWMutex.RLock() }
func (c *countingRW) RUnlock() { c.runlocks.Add(1); c.RWMutex.RUnlock() }

func TestReleaseExactlyOnce(t *testing.T) {
	lk := new(countingRW)
	v := guarded.NewWith(lk, "res")

	wa := v.WriteAccess()
	wa.Release()
	wa.Release() // redundant; must not double-unlock
	if got := lk.unlocks.Load(); got != 1 {
		t.Errorf("unlocks = %d, want 1", got)
	}

	ra := v.ReadAccess()
	moved := ra.Move()
	if ra.Held() {
		t.Error("moved-from access still claims the hold")
	}
	if !moved.Held() {
		t.Error("moved-to access does not claim the hold")
	}
	ra.Release() // inert; the hold belongs to moved now
	if got := lk.runlocks.Load(); got != 0 {
		t.Errorf("runlocks after moved-from release = %d, want 0", got)
	}
	moved.Release()
	moved.Release()
	if got := lk.runlocks.Load(); got != 1 {
		t.Errorf("runlocks = %d, want 1", got)
	}
}

func TestMoveTransfersWriteHold(t *testing.T) {
	v := guarded.New(map[string]int{})

	wa := v.WriteAccess()
	moved := wa.Move()
	wa.Release() // inert

	// The hold must still be in force, now owned by moved.
	if _, ok := guarded.TryReadAccess(v); ok {
		t.Fatal("lock released by moved-from access")
	}
	moved.Get()["x"] = 1
	moved.Release()

	ra, ok := guarded.TryReadAccess(v)
	if !ok {
		t.Fatal("lock still held after moved-to access released")
	}
	defer ra.Release()
	if got := ra.Get()["x"]; got != 1 {
		t.Errorf("read x = %d, want 1", got)
	}
}

func TestAcquireAndAdopt(t *testing.T) {
	var mu sync.RWMutex
	res := "x"

	ra := guarded.AcquireRead(&mu, &res)
	if mu.TryLock() {
		t.Fatal("exclusive lock available while AcquireRead hold is live")
	}
	if got := ra.Get(); got != "x" {
		t.Errorf("read = %q, want %q", got, "x")
	}
	ra.Release()

	// Adopt must take ownership of an existing hold without re-locking.
	mu.Lock()
	wa := guarded.AdoptWrite(&mu, &res)
	wa.Set("y")
	wa.Release()
	if !mu.TryLock() {
		t.Fatal("lock still held after adopted access released")
	}
	mu.Unlock()
	if res != "y" {
		t.Errorf("resource = %q, want %q", res, "y")
	}

	mu.RLock()
	ra = guarded.AdoptRead(&mu, &res)
	if mu.TryLock() {
		t.Fatal("exclusive lock available while adopted read hold is live")
	}
	ra.Release()
	if !mu.TryLock() {
		t.Fatal("lock still held after adopted read access released")
	}
	mu.Unlock()
}
