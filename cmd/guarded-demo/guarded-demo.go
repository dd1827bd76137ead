// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// The guarded-demo command exercises the guarded package with a herd of
// producer and consumer goroutines sharing one map, each operation going
// through a short-lived access handle.
package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/creachadair/taskgroup"
	"github.com/tailscale/guarded"
	"github.com/tailscale/guarded/semrw"
	"go.uber.org/zap"
)

var (
	producers = flag.Int("producers", 2, "number of producer goroutines")
	consumers = flag.Int("consumers", 2, "number of consumer goroutines")
	interval  = flag.Duration("interval", 250*time.Millisecond, "delay between each worker's operations")
	runFor    = flag.Duration("run", 5*time.Second, "how long to run before shutting down")
)

// table is the shared resource: a plain map, safe to share only through its
// guarded wrapper. The semrw backend is used so producers can bound their
// waits.
type table = guarded.Value[map[string]string, *semrw.Mutex]

func main() {
	flag.Parse()
	log := zap.Must(zap.NewDevelopment()).Sugar()
	defer log.Sync()

	shared := guarded.NewWith(semrw.New(), map[string]string{})

	ctx, cancel := context.WithTimeout(context.Background(), *runFor)
	defer cancel()

	// Key allocator shared by the producer herd, injected rather than a
	// package global so independent herds can't collide.
	var seq atomic.Uint64

	var g taskgroup.Group
	for i := 0; i < *producers; i++ {
		log := log.Named(fmt.Sprintf("producer%d", i))
		g.Go(func() error { return produce(ctx, log, shared, &seq) })
	}
	for i := 0; i < *consumers; i++ {
		log := log.Named(fmt.Sprintf("consumer%d", i))
		g.Go(func() error { return consume(ctx, log, shared) })
	}
	g.Wait()

	ra := shared.ReadAccess()
	log.Infow("done", "entries", len(ra.Get()))
	ra.Release()
}

// produce inserts one uniquely keyed entry per tick. It uses a bounded
// write acquisition and simply skips the tick when the map is too
// contended.
func produce(ctx context.Context, log *zap.SugaredLogger, shared *table, seq *atomic.Uint64) error {
	for {
		if wa, ok := guarded.WriteAccessFor(shared, *interval); ok {
			key := strconv.FormatUint(seq.Add(1), 10)
			wa.Get()[key] = "foo"
			wa.Release()
			log.Debugw("inserted", "key", key)
		} else {
			log.Debugw("write contended, skipping tick")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(*interval):
		}
	}
}

// consume logs a snapshot of the map under read access, then trims its
// oldest-sorting entry under write access.
func consume(ctx context.Context, log *zap.SugaredLogger, shared *table) error {
	for {
		ra := shared.ReadAccess()
		for k, v := range ra.Get() {
			log.Debugw("entry", "key", k, "value", v)
		}
		n := len(ra.Get())
		ra.Release()
		log.Infow("snapshot", "entries", n)

		wa := shared.WriteAccess()
		m := wa.Get()
		for k := range m {
			delete(m, k)
			break
		}
		wa.Release()

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(*interval):
		}
	}
}
