// Package gate provides a counting admission gate that bounds how many
// operations run at once.
//
// Waiters are admitted in FIFO order. Acquire observes the context, so a
// cancelled caller leaves the queue without taking a slot.
package gate

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate admits at most Cap() holders at any instant.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int
	inFlight atomic.Int64
}

// New returns a gate with the given number of slots. n < 1 is treated as 1.
func New(n int) *Gate {
	if n < 1 {
		n = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(n)), capacity: n}
}

// Acquire blocks until a slot is free or ctx is done. On success the returned
// release func must be called exactly once; extra calls are ignored.
func (g *Gate) Acquire(ctx context.Context) (release func(), err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	g.inFlight.Add(1)

	var once atomic.Bool
	return func() {
		if !once.CompareAndSwap(false, true) {
			return
		}
		g.inFlight.Add(-1)
		g.sem.Release(1)
	}, nil
}

// InFlight reports the number of currently held slots.
func (g *Gate) InFlight() int { return int(g.inFlight.Load()) }

func (g *Gate) Cap() int { return g.capacity }
