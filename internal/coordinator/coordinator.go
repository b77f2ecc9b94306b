// Package coordinator bounds how many backend calls are in flight across a
// whole batch.
package coordinator

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/jackzampolin/longform/internal/providers"
)

// DefaultCapacity is the permit count used when none is configured.
const DefaultCapacity = 100

// Coordinator is a counting permit pool shared by every document and unit
// in a run. One permit covers one backend call.
type Coordinator struct {
	capacity int64
	sem      *semaphore.Weighted

	inFlight atomic.Int64
	peak     atomic.Int64
	total    atomic.Int64
}

// Stats is a snapshot of permit usage.
type Stats struct {
	Capacity int64 `json:"capacity"`
	InFlight int64 `json:"in_flight"`
	Peak     int64 `json:"peak"`
	Total    int64 `json:"total"`
}

// New creates a coordinator with capacity permits. Values below 1 use
// DefaultCapacity.
func New(capacity int) *Coordinator {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Coordinator{
		capacity: int64(capacity),
		sem:      semaphore.NewWeighted(int64(capacity)),
	}
}

// Acquire blocks for a permit. The returned release is idempotent.
func (c *Coordinator) Acquire(ctx context.Context) (func(), error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	n := c.inFlight.Add(1)
	c.total.Add(1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			c.inFlight.Add(-1)
			c.sem.Release(1)
		})
	}, nil
}

// Stats returns current usage.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Capacity: c.capacity,
		InFlight: c.inFlight.Load(),
		Peak:     c.peak.Load(),
		Total:    c.total.Load(),
	}
}

// Guard wraps next so that every Complete call holds exactly one permit
// for its duration. A call that cannot get a permit because ctx is done
// returns "".
func Guard(c *Coordinator, next providers.Completer) providers.Completer {
	return providers.CompleterFunc(func(ctx context.Context, model, prompt string) string {
		release, err := c.Acquire(ctx)
		if err != nil {
			return ""
		}
		defer release()
		return next.Complete(ctx, model, prompt)
	})
}
