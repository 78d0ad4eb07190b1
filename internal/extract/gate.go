package extract

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Gate bounds concurrent model calls process-wide. It is created once and
// passed into every extractor that talks to the model provider, so parallel
// runs within one process share a single ceiling.
type Gate struct {
	sem *semaphore.Weighted
}

// NewGate creates a gate admitting at most n concurrent holders.
func NewGate(n int) *Gate {
	if n < 1 {
		n = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(n))}
}

// Acquire blocks until a slot is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

// Release frees a slot taken by Acquire.
func (g *Gate) Release() {
	g.sem.Release(1)
}
