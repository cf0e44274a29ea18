package session

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// DefaultPoolSize is the number of provider calls a [Pool] admits at once
// when no size is given.
const DefaultPoolSize = 8

// Pool bounds the provider work in flight across every live session. A
// pipeline job holds one slot from recognition through synthesis, and each
// interim recognition holds one for the duration of the call, so a burst of
// sessions queues at the pool instead of stampeding the backends.
//
// One Pool is shared by all sessions; all methods are safe for concurrent
// use.
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

// NewPool returns a pool admitting size concurrent calls. A non-positive
// size selects [DefaultPoolSize].
func NewPool(size int) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Acquire blocks until a slot is free or ctx ends.
func (p *Pool) Acquire(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("session: acquire worker slot: %w", err)
	}
	return nil
}

// Release returns a slot taken by [Pool.Acquire].
func (p *Pool) Release() {
	p.sem.Release(1)
}

// Size returns the pool's slot count.
func (p *Pool) Size() int {
	return p.size
}
