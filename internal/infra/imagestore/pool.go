package imagestore

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many ingests decode and encode at the same time. Requests beyond the
// limit wait for a slot or give up when their context ends.
type Pool struct {
	sem *semaphore.Weighted
}

func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(workers))}
}

func (p *Pool) Do(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}
