package engine

import (
	"context"
	"sync"
)

// workerPool is a fixed-size goroutine pool with a bounded input queue.
// Results flow through side effects of the process function; the pool itself
// only guarantees bounded buffering and clean drain.
type workerPool[T, R any] struct {
	queue   chan T
	process func(ctx context.Context, t T) (R, error)
	wg      sync.WaitGroup
}

// newWorkerPool starts a pool with n goroutines and queue capacity cap.
func newWorkerPool[T, R any](ctx context.Context, n, cap int, fn func(context.Context, T) (R, error)) *workerPool[T, R] {
	p := &workerPool[T, R]{
		queue:   make(chan T, cap),
		process: fn,
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(ctx)
		}()
	}
	return p
}

func (p *workerPool[T, R]) run(ctx context.Context) {
	for {
		select {
		case t, ok := <-p.queue:
			if !ok {
				return
			}
			p.process(ctx, t)
		case <-ctx.Done():
			return
		}
	}
}

// Submit enqueues work without blocking; false means the queue is full.
func (p *workerPool[T, R]) Submit(t T) bool {
	select {
	case p.queue <- t:
		return true
	default:
		return false
	}
}

// Drain closes the queue and waits for all workers to finish.
func (p *workerPool[T, R]) Drain() {
	close(p.queue)
	p.wg.Wait()
}

func (p *workerPool[T, R]) QueueLen() int { return len(p.queue) }

func (p *workerPool[T, R]) QueueCap() int { return cap(p.queue) }
