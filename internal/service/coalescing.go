package service

import (
	"context"
	"sync"
	"time"
)

// call is one in-flight execution that several callers may wait on.
type call[T any] struct {
	done   chan struct{}
	result T
	err    error
}

// coalescer runs at most one fn per key at a time; concurrent callers for the
// same key share its result.
type coalescer[T any] struct {
	mu       sync.Mutex
	inFlight map[string]*call[T]
	timeout  time.Duration
}

func newCoalescer[T any](timeout time.Duration) *coalescer[T] {
	return &coalescer[T]{
		inFlight: make(map[string]*call[T]),
		timeout:  timeout,
	}
}

// Do executes fn for key unless an execution is already running, in which case
// it waits for that one. shared reports whether the result came from another
// caller's execution. fn receives a context that outlives any single caller's
// cancellation and is bounded by the coalescer timeout; a caller whose own ctx
// ends stops waiting with ctx.Err() while the execution continues for the rest.
func (c *coalescer[T]) Do(ctx context.Context, key string, fn func(ctx context.Context) (T, error)) (result T, shared bool, err error) {
	c.mu.Lock()
	if existing, ok := c.inFlight[key]; ok {
		c.mu.Unlock()
		return c.wait(ctx, existing, true)
	}
	cl := &call[T]{done: make(chan struct{})}
	c.inFlight[key] = cl
	c.mu.Unlock()

	go func() {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		cl.result, cl.err = fn(runCtx)

		c.mu.Lock()
		delete(c.inFlight, key)
		c.mu.Unlock()
		close(cl.done)
	}()

	return c.wait(ctx, cl, false)
}

func (c *coalescer[T]) wait(ctx context.Context, cl *call[T], shared bool) (T, bool, error) {
	select {
	case <-cl.done:
		return cl.result, shared, cl.err
	case <-ctx.Done():
		var zero T
		return zero, shared, ctx.Err()
	}
}

// InFlight returns the number of keys currently executing.
func (c *coalescer[T]) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inFlight)
}
