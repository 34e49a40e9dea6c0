package cache

import (
	"context"
	"sync"
)

// ComputeFunc produces a tile's value.
type ComputeFunc[V any] func(ctx context.Context) (V, error)

// entry is either a settled value or an in-flight computation other callers
// await. done fires exactly once.
type entry[V any] struct {
	done  chan struct{}
	value V
	err   error
}

// Coordinator deduplicates concurrent computations per tile id. For a fixed
// id the compute function runs at most once per cache lifetime, no matter
// how many callers request it concurrently. A failed computation never
// caches, so retries are clean. The coordinator is only meaningful within
// one process; workers in other processes deduplicate through
// persisted-output existence checks instead.
type Coordinator[V any] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]
}

// New creates an empty coordinator.
func New[V any]() *Coordinator[V] {
	return &Coordinator[V]{entries: make(map[string]*entry[V])}
}

// GetOrCompute returns the cached value for id, joining an in-flight
// computation when one exists and starting one otherwise. The computation
// runs outside the lock.
func (c *Coordinator[V]) GetOrCompute(ctx context.Context, id string, compute ComputeFunc[V]) (V, error) {
	c.mu.Lock()
	if e, ok := c.entries[id]; ok {
		c.mu.Unlock()
		return c.await(ctx, e)
	}

	e := &entry[V]{done: make(chan struct{})}
	c.entries[id] = e
	c.mu.Unlock()

	value, err := compute(ctx)

	c.mu.Lock()
	if err != nil {
		// Failure never transitions to cached.
		delete(c.entries, id)
		e.err = err
	} else {
		e.value = value
	}
	c.mu.Unlock()
	close(e.done)

	return value, err
}

// GetOrComputeChecked consults a persisted-output existence check before the
// cache. An existing tile is read back directly, winning over any in-flight
// computation; a missing tile invalidates a stale cached value and
// recomputes.
func (c *Coordinator[V]) GetOrComputeChecked(
	ctx context.Context,
	id string,
	exists func() (bool, error),
	read func() (V, error),
	compute ComputeFunc[V],
) (V, error) {
	ok, err := exists()
	if err != nil {
		var zero V
		return zero, err
	}
	if ok {
		return read()
	}
	c.Invalidate(id)
	return c.GetOrCompute(ctx, id, compute)
}

// Invalidate drops a settled entry. In-flight computations are left alone;
// they settle on their own.
func (c *Coordinator[V]) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok {
		select {
		case <-e.done:
			delete(c.entries, id)
		default:
		}
	}
}

// Len returns the number of live entries, in-flight included.
func (c *Coordinator[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Teardown clears all settled entries. Called on shutdown of the owning
// process instance.
func (c *Coordinator[V]) Teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, e := range c.entries {
		select {
		case <-e.done:
			delete(c.entries, id)
		default:
		}
	}
}

func (c *Coordinator[V]) await(ctx context.Context, e *entry[V]) (V, error) {
	select {
	case <-e.done:
		return e.value, e.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}
