package exec

import (
	"context"
	"iter"
	"sync"

	"github.com/kbukum/tilekit/task"
)

// Sequential runs every task inline in the calling goroutine. Useful for
// debugging and for user functions that cannot cross goroutine or process
// boundaries.
type Sequential struct {
	cancel cancels
}

// NewSequential creates the single-threaded backend.
func NewSequential() *Sequential {
	return &Sequential{}
}

func (s *Sequential) AsCompleted(ctx context.Context, tasks iter.Seq[task.Task], opts ...Option) iter.Seq[Result] {
	o := buildOptions(1, opts)
	return func(yield func(Result) bool) {
		ctx, stop := context.WithCancel(ctx)
		defer stop()
		settled := s.cancel.add(stop)
		defer settled()

		for t := range tasks {
			if ctx.Err() != nil {
				return
			}
			if o.skip != nil && o.skip(t) {
				if !yield(Result{Task: t, Skipped: true}) {
					return
				}
				continue
			}
			value, err := t.Execute(ctx, o.depsFor(t))
			if err != nil {
				err = failed(t.ID(), err)
			}
			if !yield(Result{Task: t, Value: value, Err: err}) {
				return
			}
		}
	}
}

func (s *Sequential) Map(ctx context.Context, tasks []task.Task, opts ...Option) []Result {
	results := make([]Result, 0, len(tasks))
	for r := range s.AsCompleted(ctx, sliceSeq(tasks), opts...) {
		results = append(results, r)
	}
	return results
}

func (s *Sequential) Cancel() { s.cancel.cancelAll() }

func (s *Sequential) Close() error { return nil }

func sliceSeq(tasks []task.Task) iter.Seq[task.Task] {
	return func(yield func(task.Task) bool) {
		for _, t := range tasks {
			if !yield(t) {
				return
			}
		}
	}
}

// cancels tracks the stop functions of calls currently in flight. Cancel
// stops exactly those calls; the backend itself stays usable and later
// calls start unaffected.
type cancels struct {
	mu     sync.Mutex
	active map[int]context.CancelFunc
	next   int
}

// add registers a call's stop function and returns its deregistration. The
// returned func must run when the call settles.
func (c *cancels) add(stop context.CancelFunc) func() {
	c.mu.Lock()
	if c.active == nil {
		c.active = make(map[int]context.CancelFunc)
	}
	id := c.next
	c.next++
	c.active[id] = stop
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.active, id)
		c.mu.Unlock()
	}
}

// cancelAll stops every in-flight call. Safe to call from any goroutine,
// more than once.
func (c *cancels) cancelAll() {
	c.mu.Lock()
	stops := make([]context.CancelFunc, 0, len(c.active))
	for _, stop := range c.active {
		stops = append(stops, stop)
	}
	c.mu.Unlock()
	for _, stop := range stops {
		stop()
	}
}
