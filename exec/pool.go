package exec

import (
	"context"
	"iter"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kbukum/tilekit/task"
)

// Pool runs tasks on shared-memory goroutine workers. Backpressure counts
// unconsumed results: a slot is held from submission until the caller has
// received the result.
type Pool struct {
	workers int
	cancel  cancels
}

// NewPool creates the goroutine-pool backend. workers <= 0 selects one
// worker per CPU.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{workers: workers}
}

func (p *Pool) AsCompleted(ctx context.Context, tasks iter.Seq[task.Task], opts ...Option) iter.Seq[Result] {
	o := buildOptions(2*p.workers, opts)
	return func(yield func(Result) bool) {
		ctx, stop := context.WithCancel(ctx)
		defer stop()
		settled := p.cancel.add(stop)
		defer settled()

		sem := semaphore.NewWeighted(int64(o.maxInFlight))
		results := make(chan Result)
		var wg sync.WaitGroup

		submitted := make(chan struct{})
		go func() {
			defer close(submitted)
			for t := range tasks {
				if ctx.Err() != nil {
					return
				}
				if o.skip != nil && o.skip(t) {
					select {
					case results <- Result{Task: t, Skipped: true}:
					case <-ctx.Done():
						return
					}
					continue
				}
				if err := sem.Acquire(ctx, 1); err != nil {
					return
				}
				wg.Add(1)
				go func(t task.Task) {
					defer wg.Done()
					defer sem.Release(1)
					value, err := t.Execute(ctx, o.depsFor(t))
					if err != nil {
						err = failed(t.ID(), err)
					}
					select {
					case results <- Result{Task: t, Value: value, Err: err}:
					case <-ctx.Done():
					}
				}(t)
			}
		}()
		go func() {
			<-submitted
			wg.Wait()
			close(results)
		}()

		for r := range results {
			if !yield(r) {
				stop()
				return
			}
		}
	}
}

func (p *Pool) Map(ctx context.Context, tasks []task.Task, opts ...Option) []Result {
	o := buildOptions(p.workers, opts)
	results := make([]Result, len(tasks))

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	settled := p.cancel.add(stop)
	defer settled()

	var g errgroup.Group
	g.SetLimit(o.maxInFlight)
	for i, t := range tasks {
		if o.skip != nil && o.skip(t) {
			results[i] = Result{Task: t, Skipped: true}
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = Result{Task: t, Err: failed(t.ID(), err)}
				return nil
			}
			value, err := t.Execute(ctx, o.depsFor(t))
			if err != nil {
				err = failed(t.ID(), err)
			}
			results[i] = Result{Task: t, Value: value, Err: err}
			return nil
		})
	}
	// Workers never return errors; failures live in their results.
	_ = g.Wait()
	return results
}

func (p *Pool) Cancel() { p.cancel.cancelAll() }

func (p *Pool) Close() error { return nil }
