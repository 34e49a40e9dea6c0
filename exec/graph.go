package exec

import (
	"context"
	"iter"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/kbukum/tilekit/task"
)

// Graph resolves whole dependency graphs, streaming results as dependencies
// settle. Tasks of the same dependency level overlap in flight; ordering is
// enforced purely by declared edges. Flat iteration falls back to the
// goroutine pool.
type Graph struct {
	*Pool
}

// NewGraph creates the graph-capable backend.
func NewGraph(workers int) *Graph {
	return &Graph{Pool: NewPool(workers)}
}

// RunGraph executes the graph level by level. Dependency results are wired
// into each task; tasks whose dependencies failed are reported failed
// without executing. A structural graph error yields one result with a nil
// task.
func (g *Graph) RunGraph(ctx context.Context, tg *task.Graph, opts ...Option) iter.Seq[Result] {
	return func(yield func(Result) bool) {
		o := buildOptions(2*g.workers, opts)

		levels, err := tg.Levels()
		if err != nil {
			yield(Result{Err: err})
			return
		}

		ctx, stop := context.WithCancel(ctx)
		defer stop()
		settled := g.cancel.add(stop)
		defer settled()

		values := make(map[string]any)
		failures := make(map[string]error)

		for _, level := range levels {
			if ctx.Err() != nil {
				return
			}

			type submission struct {
				t    task.Task
				deps map[string]any
			}
			var runnable []submission
			for _, id := range level {
				t := tg.Nodes[id]
				if depErr := firstDepFailure(tg, id, failures); depErr != nil {
					failures[id] = depErr
					if !yield(Result{Task: t, Err: failed(id, depErr)}) {
						return
					}
					continue
				}
				if o.skip != nil && o.skip(t) {
					if !yield(Result{Task: t, Skipped: true}) {
						return
					}
					continue
				}
				deps := make(map[string]any)
				for _, in := range tg.Inputs(id) {
					if v, ok := values[in]; ok {
						deps[in] = v
					}
				}
				runnable = append(runnable, submission{t: t, deps: deps})
			}
			if len(runnable) == 0 {
				continue
			}

			sem := semaphore.NewWeighted(int64(o.maxInFlight))
			results := make(chan Result)
			var wg sync.WaitGroup
			go func() {
				for _, sub := range runnable {
					if err := sem.Acquire(ctx, 1); err != nil {
						break
					}
					wg.Add(1)
					go func(sub submission) {
						defer wg.Done()
						defer sem.Release(1)
						value, err := sub.t.Execute(ctx, sub.deps)
						if err != nil {
							err = failed(sub.t.ID(), err)
						}
						select {
						case results <- Result{Task: sub.t, Value: value, Err: err}:
						case <-ctx.Done():
						}
					}(sub)
				}
				wg.Wait()
				close(results)
			}()

			for r := range results {
				if r.Err != nil {
					failures[r.Task.ID()] = r.Err
				} else {
					values[r.Task.ID()] = r.Value
				}
				if !yield(r) {
					stop()
					return
				}
			}
		}
	}
}

// firstDepFailure returns the error of the first failed dependency, if any.
func firstDepFailure(tg *task.Graph, id string, failures map[string]error) error {
	for _, in := range tg.Inputs(id) {
		if err, ok := failures[in]; ok {
			return err
		}
	}
	return nil
}
