package exec

import (
	"context"
	stderrors "errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/kbukum/tilekit/errors"
	"github.com/kbukum/tilekit/raster"
	"github.com/kbukum/tilekit/task"
)

// TestMain doubles as the worker entry point: the subprocess backend spawns
// this test binary again with the worker environment set.
func TestMain(m *testing.M) {
	if IsWorker() {
		if err := RunWorker(workerTestRegistry()); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func workerTestRegistry() *Registry {
	reg := NewRegistry()
	_ = reg.Register("double", func(ctx context.Context, args map[string]any) (any, error) {
		return args["x"].(float64) * 2, nil
	})
	_ = reg.Register("boom", func(ctx context.Context, args map[string]any) (any, error) {
		return nil, stderrors.New("boom")
	})
	_ = reg.Register("fill", func(ctx context.Context, args map[string]any) (any, error) {
		g := raster.New(2, 2, orb.Bound{Max: orb.Point{1, 1}}, -9999)
		g.Fill(float64(argN(args["zoom"])))
		return g, nil
	})
	return reg
}

// argN tolerates the integer widths gob may deliver.
func argN(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	}
	return -1
}

func counting(id string, executed *atomic.Int32, delay time.Duration) task.Task {
	return task.NewBasic(id, func(ctx context.Context, deps map[string]any) (any, error) {
		executed.Add(1)
		if delay > 0 {
			time.Sleep(delay)
		}
		return id, nil
	})
}

func failing(id string) task.Task {
	return task.NewBasic(id, func(ctx context.Context, deps map[string]any) (any, error) {
		return nil, stderrors.New("kaboom")
	})
}

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = string(rune('a'+i%26)) + "-" + string(rune('0'+i/26))
	}
	return out
}

func TestSequentialAsCompleted(t *testing.T) {
	s := NewSequential()
	var executed atomic.Int32
	var tasks []task.Task
	for _, id := range ids(5) {
		tasks = append(tasks, counting(id, &executed, 0))
	}

	var got []Result
	for r := range s.AsCompleted(context.Background(), sliceSeq(tasks)) {
		got = append(got, r)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 results, got %d", len(got))
	}
	for i, r := range got {
		if r.Err != nil {
			t.Fatalf("unexpected error: %v", r.Err)
		}
		if r.Task.ID() != tasks[i].ID() {
			t.Errorf("expected submission order, got %s at %d", r.Task.ID(), i)
		}
	}
}

func TestFailureWrapsTaskFailed(t *testing.T) {
	backends := map[string]Executor{
		"sequential": NewSequential(),
		"pool":       NewPool(2),
	}
	for name, e := range backends {
		t.Run(name, func(t *testing.T) {
			results := e.Map(context.Background(), []task.Task{failing("f")})
			if len(results) != 1 {
				t.Fatalf("expected 1 result, got %d", len(results))
			}
			err := results[0].Err
			if !errors.IsCode(err, errors.ErrCodeTaskFailed) {
				t.Fatalf("expected task failed error, got %v", err)
			}
			appErr, _ := errors.AsAppError(err)
			if appErr.Cause == nil || appErr.Cause.Error() != "kaboom" {
				t.Errorf("expected original cause preserved, got %v", appErr.Cause)
			}
		})
	}
}

func TestSkipPredicate(t *testing.T) {
	p := NewPool(4)
	var executed atomic.Int32
	var tasks []task.Task
	for _, id := range ids(10) {
		tasks = append(tasks, counting(id, &executed, 0))
	}

	skip := func(tk task.Task) bool { return tk.ID()[0] == 'a' }
	skipped := 0
	for r := range p.AsCompleted(context.Background(), sliceSeq(tasks), WithSkip(skip)) {
		if r.Skipped {
			skipped++
		}
	}
	if skipped != 1 {
		t.Errorf("expected 1 skipped result, got %d", skipped)
	}
	if executed.Load() != 9 {
		t.Errorf("expected 9 executions, got %d", executed.Load())
	}
}

func TestPoolBackpressure(t *testing.T) {
	p := NewPool(8)
	var current, peak atomic.Int32
	var tasks []task.Task
	for _, id := range ids(30) {
		tasks = append(tasks, task.NewBasic(id, func(ctx context.Context, deps map[string]any) (any, error) {
			c := current.Add(1)
			for {
				old := peak.Load()
				if c <= old || peak.CompareAndSwap(old, c) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			current.Add(-1)
			return nil, nil
		}))
	}

	count := 0
	for range p.AsCompleted(context.Background(), sliceSeq(tasks), WithMaxInFlight(3)) {
		count++
	}
	if count != 30 {
		t.Fatalf("expected 30 results, got %d", count)
	}
	if peak.Load() > 3 {
		t.Errorf("expected at most 3 in flight, observed %d", peak.Load())
	}
}

// After Cancel, submission stops promptly and no task submitted afterwards
// ever executes.
func TestPoolCancellation(t *testing.T) {
	p := NewPool(2)
	var executed atomic.Int32
	var tasks []task.Task
	for _, id := range ids(100) {
		tasks = append(tasks, counting(id, &executed, 10*time.Millisecond))
	}

	consumed := 0
	for range p.AsCompleted(context.Background(), sliceSeq(tasks), WithMaxInFlight(2)) {
		consumed++
		if consumed == 2 {
			p.Cancel()
		}
	}
	if got := executed.Load(); got > 10 {
		t.Errorf("expected submission to stop promptly, %d tasks executed", got)
	}
}

func TestPoolMapOrder(t *testing.T) {
	p := NewPool(4)
	var executed atomic.Int32
	var tasks []task.Task
	for _, id := range ids(20) {
		tasks = append(tasks, counting(id, &executed, time.Millisecond))
	}

	results := p.Map(context.Background(), tasks)
	if len(results) != 20 {
		t.Fatalf("expected 20 results, got %d", len(results))
	}
	for i, r := range results {
		if r.Task.ID() != tasks[i].ID() {
			t.Fatalf("expected submission order at %d, got %s", i, r.Task.ID())
		}
	}
}

func TestFactory(t *testing.T) {
	for _, kind := range []Kind{KindSequential, KindPool, KindSubprocess, KindGraph} {
		if _, err := New(Config{Kind: kind, Workers: 1, Registry: NewRegistry()}); err != nil {
			t.Errorf("kind %s: unexpected error: %v", kind, err)
		}
	}
	if _, err := New(Config{Kind: "dask"}); !errors.IsCode(err, errors.ErrCodeConfigInvalid) {
		t.Errorf("expected config invalid error, got %v", err)
	}
}

func TestGraphRunGraphWiresDependencies(t *testing.T) {
	g := task.NewGraph()
	mk := func(id string, v int) task.Task {
		return task.NewBasic(id, func(ctx context.Context, deps map[string]any) (any, error) {
			return v, nil
		})
	}
	if err := g.AddNode(mk("a", 1)); err != nil {
		t.Fatal(err)
	}
	if err := g.AddNode(mk("b", 2)); err != nil {
		t.Fatal(err)
	}
	sum := task.NewBasic("c", func(ctx context.Context, deps map[string]any) (any, error) {
		return deps["a"].(int) + deps["b"].(int), nil
	})
	if err := g.AddNode(sum); err != nil {
		t.Fatal(err)
	}
	g.AddEdge("a", "c")
	g.AddEdge("b", "c")

	e := NewGraph(2)
	var cValue any
	for r := range e.RunGraph(context.Background(), g) {
		if r.Err != nil {
			t.Fatalf("unexpected error: %v", r.Err)
		}
		if r.Task.ID() == "c" {
			cValue = r.Value
		}
	}
	if cValue != 3 {
		t.Errorf("expected dependency results wired, got %v", cValue)
	}
}

func TestGraphFailureCascades(t *testing.T) {
	g := task.NewGraph()
	if err := g.AddNode(failing("a")); err != nil {
		t.Fatal(err)
	}
	var executed atomic.Int32
	if err := g.AddNode(counting("b", &executed, 0)); err != nil {
		t.Fatal(err)
	}
	g.AddEdge("a", "b")

	e := NewGraph(2)
	seen := map[string]error{}
	for r := range e.RunGraph(context.Background(), g) {
		seen[r.Task.ID()] = r.Err
	}
	if !errors.IsCode(seen["a"], errors.ErrCodeTaskFailed) {
		t.Errorf("expected a to fail, got %v", seen["a"])
	}
	if !errors.IsCode(seen["b"], errors.ErrCodeTaskFailed) {
		t.Errorf("expected b to be reported failed, got %v", seen["b"])
	}
	if executed.Load() != 0 {
		t.Error("expected b never to execute")
	}
}

func TestRegistryDuplicate(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register("f", func(ctx context.Context, args map[string]any) (any, error) { return nil, nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := reg.Register("f", func(ctx context.Context, args map[string]any) (any, error) { return nil, nil }); err == nil {
		t.Error("expected duplicate registration error")
	}
}

func TestRemoteTaskLocalExecute(t *testing.T) {
	reg := workerTestRegistry()
	tk := NewRemote("r1", reg, Call{Func: "double", Args: map[string]any{"x": 4.0}})
	v, err := tk.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if v != 8.0 {
		t.Errorf("expected 8, got %v", v)
	}

	missing := NewRemote("r2", reg, Call{Func: "ghost"})
	if _, err := missing.Execute(context.Background(), nil); err == nil {
		t.Error("expected error for unregistered function")
	}
}

// Cancel stops the call it was aimed at; the backend itself stays usable
// and a later call runs its tasks normally.
func TestCancelAffectsOnlyInFlightCalls(t *testing.T) {
	p := NewPool(2)

	var executed atomic.Int32
	var first []task.Task
	for _, id := range ids(50) {
		first = append(first, counting(id, &executed, 10*time.Millisecond))
	}
	consumed := 0
	for range p.AsCompleted(context.Background(), sliceSeq(first), WithMaxInFlight(2)) {
		consumed++
		if consumed == 2 {
			p.Cancel()
		}
	}

	var second []task.Task
	var again atomic.Int32
	for _, id := range ids(10) {
		second = append(second, counting(id, &again, 0))
	}
	count := 0
	for r := range p.AsCompleted(context.Background(), sliceSeq(second)) {
		if r.Err != nil {
			t.Fatalf("unexpected error after an earlier cancel: %v", r.Err)
		}
		count++
	}
	if count != 10 || again.Load() != 10 {
		t.Fatalf("expected a clean second call, got %d results, %d executions", count, again.Load())
	}
}

func TestResultErrorClassification(t *testing.T) {
	s := NewSequential()

	t.Run("process failures pass through", func(t *testing.T) {
		inner := errors.ProcessFailed("p", stderrors.New("kaboom"))
		tk := task.NewBasic("p", func(ctx context.Context, deps map[string]any) (any, error) {
			return nil, inner
		})
		results := s.Map(context.Background(), []task.Task{tk})
		if results[0].Err != inner {
			t.Fatalf("expected the process failure untouched, got %v", results[0].Err)
		}
	})

	t.Run("context cancellation becomes task cancelled", func(t *testing.T) {
		tk := task.NewBasic("c", func(ctx context.Context, deps map[string]any) (any, error) {
			return nil, context.Canceled
		})
		results := s.Map(context.Background(), []task.Task{tk})
		if !errors.IsCancelled(results[0].Err) {
			t.Fatalf("expected task cancelled, got %v", results[0].Err)
		}
	})
}
