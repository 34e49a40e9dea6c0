package engine

import (
	"context"
	"sync"
	"time"

	"github.com/kbukum/tilekit/errors"
	"github.com/kbukum/tilekit/exec"
	"github.com/kbukum/tilekit/geo"
	"github.com/kbukum/tilekit/logger"
	"github.com/kbukum/tilekit/observability"
	"github.com/kbukum/tilekit/raster"
	"github.com/kbukum/tilekit/task"
)

// run holds the mutable state of one processing run.
type run struct {
	e       *Engine
	id      string
	tasks   *task.Tasks
	started time.Time

	// workerWrites is set when the driver accepts writes from worker
	// processes; the user function is then wrapped to write its own result.
	workerWrites bool

	mu      sync.RWMutex
	results map[string]any
}

func (e *Engine) newRun() (*run, error) {
	// Worker-side writes happen inside the wrapped user function, which a
	// subprocess run bypasses; results coming back across the process
	// boundary are written by the orchestrator.
	_, subproc := e.executor.(*exec.Subprocess)
	r := &run{
		e:            e,
		id:           newRunID(),
		started:      time.Now(),
		workerWrites: e.cfg.Mode.AllowsWrite() && !e.driver.WriteInOrchestrator() && !subproc,
		results:      make(map[string]any),
	}

	tasks, err := r.buildTasks()
	if err != nil {
		return nil, err
	}
	r.tasks = tasks
	return r, nil
}

// buildTasks expands the configured area into batches: preprocessing tasks
// first, then one tile batch per zoom in descending order.
func (r *run) buildTasks() (*task.Tasks, error) {
	var batches []task.Batch

	if len(r.e.pre) > 0 {
		pb := task.NewBatch()
		for _, t := range r.e.pre {
			if err := pb.Add(t); err != nil {
				return nil, err
			}
		}
		batches = append(batches, pb)
	}

	bound := r.e.cfg.Bound()
	fn := r.tileFunc()
	for zoom := range r.e.cfg.ZoomLevels().Descending() {
		tb := task.NewTileBatch(zoom)
		for tile := range r.e.pyramid.TilesAt(zoom, bound) {
			tt, err := r.e.tileTask(tile, r.source, fn)
			if err != nil {
				return nil, err
			}
			if err := tb.Add(tt); err != nil {
				return nil, err
			}
		}
		if tb.Len() > 0 {
			batches = append(batches, tb)
		}
	}
	return task.NewTasks(batches...), nil
}

// tileFunc returns the user function, wrapped to write from the worker when
// the driver allows it. In a mode that never computes, tiles without
// existing output resolve to an empty grid instead of running the function.
func (r *run) tileFunc() task.TileFunc {
	if !r.e.cfg.Mode.Computes() {
		return func(ctx context.Context, tc task.TileContext) (*raster.Grid, error) {
			return r.e.driver.Empty(tc.Tile), nil
		}
	}
	if !r.workerWrites {
		return r.e.fn
	}
	return func(ctx context.Context, tc task.TileContext) (*raster.Grid, error) {
		grid, err := r.e.fn(ctx, tc)
		if err != nil || grid == nil || grid.IsEmpty() {
			return grid, err
		}
		if err := r.e.driver.Write(tc.Tile, grid); err != nil {
			return nil, err
		}
		return grid, nil
	}
}

// source resolves interpolation inputs: this run's results first, persisted
// output as fallback.
func (r *run) source(ctx context.Context, t geo.Tile) (*raster.Grid, error) {
	r.mu.RLock()
	value, ok := r.results[t.ID()]
	r.mu.RUnlock()
	if ok {
		if grid, ok := value.(*raster.Grid); ok {
			return grid, nil
		}
	}
	return r.e.driverSource(ctx, t)
}

func (r *run) store(id string, value any) {
	r.mu.Lock()
	r.results[id] = value
	r.mu.Unlock()
}

func (r *run) skip(t task.Task) bool {
	if !r.e.cfg.Mode.SkipsExisting() {
		return false
	}
	tt, ok := t.(*task.TileTask)
	if !ok {
		return false
	}
	exists, err := r.e.driver.Exists(tt.Tile)
	return err == nil && exists
}

// run executes the strategy decided from the run's shape and streams every
// record. The stream channel is closed when the run settles.
func (r *run) run(ctx context.Context, s *Stream) {
	defer close(s.results)

	ctx, span := observability.StartSpan(ctx, observability.SpanRun)
	defer span.End()
	observability.SetSpanAttribute(ctx, observability.AttrRunID, r.id)

	batches := r.tasks.ToBatches()
	var err error
	switch {
	case len(r.e.pre) == 0 && len(batches) == 1:
		err = r.runFlat(ctx, s, batches[0])
	case r.e.graphMode:
		if ge, ok := r.e.executor.(exec.GraphExecutor); ok {
			err = r.runGraph(ctx, s, ge)
			break
		}
		fallthrough
	default:
		err = r.runOrdered(ctx, s, batches)
	}

	if err != nil {
		s.fail(err)
		observability.SetSpanError(ctx, err)
		r.e.log.Error("Run aborted", logger.MergeWithError(map[string]interface{}{
			"run_id": r.id,
		}, err))
		return
	}
	r.e.log.Info("Run finished", logger.MergeWithDuration(map[string]interface{}{
		"run_id":    r.id,
		"cancelled": s.wasCancelled(),
	}, time.Since(r.started)))
}

// runFlat submits the single batch unordered for maximum parallelism.
func (r *run) runFlat(ctx context.Context, s *Stream, b task.Batch) error {
	for res := range r.e.executor.AsCompleted(ctx, b.All(), exec.WithSkip(r.skip)) {
		if stop, err := r.consume(ctx, s, res); err != nil || stop {
			return err
		}
	}
	return nil
}

// runGraph hands the whole dependency graph to the backend in one call;
// ordering is enforced purely by edges and batches may overlap in flight.
func (r *run) runGraph(ctx context.Context, s *Stream, ge exec.GraphExecutor) error {
	g, err := r.tasks.ToGraph()
	if err != nil {
		return err
	}
	for res := range ge.RunGraph(ctx, g, exec.WithSkip(r.skip)) {
		if stop, err := r.consume(ctx, s, res); err != nil || stop {
			return err
		}
	}
	return nil
}

// runOrdered resolves batches strictly in order. Every result of a batch is
// settled, and written where required, before the next batch is submitted.
func (r *run) runOrdered(ctx context.Context, s *Stream, batches []task.Batch) error {
	var prev task.Batch
	for _, b := range batches {
		deps := exec.WithDeps(r.depsFrom(prev))
		start := time.Now()

		for res := range r.e.executor.AsCompleted(ctx, b.All(), exec.WithSkip(r.skip), deps) {
			if stop, err := r.consume(ctx, s, res); err != nil || stop {
				return err
			}
		}

		if tb, ok := b.(*task.TileBatch); ok {
			r.e.metrics.recordBatch(ctx, tb.Zoom, time.Since(start))
		}
		if s.wasCancelled() {
			return nil
		}
		prev = b
	}
	return nil
}

// depsFrom resolves a task's dependencies against the previous batch's
// stored results.
func (r *run) depsFrom(prev task.Batch) func(task.Task) map[string]any {
	return func(t task.Task) map[string]any {
		if prev == nil {
			return nil
		}
		var deps map[string]any
		for _, d := range prev.Intersection(t) {
			r.mu.RLock()
			value, ok := r.results[d.ID()]
			r.mu.RUnlock()
			if !ok {
				continue
			}
			if deps == nil {
				deps = make(map[string]any)
			}
			deps[d.ID()] = value
		}
		return deps
	}
}

// consume turns one executor result into a stream record, applying the
// write policy. A true stop means the run should end without error.
func (r *run) consume(ctx context.Context, s *Stream, res exec.Result) (bool, error) {
	if res.Task == nil {
		return false, res.Err
	}
	// After an operator cancel, in-flight failures are a consequence of the
	// cancel itself, not a reason to abort.
	if res.Err != nil && s.wasCancelled() {
		return true, nil
	}

	info, stop, err := r.handle(ctx, res)
	if err != nil || stop {
		return stop, err
	}

	if tile := info.Tile; tile != nil {
		r.e.metrics.recordInfo(ctx, tile.Zoom, info.Processed, info.Written)
	}
	payload := info.Output
	if info.Written {
		info.DropOutput()
	}
	if !s.emit(ctx, info) {
		return true, nil
	}
	r.store(res.Task.ID(), payloadValue(payload, res.Value))
	return false, nil
}

func payloadValue(grid *raster.Grid, value any) any {
	if grid != nil {
		return grid
	}
	return value
}

func (r *run) handle(ctx context.Context, res exec.Result) (task.Info, bool, error) {
	tt, isTile := res.Task.(*task.TileTask)

	if res.Skipped {
		if isTile {
			return task.Skipped(tt.Tile), false, nil
		}
		return task.Info{Task: res.Task.ID(), ProcessMsg: "skipped"}, false, nil
	}

	if res.Err != nil {
		switch {
		case errors.IsCancelled(res.Err):
			// Operator interrupt: let the stream end cleanly, keeping
			// everything already written.
			return task.Info{}, true, nil
		case errors.IsNodata(res.Err) && isTile:
			return task.Info{
				Task:       tt.Tile.ID(),
				Tile:       &tt.Tile,
				Processed:  true,
				ProcessMsg: "no data",
				Output:     r.e.driver.Empty(tt.Tile),
			}, false, nil
		default:
			return task.Info{}, false, res.Err
		}
	}

	if !isTile {
		return task.Info{Task: res.Task.ID(), Processed: true, ProcessMsg: "processed"}, false, nil
	}

	grid, _ := res.Value.(*raster.Grid)
	if grid == nil {
		grid = r.e.driver.Empty(tt.Tile)
	}
	info := task.Info{
		Task:       tt.Tile.ID(),
		Tile:       &tt.Tile,
		Processed:  true,
		ProcessMsg: "processed",
		Output:     grid,
	}
	if !r.e.cfg.Mode.Computes() {
		info.Processed = false
		info.ProcessMsg = "readonly, not computed"
	}

	switch {
	case !r.e.cfg.Mode.AllowsWrite():
		info.WriteMsg = "write disabled"
	case grid.IsEmpty():
		info.WriteMsg = "output empty, not written"
	case r.workerWrites && !tt.Interpolate:
		info.Written = true
		info.WriteMsg = "output written by worker"
	default:
		wctx, wspan := observability.StartSpan(ctx, observability.SpanDriverWrite)
		observability.SetSpanAttribute(wctx, observability.AttrTileID, tt.Tile.ID())
		err := r.e.driver.Write(tt.Tile, grid)
		if err != nil {
			observability.SetSpanError(wctx, err)
		}
		wspan.End()
		if err != nil {
			return task.Info{}, false, err
		}
		info.Written = true
		info.WriteMsg = "output written"
	}
	return info, false, nil
}
