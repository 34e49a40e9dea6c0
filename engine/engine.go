package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/kbukum/tilekit/baselevel"
	"github.com/kbukum/tilekit/cache"
	"github.com/kbukum/tilekit/config"
	"github.com/kbukum/tilekit/errors"
	"github.com/kbukum/tilekit/exec"
	"github.com/kbukum/tilekit/geo"
	"github.com/kbukum/tilekit/logger"
	"github.com/kbukum/tilekit/observability"
	"github.com/kbukum/tilekit/output"
	"github.com/kbukum/tilekit/raster"
	"github.com/kbukum/tilekit/task"
)

// Option configures engine construction.
type Option func(*Engine)

// WithExecutor installs a pre-built execution backend. The default is the
// sequential backend.
func WithExecutor(e exec.Executor) Option {
	return func(eng *Engine) { eng.executor = e }
}

// WithDriver installs a pre-opened output driver. The engine will not close
// it.
func WithDriver(d output.Driver) Option {
	return func(eng *Engine) { eng.driver = d }
}

// WithOutputRegistry installs the driver registry used to open the
// configured driver. The default is a registry of the built-in drivers.
func WithOutputRegistry(r *output.Registry) Option {
	return func(eng *Engine) { eng.registry = r }
}

// WithPreprocessing prepends a batch of tasks that runs before any tile
// batch. Tile tasks whose bounds intersect a preprocessing task's bounds
// see its result among their dependencies.
func WithPreprocessing(tasks ...task.Task) Option {
	return func(eng *Engine) { eng.pre = append(eng.pre, tasks...) }
}

// WithGraphMode requests the whole-graph strategy when the backend supports
// it.
func WithGraphMode() Option {
	return func(eng *Engine) { eng.graphMode = true }
}

// WithLogger overrides the engine logger.
func WithLogger(l *logger.Logger) Option {
	return func(eng *Engine) { eng.log = l }
}

// WithRemoteFunc names the registered function worker processes compute
// tiles with; see RemoteTileFunc for the worker side. Required when the
// executor is the subprocess backend.
func WithRemoteFunc(name string) Option {
	return func(eng *Engine) { eng.remoteFn = name }
}

// Engine drives processing runs for one configuration.
type Engine struct {
	cfg     *config.ProcessConfig
	fn      task.TileFunc
	pyramid *geo.Pyramid

	registry  *output.Registry
	driver    output.Driver
	ownDriver bool

	executor  exec.Executor
	pre       []task.Task
	graphMode bool
	remoteFn  string

	coord   *cache.Coordinator[*raster.Grid]
	log     *logger.Logger
	metrics *tileMetrics
}

// New validates the configuration and assembles an engine around the user
// function.
func New(cfg *config.ProcessConfig, fn task.TileFunc, opts ...Option) (*Engine, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pyramid, err := cfg.ProcessPyramid()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		fn:      fn,
		pyramid: pyramid,
		coord:   cache.New[*raster.Grid](),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.log == nil {
		e.log = logger.New(&cfg.Logging, cfg.Name).WithComponent("engine")
	}
	if e.executor == nil {
		e.executor = exec.NewSequential()
	}
	if _, ok := e.executor.(*exec.Subprocess); ok {
		if e.remoteFn == "" {
			return nil, errors.ConfigInvalid("subprocess execution requires a registered tile function; see WithRemoteFunc")
		}
		if cfg.Baselevels != nil {
			return nil, errors.ConfigInvalid("baselevel interpolation runs in the orchestrator and cannot cross the process boundary")
		}
	}
	if e.driver == nil {
		if e.registry == nil {
			e.registry = output.NewRegistry()
		}
		drv, err := e.registry.Open(output.Config{
			Driver: cfg.Output.Driver,
			Path:   cfg.Output.Path,
			Nodata: cfg.Nodata,
		})
		if err != nil {
			return nil, err
		}
		e.driver = drv
		e.ownDriver = true
	}

	metrics, err := newTileMetrics()
	if err != nil {
		return nil, err
	}
	e.metrics = metrics

	return e, nil
}

// Stream starts a run and returns its result stream. The run executes in
// the background; the caller consumes records via Next until exhaustion.
func (e *Engine) Stream(ctx context.Context) (*Stream, error) {
	r, err := e.newRun()
	if err != nil {
		return nil, err
	}

	// Cancellation is scoped to this run's context. The executor is shared
	// across runs and must stay usable after one of them is cancelled.
	runCtx, cancelCtx := context.WithCancel(ctx)
	s := newStream(r.tasks.Len(), cancelCtx)

	e.log.Info("Run started", map[string]interface{}{
		"run_id": r.id,
		"tasks":  s.Total(),
		"mode":   string(e.cfg.Mode),
	})

	go r.run(runCtx, s)
	return s, nil
}

// ExecuteTile computes a single tile synchronously, deduplicated through
// the cache coordinator: concurrent calls for the same tile share one
// computation. Under a mode that skips existing output, a persisted tile is
// read back instead of recomputed.
func (e *Engine) ExecuteTile(ctx context.Context, zoom, row, col int) (task.Info, error) {
	tile, err := e.pyramid.Tile(zoom, row, col)
	if err != nil {
		return task.Info{}, err
	}
	if !e.cfg.ZoomLevels().Contains(zoom) {
		return task.Info{}, errors.ZoomOutOfRange(zoom)
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanTileCompute)
	defer span.End()
	observability.SetSpanAttribute(ctx, observability.AttrTileID, tile.ID())
	observability.SetSpanAttribute(ctx, observability.AttrZoom, zoom)

	tt, err := e.tileTask(tile, e.driverSource, e.fn)
	if err != nil {
		return task.Info{}, err
	}

	compute := func(ctx context.Context) (*raster.Grid, error) {
		value, err := tt.Execute(ctx, nil)
		if err != nil {
			if errors.IsNodata(err) {
				return e.driver.Empty(tile), nil
			}
			return nil, err
		}
		grid, _ := value.(*raster.Grid)
		if grid == nil {
			grid = e.driver.Empty(tile)
		}
		return grid, nil
	}
	if !e.cfg.Mode.Computes() {
		compute = func(ctx context.Context) (*raster.Grid, error) {
			return e.driver.Empty(tile), nil
		}
	}

	var grid *raster.Grid
	var existing bool
	if e.cfg.Mode.SkipsExisting() {
		grid, err = e.coord.GetOrComputeChecked(ctx, tile.ID(),
			func() (bool, error) { return e.driver.Exists(tile) },
			func() (*raster.Grid, error) {
				existing = true
				return e.driver.Read(tile)
			},
			compute,
		)
	} else {
		grid, err = e.coord.GetOrCompute(ctx, tile.ID(), compute)
	}
	if err != nil {
		observability.SetSpanError(ctx, err)
		return task.Info{}, err
	}

	// A tile served from persisted output was not processed and must not
	// be written back.
	if existing {
		info := task.Skipped(tile)
		info.Output = grid
		e.metrics.recordInfo(ctx, zoom, false, false)
		return info, nil
	}

	info := task.Info{
		Task:       tile.ID(),
		Tile:       &tile,
		Processed:  true,
		ProcessMsg: "processed",
		Output:     grid,
	}
	if !e.cfg.Mode.Computes() {
		info.Processed = false
		info.ProcessMsg = "readonly, not computed"
	}
	if e.cfg.Mode.AllowsWrite() && !grid.IsEmpty() {
		if err := e.driver.Write(tile, grid); err != nil {
			observability.SetSpanError(ctx, err)
			return task.Info{}, err
		}
		info.Written = true
		info.WriteMsg = "output written"
	}

	e.metrics.recordInfo(ctx, zoom, info.Processed, info.Written)
	e.log.Debug("Tile computed", logger.TileFields("execute", tile.ID()))
	return info, nil
}

// CountTiles estimates the tile count of the configured area and zoom range
// by recursive descent, without enumerating every tile.
func (e *Engine) CountTiles() int {
	return geo.CountTiles(e.pyramid, e.cfg.Bound(), e.cfg.ZoomLevels())
}

// Config returns the engine's configuration.
func (e *Engine) Config() *config.ProcessConfig { return e.cfg }

// Driver returns the opened output driver.
func (e *Engine) Driver() output.Driver { return e.driver }

// Close tears down the cache, the executor and any driver the engine
// opened itself.
func (e *Engine) Close() error {
	e.coord.Teardown()
	err := e.executor.Close()
	if e.ownDriver {
		if cerr := e.registry.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// tileTask builds the task computing one tile, wiring interpolation and
// output read access from the configuration.
func (e *Engine) tileTask(tile geo.Tile, source baselevel.SourceFunc, fn task.TileFunc) (*task.TileTask, error) {
	params, err := e.cfg.ParamsAt(tile.Zoom)
	if err != nil {
		return nil, err
	}

	tt := task.NewTile(tile, params, fn)
	if e.cfg.Baselevels != nil && !e.cfg.BaselevelZooms().Contains(tile.Zoom) && e.cfg.Mode.Computes() {
		interp := e.interpolator(source)
		tt.Interpolate = true
		tt.Interpolator = interp.Interpolate
	}
	if e.cfg.Mode.AllowsRead() {
		tt.ReadOutput = e.readOutput
	}
	if !tt.Interpolate {
		tt.RemoteName = e.remoteFn
	}
	return tt, nil
}

func (e *Engine) interpolator(source baselevel.SourceFunc) *baselevel.Interpolator {
	bl := e.cfg.Baselevels
	return &baselevel.Interpolator{
		Levels: e.cfg.BaselevelZooms(),
		Lower:  raster.Resampling(bl.LowerResampling),
		Higher: raster.Resampling(bl.HigherResampling),
		Nodata: e.cfg.Nodata,
		Source: source,
	}
}

// driverSource reads interpolation sources from persisted output only.
func (e *Engine) driverSource(ctx context.Context, t geo.Tile) (*raster.Grid, error) {
	if !e.cfg.Mode.AllowsRead() {
		return nil, nil
	}
	ok, err := e.driver.Exists(t)
	if err != nil || !ok {
		return nil, err
	}
	return e.driver.Read(t)
}

func (e *Engine) readOutput(t geo.Tile) (*raster.Grid, error) {
	return e.driver.Read(t)
}

func newRunID() string { return uuid.NewString() }
