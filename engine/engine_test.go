package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kbukum/tilekit/config"
	"github.com/kbukum/tilekit/errors"
	"github.com/kbukum/tilekit/exec"
	"github.com/kbukum/tilekit/output"
	"github.com/kbukum/tilekit/raster"
	"github.com/kbukum/tilekit/task"
)

func testConfig(mode config.ProcessingMode, zoomMin, zoomMax int) *config.ProcessConfig {
	return &config.ProcessConfig{
		Name:    "test",
		ZoomMin: zoomMin,
		ZoomMax: zoomMax,
		Bounds:  []float64{0, 0, 10, 10},
		Mode:    mode,
		Nodata:  -9999,
		Output:  config.OutputConfig{Driver: "memory"},
	}
}

func constFn(v float64, calls *atomic.Int64) task.TileFunc {
	return func(ctx context.Context, tc task.TileContext) (*raster.Grid, error) {
		if calls != nil {
			calls.Add(1)
		}
		w, h := tc.Tile.Shape()
		g := raster.New(w, h, tc.Tile.Bound(), -9999)
		g.Fill(v)
		return g, nil
	}
}

func drain(t *testing.T, s *Stream) []task.Info {
	t.Helper()
	var infos []task.Info
	for {
		info, ok := s.Next(context.Background())
		if !ok {
			return infos
		}
		infos = append(infos, info)
	}
}

func TestSingleZoomScenario(t *testing.T) {
	// One zoom, one intersecting tile: the flat strategy, a processed
	// record carrying the constant payload.
	cfg := testConfig(config.ModeMemory, 3, 3)
	e, err := New(cfg, constFn(42, nil))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer e.Close()

	if n := e.CountTiles(); n != 1 {
		t.Fatalf("expected 1 tile, counted %d", n)
	}

	s, err := e.Stream(context.Background())
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if s.Total() != 1 {
		t.Fatalf("expected total 1, got %d", s.Total())
	}

	infos := drain(t, s)
	if err := s.Err(); err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("expected 1 record, got %d", len(infos))
	}
	info := infos[0]
	if !info.Processed || info.Written {
		t.Errorf("expected processed unwritten record, got %s", info)
	}
	if info.Output == nil {
		t.Fatal("memory mode should keep the payload")
	}
	for _, v := range info.Output.Data {
		if v != 42 {
			t.Fatalf("expected constant payload 42, got %v", v)
		}
	}
}

func TestContinueModeRoundTripAndSkip(t *testing.T) {
	cfg := testConfig(config.ModeContinue, 3, 3)
	var calls atomic.Int64
	e, err := New(cfg, constFn(7, &calls))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer e.Close()

	s, err := e.Stream(context.Background())
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	infos := drain(t, s)
	if err := s.Err(); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if len(infos) != 1 || !infos[0].Written {
		t.Fatalf("expected one written record, got %v", infos)
	}
	if infos[0].Output != nil {
		t.Error("written payload should be dropped")
	}

	// Read back equals the computed output.
	tile := *infos[0].Tile
	got, err := e.Driver().Read(tile)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	for _, v := range got.Data {
		if v != 7 {
			t.Fatalf("round trip mismatch: got %v", v)
		}
	}

	// A second run skips without invoking the user function.
	before := calls.Load()
	s, err = e.Stream(context.Background())
	if err != nil {
		t.Fatalf("second Stream failed: %v", err)
	}
	infos = drain(t, s)
	if err := s.Err(); err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if len(infos) != 1 || infos[0].Processed {
		t.Fatalf("expected one skip record, got %v", infos)
	}
	if calls.Load() != before {
		t.Error("skip must not invoke the user function")
	}
}

func TestBaselevelsFillLowerZoom(t *testing.T) {
	// Baselevels {5,5} over zooms 4..5: zoom 4 is interpolated from the
	// zoom-5 results of the same run.
	cfg := testConfig(config.ModeContinue, 4, 5)
	cfg.Baselevels = &config.BaselevelsConfig{Min: 5, Max: 5}

	e, err := New(cfg, constFn(9, nil))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer e.Close()

	s, err := e.Stream(context.Background())
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	infos := drain(t, s)
	if err := s.Err(); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	var zoom4 *task.Info
	for i := range infos {
		if infos[i].Tile != nil && infos[i].Tile.Zoom == 4 {
			zoom4 = &infos[i]
		}
	}
	if zoom4 == nil {
		t.Fatal("expected a zoom-4 record")
	}
	if !zoom4.Processed || !zoom4.Written {
		t.Fatalf("expected processed and written zoom-4 tile, got %s", zoom4)
	}

	got, err := e.Driver().Read(*zoom4.Tile)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	for _, v := range got.Data {
		if v != 9 {
			t.Fatalf("interpolated mosaic should carry the child constant, got %v", v)
		}
	}
}

func TestGraphModeRun(t *testing.T) {
	cfg := testConfig(config.ModeContinue, 4, 5)
	cfg.Baselevels = &config.BaselevelsConfig{Min: 5, Max: 5}

	e, err := New(cfg, constFn(3, nil), WithExecutor(exec.NewGraph(2)), WithGraphMode())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer e.Close()

	s, err := e.Stream(context.Background())
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	infos := drain(t, s)
	if err := s.Err(); err != nil {
		t.Fatalf("graph run failed: %v", err)
	}
	if len(infos) != s.Total() {
		t.Fatalf("expected %d records, got %d", s.Total(), len(infos))
	}
	for _, info := range infos {
		if !info.Processed {
			t.Fatalf("expected every tile processed, got %s", info)
		}
	}
}

func TestCancelStopsSubmission(t *testing.T) {
	cfg := testConfig(config.ModeMemory, 5, 5)
	cfg.Bounds = []float64{0, 0, 45, 45}

	var executed atomic.Int64
	fn := func(ctx context.Context, tc task.TileContext) (*raster.Grid, error) {
		executed.Add(1)
		time.Sleep(5 * time.Millisecond)
		w, h := tc.Tile.Shape()
		return raster.New(w, h, tc.Tile.Bound(), -9999), nil
	}

	e, err := New(cfg, fn, WithExecutor(exec.NewPool(2)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer e.Close()

	s, err := e.Stream(context.Background())
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if s.Total() < 32 {
		t.Fatalf("scenario needs a large batch, got %d", s.Total())
	}

	if _, ok := s.Next(context.Background()); !ok {
		t.Fatal("expected at least one record before cancelling")
	}
	s.Cancel()
	drain(t, s)

	if err := s.Err(); err != nil {
		t.Fatalf("cancellation must not raise, got %v", err)
	}
	if n := executed.Load(); n >= int64(s.Total()) {
		t.Errorf("cancellation should stop submission, executed %d of %d", n, s.Total())
	}
}

func TestRunAbortsOnProcessFailure(t *testing.T) {
	cfg := testConfig(config.ModeMemory, 3, 3)
	fn := func(ctx context.Context, tc task.TileContext) (*raster.Grid, error) {
		return nil, fmt.Errorf("kaboom")
	}

	e, err := New(cfg, fn)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer e.Close()

	s, err := e.Stream(context.Background())
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	drain(t, s)

	err = s.Err()
	if !errors.IsCode(err, errors.ErrCodeProcessFailed) {
		t.Fatalf("expected the user-function failure to abort the run, got %v", err)
	}
	appErr, _ := errors.AsAppError(err)
	if appErr.Cause == nil || appErr.Cause.Error() != "kaboom" {
		t.Errorf("expected original cause preserved, got %v", appErr.Cause)
	}
}

func TestExecuteTileDeduplicates(t *testing.T) {
	cfg := testConfig(config.ModeMemory, 3, 3)
	var calls atomic.Int64
	fn := func(ctx context.Context, tc task.TileContext) (*raster.Grid, error) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		w, h := tc.Tile.Shape()
		g := raster.New(w, h, tc.Tile.Bound(), -9999)
		g.Fill(11)
		return g, nil
	}

	e, err := New(cfg, fn)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer e.Close()

	const callers = 16
	var wg sync.WaitGroup
	infos := make([]task.Info, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			infos[i], errs[i] = e.ExecuteTile(context.Background(), 3, 3, 8)
		}(i)
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected exactly 1 computation, got %d", calls.Load())
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if !infos[i].Processed || infos[i].Output == nil {
			t.Fatalf("caller %d: unexpected record %s", i, infos[i])
		}
		if infos[i].Output.At(0, 0) != 11 {
			t.Fatalf("caller %d: wrong payload", i)
		}
	}
}

func TestExecuteTileOutsideZoomRange(t *testing.T) {
	cfg := testConfig(config.ModeMemory, 3, 3)
	e, err := New(cfg, constFn(1, nil))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer e.Close()

	if _, err := e.ExecuteTile(context.Background(), 7, 0, 0); !errors.IsCode(err, errors.ErrCodeZoomOutOfRange) {
		t.Errorf("expected zoom out of range, got %v", err)
	}
}

func TestPreprocessingResultsReachTiles(t *testing.T) {
	cfg := testConfig(config.ModeMemory, 3, 3)

	pre := task.NewBasic("warmup", func(ctx context.Context, deps map[string]any) (any, error) {
		return 13.0, nil
	})

	var seen atomic.Int64
	fn := func(ctx context.Context, tc task.TileContext) (*raster.Grid, error) {
		if v, ok := tc.Deps["warmup"].(float64); ok && v == 13.0 {
			seen.Add(1)
		}
		w, h := tc.Tile.Shape()
		return raster.New(w, h, tc.Tile.Bound(), -9999), nil
	}

	e, err := New(cfg, fn, WithPreprocessing(pre))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer e.Close()

	s, err := e.Stream(context.Background())
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	infos := drain(t, s)
	if err := s.Err(); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 records, got %d", len(infos))
	}
	if seen.Load() != 1 {
		t.Error("tile task should see the preprocessing result among its dependencies")
	}
}

// Cancelling one run must not poison the shared executor: a later run on
// the same engine still settles every task.
func TestCancelledRunLeavesEngineUsable(t *testing.T) {
	cfg := testConfig(config.ModeMemory, 5, 5)
	cfg.Bounds = []float64{0, 0, 45, 45}

	fn := func(ctx context.Context, tc task.TileContext) (*raster.Grid, error) {
		time.Sleep(2 * time.Millisecond)
		w, h := tc.Tile.Shape()
		return raster.New(w, h, tc.Tile.Bound(), -9999), nil
	}
	e, err := New(cfg, fn, WithExecutor(exec.NewPool(2)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer e.Close()

	s, err := e.Stream(context.Background())
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if _, ok := s.Next(context.Background()); !ok {
		t.Fatal("expected at least one record before cancelling")
	}
	s.Cancel()
	drain(t, s)
	if err := s.Err(); err != nil {
		t.Fatalf("cancellation must not raise, got %v", err)
	}

	s2, err := e.Stream(context.Background())
	if err != nil {
		t.Fatalf("second Stream failed: %v", err)
	}
	infos := drain(t, s2)
	if err := s2.Err(); err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if len(infos) != s2.Total() || len(infos) == 0 {
		t.Fatalf("expected %d records from the run after a cancel, got %d", s2.Total(), len(infos))
	}
}

func TestSubprocessExecutorWiring(t *testing.T) {
	cfg := testConfig(config.ModeMemory, 3, 3)

	if _, err := New(cfg, constFn(1, nil), WithExecutor(exec.NewSubprocess(1, exec.NewRegistry()))); !errors.IsCode(err, errors.ErrCodeConfigInvalid) {
		t.Errorf("expected config error without a remote function, got %v", err)
	}

	blCfg := testConfig(config.ModeMemory, 3, 3)
	blCfg.Baselevels = &config.BaselevelsConfig{Min: 3, Max: 3}
	_, err := New(blCfg, constFn(1, nil),
		WithExecutor(exec.NewSubprocess(1, exec.NewRegistry())), WithRemoteFunc("compute"))
	if !errors.IsCode(err, errors.ErrCodeConfigInvalid) {
		t.Errorf("expected config error with baselevels, got %v", err)
	}
}

func TestRemoteTileFuncRebuildsTile(t *testing.T) {
	cfg := testConfig(config.ModeMemory, 3, 3)
	var seen task.TileContext
	rf, err := RemoteTileFunc(cfg, func(ctx context.Context, tc task.TileContext) (*raster.Grid, error) {
		seen = tc
		w, h := tc.Tile.Shape()
		g := raster.New(w, h, tc.Tile.Bound(), -9999)
		g.Fill(5)
		return g, nil
	})
	if err != nil {
		t.Fatalf("RemoteTileFunc failed: %v", err)
	}

	value, err := rf(context.Background(), map[string]any{
		"zoom": 3, "row": 3, "col": 8,
		"params": map[string]any{"band": 1.0},
	})
	if err != nil {
		t.Fatalf("remote call failed: %v", err)
	}
	grid, ok := value.(*raster.Grid)
	if !ok || grid.At(0, 0) != 5 {
		t.Fatalf("expected the computed grid, got %T", value)
	}
	if seen.Tile.Zoom != 3 || seen.Tile.Row != 3 || seen.Tile.Col != 8 {
		t.Errorf("expected the tile rebuilt from its address, got %s", seen.Tile.ID())
	}
	if seen.Params["band"] != 1.0 {
		t.Error("expected the parameter snapshot delivered to the function")
	}

	if _, err := rf(context.Background(), map[string]any{"zoom": 3}); err == nil {
		t.Error("expected error for a call without a tile address")
	}
}

// Serving a tile from persisted output is not processing: no rewrite, no
// processed flag.
func TestExecuteTileServesExistingWithoutRewrite(t *testing.T) {
	cfg := testConfig(config.ModeContinue, 3, 3)
	var calls atomic.Int64
	e, err := New(cfg, constFn(7, &calls))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer e.Close()

	first, err := e.ExecuteTile(context.Background(), 3, 3, 8)
	if err != nil {
		t.Fatalf("first ExecuteTile failed: %v", err)
	}
	if !first.Processed || !first.Written {
		t.Fatalf("expected a processed written record, got %s", first)
	}

	second, err := e.ExecuteTile(context.Background(), 3, 3, 8)
	if err != nil {
		t.Fatalf("second ExecuteTile failed: %v", err)
	}
	if second.Processed || second.Written {
		t.Fatalf("expected an existing-output record, got %s", second)
	}
	if second.Output == nil || second.Output.At(0, 0) != 7 {
		t.Error("expected the persisted payload served back")
	}
	if calls.Load() != 1 {
		t.Errorf("expected exactly 1 computation, got %d", calls.Load())
	}
}

// Readonly serves persisted output only; the user function never runs, and
// nothing is ever written.
func TestReadonlyNeverComputes(t *testing.T) {
	driver := output.NewMemory(-9999)

	var writes atomic.Int64
	seed, err := New(testConfig(config.ModeContinue, 3, 3), constFn(7, &writes), WithDriver(driver))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer seed.Close()
	s, err := seed.Stream(context.Background())
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	seeded := drain(t, s)
	if err := s.Err(); err != nil || len(seeded) != 1 {
		t.Fatalf("seeding run failed: %v (%d records)", err, len(seeded))
	}
	tile := *seeded[0].Tile

	var calls atomic.Int64
	e, err := New(testConfig(config.ModeReadonly, 3, 3), constFn(9, &calls), WithDriver(driver))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer e.Close()

	s, err = e.Stream(context.Background())
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	infos := drain(t, s)
	if err := s.Err(); err != nil {
		t.Fatalf("readonly run failed: %v", err)
	}
	for _, info := range infos {
		if info.Processed || info.Written {
			t.Fatalf("expected nothing processed in readonly mode, got %s", info)
		}
	}

	info, err := e.ExecuteTile(context.Background(), tile.Zoom, tile.Row, tile.Col)
	if err != nil {
		t.Fatalf("ExecuteTile failed: %v", err)
	}
	if info.Processed || info.Written {
		t.Fatalf("expected an existing-output record, got %s", info)
	}
	if info.Output == nil || info.Output.At(0, 0) != 7 {
		t.Error("expected the persisted payload served back")
	}
	if calls.Load() != 0 {
		t.Errorf("readonly must never invoke the user function, got %d calls", calls.Load())
	}

	// A readonly engine over empty output resolves to empty grids without
	// computing.
	empty := output.NewMemory(-9999)
	var never atomic.Int64
	e2, err := New(testConfig(config.ModeReadonly, 3, 3), constFn(9, &never), WithDriver(empty))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer e2.Close()

	s, err = e2.Stream(context.Background())
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	infos = drain(t, s)
	if err := s.Err(); err != nil {
		t.Fatalf("readonly run failed: %v", err)
	}
	if len(infos) != 1 || infos[0].Processed || infos[0].Written {
		t.Fatalf("expected one untouched record, got %v", infos)
	}
	if never.Load() != 0 {
		t.Errorf("readonly must never invoke the user function, got %d calls", never.Load())
	}
	if empty.Len() != 0 {
		t.Errorf("readonly must never write, driver holds %d tiles", empty.Len())
	}
}
