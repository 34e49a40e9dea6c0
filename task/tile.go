package task

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/kbukum/tilekit/errors"
	"github.com/kbukum/tilekit/geo"
	"github.com/kbukum/tilekit/raster"
)

// TileFunc is a user function computing one tile. It may return a NodataTile
// error to signal that the tile has no data.
type TileFunc func(ctx context.Context, tc TileContext) (*raster.Grid, error)

// TileContext carries everything a user function needs to compute one tile:
// the tile itself, its per-zoom parameter snapshot and the dependency
// results of the previous batch. Capability accessors are wired by the
// orchestrator.
type TileContext struct {
	Tile   geo.Tile
	Params map[string]any
	Deps   map[string]any

	read func(geo.Tile) (*raster.Grid, error)
}

// ReadOutput reads already-persisted output for a tile. It fails with a
// not-found error when the orchestrator wired no output access.
func (c TileContext) ReadOutput(t geo.Tile) (*raster.Grid, error) {
	if c.read == nil {
		return nil, errors.NotFound(t.ID())
	}
	return c.read(t)
}

// TileTask binds a task to one pyramid tile.
type TileTask struct {
	Tile   geo.Tile
	Params map[string]any

	// Interpolate selects the baselevel interpolation path instead of the
	// user function. Set when baselevels are configured and the tile's zoom
	// lies outside them.
	Interpolate bool
	// Interpolator resolves the interpolated result when Interpolate is set.
	Interpolator func(ctx context.Context, t geo.Tile) (*raster.Grid, error)
	// ReadOutput, when set, is exposed to the user function through the
	// TileContext.
	ReadOutput func(geo.Tile) (*raster.Grid, error)

	// RemoteName names the registered function a worker process resolves
	// this tile with. Empty means the task runs in-process only.
	RemoteName string

	fn TileFunc
}

// NewTile creates a task computing one tile with the given parameter
// snapshot.
func NewTile(tile geo.Tile, params map[string]any, fn TileFunc) *TileTask {
	return &TileTask{Tile: tile, Params: params, fn: fn}
}

func (t *TileTask) ID() string { return t.Tile.ID() }

func (t *TileTask) Bound() (orb.Bound, bool) { return t.Tile.Bound(), true }

// RemoteCall describes the task for a worker process. Only the tile address
// and the parameter snapshot cross the boundary; the worker rebuilds the
// tile from its own pyramid. Interpolation never crosses, it depends on
// orchestrator-side state.
func (t *TileTask) RemoteCall() (string, map[string]any) {
	if t.RemoteName == "" || t.Interpolate {
		return "", nil
	}
	args := map[string]any{
		"zoom": t.Tile.Zoom,
		"row":  t.Tile.Row,
		"col":  t.Tile.Col,
	}
	if t.Params != nil {
		args["params"] = t.Params
	}
	return t.RemoteName, args
}

// Execute resolves baselevel interpolation when selected, otherwise runs the
// user function with a fully wired tile context. A user-function failure is
// wrapped as a process failure with the original cause preserved; nodata and
// context signals pass through untouched.
func (t *TileTask) Execute(ctx context.Context, deps map[string]any) (any, error) {
	if t.Interpolate {
		if t.Interpolator == nil {
			return nil, errors.Internal(fmt.Errorf("tile %s selected interpolation without an interpolator", t.Tile.ID()))
		}
		return t.Interpolator(ctx, t.Tile)
	}
	grid, err := t.fn(ctx, TileContext{
		Tile:   t.Tile,
		Params: t.Params,
		Deps:   deps,
		read:   t.ReadOutput,
	})
	if err != nil {
		switch {
		case errors.IsNodata(err), errors.IsCode(err, errors.ErrCodeProcessFailed):
			return nil, err
		case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
			return nil, err
		}
		return nil, errors.ProcessFailed(t.Tile.ID(), err)
	}
	return grid, nil
}
