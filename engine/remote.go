package engine

import (
	"context"
	"fmt"

	"github.com/kbukum/tilekit/config"
	"github.com/kbukum/tilekit/exec"
	"github.com/kbukum/tilekit/task"
)

// RemoteTileFunc adapts the user function for a worker process's registry.
// Register the result under the name passed to WithRemoteFunc before
// calling exec.RunWorker. The worker rebuilds each tile from its own
// pyramid, so only the tile address and the parameter snapshot cross the
// process boundary; dependency results and output access stay in the
// orchestrator.
func RemoteTileFunc(cfg *config.ProcessConfig, fn task.TileFunc) (exec.RemoteFunc, error) {
	cfg.ApplyDefaults()
	pyramid, err := cfg.ProcessPyramid()
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, args map[string]any) (any, error) {
		zoom, zok := argInt(args["zoom"])
		row, rok := argInt(args["row"])
		col, cok := argInt(args["col"])
		if !zok || !rok || !cok {
			return nil, fmt.Errorf("engine: remote tile call without a zoom/row/col address")
		}
		tile, err := pyramid.Tile(zoom, row, col)
		if err != nil {
			return nil, err
		}
		params, _ := args["params"].(map[string]any)
		return fn(ctx, task.TileContext{Tile: tile, Params: params})
	}, nil
}

// argInt tolerates the integer widths gob may deliver.
func argInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
