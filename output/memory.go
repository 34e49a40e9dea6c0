package output

import (
	"sync"

	"github.com/kbukum/tilekit/errors"
	"github.com/kbukum/tilekit/geo"
	"github.com/kbukum/tilekit/raster"
)

// Memory stores tile output in a process-local map. It is safe for
// concurrent use but its contents only exist in the orchestrating process,
// so writes must happen there.
type Memory struct {
	nodata float64
	mu     sync.RWMutex
	grids  map[string]*raster.Grid
}

// NewMemory creates an empty in-memory driver.
func NewMemory(nodata float64) *Memory {
	return &Memory{nodata: nodata, grids: make(map[string]*raster.Grid)}
}

func (m *Memory) Exists(tile geo.Tile) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.grids[tile.ID()]
	return ok, nil
}

func (m *Memory) Read(tile geo.Tile) (*raster.Grid, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	grid, ok := m.grids[tile.ID()]
	if !ok {
		return nil, errors.NotFound(tile.ID())
	}
	return grid, nil
}

func (m *Memory) Write(tile geo.Tile, grid *raster.Grid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grids[tile.ID()] = grid
	return nil
}

func (m *Memory) Empty(tile geo.Tile) *raster.Grid {
	w, h := tile.Shape()
	return raster.New(w, h, tile.Bound(), m.nodata)
}

func (m *Memory) WriteInOrchestrator() bool { return true }

// Len returns the number of stored tiles.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.grids)
}

// Close drops all stored tiles.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grids = make(map[string]*raster.Grid)
	return nil
}
