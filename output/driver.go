package output

import (
	"sync"

	"github.com/kbukum/tilekit/errors"
	"github.com/kbukum/tilekit/geo"
	"github.com/kbukum/tilekit/logger"
	"github.com/kbukum/tilekit/raster"
)

// Built-in driver names.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
)

// Config parameterizes a driver instance.
type Config struct {
	// Driver selects the registered driver by name.
	Driver string
	// Path is the storage root for file-backed drivers.
	Path string
	// Nodata is the fill value of empty grids returned by Empty.
	Nodata float64
}

// Driver persists and retrieves tile results.
type Driver interface {
	// Exists reports whether output for the tile has been written.
	Exists(tile geo.Tile) (bool, error)
	// Read returns the stored output for the tile, or a NotFound error.
	Read(tile geo.Tile) (*raster.Grid, error)
	// Write stores the output for the tile, replacing any previous value.
	Write(tile geo.Tile, grid *raster.Grid) error
	// Empty returns a nodata-filled grid covering the tile footprint.
	Empty(tile geo.Tile) *raster.Grid
	// WriteInOrchestrator reports whether writes must happen in the
	// orchestrating process. Worker-safe drivers return false.
	WriteInOrchestrator() bool
	// Close releases driver resources. The driver is unusable afterwards.
	Close() error
}

// Factory constructs a driver from its configuration.
type Factory func(cfg Config) (Driver, error)

// Registry maps driver names to factories and tracks opened drivers so
// they can be shut down in reverse open order.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	opened    []Driver
}

// NewRegistry creates a registry with the built-in drivers registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.factories[DriverMemory] = func(cfg Config) (Driver, error) {
		return NewMemory(cfg.Nodata), nil
	}
	r.factories[DriverFile] = func(cfg Config) (Driver, error) {
		return NewFile(cfg.Path, cfg.Nodata)
	}
	return r
}

// Register adds a driver factory under a name.
func (r *Registry) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return errors.ConfigInvalid("output driver already registered").
			WithDetail("driver", name)
	}
	r.factories[name] = factory
	logger.Debug("Output driver registered", map[string]interface{}{"driver": name})
	return nil
}

// Names returns the registered driver names.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// Open constructs a driver by name and records it for Close.
func (r *Registry) Open(cfg Config) (Driver, error) {
	r.mu.Lock()
	factory, ok := r.factories[cfg.Driver]
	r.mu.Unlock()
	if !ok {
		return nil, errors.DriverUnknown(cfg.Driver)
	}

	drv, err := factory(cfg)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.opened = append(r.opened, drv)
	r.mu.Unlock()

	logger.Debug("Output driver opened", map[string]interface{}{
		"driver": cfg.Driver,
		"path":   cfg.Path,
	})
	return drv, nil
}

// Close shuts down every opened driver in reverse open order.
func (r *Registry) Close() error {
	r.mu.Lock()
	opened := r.opened
	r.opened = nil
	r.mu.Unlock()

	var firstErr error
	for i := len(opened) - 1; i >= 0; i-- {
		if err := opened[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
