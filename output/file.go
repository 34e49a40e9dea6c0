package output

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kbukum/tilekit/errors"
	"github.com/kbukum/tilekit/geo"
	"github.com/kbukum/tilekit/raster"
	"github.com/kbukum/tilekit/resilience"
	"github.com/kbukum/tilekit/util"
)

// File stores one gob-encoded grid per tile under <root>/<zoom>/<row>/<col>.gob.
// Writes go to a temporary file first and are renamed into place, so partially
// written tiles are never visible. Writes are safe from worker processes.
type File struct {
	root    string
	nodata  float64
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// NewFile creates a filesystem driver rooted at path.
func NewFile(path string, nodata float64) (*File, error) {
	if err := util.ValidateNonEmpty("path", path); err != nil {
		return nil, errors.ConfigInvalid("file output driver requires a path").WithCause(err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, errors.OutputDriver("init", "", err)
	}
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 3
	retry.InitialBackoff = 50 * time.Millisecond
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:        "output-file",
		MaxFailures: 5,
		Timeout:     10 * time.Second,
	})
	return &File{root: path, nodata: nodata, retry: retry, breaker: breaker}, nil
}

func (f *File) tilePath(tile geo.Tile) string {
	return filepath.Join(f.root,
		fmt.Sprintf("%d", tile.Zoom),
		fmt.Sprintf("%d", tile.Row),
		fmt.Sprintf("%d.gob", tile.Col))
}

func (f *File) Exists(tile geo.Tile) (bool, error) {
	_, err := os.Stat(f.tilePath(tile))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.OutputDriver("exists", tile.ID(), err)
}

func (f *File) Read(tile geo.Tile) (*raster.Grid, error) {
	file, err := os.Open(f.tilePath(tile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound(tile.ID())
		}
		return nil, errors.OutputDriver("read", tile.ID(), err)
	}
	defer file.Close()

	var grid raster.Grid
	if err := gob.NewDecoder(file).Decode(&grid); err != nil {
		return nil, errors.OutputDriver("read", tile.ID(), err)
	}
	return &grid, nil
}

// Write retries transient failures and trips a circuit breaker when the
// storage keeps failing, so a dead disk fails fast instead of retrying on
// every tile.
func (f *File) Write(tile geo.Tile, grid *raster.Grid) error {
	err := f.breaker.Execute(func() error {
		return resilience.RetryFunc(context.Background(), f.retry, func() error {
			return f.writeOnce(tile, grid)
		})
	})
	if err != nil {
		return errors.OutputDriver("write", tile.ID(), err)
	}
	return nil
}

func (f *File) writeOnce(tile geo.Tile, grid *raster.Grid) error {
	path := f.tilePath(tile)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(tmp).Encode(grid); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (f *File) Empty(tile geo.Tile) *raster.Grid {
	w, h := tile.Shape()
	return raster.New(w, h, tile.Bound(), f.nodata)
}

func (f *File) WriteInOrchestrator() bool { return false }

func (f *File) Close() error { return nil }
