package output

import (
	"sync"
	"testing"

	"github.com/kbukum/tilekit/errors"
	"github.com/kbukum/tilekit/geo"
	"github.com/kbukum/tilekit/raster"
)

func testTile(t *testing.T) geo.Tile {
	t.Helper()
	p, err := geo.NewPyramid("geodetic", 1, 0)
	if err != nil {
		t.Fatalf("NewPyramid failed: %v", err)
	}
	tile, err := p.Tile(3, 2, 5)
	if err != nil {
		t.Fatalf("Tile failed: %v", err)
	}
	return tile
}

func testGrid(tile geo.Tile, fill float64) *raster.Grid {
	w, h := tile.Shape()
	g := raster.New(w, h, tile.Bound(), -9999)
	g.Fill(fill)
	return g
}

func roundTrip(t *testing.T, drv Driver) {
	t.Helper()
	tile := testTile(t)

	exists, err := drv.Exists(tile)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Fatal("tile should not exist before Write")
	}
	if _, err := drv.Read(tile); !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Fatalf("expected not found before Write, got %v", err)
	}

	want := testGrid(tile, 12.5)
	if err := drv.Write(tile, want); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	exists, err = drv.Exists(tile)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Fatal("tile should exist after Write")
	}

	got, err := drv.Read(tile)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.Width != want.Width || got.Height != want.Height || got.Bound != want.Bound {
		t.Errorf("read back mismatched shape: %dx%d %v", got.Width, got.Height, got.Bound)
	}
	for i, v := range want.Data {
		if got.Data[i] != v {
			t.Fatalf("pixel %d: expected %v, got %v", i, v, got.Data[i])
		}
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	roundTrip(t, NewMemory(-9999))
}

func TestFileRoundTrip(t *testing.T) {
	drv, err := NewFile(t.TempDir(), -9999)
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}
	roundTrip(t, drv)
}

func TestFileRequiresPath(t *testing.T) {
	if _, err := NewFile("", -9999); !errors.IsCode(err, errors.ErrCodeConfigInvalid) {
		t.Errorf("expected config error, got %v", err)
	}
}

func TestEmptyGridCoversFootprint(t *testing.T) {
	tile := testTile(t)
	drv := NewMemory(-9999)

	g := drv.Empty(tile)
	w, h := tile.Shape()
	if g.Width != w || g.Height != h || g.Bound != tile.Bound() {
		t.Errorf("empty grid does not match the tile footprint")
	}
	if !g.IsEmpty() {
		t.Error("empty grid should contain only nodata")
	}
}

func TestMemoryConcurrentWrites(t *testing.T) {
	drv := NewMemory(-9999)
	p, _ := geo.NewPyramid("geodetic", 1, 0)

	var wg sync.WaitGroup
	for col := 0; col < 16; col++ {
		tile, err := p.Tile(3, 0, col)
		if err != nil {
			t.Fatalf("Tile failed: %v", err)
		}
		wg.Add(1)
		go func(tl geo.Tile) {
			defer wg.Done()
			_ = drv.Write(tl, testGrid(tl, 1))
		}(tile)
	}
	wg.Wait()

	if drv.Len() != 16 {
		t.Errorf("expected 16 stored tiles, got %d", drv.Len())
	}
}

func TestRegistryOpenAndClose(t *testing.T) {
	r := NewRegistry()

	drv, err := r.Open(Config{Driver: DriverMemory, Nodata: -9999})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	mem, ok := drv.(*Memory)
	if !ok {
		t.Fatalf("expected *Memory, got %T", drv)
	}

	tile := testTile(t)
	if err := mem.Write(tile, testGrid(tile, 3)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if mem.Len() != 0 {
		t.Error("Close should tear down opened drivers")
	}
}

func TestRegistryUnknownDriver(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Open(Config{Driver: "s3"}); !errors.IsCode(err, errors.ErrCodeDriverUnknown) {
		t.Errorf("expected unknown driver error, got %v", err)
	}
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	factory := func(cfg Config) (Driver, error) { return NewMemory(cfg.Nodata), nil }

	if err := r.Register("custom", factory); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register("custom", factory); !errors.IsCode(err, errors.ErrCodeConfigInvalid) {
		t.Errorf("expected duplicate registration error, got %v", err)
	}
	if err := r.Register(DriverMemory, factory); err == nil {
		t.Error("expected built-in name collision to fail")
	}
}
