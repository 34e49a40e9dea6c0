package geo

import (
	"testing"

	"github.com/paulmach/orb"
)

func geodetic(t *testing.T, metatiling, pixelBuffer int) *Pyramid {
	t.Helper()
	p, err := NewPyramid("geodetic", metatiling, pixelBuffer)
	if err != nil {
		t.Fatalf("NewPyramid: %v", err)
	}
	return p
}

func TestPyramid_MatrixDimensions(t *testing.T) {
	tests := []struct {
		metatiling, zoom, width, height int
	}{
		{1, 0, 2, 1},
		{1, 1, 4, 2},
		{1, 3, 16, 8},
		{2, 0, 1, 1},
		{2, 1, 2, 1},
		{2, 3, 8, 4},
		{4, 1, 1, 1},
	}
	for _, tc := range tests {
		p := geodetic(t, tc.metatiling, 0)
		if w := p.MatrixWidth(tc.zoom); w != tc.width {
			t.Errorf("metatiling %d zoom %d: width = %d, want %d", tc.metatiling, tc.zoom, w, tc.width)
		}
		if h := p.MatrixHeight(tc.zoom); h != tc.height {
			t.Errorf("metatiling %d zoom %d: height = %d, want %d", tc.metatiling, tc.zoom, h, tc.height)
		}
	}
}

func TestTile_Bound(t *testing.T) {
	p := geodetic(t, 1, 0)
	tile, err := p.Tile(1, 0, 0)
	if err != nil {
		t.Fatalf("Tile: %v", err)
	}
	want := orb.Bound{Min: orb.Point{-180, 0}, Max: orb.Point{-90, 90}}
	if got := tile.Bound(); got != want {
		t.Fatalf("bound = %v, want %v", got, want)
	}
}

func TestTile_BoundClippedAtGridEdge(t *testing.T) {
	// With metatiling 2 at zoom 1 the single row spans the full grid height,
	// so the metatile bound must clip to the grid, not extend past it.
	p := geodetic(t, 2, 0)
	tile, err := p.Tile(1, 0, 0)
	if err != nil {
		t.Fatalf("Tile: %v", err)
	}
	b := tile.Bound()
	if b.Min[1] != -90 || b.Max[1] != 90 {
		t.Fatalf("expected clipped vertical extent [-90, 90], got [%v, %v]", b.Min[1], b.Max[1])
	}
}

func TestTile_ParentChildRoundTrip(t *testing.T) {
	p := geodetic(t, 1, 0)
	tile, _ := p.Tile(4, 5, 9)

	parent, ok := tile.Parent()
	if !ok {
		t.Fatal("expected a parent at zoom 4")
	}
	if parent.Zoom != 3 || parent.Row != 2 || parent.Col != 4 {
		t.Fatalf("parent = %v", parent)
	}

	found := false
	for _, child := range parent.Children() {
		if child == tile {
			found = true
		}
	}
	if !found {
		t.Fatal("tile not among its parent's children")
	}

	root, _ := p.Tile(0, 0, 0)
	if _, ok := root.Parent(); ok {
		t.Fatal("zoom 0 tile must not have a parent")
	}
}

func TestTile_ChildrenAtMatrixEdge(t *testing.T) {
	// Geodetic with metatiling 2: zoom 0 matrix is 1x1, zoom 1 matrix is 2x1.
	// The root therefore has only 2 children, not 4.
	p := geodetic(t, 2, 0)
	root, _ := p.Tile(0, 0, 0)
	children := root.Children()
	if len(children) != 2 {
		t.Fatalf("expected 2 children at pyramid edge, got %d", len(children))
	}
	for _, c := range children {
		if !c.Valid() {
			t.Errorf("invalid child %v", c)
		}
	}
}

func TestTile_ChildrenFull(t *testing.T) {
	p := geodetic(t, 1, 0)
	tile, _ := p.Tile(2, 1, 1)
	children := tile.Children()
	if len(children) != 4 {
		t.Fatalf("expected 4 children, got %d", len(children))
	}
	for _, c := range children {
		parent, _ := c.Parent()
		if parent != tile {
			t.Errorf("child %v has parent %v", c, parent)
		}
	}
}

func TestTile_BufferedBound(t *testing.T) {
	p := geodetic(t, 1, 16)
	tile, _ := p.Tile(2, 1, 2)
	plain := tile.Bound()
	buffered := tile.BufferedBound()
	if buffered.Min[0] >= plain.Min[0] || buffered.Max[0] <= plain.Max[0] {
		t.Fatal("buffered bound must extend past the nominal bound")
	}

	// Buffer never escapes the grid.
	corner, _ := p.Tile(2, 0, 0)
	b := corner.BufferedBound()
	g := p.Grid.Bound
	if b.Min[0] < g.Min[0] || b.Max[1] > g.Max[1] {
		t.Fatalf("buffered bound %v escapes grid %v", b, g)
	}
}

func TestPyramid_TilesAt(t *testing.T) {
	p := geodetic(t, 1, 0)
	area := orb.Bound{Min: orb.Point{-10, -10}, Max: orb.Point{10, 10}}

	var tiles []Tile
	for tile := range p.TilesAt(2, area) {
		tiles = append(tiles, tile)
	}
	// Zoom 2 tiles are 45 degrees wide; a 20x20 degree box straddling the
	// origin touches a 2x2 block.
	if len(tiles) != 4 {
		t.Fatalf("expected 4 tiles, got %d: %v", len(tiles), tiles)
	}
	for _, tile := range tiles {
		if !tile.Intersects(area) {
			t.Errorf("%v does not intersect the query area", tile)
		}
	}
}

func TestPyramid_TilesAtDisjoint(t *testing.T) {
	p := geodetic(t, 1, 0)
	outside := orb.Bound{Min: orb.Point{190, 0}, Max: orb.Point{200, 10}}
	for tile := range p.TilesAt(3, outside) {
		t.Fatalf("unexpected tile %v for disjoint area", tile)
	}
}

func TestPyramid_Intersecting(t *testing.T) {
	process := geodetic(t, 2, 0)
	output := geodetic(t, 1, 0)

	tile, _ := process.Tile(2, 1, 1)
	overlapping := output.Intersecting(tile)
	// A metatile of factor 2 covers a 2x2 block of plain tiles.
	if len(overlapping) != 4 {
		t.Fatalf("expected 4 output tiles, got %d", len(overlapping))
	}
	for _, o := range overlapping {
		if !o.Intersects(tile.Bound()) {
			t.Errorf("%v does not overlap %v", o, tile)
		}
	}
}
