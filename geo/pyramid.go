package geo

import (
	"fmt"
	"iter"
	"math"

	"github.com/paulmach/orb"
)

// Web mercator square extent in meters.
const mercatorExtent = 20037508.342789244

// Grid defines the zoom-0 tile matrix of a pyramid.
type Grid struct {
	Name   string
	Bound  orb.Bound
	Width  int // tiles across at zoom 0, before metatiling
	Height int // tiles down at zoom 0, before metatiling
}

// GridGeodetic is the WGS84 grid: two tiles across at zoom 0.
func GridGeodetic() Grid {
	return Grid{
		Name:   "geodetic",
		Bound:  orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}},
		Width:  2,
		Height: 1,
	}
}

// GridMercator is the web mercator grid: one tile at zoom 0.
func GridMercator() Grid {
	return Grid{
		Name:   "mercator",
		Bound:  orb.Bound{Min: orb.Point{-mercatorExtent, -mercatorExtent}, Max: orb.Point{mercatorExtent, mercatorExtent}},
		Width:  1,
		Height: 1,
	}
}

// GridByName resolves a grid definition from its configuration name.
func GridByName(name string) (Grid, error) {
	switch name {
	case "geodetic":
		return GridGeodetic(), nil
	case "mercator":
		return GridMercator(), nil
	default:
		return Grid{}, fmt.Errorf("geo: unknown grid %q", name)
	}
}

// Pyramid is a quad-tree tile grid definition. Process and output pyramids
// may share a grid but differ in metatiling and pixel buffer.
type Pyramid struct {
	Grid        Grid
	Metatiling  int // NxN base tiles grouped into one processing tile
	PixelBuffer int // extra pixels read around a tile's nominal bounds
	TileSize    int // pixels per base tile edge
}

// NewPyramid builds a pyramid over the named grid. Metatiling must be a
// power of two between 1 and 16.
func NewPyramid(gridName string, metatiling, pixelBuffer int) (*Pyramid, error) {
	grid, err := GridByName(gridName)
	if err != nil {
		return nil, err
	}
	switch metatiling {
	case 1, 2, 4, 8, 16:
	default:
		return nil, fmt.Errorf("geo: invalid metatiling %d, must be one of 1, 2, 4, 8, 16", metatiling)
	}
	if pixelBuffer < 0 {
		return nil, fmt.Errorf("geo: pixel buffer must be non-negative, got %d", pixelBuffer)
	}
	return &Pyramid{
		Grid:        grid,
		Metatiling:  metatiling,
		PixelBuffer: pixelBuffer,
		TileSize:    256,
	}, nil
}

// MatrixWidth returns the number of tile columns at a zoom level.
func (p *Pyramid) MatrixWidth(zoom int) int {
	base := p.Grid.Width << zoom
	return max(1, ceilDiv(base, p.Metatiling))
}

// MatrixHeight returns the number of tile rows at a zoom level.
func (p *Pyramid) MatrixHeight(zoom int) int {
	base := p.Grid.Height << zoom
	return max(1, ceilDiv(base, p.Metatiling))
}

// TileSpan returns the (x, y) extent of one tile at a zoom level. Edge tiles
// may cover less when metatiling does not divide the matrix evenly.
func (p *Pyramid) TileSpan(zoom int) (float64, float64) {
	spanX := (p.Grid.Bound.Max[0] - p.Grid.Bound.Min[0]) / float64(p.Grid.Width<<zoom) * float64(p.Metatiling)
	spanY := (p.Grid.Bound.Max[1] - p.Grid.Bound.Min[1]) / float64(p.Grid.Height<<zoom) * float64(p.Metatiling)
	return spanX, spanY
}

// PixelSize returns the size of one pixel at a zoom level.
func (p *Pyramid) PixelSize(zoom int) float64 {
	spanX, _ := p.TileSpan(zoom)
	return spanX / float64(p.Metatiling*p.TileSize)
}

// Tile returns the tile at (zoom, row, col). Row 0 is the top row.
func (p *Pyramid) Tile(zoom, row, col int) (Tile, error) {
	t := Tile{Pyramid: p, Zoom: zoom, Row: row, Col: col}
	if !t.Valid() {
		return Tile{}, fmt.Errorf("geo: tile %s outside %dx%d matrix at zoom %d",
			t, p.MatrixWidth(zoom), p.MatrixHeight(zoom), zoom)
	}
	return t, nil
}

// TilesAt iterates all tiles at a zoom level whose bounds overlap bound.
// Tiles merely touching the bound's edge are not included.
func (p *Pyramid) TilesAt(zoom int, bound orb.Bound) iter.Seq[Tile] {
	return func(yield func(Tile) bool) {
		minRow, maxRow, minCol, maxCol, ok := p.tileRange(zoom, bound)
		if !ok {
			return
		}
		for row := minRow; row <= maxRow; row++ {
			for col := minCol; col <= maxCol; col++ {
				if !yield(Tile{Pyramid: p, Zoom: zoom, Row: row, Col: col}) {
					return
				}
			}
		}
	}
}

// Intersecting returns the tiles of another pyramid at the same zoom that
// overlap this tile. Used to translate between process and output pyramids
// with different metatiling.
func (p *Pyramid) Intersecting(t Tile) []Tile {
	var out []Tile
	for other := range p.TilesAt(t.Zoom, t.Bound()) {
		out = append(out, other)
	}
	return out
}

func (p *Pyramid) tileRange(zoom int, bound orb.Bound) (minRow, maxRow, minCol, maxCol int, ok bool) {
	g := p.Grid.Bound
	if bound.Min[0] >= g.Max[0] || bound.Max[0] <= g.Min[0] ||
		bound.Min[1] >= g.Max[1] || bound.Max[1] <= g.Min[1] {
		return 0, 0, 0, 0, false
	}
	spanX, spanY := p.TileSpan(zoom)

	minCol = int(math.Floor((bound.Min[0] - g.Min[0]) / spanX))
	maxCol = int(math.Ceil((bound.Max[0]-g.Min[0])/spanX)) - 1
	minRow = int(math.Floor((g.Max[1] - bound.Max[1]) / spanY))
	maxRow = int(math.Ceil((g.Max[1]-bound.Min[1])/spanY)) - 1

	minCol = max(minCol, 0)
	minRow = max(minRow, 0)
	maxCol = min(maxCol, p.MatrixWidth(zoom)-1)
	maxRow = min(maxRow, p.MatrixHeight(zoom)-1)
	if minCol > maxCol || minRow > maxRow {
		return 0, 0, 0, 0, false
	}
	return minRow, maxRow, minCol, maxCol, true
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
