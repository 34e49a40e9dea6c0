package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Tile addresses one unit of a pyramid by (zoom, row, col). It is a value
// type; parent and children are derived arithmetically from the indices.
type Tile struct {
	Pyramid *Pyramid
	Zoom    int
	Row     int
	Col     int
}

// Valid reports whether the tile lies inside its pyramid's matrix.
func (t Tile) Valid() bool {
	if t.Pyramid == nil || t.Zoom < 0 || t.Row < 0 || t.Col < 0 {
		return false
	}
	return t.Row < t.Pyramid.MatrixHeight(t.Zoom) && t.Col < t.Pyramid.MatrixWidth(t.Zoom)
}

// ID returns a stable string key for the tile within its pyramid.
func (t Tile) ID() string {
	return fmt.Sprintf("%d-%d-%d", t.Zoom, t.Row, t.Col)
}

func (t Tile) String() string {
	return fmt.Sprintf("tile(%d, %d, %d)", t.Zoom, t.Row, t.Col)
}

// Bound returns the tile's nominal extent. Tiles in the last row or column
// are clipped to the grid bound when metatiling does not divide the matrix
// evenly.
func (t Tile) Bound() orb.Bound {
	g := t.Pyramid.Grid.Bound
	spanX, spanY := t.Pyramid.TileSpan(t.Zoom)
	left := g.Min[0] + float64(t.Col)*spanX
	top := g.Max[1] - float64(t.Row)*spanY
	return orb.Bound{
		Min: orb.Point{left, max(top-spanY, g.Min[1])},
		Max: orb.Point{min(left+spanX, g.Max[0]), top},
	}
}

// BufferedBound returns the tile extent grown by the pyramid's pixel buffer,
// clipped to the grid bound.
func (t Tile) BufferedBound() orb.Bound {
	b := t.Bound()
	if t.Pyramid.PixelBuffer == 0 {
		return b
	}
	buf := float64(t.Pyramid.PixelBuffer) * t.Pyramid.PixelSize(t.Zoom)
	g := t.Pyramid.Grid.Bound
	return orb.Bound{
		Min: orb.Point{max(b.Min[0]-buf, g.Min[0]), max(b.Min[1]-buf, g.Min[1])},
		Max: orb.Point{min(b.Max[0]+buf, g.Max[0]), min(b.Max[1]+buf, g.Max[1])},
	}
}

// Shape returns the tile's pixel dimensions. Tiles clipped at the grid edge
// have proportionally fewer pixels.
func (t Tile) Shape() (width, height int) {
	b := t.Bound()
	px := t.Pyramid.PixelSize(t.Zoom)
	width = int(math.Round((b.Max[0] - b.Min[0]) / px))
	height = int(math.Round((b.Max[1] - b.Min[1]) / px))
	return max(width, 1), max(height, 1)
}

// Intersects reports whether the tile's extent overlaps bound. Touching
// edges do not count as an overlap.
func (t Tile) Intersects(bound orb.Bound) bool {
	b := t.Bound()
	return b.Min[0] < bound.Max[0] && b.Max[0] > bound.Min[0] &&
		b.Min[1] < bound.Max[1] && b.Max[1] > bound.Min[1]
}

// Parent returns the tile one zoom level up. ok is false at zoom 0.
func (t Tile) Parent() (Tile, bool) {
	if t.Zoom == 0 {
		return Tile{}, false
	}
	return Tile{Pyramid: t.Pyramid, Zoom: t.Zoom - 1, Row: t.Row / 2, Col: t.Col / 2}, true
}

// Children returns the up-to-4 tiles one zoom level down. Tiles at the
// matrix edge may have fewer.
func (t Tile) Children() []Tile {
	zoom := t.Zoom + 1
	height := t.Pyramid.MatrixHeight(zoom)
	width := t.Pyramid.MatrixWidth(zoom)
	children := make([]Tile, 0, 4)
	for row := t.Row * 2; row <= t.Row*2+1; row++ {
		for col := t.Col * 2; col <= t.Col*2+1; col++ {
			if row < height && col < width {
				children = append(children, Tile{Pyramid: t.Pyramid, Zoom: zoom, Row: row, Col: col})
			}
		}
	}
	return children
}

// Descendants returns how many tiles at the given zoom level descend from
// the tile (including the tile itself when zoom equals the tile's zoom).
func (t Tile) Descendants(zoom int) int {
	if zoom < t.Zoom {
		return 0
	}
	shift := zoom - t.Zoom
	firstRow := t.Row << shift
	firstCol := t.Col << shift
	lastRow := min((t.Row+1)<<shift, t.Pyramid.MatrixHeight(zoom)) - 1
	lastCol := min((t.Col+1)<<shift, t.Pyramid.MatrixWidth(zoom)) - 1
	return (lastRow - firstRow + 1) * (lastCol - firstCol + 1)
}
