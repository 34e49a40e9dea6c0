package raster

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Grid is a georeferenced single-band raster. Data is row-major, row 0 at
// the top.
type Grid struct {
	Width  int
	Height int
	Bound  orb.Bound
	Nodata float64
	Data   []float64
}

// New creates a grid filled with the nodata value.
func New(width, height int, bound orb.Bound, nodata float64) *Grid {
	g := &Grid{
		Width:  width,
		Height: height,
		Bound:  bound,
		Nodata: nodata,
		Data:   make([]float64, width*height),
	}
	g.Fill(nodata)
	return g
}

// At returns the cell value at (row, col). Out-of-range cells read as nodata.
func (g *Grid) At(row, col int) float64 {
	if row < 0 || row >= g.Height || col < 0 || col >= g.Width {
		return g.Nodata
	}
	return g.Data[row*g.Width+col]
}

// Set writes the cell value at (row, col). Out-of-range writes are ignored.
func (g *Grid) Set(row, col int, v float64) {
	if row < 0 || row >= g.Height || col < 0 || col >= g.Width {
		return
	}
	g.Data[row*g.Width+col] = v
}

// Fill sets every cell to v.
func (g *Grid) Fill(v float64) {
	for i := range g.Data {
		g.Data[i] = v
	}
}

// IsEmpty reports whether every cell holds the nodata value.
func (g *Grid) IsEmpty() bool {
	for _, v := range g.Data {
		if v != g.Nodata && !(math.IsNaN(v) && math.IsNaN(g.Nodata)) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the grid.
func (g *Grid) Clone() *Grid {
	out := &Grid{
		Width:  g.Width,
		Height: g.Height,
		Bound:  g.Bound,
		Nodata: g.Nodata,
		Data:   make([]float64, len(g.Data)),
	}
	copy(out.Data, g.Data)
	return out
}

// Equal reports whether two grids have identical shape, bounds and data.
func (g *Grid) Equal(other *Grid) bool {
	if other == nil || g.Width != other.Width || g.Height != other.Height || g.Bound != other.Bound {
		return false
	}
	for i := range g.Data {
		if g.Data[i] != other.Data[i] {
			return false
		}
	}
	return true
}

// PixelWidth returns the horizontal extent of one cell.
func (g *Grid) PixelWidth() float64 {
	return (g.Bound.Max[0] - g.Bound.Min[0]) / float64(g.Width)
}

// PixelHeight returns the vertical extent of one cell.
func (g *Grid) PixelHeight() float64 {
	return (g.Bound.Max[1] - g.Bound.Min[1]) / float64(g.Height)
}

func (g *Grid) String() string {
	return fmt.Sprintf("grid(%dx%d, nodata=%v)", g.Width, g.Height, g.Nodata)
}
