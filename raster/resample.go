package raster

import (
	"fmt"
	"math"
)

// Resampling selects the interpolation method used when a grid changes
// resolution.
type Resampling string

const (
	ResamplingNearest  Resampling = "nearest"
	ResamplingBilinear Resampling = "bilinear"
	ResamplingCubic    Resampling = "cubic"
)

// ParseResampling resolves a configuration value to a Resampling.
func ParseResampling(s string) (Resampling, error) {
	switch Resampling(s) {
	case ResamplingNearest, ResamplingBilinear, ResamplingCubic:
		return Resampling(s), nil
	default:
		return "", fmt.Errorf("raster: unknown resampling method %q", s)
	}
}

// Resample returns a new grid with the same bound at a different resolution.
func (g *Grid) Resample(method Resampling, width, height int) *Grid {
	out := New(width, height, g.Bound, g.Nodata)
	for row := 0; row < height; row++ {
		// Source coordinates of the output cell center.
		sy := (float64(row) + 0.5) * float64(g.Height) / float64(height)
		for col := 0; col < width; col++ {
			sx := (float64(col) + 0.5) * float64(g.Width) / float64(width)
			var v float64
			switch method {
			case ResamplingBilinear:
				v = g.sampleBilinear(sx, sy)
			case ResamplingCubic:
				v = g.sampleCubic(sx, sy)
			default:
				v = g.sampleNearest(sx, sy)
			}
			out.Set(row, col, v)
		}
	}
	return out
}

func (g *Grid) sampleNearest(sx, sy float64) float64 {
	return g.At(clamp(int(sy), 0, g.Height-1), clamp(int(sx), 0, g.Width-1))
}

func (g *Grid) sampleBilinear(sx, sy float64) float64 {
	fx := sx - 0.5
	fy := sy - 0.5
	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	wx := fx - float64(x0)
	wy := fy - float64(y0)

	sum, weight := 0.0, 0.0
	for dy := 0; dy <= 1; dy++ {
		for dx := 0; dx <= 1; dx++ {
			v := g.At(clamp(y0+dy, 0, g.Height-1), clamp(x0+dx, 0, g.Width-1))
			if g.isNodata(v) {
				continue
			}
			w := (1 - math.Abs(float64(dx)-wx)) * (1 - math.Abs(float64(dy)-wy))
			sum += v * w
			weight += w
		}
	}
	if weight == 0 {
		return g.Nodata
	}
	return sum / weight
}

// sampleCubic interpolates with a separable Catmull-Rom kernel. Cells with
// nodata in the 4x4 neighbourhood fall back to the nearest sample.
func (g *Grid) sampleCubic(sx, sy float64) float64 {
	fx := sx - 0.5
	fy := sy - 0.5
	x1 := int(math.Floor(fx))
	y1 := int(math.Floor(fy))
	tx := fx - float64(x1)
	ty := fy - float64(y1)

	var rows [4]float64
	for dy := -1; dy <= 2; dy++ {
		var cells [4]float64
		for dx := -1; dx <= 2; dx++ {
			v := g.At(clamp(y1+dy, 0, g.Height-1), clamp(x1+dx, 0, g.Width-1))
			if g.isNodata(v) {
				return g.sampleNearest(sx, sy)
			}
			cells[dx+1] = v
		}
		rows[dy+1] = catmullRom(cells, tx)
	}
	return catmullRom(rows, ty)
}

func catmullRom(p [4]float64, t float64) float64 {
	return p[1] + 0.5*t*(p[2]-p[0]+t*(2*p[0]-5*p[1]+4*p[2]-p[3]+t*(3*(p[1]-p[2])+p[3]-p[0])))
}

func (g *Grid) isNodata(v float64) bool {
	return v == g.Nodata || (math.IsNaN(v) && math.IsNaN(g.Nodata))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
