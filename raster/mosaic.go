package raster

import "math"

// Paste copies the non-nodata cells of src into the matching pixel window of
// the receiver, located by georeference. The source resolution must already
// match the receiver's; callers resample first.
func (g *Grid) Paste(src *Grid) {
	if src == nil || len(src.Data) == 0 {
		return
	}
	pw := g.PixelWidth()
	ph := g.PixelHeight()
	if pw == 0 || ph == 0 {
		return
	}
	colOff := int(math.Round((src.Bound.Min[0] - g.Bound.Min[0]) / pw))
	rowOff := int(math.Round((g.Bound.Max[1] - src.Bound.Max[1]) / ph))

	for row := 0; row < src.Height; row++ {
		for col := 0; col < src.Width; col++ {
			v := src.At(row, col)
			if src.isNodata(v) {
				continue
			}
			g.Set(rowOff+row, colOff+col, v)
		}
	}
}
