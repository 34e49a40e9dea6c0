package geo

import "github.com/paulmach/orb"

// CountTiles returns the number of tiles across the zoom range whose bounds
// overlap area. It descends the quad tree and short-circuits subtrees that
// are fully inside or fully outside the area, so it never enumerates every
// tile. The result is exactly the count TilesAt would produce per zoom.
func CountTiles(p *Pyramid, area orb.Bound, zooms ZoomLevels) int {
	total := 0
	for tile := range p.TilesAt(0, area) {
		total += countFrom(tile, area, zooms)
	}
	return total
}

func countFrom(t Tile, area orb.Bound, zooms ZoomLevels) int {
	if !t.Intersects(area) {
		return 0
	}
	if boundContains(area, t.Bound()) {
		// Every descendant overlaps the area, count arithmetically.
		n := 0
		for zoom := max(t.Zoom, zooms.Min); zoom <= zooms.Max; zoom++ {
			n += t.Descendants(zoom)
		}
		return n
	}
	n := 0
	if zooms.Contains(t.Zoom) {
		n++
	}
	if t.Zoom < zooms.Max {
		for _, child := range t.Children() {
			n += countFrom(child, area, zooms)
		}
	}
	return n
}

// boundContains reports whether outer fully covers inner.
func boundContains(outer, inner orb.Bound) bool {
	return inner.Min[0] >= outer.Min[0] && inner.Min[1] >= outer.Min[1] &&
		inner.Max[0] <= outer.Max[0] && inner.Max[1] <= outer.Max[1]
}
