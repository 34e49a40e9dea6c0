package geo

import (
	"fmt"
	"iter"
)

// ZoomLevels is a contiguous, inclusive range of zoom levels.
type ZoomLevels struct {
	Min int
	Max int
}

// NewZoomLevels creates a zoom range. Min and Max may be equal.
func NewZoomLevels(minZoom, maxZoom int) (ZoomLevels, error) {
	if minZoom < 0 || maxZoom < 0 {
		return ZoomLevels{}, fmt.Errorf("geo: zoom levels must be non-negative, got [%d, %d]", minZoom, maxZoom)
	}
	if minZoom > maxZoom {
		return ZoomLevels{}, fmt.Errorf("geo: min zoom %d exceeds max zoom %d", minZoom, maxZoom)
	}
	return ZoomLevels{Min: minZoom, Max: maxZoom}, nil
}

// Contains reports whether zoom lies within the range.
func (z ZoomLevels) Contains(zoom int) bool {
	return zoom >= z.Min && zoom <= z.Max
}

// Count returns the number of zoom levels in the range.
func (z ZoomLevels) Count() int {
	return z.Max - z.Min + 1
}

// Ascending iterates zoom levels from Min up to Max.
func (z ZoomLevels) Ascending() iter.Seq[int] {
	return func(yield func(int) bool) {
		for zoom := z.Min; zoom <= z.Max; zoom++ {
			if !yield(zoom) {
				return
			}
		}
	}
}

// Descending iterates zoom levels from Max down to Min.
func (z ZoomLevels) Descending() iter.Seq[int] {
	return func(yield func(int) bool) {
		for zoom := z.Max; zoom >= z.Min; zoom-- {
			if !yield(zoom) {
				return
			}
		}
	}
}

// Intersection returns the overlap of two ranges. ok is false when the
// ranges are disjoint.
func (z ZoomLevels) Intersection(other ZoomLevels) (ZoomLevels, bool) {
	lo := max(z.Min, other.Min)
	hi := min(z.Max, other.Max)
	if lo > hi {
		return ZoomLevels{}, false
	}
	return ZoomLevels{Min: lo, Max: hi}, true
}

func (z ZoomLevels) String() string {
	return fmt.Sprintf("[%d, %d]", z.Min, z.Max)
}
