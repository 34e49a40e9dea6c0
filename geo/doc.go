// Package geo provides the tile pyramid geometry used by the processing
// engine: zoom level ranges, tile value types with arithmetic parent/child
// navigation, tile iteration over an area, and fast recursive tile counting.
//
// Tiles are plain values addressed by (zoom, row, col) with a reference to
// their owning pyramid. Parents and children are always computed from the
// indices, never stored, so tile graphs cannot form cycles.
//
// Bounds are expressed as orb.Bound in the pyramid's grid coordinates.
package geo
