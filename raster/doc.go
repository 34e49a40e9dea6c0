// Package raster provides the in-memory, single-band grid payload produced
// and consumed by tile processes, together with the resampling and
// mosaicking primitives the baselevel interpolator relies on.
//
// A Grid is georeferenced by an orb.Bound; cells are row-major with row 0 at
// the top, matching tile matrix orientation. Cells holding the grid's nodata
// value are treated as "no data" by resampling and mosaicking.
package raster
