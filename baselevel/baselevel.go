// Package baselevel derives tiles outside the direct-computation zoom range
// by resampling neighbouring zoom levels. Zooms below the range mosaic the
// tile's children one zoom deeper; zooms above the range cut the covering
// quadrant from the parent one zoom shallower.
package baselevel

import (
	"context"

	"github.com/kbukum/tilekit/errors"
	"github.com/kbukum/tilekit/geo"
	"github.com/kbukum/tilekit/raster"
)

// State classifies a zoom against the direct-computation range.
type State int

const (
	// InRange zooms execute the user function directly.
	InRange State = iota
	// BelowRange zooms resample from children one zoom deeper.
	BelowRange
	// AboveRange zooms resample from the parent one zoom shallower.
	AboveRange
)

func (s State) String() string {
	switch s {
	case BelowRange:
		return "below-range"
	case AboveRange:
		return "above-range"
	}
	return "in-range"
}

// SourceFunc fetches a neighbouring tile's grid: an already-computed
// dependency result where available, persisted output otherwise. A nil grid
// or a nodata error both mean the tile has no data.
type SourceFunc func(ctx context.Context, t geo.Tile) (*raster.Grid, error)

// Interpolator resolves tiles whose zoom lies outside the baselevel range.
type Interpolator struct {
	// Levels is the direct-computation zoom range.
	Levels geo.ZoomLevels
	// Lower resamples when deriving below-range zooms from children.
	Lower raster.Resampling
	// Higher resamples when deriving above-range zooms from the parent.
	Higher raster.Resampling
	// Nodata fills pixels without source data.
	Nodata float64
	// Source fetches neighbouring tiles.
	Source SourceFunc
}

// StateFor classifies a zoom level.
func (i *Interpolator) StateFor(zoom int) State {
	switch {
	case zoom < i.Levels.Min:
		return BelowRange
	case zoom > i.Levels.Max:
		return AboveRange
	default:
		return InRange
	}
}

// Interpolate resolves one out-of-range tile. In-range tiles are a caller
// error; the scheduler routes them to direct execution.
func (i *Interpolator) Interpolate(ctx context.Context, t geo.Tile) (*raster.Grid, error) {
	switch i.StateFor(t.Zoom) {
	case BelowRange:
		return i.fromChildren(ctx, t)
	case AboveRange:
		return i.fromParent(ctx, t)
	default:
		return nil, errors.ZoomOutOfRange(t.Zoom)
	}
}

// fromChildren mosaics the tile's children one zoom deeper, downsampled
// with the lower resampling. With no child data the result is fully empty.
func (i *Interpolator) fromChildren(ctx context.Context, t geo.Tile) (*raster.Grid, error) {
	width, height := t.Shape()
	out := raster.New(width, height, t.Bound(), i.Nodata)

	for _, child := range t.Children() {
		src, err := i.fetch(ctx, child)
		if err != nil {
			return nil, err
		}
		if src == nil || src.IsEmpty() {
			continue
		}
		out.Paste(scaleTo(src, out, i.Lower))
	}
	return out, nil
}

// fromParent cuts the covering quadrant from the parent one zoom shallower,
// upsampled with the higher resampling.
func (i *Interpolator) fromParent(ctx context.Context, t geo.Tile) (*raster.Grid, error) {
	width, height := t.Shape()
	out := raster.New(width, height, t.Bound(), i.Nodata)

	parent, ok := t.Parent()
	if !ok {
		return out, nil
	}
	src, err := i.fetch(ctx, parent)
	if err != nil {
		return nil, err
	}
	if src == nil || src.IsEmpty() {
		return out, nil
	}
	out.Paste(scaleTo(src, out, i.Higher))
	return out, nil
}

func (i *Interpolator) fetch(ctx context.Context, t geo.Tile) (*raster.Grid, error) {
	src, err := i.Source(ctx, t)
	if err != nil {
		if errors.IsNodata(err) {
			return nil, nil
		}
		return nil, err
	}
	return src, nil
}

// scaleTo resamples src to the target's pixel size, keeping src's
// footprint. Paste then copies the overlapping window.
func scaleTo(src *raster.Grid, target *raster.Grid, method raster.Resampling) *raster.Grid {
	px := target.PixelWidth()
	py := target.PixelHeight()
	width := max(int((src.Bound.Max[0]-src.Bound.Min[0])/px+0.5), 1)
	height := max(int((src.Bound.Max[1]-src.Bound.Min[1])/py+0.5), 1)
	return src.Resample(method, width, height)
}
