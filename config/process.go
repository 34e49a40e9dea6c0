package config

import (
	"github.com/paulmach/orb"

	"github.com/kbukum/tilekit/errors"
	"github.com/kbukum/tilekit/geo"
	"github.com/kbukum/tilekit/logger"
	"github.com/kbukum/tilekit/validation"
)

// PyramidConfig describes one tile pyramid. Process and output pyramids
// share the grid but may differ in metatiling and pixel buffer.
type PyramidConfig struct {
	Metatiling  int `yaml:"metatiling" mapstructure:"metatiling" validate:"omitempty,oneof=1 2 4 8 16"`
	PixelBuffer int `yaml:"pixelbuffer" mapstructure:"pixelbuffer" validate:"gte=0"`
}

// BaselevelsConfig restricts direct computation to a zoom sub-range; zooms
// outside it are derived by resampling neighbouring zoom levels.
type BaselevelsConfig struct {
	Min              int    `yaml:"min" mapstructure:"min" validate:"gte=0"`
	Max              int    `yaml:"max" mapstructure:"max" validate:"gte=0"`
	LowerResampling  string `yaml:"lower" mapstructure:"lower" validate:"omitempty,oneof=nearest bilinear cubic"`
	HigherResampling string `yaml:"higher" mapstructure:"higher" validate:"omitempty,oneof=nearest bilinear cubic"`
}

// OutputConfig selects and parameterizes the output driver.
type OutputConfig struct {
	Driver        string `yaml:"driver" mapstructure:"driver" validate:"required"`
	Path          string `yaml:"path" mapstructure:"path"`
	PyramidConfig `yaml:",inline" mapstructure:",squash"`
}

// ProcessConfig is the full configuration of one processing run.
type ProcessConfig struct {
	Name       string            `yaml:"name" mapstructure:"name" validate:"required"`
	Grid       string            `yaml:"grid" mapstructure:"grid" validate:"omitempty,oneof=geodetic mercator"`
	Process    PyramidConfig     `yaml:"process" mapstructure:"process"`
	Output     OutputConfig      `yaml:"output" mapstructure:"output"`
	ZoomMin    int               `yaml:"zoom_min" mapstructure:"zoom_min" validate:"gte=0"`
	ZoomMax    int               `yaml:"zoom_max" mapstructure:"zoom_max" validate:"gte=0"`
	Bounds     []float64         `yaml:"bounds" mapstructure:"bounds" validate:"omitempty,len=4"`
	Mode       ProcessingMode    `yaml:"mode" mapstructure:"mode"`
	Baselevels *BaselevelsConfig `yaml:"baselevels" mapstructure:"baselevels"`
	Nodata     float64           `yaml:"nodata" mapstructure:"nodata"`
	Logging    logger.Config     `yaml:"logging" mapstructure:"logging"`
	Params     map[string]any    `yaml:"params" mapstructure:"params"`

	zoomParams *ZoomParams
}

// ApplyDefaults applies default values to the process configuration.
func (c *ProcessConfig) ApplyDefaults() {
	if c.Grid == "" {
		c.Grid = "geodetic"
	}
	if c.Process.Metatiling == 0 {
		c.Process.Metatiling = 1
	}
	if c.Output.Metatiling == 0 {
		c.Output.Metatiling = c.Process.Metatiling
	}
	if c.Mode == "" {
		c.Mode = ModeContinue
	}
	if c.Baselevels != nil {
		if c.Baselevels.LowerResampling == "" {
			c.Baselevels.LowerResampling = "nearest"
		}
		if c.Baselevels.HigherResampling == "" {
			c.Baselevels.HigherResampling = "nearest"
		}
	}
	c.Logging.ApplyDefaults()
}

// Validate checks the configuration. Returned errors are fatal; no task may
// run against an invalid configuration.
func (c *ProcessConfig) Validate() error {
	if err := validation.Validate(c); err != nil {
		return errors.ConfigInvalid(err.Error()).WithCause(err)
	}
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if c.ZoomMin > c.ZoomMax {
		return errors.ConfigInvalid("zoom_min must not exceed zoom_max").
			WithDetails(map[string]any{"zoom_min": c.ZoomMin, "zoom_max": c.ZoomMax})
	}
	if c.Baselevels != nil {
		if c.Baselevels.Min > c.Baselevels.Max {
			return errors.ConfigInvalid("baselevels.min must not exceed baselevels.max")
		}
		zooms, _ := geo.NewZoomLevels(c.ZoomMin, c.ZoomMax)
		if _, ok := zooms.Intersection(geo.ZoomLevels{Min: c.Baselevels.Min, Max: c.Baselevels.Max}); !ok {
			return errors.ConfigInvalid("baselevels do not overlap the configured zoom levels")
		}
	}
	if err := c.Logging.Validate(); err != nil {
		return errors.ConfigInvalid(err.Error()).WithCause(err)
	}
	return nil
}

// ZoomLevels returns the configured zoom range.
func (c *ProcessConfig) ZoomLevels() geo.ZoomLevels {
	return geo.ZoomLevels{Min: c.ZoomMin, Max: c.ZoomMax}
}

// BaselevelZooms returns the zoom range of direct computation. Without
// baselevels this equals the full configured range.
func (c *ProcessConfig) BaselevelZooms() geo.ZoomLevels {
	if c.Baselevels == nil {
		return c.ZoomLevels()
	}
	return geo.ZoomLevels{Min: c.Baselevels.Min, Max: c.Baselevels.Max}
}

// ProcessPyramid builds the pyramid tiles are computed on.
func (c *ProcessConfig) ProcessPyramid() (*geo.Pyramid, error) {
	return geo.NewPyramid(c.Grid, c.Process.Metatiling, c.Process.PixelBuffer)
}

// OutputPyramid builds the pyramid output tiles are addressed on.
func (c *ProcessConfig) OutputPyramid() (*geo.Pyramid, error) {
	return geo.NewPyramid(c.Grid, c.Output.Metatiling, c.Output.PixelBuffer)
}

// Bound returns the configured processing area, defaulting to the full grid.
func (c *ProcessConfig) Bound() orb.Bound {
	if len(c.Bounds) == 4 {
		return orb.Bound{
			Min: orb.Point{c.Bounds[0], c.Bounds[1]},
			Max: orb.Point{c.Bounds[2], c.Bounds[3]},
		}
	}
	grid, err := geo.GridByName(c.Grid)
	if err != nil {
		return orb.Bound{}
	}
	return grid.Bound
}

// ParamsAt returns the flattened parameter snapshot for a zoom level.
// Snapshots are memoized; the same zoom is never resolved twice within the
// lifetime of this configuration.
func (c *ProcessConfig) ParamsAt(zoom int) (map[string]any, error) {
	if c.zoomParams == nil {
		c.zoomParams = NewZoomParams(c.Params, c.ZoomLevels())
	}
	return c.zoomParams.At(zoom)
}
