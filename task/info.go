package task

import (
	"fmt"

	"github.com/kbukum/tilekit/geo"
	"github.com/kbukum/tilekit/raster"
)

// Info records the outcome of one task.
type Info struct {
	Task       string
	Tile       *geo.Tile
	Processed  bool
	ProcessMsg string
	Written    bool
	WriteMsg   string

	// Output holds the computed payload. It may be dropped once written to
	// save memory.
	Output *raster.Grid
}

// Skipped builds the record of a tile bypassed because output already
// exists.
func Skipped(t geo.Tile) Info {
	return Info{
		Task:       t.ID(),
		Tile:       &t,
		Processed:  false,
		ProcessMsg: "output already exists",
	}
}

// DropOutput clears the payload, keeping the outcome record.
func (i *Info) DropOutput() {
	i.Output = nil
}

func (i Info) String() string {
	return fmt.Sprintf("info(%s, processed=%t, written=%t)", i.Task, i.Processed, i.Written)
}
