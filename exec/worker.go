package exec

import (
	"context"
	"encoding/gob"
	"errors"
	"io"
	"os"

	"github.com/kbukum/tilekit/raster"
)

// workerEnv marks a process spawned as a subprocess worker.
const workerEnv = "TILEKIT_WORKER"

// workerRequest crosses the boundary parent-to-worker.
type workerRequest struct {
	ID   string
	Func string
	Args map[string]any
}

// workerResponse crosses the boundary worker-to-parent.
type workerResponse struct {
	ID    string
	Value any
	Err   string
}

func init() {
	// Concrete payload types crossing the gob boundary.
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register(&raster.Grid{})
}

// IsWorker reports whether this process was spawned as a subprocess worker.
func IsWorker() bool {
	return os.Getenv(workerEnv) == "1"
}

// RunWorker serves calls from stdin until EOF. A binary using the
// subprocess backend must call it from main when IsWorker reports true,
// passing the same registry the parent validates against.
func RunWorker(reg *Registry) error {
	return serveWorker(context.Background(), reg, os.Stdin, os.Stdout)
}

func serveWorker(ctx context.Context, reg *Registry, r io.Reader, w io.Writer) error {
	dec := gob.NewDecoder(r)
	enc := gob.NewEncoder(w)

	for {
		var req workerRequest
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		resp := workerResponse{ID: req.ID}
		if fn, ok := reg.Lookup(req.Func); ok {
			value, err := fn(ctx, req.Args)
			if err != nil {
				resp.Err = err.Error()
			} else {
				resp.Value = value
			}
		} else {
			resp.Err = "unknown function " + req.Func
		}

		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
}
