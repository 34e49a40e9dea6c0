package engine

import (
	"context"
	"sync"

	"github.com/kbukum/tilekit/task"
)

// Stream is the lazy, finite, non-restartable result sequence of one run.
// Records arrive in completion order within a batch; no order is guaranteed
// beyond what the chosen strategy enforces.
type Stream struct {
	total   int
	results chan task.Info

	cancelRun context.CancelFunc
	cancelMu  sync.Mutex
	cancelled bool

	errMu sync.Mutex
	err   error
}

func newStream(total int, cancelRun context.CancelFunc) *Stream {
	return &Stream{
		total:     total,
		results:   make(chan task.Info),
		cancelRun: cancelRun,
	}
}

// Total returns the number of records the stream will produce when it runs
// to completion.
func (s *Stream) Total() int { return s.total }

// Next blocks for the next record. The second return is false once the
// stream is exhausted, aborted or cancelled; consult Err afterwards.
func (s *Stream) Next(ctx context.Context) (task.Info, bool) {
	select {
	case info, ok := <-s.results:
		if !ok {
			return task.Info{}, false
		}
		return info, true
	case <-ctx.Done():
		s.fail(ctx.Err())
		return task.Info{}, false
	}
}

// Cancel stops further submission and lets in-flight work settle. The
// stream ends without an error; progress already written is preserved.
func (s *Stream) Cancel() {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	if s.cancelled {
		return
	}
	s.cancelled = true
	s.cancelRun()
}

// Close cancels the run and drains remaining records.
func (s *Stream) Close() {
	s.Cancel()
	for range s.results {
	}
}

// Err returns the error that aborted the stream, or nil after a clean
// finish or an explicit Cancel.
func (s *Stream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Stream) fail(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *Stream) wasCancelled() bool {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	return s.cancelled
}

// emit delivers one record unless the run context ended first.
func (s *Stream) emit(ctx context.Context, info task.Info) bool {
	select {
	case s.results <- info:
		return true
	case <-ctx.Done():
		return false
	}
}
