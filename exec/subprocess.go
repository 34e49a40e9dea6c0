package exec

import (
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"iter"
	"os"
	osexec "os/exec"
	"runtime"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kbukum/tilekit/task"
)

// Subprocess runs tasks on isolated worker processes. Calls cross a gob
// serialization boundary, so only tasks implementing Remote can run here.
// Workers are spawned lazily from this binary and reused across tasks.
type Subprocess struct {
	workers  int
	binary   string
	args     []string
	registry *Registry
	cancel   cancels

	// gracePeriod is how long to wait after SIGTERM before SIGKILL.
	gracePeriod time.Duration

	mu      sync.Mutex
	free    chan *workerProc
	procs   []*workerProc
	spawned int
	closed  bool
}

// NewSubprocess creates the process-pool backend. workers <= 0 selects one
// worker per CPU. The registry validates remote calls before dispatch; the
// worker side resolves them through RunWorker.
func NewSubprocess(workers int, reg *Registry) *Subprocess {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Subprocess{
		workers:     workers,
		binary:      os.Args[0],
		registry:    reg,
		gracePeriod: 5 * time.Second,
		free:        make(chan *workerProc, workers),
	}
}

// Command overrides the worker binary and arguments. Intended for tests and
// for binaries whose worker entry point needs flags.
func (s *Subprocess) Command(binary string, args ...string) {
	s.binary = binary
	s.args = args
}

func (s *Subprocess) AsCompleted(ctx context.Context, tasks iter.Seq[task.Task], opts ...Option) iter.Seq[Result] {
	o := buildOptions(s.workers, opts)
	return func(yield func(Result) bool) {
		ctx, stop := context.WithCancel(ctx)
		defer stop()
		settled := s.cancel.add(stop)
		defer settled()

		sem := semaphore.NewWeighted(int64(o.maxInFlight))
		results := make(chan Result)
		var wg sync.WaitGroup

		submitted := make(chan struct{})
		go func() {
			defer close(submitted)
			for t := range tasks {
				if ctx.Err() != nil {
					return
				}
				if o.skip != nil && o.skip(t) {
					select {
					case results <- Result{Task: t, Skipped: true}:
					case <-ctx.Done():
						return
					}
					continue
				}
				if err := sem.Acquire(ctx, 1); err != nil {
					return
				}
				wg.Add(1)
				go func(t task.Task) {
					defer wg.Done()
					defer sem.Release(1)
					value, err := s.run(ctx, t)
					if err != nil {
						err = failed(t.ID(), err)
					}
					select {
					case results <- Result{Task: t, Value: value, Err: err}:
					case <-ctx.Done():
					}
				}(t)
			}
		}()
		go func() {
			<-submitted
			wg.Wait()
			close(results)
		}()

		for r := range results {
			if !yield(r) {
				stop()
				return
			}
		}
	}
}

func (s *Subprocess) Map(ctx context.Context, tasks []task.Task, opts ...Option) []Result {
	byID := make(map[string]int, len(tasks))
	for i, t := range tasks {
		byID[t.ID()] = i
	}
	results := make([]Result, len(tasks))
	for r := range s.AsCompleted(ctx, sliceSeq(tasks), opts...) {
		results[byID[r.Task.ID()]] = r
	}
	return results
}

func (s *Subprocess) Cancel() { s.cancel.cancelAll() }

// Close terminates all workers: stdin is closed for a graceful exit, then
// the process group gets SIGTERM and, after the grace period, SIGKILL.
func (s *Subprocess) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	procs := s.procs
	s.procs = nil
	s.mu.Unlock()

	var firstErr error
	for _, w := range procs {
		if err := w.shutdown(s.gracePeriod); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// run dispatches one task to a worker process and waits for its response.
func (s *Subprocess) run(ctx context.Context, t task.Task) (any, error) {
	rt, ok := t.(Remote)
	if !ok {
		return nil, fmt.Errorf("exec: task %s cannot cross the process boundary", t.ID())
	}
	name, args := rt.RemoteCall()
	if name == "" {
		return nil, fmt.Errorf("exec: task %s has no remote function bound", t.ID())
	}
	if s.registry != nil && !s.registry.Has(name) {
		return nil, fmt.Errorf("exec: function %q not registered", name)
	}

	w, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := w.roundTrip(ctx, workerRequest{ID: t.ID(), Func: name, Args: args})
	if err != nil {
		// The worker's stream state is unknown; drop it.
		_ = w.shutdown(s.gracePeriod)
		s.drop(w)
		return nil, err
	}
	s.release(w)

	if resp.Err != "" {
		return nil, fmt.Errorf("exec: worker: %s", resp.Err)
	}
	return resp.Value, nil
}

func (s *Subprocess) acquire(ctx context.Context) (*workerProc, error) {
	select {
	case w := <-s.free:
		return w, nil
	default:
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("exec: subprocess backend is closed")
	}
	if s.spawned < s.workers {
		s.spawned++
		s.mu.Unlock()
		w, err := s.spawn()
		if err != nil {
			s.mu.Lock()
			s.spawned--
			s.mu.Unlock()
			return nil, err
		}
		s.mu.Lock()
		s.procs = append(s.procs, w)
		s.mu.Unlock()
		return w, nil
	}
	s.mu.Unlock()

	select {
	case w := <-s.free:
		return w, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Subprocess) release(w *workerProc) {
	select {
	case s.free <- w:
	default:
	}
}

func (s *Subprocess) drop(w *workerProc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.procs {
		if p == w {
			s.procs = append(s.procs[:i], s.procs[i+1:]...)
			break
		}
	}
	s.spawned--
}

func (s *Subprocess) spawn() (*workerProc, error) {
	cmd := osexec.Command(s.binary, s.args...) //nolint:gosec // spawning our own binary is the point
	cmd.Env = append(os.Environ(), workerEnv+"=1")
	cmd.Stderr = os.Stderr
	// Own process group so the whole tree can be signalled
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("exec: starting worker: %w", err)
	}

	return &workerProc{
		cmd:   cmd,
		stdin: stdin,
		enc:   gob.NewEncoder(stdin),
		dec:   gob.NewDecoder(stdout),
	}, nil
}

// workerProc is one worker process handling calls serially.
type workerProc struct {
	cmd   *osexec.Cmd
	stdin io.WriteCloser
	enc   *gob.Encoder
	dec   *gob.Decoder
}

// roundTrip sends one request and waits for its response. Cancellation
// tears the worker down, which unblocks the pending decode.
func (w *workerProc) roundTrip(ctx context.Context, req workerRequest) (workerResponse, error) {
	if err := w.enc.Encode(req); err != nil {
		return workerResponse{}, fmt.Errorf("exec: sending to worker: %w", err)
	}

	type decoded struct {
		resp workerResponse
		err  error
	}
	ch := make(chan decoded, 1)
	go func() {
		var resp workerResponse
		err := w.dec.Decode(&resp)
		ch <- decoded{resp: resp, err: err}
	}()

	select {
	case d := <-ch:
		if d.err != nil {
			return workerResponse{}, fmt.Errorf("exec: reading from worker: %w", d.err)
		}
		return d.resp, nil
	case <-ctx.Done():
		w.kill()
		<-ch
		return workerResponse{}, ctx.Err()
	}
}

// shutdown closes stdin for a graceful exit and escalates SIGTERM then
// SIGKILL on the process group.
func (w *workerProc) shutdown(grace time.Duration) error {
	_ = w.stdin.Close()
	if w.cmd.Process != nil {
		_ = syscall.Kill(-w.cmd.Process.Pid, syscall.SIGTERM)
	}

	done := make(chan error, 1)
	go func() { done <- w.cmd.Wait() }()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		w.kill()
		return <-done
	}
}

func (w *workerProc) kill() {
	if w.cmd.Process != nil {
		_ = syscall.Kill(-w.cmd.Process.Pid, syscall.SIGKILL)
	}
}
