package exec

import (
	"context"
	"fmt"
	"sync"

	"github.com/paulmach/orb"

	"github.com/kbukum/tilekit/task"
)

// RemoteFunc is a function callable across the process boundary. Its
// arguments and result must be gob-encodable.
type RemoteFunc func(ctx context.Context, args map[string]any) (any, error)

// Registry maps names to remote functions. It is constructed explicitly at
// process start and passed to the backends and the worker entry point; there
// is no import-time discovery.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]RemoteFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]RemoteFunc)}
}

// Register binds a name, rejecting duplicates.
func (r *Registry) Register(name string, fn RemoteFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.funcs[name]; ok {
		return fmt.Errorf("exec: function %q already registered", name)
	}
	r.funcs[name] = fn
	return nil
}

// Lookup resolves a registered function.
func (r *Registry) Lookup(name string) (RemoteFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Has reports whether a name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Call names a registered function and its arguments.
type Call struct {
	Func string
	Args map[string]any
}

// Remote is implemented by tasks that can cross the process boundary. The
// call is a registered function name plus gob-encodable arguments; an empty
// name means the task has no remote form.
type Remote interface {
	task.Task
	RemoteCall() (string, map[string]any)
}

// RemoteTask is a task backed by a registered function. It runs on any
// backend: in-process backends resolve the function through the registry,
// the subprocess backend ships the call to a worker.
type RemoteTask struct {
	id       string
	call     Call
	registry *Registry
	bound    *orb.Bound
}

// RemoteOption configures a RemoteTask.
type RemoteOption func(*RemoteTask)

// WithRemoteBound restricts the task to an explicit footprint.
func WithRemoteBound(b orb.Bound) RemoteOption {
	return func(t *RemoteTask) { t.bound = &b }
}

// NewRemote creates a task invoking a registered function.
func NewRemote(id string, reg *Registry, call Call, opts ...RemoteOption) *RemoteTask {
	t := &RemoteTask{id: id, call: call, registry: reg}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *RemoteTask) ID() string { return t.id }

func (t *RemoteTask) Bound() (orb.Bound, bool) {
	if t.bound == nil {
		return orb.Bound{}, false
	}
	return *t.bound, true
}

func (t *RemoteTask) RemoteCall() (string, map[string]any) { return t.call.Func, t.call.Args }

// Execute resolves the function locally. Dependency results stay on this
// side of the boundary; only the declared arguments cross it.
func (t *RemoteTask) Execute(ctx context.Context, deps map[string]any) (any, error) {
	fn, ok := t.registry.Lookup(t.call.Func)
	if !ok {
		return nil, fmt.Errorf("exec: function %q not registered", t.call.Func)
	}
	return fn(ctx, t.call.Args)
}
