package task

import (
	"context"

	"github.com/paulmach/orb"
)

// Func is the callable bound to a plain task. Dependency results of the
// previous batch are visible through deps, keyed by task id.
type Func func(ctx context.Context, deps map[string]any) (any, error)

// Task is one executable unit of a processing run.
type Task interface {
	// ID uniquely identifies the task within a run.
	ID() string
	// Bound returns the task's footprint. ok is false for global tasks,
	// which intersect everything.
	Bound() (orb.Bound, bool)
	// Execute runs the task with the dependency results visible to it.
	Execute(ctx context.Context, deps map[string]any) (any, error)
}

// BasicTask is a plain task, typically a preprocessing step running before
// any tile batch.
type BasicTask struct {
	id    string
	fn    Func
	bound *orb.Bound
}

// BasicOption configures a BasicTask.
type BasicOption func(*BasicTask)

// WithBound restricts the task to an explicit footprint.
func WithBound(b orb.Bound) BasicOption {
	return func(t *BasicTask) { t.bound = &b }
}

// WithGeometry restricts the task to a geometry's footprint. At most one of
// WithBound and WithGeometry applies; the later option wins.
func WithGeometry(g orb.Geometry) BasicOption {
	return func(t *BasicTask) {
		b := g.Bound()
		t.bound = &b
	}
}

// NewBasic creates a plain task. Without a bound option the task is global.
func NewBasic(id string, fn Func, opts ...BasicOption) *BasicTask {
	t := &BasicTask{id: id, fn: fn}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *BasicTask) ID() string { return t.id }

func (t *BasicTask) Bound() (orb.Bound, bool) {
	if t.bound == nil {
		return orb.Bound{}, false
	}
	return *t.bound, true
}

func (t *BasicTask) Execute(ctx context.Context, deps map[string]any) (any, error) {
	return t.fn(ctx, deps)
}

// intersects reports whether two tasks' footprints overlap. Global tasks
// intersect everything; touching edges do not count as overlap.
func intersects(a, b Task) bool {
	ab, ok := a.Bound()
	if !ok {
		return true
	}
	bb, ok := b.Bound()
	if !ok {
		return true
	}
	return ab.Min[0] < bb.Max[0] && ab.Max[0] > bb.Min[0] &&
		ab.Min[1] < bb.Max[1] && ab.Max[1] > bb.Min[1]
}
