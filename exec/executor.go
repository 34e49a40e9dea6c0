package exec

import (
	"context"
	stderrors "errors"
	"iter"

	"github.com/kbukum/tilekit/errors"
	"github.com/kbukum/tilekit/task"
)

// Result wraps one settled task.
type Result struct {
	Task    task.Task
	Value   any
	Err     error
	Skipped bool
}

// Executor is the contract common to all backends.
type Executor interface {
	// AsCompleted submits tasks lazily and yields results as they settle,
	// in completion order. In-flight submissions never exceed the
	// configured bound; a skip predicate short-circuits submission and
	// yields a skipped result directly.
	AsCompleted(ctx context.Context, tasks iter.Seq[task.Task], opts ...Option) iter.Seq[Result]
	// Map runs tasks eagerly and returns results in submission order.
	Map(ctx context.Context, tasks []task.Task, opts ...Option) []Result
	// Cancel stops calls currently in flight: their submission halts and
	// outstanding work settles cancelled. Calls made afterwards run
	// normally. It is safe to call from any goroutine, more than once.
	Cancel()
	// Close releases backend resources.
	Close() error
}

// GraphExecutor is implemented by backends that resolve a whole dependency
// graph in one call.
type GraphExecutor interface {
	Executor
	// RunGraph resolves the graph honoring its edges, streaming results as
	// dependencies settle. Tasks of independent subtrees may overlap in
	// flight.
	RunGraph(ctx context.Context, g *task.Graph, opts ...Option) iter.Seq[Result]
}

// options collects per-call settings.
type options struct {
	maxInFlight int
	skip        func(task.Task) bool
	deps        func(task.Task) map[string]any
}

// Option configures one AsCompleted, Map or RunGraph call.
type Option func(*options)

// WithMaxInFlight bounds unresolved submissions.
func WithMaxInFlight(n int) Option {
	return func(o *options) { o.maxInFlight = n }
}

// WithSkip installs an item-level skip predicate.
func WithSkip(fn func(task.Task) bool) Option {
	return func(o *options) { o.skip = fn }
}

// WithDeps installs a dependency-result lookup the orchestrator resolved
// ahead of submission. Graph backends ignore it and wire results from their
// own edges.
func WithDeps(fn func(task.Task) map[string]any) Option {
	return func(o *options) { o.deps = fn }
}

func buildOptions(defaultInFlight int, opts []Option) options {
	o := options{maxInFlight: defaultInFlight}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxInFlight <= 0 {
		o.maxInFlight = 1
	}
	return o
}

func (o options) depsFor(t task.Task) map[string]any {
	if o.deps == nil {
		return nil
	}
	return o.deps(t)
}

// Kind selects an execution backend.
type Kind string

const (
	KindSequential Kind = "sequential"
	KindPool       Kind = "pool"
	KindSubprocess Kind = "subprocess"
	KindGraph      Kind = "graph"
)

// Config parameterizes backend construction.
type Config struct {
	Kind    Kind `yaml:"kind" mapstructure:"kind"`
	Workers int  `yaml:"workers" mapstructure:"workers"`
	// Registry resolves remote function names for subprocess workers.
	Registry *Registry `yaml:"-" mapstructure:"-"`
}

// New selects a concrete backend. Unknown kinds fail with a config error.
func New(cfg Config) (Executor, error) {
	switch cfg.Kind {
	case KindSequential, "":
		return NewSequential(), nil
	case KindPool:
		return NewPool(cfg.Workers), nil
	case KindSubprocess:
		return NewSubprocess(cfg.Workers, cfg.Registry), nil
	case KindGraph:
		return NewGraph(cfg.Workers), nil
	default:
		return nil, errors.ConfigInvalid("unknown executor kind "+string(cfg.Kind)).
			WithDetail("kind", string(cfg.Kind))
	}
}

// failed normalizes a settled task's error. User-function failures,
// cancellations and nodata signals already carry their taxonomy and pass
// through; a bare context cancellation becomes the task-cancelled signal;
// anything else is infrastructure trouble and wraps as task-failed.
func failed(id string, err error) error {
	switch {
	case errors.IsCode(err, errors.ErrCodeProcessFailed),
		errors.IsCode(err, errors.ErrCodeTaskCancelled),
		errors.IsCode(err, errors.ErrCodeNodataTile):
		return err
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return errors.TaskCancelled(id)
	}
	return errors.TaskFailed(id, err)
}
