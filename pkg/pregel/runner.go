package pregel

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

const (
	// DefaultMaxRounds bounds the number of committed supersteps per run.
	DefaultMaxRounds = 1000

	// DefaultParallelism is the number of nodes evaluated concurrently in a superstep.
	DefaultParallelism = 4
)

var tracer = otel.Tracer("cutdeck.pregel")

// Status is the scheduler state of a run.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusRunning    Status = "running"
	StatusTerminated Status = "terminated"
	StatusFailed     Status = "failed"
)

// RunResult is the outcome of a run. On failure it carries the values
// committed by the last successful superstep.
type RunResult struct {
	RunID    string
	Status   Status
	Rounds   int
	Values   map[string]any
	Duration time.Duration
}

// RoundReport describes one committed superstep.
type RoundReport struct {
	RunID       string
	Round       int
	ActiveNodes []string
	Writes      map[string]any
	Duration    time.Duration
}

// Observer is notified after every committed superstep.
// Calls happen on the run's goroutine, between supersteps.
type Observer interface {
	RoundCommitted(ctx context.Context, report RoundReport)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, report RoundReport)

// RoundCommitted calls f.
func (f ObserverFunc) RoundCommitted(ctx context.Context, report RoundReport) {
	f(ctx, report)
}

// Runner executes plans. A Runner holds only configuration and is safe for
// concurrent use; every Run owns its own channel values.
type Runner struct {
	logger      *zap.Logger
	maxRounds   int
	parallelism int
	observer    Observer
	runID       string
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger used for run and superstep logs.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMaxRounds sets the non-termination guard. Values below 1 keep the default.
func WithMaxRounds(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxRounds = n
		}
	}
}

// WithParallelism sets how many nodes may compute concurrently within a superstep.
// 1 evaluates nodes sequentially in declaration order.
func WithParallelism(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.parallelism = n
		}
	}
}

// WithObserver registers an observer for committed supersteps.
func WithObserver(o Observer) Option {
	return func(r *Runner) {
		r.observer = o
	}
}

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id string) Option {
	return func(r *Runner) {
		r.runID = id
	}
}

// NewRunner creates a runner with the given options
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		logger:      zap.NewNop(),
		maxRounds:   DefaultMaxRounds,
		parallelism: DefaultParallelism,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run validates the plan and drives it to quiescence.
//
// The returned RunResult is never nil once the plan has been accepted; on
// error it holds the last committed values. Validation errors are returned
// before any node is invoked.
func (r *Runner) Run(ctx context.Context, plan *Plan) (*RunResult, error) {
	if plan == nil {
		return nil, ErrNilPlan
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	runID := r.runID
	if runID == "" {
		runID = uuid.NewString()
	}

	s := newScheduler(r, plan, runID)
	return s.run(ctx)
}

// Run executes a plan with a one-off Runner.
func Run(ctx context.Context, plan *Plan, opts ...Option) (*RunResult, error) {
	return NewRunner(opts...).Run(ctx, plan)
}
