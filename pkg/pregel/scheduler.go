package pregel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// scheduler runs the superstep loop for a single run.
type scheduler struct {
	cfg    *Runner
	plan   *Plan
	runID  string
	logger *zap.Logger

	status Status
	round  int
	store  *channelStore
}

// pendingWrite is a translated node output waiting for commit.
type pendingWrite struct {
	node    string
	channel string
	value   any
}

func newScheduler(cfg *Runner, plan *Plan, runID string) *scheduler {
	return &scheduler{
		cfg:    cfg,
		plan:   plan,
		runID:  runID,
		logger: cfg.logger.With(zap.String("run_id", runID)),
		status: StatusIdle,
		store:  newChannelStore(plan.channels),
	}
}

// run drives supersteps until quiescence or failure
func (s *scheduler) run(ctx context.Context) (*RunResult, error) {
	ctx, span := tracer.Start(ctx, "pregel.Run",
		trace.WithAttributes(
			attribute.String("pregel.run_id", s.runID),
			attribute.Int("pregel.channel_count", len(s.plan.channels)),
			attribute.Int("pregel.node_count", len(s.plan.nodes)),
		),
	)
	defer span.End()

	start := time.Now()
	s.status = StatusRunning

	s.logger.Info("run started",
		zap.Int("channels", len(s.plan.channels)),
		zap.Int("nodes", len(s.plan.nodes)),
		zap.Int("max_rounds", s.cfg.maxRounds))

	for {
		// Cancellation is only observed between supersteps
		if err := ctx.Err(); err != nil {
			return s.fail(span, start, err)
		}

		done, err := s.superstep(ctx)
		if err != nil {
			return s.fail(span, start, err)
		}
		if done {
			break
		}
	}

	s.status = StatusTerminated
	duration := time.Since(start)
	span.SetAttributes(attribute.Int("pregel.rounds", s.round))
	span.SetStatus(codes.Ok, "")

	s.logger.Info("run terminated",
		zap.Int("rounds", s.round),
		zap.Duration("duration", duration))

	return s.result(duration), nil
}

// superstep executes one round. It reports done when no node was active.
func (s *scheduler) superstep(ctx context.Context) (bool, error) {
	round := s.round + 1
	start := time.Now()

	ctx, span := tracer.Start(ctx, "pregel.Superstep",
		trace.WithAttributes(attribute.Int("pregel.round", round)),
	)
	defer span.End()

	// Snapshot
	snap := s.store.snapshot()

	// Invoke
	results, err := s.invoke(ctx, round, snap)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "node failed")
		return false, err
	}

	// Translate
	writes, active, err := s.translate(round, results)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "translate failed")
		return false, err
	}

	// Terminate check
	if len(active) == 0 {
		span.SetAttributes(attribute.Bool("pregel.quiescent", true))
		return true, nil
	}

	if round > s.cfg.maxRounds {
		err := &NonTerminationError{MaxRounds: s.cfg.maxRounds}
		span.RecordError(err)
		span.SetStatus(codes.Error, "max rounds exceeded")
		return false, err
	}

	// Commit
	next, err := s.store.stage(writes, round)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return false, err
	}
	s.store.commit(next)
	s.round = round

	committed := make(map[string]any, len(writes))
	for _, w := range writes {
		committed[w.channel] = next[w.channel]
	}

	duration := time.Since(start)
	span.SetAttributes(
		attribute.Int("pregel.active_nodes", len(active)),
		attribute.Int("pregel.writes", len(writes)),
	)

	s.logger.Debug("superstep committed",
		zap.Int("round", round),
		zap.Strings("active_nodes", active),
		zap.Int("writes", len(writes)),
		zap.Duration("duration", duration))

	if s.cfg.observer != nil {
		s.cfg.observer.RoundCommitted(ctx, RoundReport{
			RunID:       s.runID,
			Round:       round,
			ActiveNodes: active,
			Writes:      committed,
			Duration:    duration,
		})
	}

	return false, nil
}

// invoke calls every node against the snapshot. Errors are reported for the
// first failing node in declaration order so failures are deterministic.
func (s *scheduler) invoke(ctx context.Context, round int, snap Snapshot) ([]Result, error) {
	results := make([]Result, len(s.plan.nodes))
	errs := make([]error, len(s.plan.nodes))

	var g errgroup.Group
	g.SetLimit(s.cfg.parallelism)

	for i, n := range s.plan.nodes {
		i, n := i, n
		g.Go(func() error {
			results[i], errs[i] = s.compute(ctx, round, n, snap.subset(n.inputs))
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// compute invokes a single node, converting errors and panics into NodeError
func (s *scheduler) compute(ctx context.Context, round int, n *nodeEntry, in Snapshot) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &NodeError{Node: n.name, Round: round, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	res, err = n.node.Compute(ctx, in)
	if err != nil {
		return Result{}, &NodeError{Node: n.name, Round: round, Err: err}
	}
	return res, nil
}

// translate maps output keys to channels in node declaration order
func (s *scheduler) translate(round int, results []Result) ([]pendingWrite, []string, error) {
	var writes []pendingWrite
	var active []string

	for i, n := range s.plan.nodes {
		res := results[i]
		if !res.IsActive() {
			continue
		}
		active = append(active, n.name)

		outputs := res.Outputs()
		for _, key := range sortedKeys(outputs) {
			ch, ok := n.writes[key]
			if !ok {
				return nil, nil, &UnmappedOutputKeyError{Node: n.name, Key: key, Round: round}
			}
			writes = append(writes, pendingWrite{
				node:    n.name,
				channel: ch,
				value:   outputs[key],
			})
		}
	}

	return writes, active, nil
}

// fail transitions to Failed and returns the last committed values
func (s *scheduler) fail(span trace.Span, start time.Time, err error) (*RunResult, error) {
	s.status = StatusFailed
	duration := time.Since(start)

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.Int("pregel.rounds", s.round))

	s.logger.Warn("run failed",
		zap.Int("rounds", s.round),
		zap.String("error_kind", ErrorKind(err)),
		zap.Duration("duration", duration),
		zap.Error(err))

	return s.result(duration), err
}

// result builds the run result from committed state
func (s *scheduler) result(duration time.Duration) *RunResult {
	return &RunResult{
		RunID:    s.runID,
		Status:   s.status,
		Rounds:   s.round,
		Values:   s.store.snapshot(),
		Duration: duration,
	}
}
