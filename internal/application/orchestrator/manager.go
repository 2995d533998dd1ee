package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aescanero/cutdeck/internal/application/graphs"
	"github.com/aescanero/cutdeck/pkg/domain"
	"github.com/aescanero/cutdeck/pkg/ports"
	"github.com/aescanero/cutdeck/pkg/pregel"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrRunTerminal is returned when cancelling a run that already finished
	ErrRunTerminal = errors.New("run already in terminal state")

	// ErrRunNotLocal is returned when cancelling a run executing on another instance
	ErrRunNotLocal = errors.New("run is not executing on this instance")
)

// ManagerConfig holds engine limits applied to every run
type ManagerConfig struct {
	MaxRounds   int
	Parallelism int
	RunTimeout  time.Duration
}

// Manager coordinates graph runs
type Manager struct {
	catalog   *graphs.Catalog
	validator *Validator
	eventBus  ports.EventBus
	storage   ports.RunStorage
	metrics   ports.MetricsCollector
	logger    *zap.Logger
	cfg       ManagerConfig

	// Track active executions
	executions sync.Map // map[string]*executionContext
	activeRuns atomic.Int64

	// Serializes claiming a submitted run against cancelling it
	claimMu sync.Mutex
}

// executionContext holds state for a single run on this instance
type executionContext struct {
	runID      string
	graph      string
	status     domain.ExecutionStatus
	startedAt  time.Time
	cancelFunc context.CancelFunc
	mu         sync.RWMutex
}

// NewManager creates a new orchestrator manager
func NewManager(
	catalog *graphs.Catalog,
	eventBus ports.EventBus,
	storage ports.RunStorage,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	cfg ManagerConfig,
) *Manager {
	if cfg.MaxRounds < 1 {
		cfg.MaxRounds = pregel.DefaultMaxRounds
	}
	if cfg.Parallelism < 1 {
		cfg.Parallelism = pregel.DefaultParallelism
	}
	return &Manager{
		catalog:   catalog,
		validator: NewValidator(catalog),
		eventBus:  eventBus,
		storage:   storage,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// Graphs lists the graphs available for runs
func (m *Manager) Graphs() []graphs.Descriptor {
	return m.catalog.List()
}

// Run executes a graph synchronously and returns the final record.
// A non-nil record is returned whenever the run started, including on failure.
func (m *Manager) Run(ctx context.Context, name string, params map[string]interface{}) (*domain.RunState, error) {
	plan, err := m.validator.Validate(name, params)
	if err != nil {
		m.logger.Warn("run validation failed",
			zap.String("graph", name),
			zap.Error(err))
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	state := m.newRunState(name, params)
	if err := m.storage.SaveRun(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}
	m.metrics.RecordRunSubmitted(name)

	exec, runCtx := m.track(ctx, state)
	return m.execute(runCtx, exec, state, plan)
}

// SubmitRun validates a run request, stores it and queues it for a worker
func (m *Manager) SubmitRun(ctx context.Context, name string, params map[string]interface{}) (string, error) {
	if _, err := m.validator.Validate(name, params); err != nil {
		m.logger.Warn("run validation failed",
			zap.String("graph", name),
			zap.Error(err))
		return "", fmt.Errorf("validation failed: %w", err)
	}

	state := m.newRunState(name, params)
	if err := m.storage.SaveRun(ctx, state); err != nil {
		m.logger.Error("failed to save initial state",
			zap.String("run_id", state.RunID),
			zap.Error(err))
		return "", fmt.Errorf("failed to save run: %w", err)
	}

	event := m.newEvent(domain.EventTypeRunSubmitted, state.RunID, map[string]interface{}{
		"graph":  name,
		"params": params,
	})

	if err := m.eventBus.Publish(ctx, domain.TopicRunRequests, event); err != nil {
		m.logger.Error("failed to publish run request",
			zap.String("run_id", state.RunID),
			zap.Error(err))

		now := time.Now()
		state.Status = domain.ExecutionStatusFailed
		state.ErrorKind = pregel.KindUnknown
		state.Error = "failed to queue run"
		state.CompletedAt = &now
		_ = m.storage.SaveRun(context.WithoutCancel(ctx), state)
		return "", fmt.Errorf("failed to publish event: %w", err)
	}
	m.publish(ctx, event)

	m.metrics.RecordRunSubmitted(name)
	m.logger.Info("run submitted",
		zap.String("run_id", state.RunID),
		zap.String("graph", name))

	return state.RunID, nil
}

// Execute runs a submitted run to completion. Workers call it once per request.
// Runs that were cancelled before a worker picked them up are skipped.
func (m *Manager) Execute(ctx context.Context, runID string) error {
	state, err := m.storage.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	if state.Status.IsTerminal() {
		m.logger.Debug("skipping terminal run",
			zap.String("run_id", runID),
			zap.String("status", string(state.Status)))
		return nil
	}
	if state.Status != domain.ExecutionStatusSubmitted {
		return fmt.Errorf("run %s is already %s", runID, state.Status)
	}

	plan, err := m.validator.Validate(state.Graph, state.Params)
	if err != nil {
		m.finalize(ctx, nil, state, 0, time.Now(), err)
		return err
	}

	exec, runCtx, err := m.claim(ctx, state)
	if err != nil || exec == nil {
		return err
	}
	_, err = m.execute(runCtx, exec, state, plan)

	// The record carries the engine failure; the worker only cares about
	// failures to process the request.
	if err != nil && !isRunOutcome(err) {
		return err
	}
	return nil
}

// claim re-reads the record and registers the run as local. A nil
// executionContext means the run was finalized elsewhere and must be skipped.
func (m *Manager) claim(ctx context.Context, state *domain.RunState) (*executionContext, context.Context, error) {
	m.claimMu.Lock()
	defer m.claimMu.Unlock()

	current, err := m.storage.GetRun(ctx, state.RunID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get run: %w", err)
	}
	if current.Status.IsTerminal() {
		m.logger.Debug("skipping terminal run",
			zap.String("run_id", state.RunID),
			zap.String("status", string(current.Status)))
		return nil, nil, nil
	}
	if current.Status != domain.ExecutionStatusSubmitted {
		return nil, nil, fmt.Errorf("run %s is already %s", state.RunID, current.Status)
	}

	exec, runCtx := m.track(ctx, state)
	return exec, runCtx, nil
}

// GetStatus retrieves the current record of a run
func (m *Manager) GetStatus(ctx context.Context, runID string) (*domain.RunState, error) {
	state, err := m.storage.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get state: %w", err)
	}
	return state, nil
}

// ListRuns returns all stored runs, newest first
func (m *Manager) ListRuns(ctx context.Context) ([]*domain.RunState, error) {
	runs, err := m.storage.ListRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// CancelRun cancels a submitted or running run. A running run stops at the
// next superstep boundary.
func (m *Manager) CancelRun(ctx context.Context, runID string) error {
	m.claimMu.Lock()
	defer m.claimMu.Unlock()

	state, err := m.storage.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to get state: %w", err)
	}
	if state.Status.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrRunTerminal, state.Status)
	}

	if val, ok := m.executions.Load(runID); ok {
		exec := val.(*executionContext)
		exec.mu.Lock()
		defer exec.mu.Unlock()

		if exec.status.IsTerminal() {
			return fmt.Errorf("%w: %s", ErrRunTerminal, exec.status)
		}

		// Execute records the outcome once the engine returns
		exec.cancelFunc()
		exec.status = domain.ExecutionStatusCancelled

		m.logger.Info("run cancellation requested",
			zap.String("run_id", runID))
		return nil
	}

	if state.Status == domain.ExecutionStatusRunning {
		return ErrRunNotLocal
	}

	// Not picked up by a worker yet
	now := time.Now()
	state.Status = domain.ExecutionStatusCancelled
	state.ErrorKind = pregel.KindCancelled
	state.CompletedAt = &now

	if err := m.storage.SaveRun(ctx, state); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	m.publish(ctx, m.newEvent(domain.EventTypeRunCancelled, runID, nil))
	m.metrics.RecordRunCompleted(state.Graph, string(domain.ExecutionStatusCancelled), 0, 0)

	m.logger.Info("run cancelled",
		zap.String("run_id", runID))

	return nil
}

// Shutdown gracefully shuts down the manager
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down orchestrator manager")

	// Cancel all active executions
	m.executions.Range(func(key, value interface{}) bool {
		exec := value.(*executionContext)
		exec.cancelFunc()
		return true
	})

	m.logger.Info("orchestrator manager shut down complete")
	return nil
}

// track registers an execution context for a run
func (m *Manager) track(ctx context.Context, state *domain.RunState) (*executionContext, context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	exec := &executionContext{
		runID:      state.RunID,
		graph:      state.Graph,
		status:     state.Status,
		startedAt:  time.Now(),
		cancelFunc: cancel,
	}
	m.executions.Store(state.RunID, exec)
	return exec, runCtx
}

// execute drives the engine for one run and records its outcome
func (m *Manager) execute(ctx context.Context, exec *executionContext, state *domain.RunState, plan *pregel.Plan) (*domain.RunState, error) {
	defer func() {
		exec.cancelFunc()
		m.executions.Delete(state.RunID)
	}()

	exec.mu.Lock()
	if exec.status == domain.ExecutionStatusCancelled {
		exec.mu.Unlock()
		return m.finalize(ctx, exec, state, 0, time.Now(), context.Canceled), context.Canceled
	}
	exec.status = domain.ExecutionStatusRunning
	exec.mu.Unlock()

	start := time.Now()
	state.Status = domain.ExecutionStatusRunning
	state.StartedAt = &start
	if err := m.storage.SaveRun(ctx, state); err != nil {
		m.logger.Error("failed to save running state",
			zap.String("run_id", state.RunID),
			zap.Error(err))
	}

	m.publish(ctx, m.newEvent(domain.EventTypeRunStarted, state.RunID, map[string]interface{}{
		"graph": state.Graph,
	}))
	m.metrics.SetActiveRuns(int(m.activeRuns.Add(1)))
	defer func() {
		m.metrics.SetActiveRuns(int(m.activeRuns.Add(-1)))
	}()

	m.logger.Info("run started",
		zap.String("run_id", state.RunID),
		zap.String("graph", state.Graph))

	runCtx := ctx
	if m.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, m.cfg.RunTimeout)
		defer cancel()
	}

	runner := pregel.NewRunner(
		pregel.WithLogger(m.logger),
		pregel.WithMaxRounds(m.cfg.MaxRounds),
		pregel.WithParallelism(m.cfg.Parallelism),
		pregel.WithRunID(state.RunID),
		pregel.WithObserver(&roundObserver{manager: m, state: state}),
	)

	result, err := runner.Run(runCtx, plan)

	rounds := 0
	if result != nil {
		rounds = result.Rounds
		state.Values = result.Values
	}
	return m.finalize(ctx, exec, state, rounds, start, err), err
}

// finalize stores the terminal record and publishes the outcome
func (m *Manager) finalize(ctx context.Context, exec *executionContext, state *domain.RunState, rounds int, start time.Time, runErr error) *domain.RunState {
	// The run context may already be cancelled
	ctx = context.WithoutCancel(ctx)

	now := time.Now()
	duration := now.Sub(start)
	state.Rounds = rounds
	state.CompletedAt = &now

	var eventType domain.EventType
	switch {
	case runErr == nil:
		state.Status = domain.ExecutionStatusCompleted
		eventType = domain.EventTypeRunCompleted
	case errors.Is(runErr, context.Canceled):
		state.Status = domain.ExecutionStatusCancelled
		state.ErrorKind = pregel.KindCancelled
		state.Error = runErr.Error()
		eventType = domain.EventTypeRunCancelled
	default:
		state.Status = domain.ExecutionStatusFailed
		state.ErrorKind = pregel.ErrorKind(runErr)
		state.Error = runErr.Error()
		eventType = domain.EventTypeRunFailed
	}

	if exec != nil {
		exec.mu.Lock()
		exec.status = state.Status
		exec.mu.Unlock()
	}

	if err := m.storage.SaveRun(ctx, state); err != nil {
		m.logger.Error("failed to save final state",
			zap.String("run_id", state.RunID),
			zap.Error(err))
	}

	data := map[string]interface{}{
		"rounds": state.Rounds,
		"values": state.Values,
	}
	if runErr != nil {
		data["error"] = state.Error
		data["error_kind"] = state.ErrorKind
	}
	m.publish(ctx, m.newEvent(eventType, state.RunID, data))

	m.metrics.RecordRunCompleted(state.Graph, string(state.Status), state.Rounds, duration)
	if state.Status == domain.ExecutionStatusFailed {
		m.metrics.RecordRunError(state.Graph, state.ErrorKind)
		m.logger.Warn("run failed",
			zap.String("run_id", state.RunID),
			zap.String("graph", state.Graph),
			zap.String("error_kind", state.ErrorKind),
			zap.Error(runErr))
	} else {
		m.logger.Info("run finished",
			zap.String("run_id", state.RunID),
			zap.String("graph", state.Graph),
			zap.String("status", string(state.Status)),
			zap.Int("rounds", state.Rounds),
			zap.Duration("duration", duration))
	}

	return state.Clone()
}

// publish sends an event to the run events topic, logging failures
func (m *Manager) publish(ctx context.Context, event domain.Event) {
	if err := m.eventBus.Publish(ctx, domain.TopicRunEvents, event); err != nil {
		m.logger.Error("failed to publish event",
			zap.String("run_id", event.RunID),
			zap.String("type", string(event.Type)),
			zap.Error(err))
	}
}

func (m *Manager) newRunState(name string, params map[string]interface{}) *domain.RunState {
	return &domain.RunState{
		RunID:       uuid.New().String(),
		Graph:       name,
		Params:      params,
		Status:      domain.ExecutionStatusSubmitted,
		SubmittedAt: time.Now(),
	}
}

func (m *Manager) newEvent(eventType domain.EventType, runID string, data map[string]interface{}) domain.Event {
	return domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		RunID:     runID,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// roundObserver publishes committed supersteps and tracks progress in the record
type roundObserver struct {
	manager *Manager
	state   *domain.RunState
}

func (o *roundObserver) RoundCommitted(ctx context.Context, report pregel.RoundReport) {
	m := o.manager

	o.state.Rounds = report.Round
	if o.state.Values == nil {
		o.state.Values = make(map[string]interface{}, len(report.Writes))
	}
	for ch, v := range report.Writes {
		o.state.Values[ch] = v
	}
	if err := m.storage.SaveRun(ctx, o.state); err != nil {
		m.logger.Debug("failed to save round progress",
			zap.String("run_id", report.RunID),
			zap.Error(err))
	}

	m.metrics.RecordRound(o.state.Graph, len(report.ActiveNodes), report.Duration)
	m.publish(ctx, m.newEvent(domain.EventTypeRunRound, report.RunID, map[string]interface{}{
		"round":        report.Round,
		"active_nodes": report.ActiveNodes,
		"writes":       report.Writes,
		"duration_ms":  report.Duration.Milliseconds(),
	}))
}

// isRunOutcome reports whether err came from the graph itself rather than
// from processing the request
func isRunOutcome(err error) bool {
	return pregel.ErrorKind(err) != pregel.KindUnknown
}
