package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/cutdeck/pkg/domain"
	"github.com/aescanero/cutdeck/pkg/ports"
	"go.uber.org/zap"
)

// Executor runs a submitted run to completion
type Executor interface {
	Execute(ctx context.Context, runID string) error
}

// Pool manages a pool of worker goroutines
type Pool struct {
	size     int
	eventBus ports.EventBus
	executor Executor
	metrics  ports.MetricsCollector
	logger   *zap.Logger
	health   *HealthMonitor

	workers []*worker
	jobs    chan string
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// worker represents a single worker goroutine
type worker struct {
	id      string
	pool    *Pool
	status  WorkerStatus
	mu      sync.RWMutex
	lastJob time.Time
}

// WorkerStatus represents worker status
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusBusy    WorkerStatus = "busy"
	WorkerStatusStopped WorkerStatus = "stopped"
)

// NewPool creates a new worker pool. queueSize bounds the requests waiting
// for a free worker.
func NewPool(
	size int,
	queueSize int,
	eventBus ports.EventBus,
	executor Executor,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	healthCheckInterval time.Duration,
) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	if queueSize < 1 {
		queueSize = size
	}

	pool := &Pool{
		size:     size,
		eventBus: eventBus,
		executor: executor,
		metrics:  metrics,
		logger:   logger,
		workers:  make([]*worker, size),
		jobs:     make(chan string, queueSize),
		ctx:      ctx,
		cancel:   cancel,
	}

	pool.health = NewHealthMonitor(pool, healthCheckInterval, logger)

	return pool
}

// Health returns the pool's health monitor
func (p *Pool) Health() *HealthMonitor {
	return p.health
}

// Start subscribes to run requests and starts the workers
func (p *Pool) Start() error {
	p.logger.Info("starting worker pool", zap.Int("size", p.size))

	// Create and start workers
	for i := 0; i < p.size; i++ {
		w := &worker{
			id:      fmt.Sprintf("worker-%d", i),
			pool:    p,
			status:  WorkerStatusIdle,
			lastJob: time.Now(),
		}
		p.workers[i] = w

		p.wg.Add(1)
		go w.run(p.ctx)
	}

	// One subscription feeds every worker so each request runs once
	if err := p.eventBus.Subscribe(p.ctx, domain.TopicRunRequests, p.dispatch); err != nil {
		p.cancel()
		p.wg.Wait()
		return fmt.Errorf("failed to subscribe to run requests: %w", err)
	}

	// Start health monitor
	p.health.Start()

	p.logger.Info("worker pool started", zap.Int("workers", p.size))
	return nil
}

// Shutdown gracefully shuts down the worker pool
func (p *Pool) Shutdown(ctx context.Context) error {
	p.logger.Info("shutting down worker pool")

	// Stop health monitor
	p.health.Stop()

	// Cancel context to signal workers to stop
	p.cancel()

	// Wait for all workers to finish with timeout
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.dropQueued()
		p.logger.Info("worker pool shut down complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout")
	}
}

// dropQueued empties the queue once the workers are gone. The dropped runs
// stay submitted in storage.
func (p *Pool) dropQueued() int {
	dropped := 0
	for {
		select {
		case runID := <-p.jobs:
			dropped++
			p.logger.Warn("dropping queued run on shutdown",
				zap.String("run_id", runID))
		default:
			if dropped > 0 {
				p.logger.Warn("queued runs left unexecuted",
					zap.Int("count", dropped))
			}
			return dropped
		}
	}
}

// GetStatus returns the status of all workers
func (p *Pool) GetStatus() map[string]WorkerStatus {
	status := make(map[string]WorkerStatus)
	for _, w := range p.workers {
		if w == nil {
			continue
		}
		w.mu.RLock()
		status[w.id] = w.status
		w.mu.RUnlock()
	}
	return status
}

// dispatch queues a run request for the next free worker. It blocks while
// the queue is full so the bus does not acknowledge work nobody can take.
func (p *Pool) dispatch(ctx context.Context, event domain.Event) error {
	if event.Type != domain.EventTypeRunSubmitted {
		return nil
	}
	if event.RunID == "" {
		p.logger.Error("run request without run id",
			zap.String("event_id", event.ID))
		return nil
	}

	if p.ctx.Err() != nil {
		p.logger.Warn("run request received after shutdown",
			zap.String("run_id", event.RunID))
		return p.ctx.Err()
	}

	select {
	case p.jobs <- event.RunID:
		return nil
	case <-p.ctx.Done():
		p.logger.Warn("run request received after shutdown",
			zap.String("run_id", event.RunID))
		return p.ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main worker loop
func (w *worker) run(ctx context.Context) {
	defer w.pool.wg.Done()

	w.pool.logger.Debug("worker started", zap.String("worker_id", w.id))

	for {
		// Never take a queued run once shutdown has begun
		if ctx.Err() != nil {
			w.setStatus(WorkerStatusStopped)
			w.pool.logger.Debug("worker stopped", zap.String("worker_id", w.id))
			return
		}

		select {
		case <-ctx.Done():
			w.setStatus(WorkerStatusStopped)
			w.pool.logger.Debug("worker stopped", zap.String("worker_id", w.id))
			return
		case runID := <-w.pool.jobs:
			w.handleRun(ctx, runID)
		}
	}
}

// handleRun executes one run request
func (w *worker) handleRun(ctx context.Context, runID string) {
	w.mu.Lock()
	w.status = WorkerStatusBusy
	w.lastJob = time.Now()
	w.mu.Unlock()

	defer w.setStatus(WorkerStatusIdle)

	w.pool.logger.Info("executing run",
		zap.String("worker_id", w.id),
		zap.String("run_id", runID))

	startTime := time.Now()

	if err := w.pool.executor.Execute(ctx, runID); err != nil {
		w.pool.logger.Error("run execution failed",
			zap.String("worker_id", w.id),
			zap.String("run_id", runID),
			zap.Error(err))
		return
	}

	w.pool.logger.Info("run execution completed",
		zap.String("worker_id", w.id),
		zap.String("run_id", runID),
		zap.Duration("duration", time.Since(startTime)))
}

func (w *worker) setStatus(status WorkerStatus) {
	w.mu.Lock()
	w.status = status
	w.mu.Unlock()
}
