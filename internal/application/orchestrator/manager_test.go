package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aescanero/cutdeck/internal/application/graphs"
	eventsmem "github.com/aescanero/cutdeck/pkg/adapters/events/memory"
	storagemem "github.com/aescanero/cutdeck/pkg/adapters/storage/memory"
	"github.com/aescanero/cutdeck/pkg/domain"
	"github.com/aescanero/cutdeck/pkg/ports"
	"github.com/aescanero/cutdeck/pkg/pregel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingMetrics struct {
	mu        sync.Mutex
	submitted int
	completed map[string]int
	rounds    int
	errors    map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		completed: make(map[string]int),
		errors:    make(map[string]int),
	}
}

func (r *recordingMetrics) RecordRunSubmitted(graph string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitted++
}

func (r *recordingMetrics) RecordRunCompleted(graph string, status string, rounds int, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed[status]++
}

func (r *recordingMetrics) RecordRound(graph string, activeNodes int, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rounds++
}

func (r *recordingMetrics) RecordRunError(graph string, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors[kind]++
}

func (r *recordingMetrics) SetActiveRuns(count int)                       {}
func (r *recordingMetrics) RecordWorkerPoolStatus(idle, busy, stopped int) {}

// spin never reaches quiescence and sleeps a little every round
func spin(delay time.Duration) graphs.Factory {
	return func(params map[string]any) (*pregel.Graph, error) {
		g := pregel.New()
		if err := g.AddChannel("n", pregel.LastValue(), 0); err != nil {
			return nil, err
		}
		node := pregel.NewFuncNode("spin", []string{"n"}, map[string]string{"n": "n"},
			func(ctx context.Context, in pregel.Snapshot) (pregel.Result, error) {
				time.Sleep(delay)
				n, _ := in.Int("n")
				return pregel.Active(map[string]any{"n": n + 1}), nil
			})
		if err := g.AddNode(node); err != nil {
			return nil, err
		}
		return g, nil
	}
}

func failing(params map[string]any) (*pregel.Graph, error) {
	g := pregel.New()
	if err := g.AddChannel("n", pregel.LastValue(), 0); err != nil {
		return nil, err
	}
	node := pregel.NewFuncNode("boom", []string{"n"}, map[string]string{"n": "n"},
		func(ctx context.Context, in pregel.Snapshot) (pregel.Result, error) {
			n, _ := in.Int("n")
			if n == 2 {
				return pregel.Result{}, errors.New("exploded")
			}
			return pregel.Active(map[string]any{"n": n + 1}), nil
		})
	if err := g.AddNode(node); err != nil {
		return nil, err
	}
	return g, nil
}

type fixture struct {
	manager *Manager
	bus     *eventsmem.InMemoryEventBus
	storage *storagemem.InMemoryRunStorage
	metrics *recordingMetrics
}

func newFixture(t *testing.T, cfg ManagerConfig) *fixture {
	t.Helper()

	catalog := graphs.Default()
	require.NoError(t, catalog.Register(graphs.Descriptor{Name: "spin"}, spin(5*time.Millisecond)))
	require.NoError(t, catalog.Register(graphs.Descriptor{Name: "fastspin"}, spin(0)))
	require.NoError(t, catalog.Register(graphs.Descriptor{Name: "failing"}, failing))

	f := &fixture{
		bus:     eventsmem.NewInMemoryEventBus(),
		storage: storagemem.NewInMemoryRunStorage(),
		metrics: newRecordingMetrics(),
	}
	f.manager = NewManager(catalog, f.bus, f.storage, f.metrics, zaptest.NewLogger(t), cfg)
	t.Cleanup(func() { _ = f.bus.Close() })
	return f
}

// collect records every event published on topic
func (f *fixture) collect(t *testing.T, topic string) func() []domain.Event {
	t.Helper()

	var mu sync.Mutex
	var events []domain.Event

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	require.NoError(t, f.bus.Subscribe(ctx, topic, func(ctx context.Context, e domain.Event) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
		return nil
	}))

	return func() []domain.Event {
		mu.Lock()
		defer mu.Unlock()
		out := make([]domain.Event, len(events))
		copy(out, events)
		return out
	}
}

func countType(events []domain.Event, eventType domain.EventType) int {
	n := 0
	for _, e := range events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func TestManager_Run_Counter(t *testing.T) {
	f := newFixture(t, ManagerConfig{})
	events := f.collect(t, domain.TopicRunEvents)

	state, err := f.manager.Run(context.Background(), "counter", nil)
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionStatusCompleted, state.Status)
	assert.Equal(t, 5, state.Rounds)
	assert.Equal(t, 5, state.Values["count"])
	assert.NotNil(t, state.StartedAt)
	assert.NotNil(t, state.CompletedAt)

	stored, err := f.manager.GetStatus(context.Background(), state.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, stored.Status)

	assert.Eventually(t, func() bool {
		got := events()
		return countType(got, domain.EventTypeRunRound) == 5 &&
			countType(got, domain.EventTypeRunCompleted) == 1
	}, time.Second, 10*time.Millisecond)

	f.metrics.mu.Lock()
	defer f.metrics.mu.Unlock()
	assert.Equal(t, 1, f.metrics.submitted)
	assert.Equal(t, 5, f.metrics.rounds)
	assert.Equal(t, 1, f.metrics.completed["completed"])
}

func TestManager_Run_ValidationErrors(t *testing.T) {
	f := newFixture(t, ManagerConfig{})

	_, err := f.manager.Run(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, graphs.ErrGraphNotFound)

	_, err = f.manager.Run(context.Background(), "counter", map[string]interface{}{"limit": "x"})
	assert.ErrorIs(t, err, graphs.ErrInvalidParams)

	_, err = f.manager.Run(context.Background(), "counter", map[string]interface{}{"limit": []int{1}})
	assert.ErrorIs(t, err, graphs.ErrInvalidParams)

	runs, err := f.manager.ListRuns(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs, "rejected requests must not create records")
}

func TestManager_Run_NodeFailureKeepsCommittedValues(t *testing.T) {
	f := newFixture(t, ManagerConfig{})

	state, err := f.manager.Run(context.Background(), "failing", nil)

	var nodeErr *pregel.NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "boom", nodeErr.Node)
	assert.Equal(t, 3, nodeErr.Round)

	require.NotNil(t, state)
	assert.Equal(t, domain.ExecutionStatusFailed, state.Status)
	assert.Equal(t, pregel.KindComputation, state.ErrorKind)
	assert.Equal(t, 2, state.Rounds)
	assert.Equal(t, 2, state.Values["n"])
	assert.Contains(t, state.Error, "exploded")

	f.metrics.mu.Lock()
	defer f.metrics.mu.Unlock()
	assert.Equal(t, 1, f.metrics.errors[pregel.KindComputation])
}

func TestManager_Run_NonTermination(t *testing.T) {
	f := newFixture(t, ManagerConfig{MaxRounds: 10})

	state, err := f.manager.Run(context.Background(), "fastspin", nil)

	assert.ErrorIs(t, err, pregel.ErrNonTermination)
	require.NotNil(t, state)
	assert.Equal(t, pregel.KindNonTermination, state.ErrorKind)
	assert.Equal(t, 10, state.Rounds)
}

func TestManager_Run_Timeout(t *testing.T) {
	f := newFixture(t, ManagerConfig{RunTimeout: 50 * time.Millisecond})

	state, err := f.manager.Run(context.Background(), "spin", nil)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, state)
	assert.Equal(t, domain.ExecutionStatusFailed, state.Status)
	assert.Equal(t, pregel.KindTimeout, state.ErrorKind)
}

func TestManager_SubmitAndExecute(t *testing.T) {
	f := newFixture(t, ManagerConfig{})
	requests := f.collect(t, domain.TopicRunRequests)

	runID, err := f.manager.SubmitRun(context.Background(), "sum", map[string]interface{}{"rounds": float64(2)})
	require.NoError(t, err)

	state, err := f.manager.GetStatus(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusSubmitted, state.Status)

	assert.Eventually(t, func() bool {
		got := requests()
		return len(got) == 1 && got[0].RunID == runID
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, f.manager.Execute(context.Background(), runID))

	state, err = f.manager.GetStatus(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, state.Status)
	assert.Equal(t, 6, state.Values["total"])
	assert.Equal(t, 2, state.Rounds)
}

func TestManager_Execute_EngineFailureIsRecorded(t *testing.T) {
	f := newFixture(t, ManagerConfig{})

	runID, err := f.manager.SubmitRun(context.Background(), "failing", nil)
	require.NoError(t, err)

	// The worker sees success: the failure belongs to the run record
	require.NoError(t, f.manager.Execute(context.Background(), runID))

	state, err := f.manager.GetStatus(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusFailed, state.Status)
}

func TestManager_Execute_UnknownRun(t *testing.T) {
	f := newFixture(t, ManagerConfig{})

	err := f.manager.Execute(context.Background(), "nope")
	assert.ErrorIs(t, err, ports.ErrRunNotFound)
}

func TestManager_CancelRun_BeforeExecution(t *testing.T) {
	f := newFixture(t, ManagerConfig{})

	runID, err := f.manager.SubmitRun(context.Background(), "counter", nil)
	require.NoError(t, err)

	require.NoError(t, f.manager.CancelRun(context.Background(), runID))

	// A worker picking it up afterwards skips it
	require.NoError(t, f.manager.Execute(context.Background(), runID))

	state, err := f.manager.GetStatus(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCancelled, state.Status)
	assert.Equal(t, 0, state.Rounds)

	assert.ErrorIs(t, f.manager.CancelRun(context.Background(), runID), ErrRunTerminal)
}

// hookStorage runs afterGet once, after the first GetRun returns
type hookStorage struct {
	*storagemem.InMemoryRunStorage
	fired    atomic.Bool
	afterGet func(runID string)
}

func (h *hookStorage) GetRun(ctx context.Context, runID string) (*domain.RunState, error) {
	state, err := h.InMemoryRunStorage.GetRun(ctx, runID)
	if err == nil && h.fired.CompareAndSwap(false, true) {
		h.afterGet(runID)
	}
	return state, err
}

func TestManager_CancelRun_BetweenLoadAndStart(t *testing.T) {
	storage := &hookStorage{InMemoryRunStorage: storagemem.NewInMemoryRunStorage()}
	bus := eventsmem.NewInMemoryEventBus()
	t.Cleanup(func() { _ = bus.Close() })
	manager := NewManager(graphs.Default(), bus, storage, newRecordingMetrics(), zaptest.NewLogger(t), ManagerConfig{})

	runID, err := manager.SubmitRun(context.Background(), "counter", nil)
	require.NoError(t, err)

	// The cancellation lands after the worker has loaded the submitted record
	var cancelErr error
	storage.afterGet = func(id string) {
		cancelErr = manager.CancelRun(context.Background(), id)
	}

	require.NoError(t, manager.Execute(context.Background(), runID))
	require.NoError(t, cancelErr)

	state, err := manager.GetStatus(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCancelled, state.Status)
	assert.Equal(t, 0, state.Rounds)
	assert.Nil(t, state.StartedAt)
}

func TestManager_CancelRun_WhileRunning(t *testing.T) {
	f := newFixture(t, ManagerConfig{})

	runID, err := f.manager.SubmitRun(context.Background(), "spin", nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- f.manager.Execute(context.Background(), runID)
	}()

	assert.Eventually(t, func() bool {
		state, err := f.manager.GetStatus(context.Background(), runID)
		return err == nil && state.Rounds >= 2
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, f.manager.CancelRun(context.Background(), runID))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}

	state, err := f.manager.GetStatus(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCancelled, state.Status)
	assert.Equal(t, pregel.KindCancelled, state.ErrorKind)
	assert.GreaterOrEqual(t, state.Rounds, 2)
}

func TestManager_CancelRun_Completed(t *testing.T) {
	f := newFixture(t, ManagerConfig{})

	state, err := f.manager.Run(context.Background(), "counter", nil)
	require.NoError(t, err)

	assert.ErrorIs(t, f.manager.CancelRun(context.Background(), state.RunID), ErrRunTerminal)
	assert.ErrorIs(t, f.manager.CancelRun(context.Background(), "nope"), ports.ErrRunNotFound)
}

func TestManager_Shutdown_CancelsActiveRuns(t *testing.T) {
	f := newFixture(t, ManagerConfig{})

	runID, err := f.manager.SubmitRun(context.Background(), "spin", nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.manager.Execute(context.Background(), runID)
	}()

	assert.Eventually(t, func() bool {
		state, err := f.manager.GetStatus(context.Background(), runID)
		return err == nil && state.Status == domain.ExecutionStatusRunning
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, f.manager.Shutdown(context.Background()))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not stop the run")
	}

	state, err := f.manager.GetStatus(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCancelled, state.Status)
}

func TestManager_ListRuns(t *testing.T) {
	f := newFixture(t, ManagerConfig{})

	_, err := f.manager.Run(context.Background(), "counter", nil)
	require.NoError(t, err)
	_, err = f.manager.SubmitRun(context.Background(), "relay", nil)
	require.NoError(t, err)

	runs, err := f.manager.ListRuns(context.Background())
	require.NoError(t, err)
	assert.Len(t, runs, 2)
	assert.Len(t, f.manager.Graphs(), 6)
}
