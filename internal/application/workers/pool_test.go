package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	eventsmem "github.com/aescanero/cutdeck/pkg/adapters/events/memory"
	"github.com/aescanero/cutdeck/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type fakeExecutor struct {
	mu    sync.Mutex
	calls map[string]int
	block chan struct{}
	err   error
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{calls: make(map[string]int)}
}

func (f *fakeExecutor) Execute(ctx context.Context, runID string) error {
	f.mu.Lock()
	f.calls[runID]++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func (f *fakeExecutor) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type nopMetrics struct {
	mu                  sync.Mutex
	idle, busy, stopped int
}

func (n *nopMetrics) RecordRunSubmitted(string)                            {}
func (n *nopMetrics) RecordRunCompleted(string, string, int, time.Duration) {}
func (n *nopMetrics) RecordRound(string, int, time.Duration)                {}
func (n *nopMetrics) RecordRunError(string, string)                         {}
func (n *nopMetrics) SetActiveRuns(int)                                     {}
func (n *nopMetrics) RecordWorkerPoolStatus(idle, busy, stopped int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.idle, n.busy, n.stopped = idle, busy, stopped
}

func request(runID string) domain.Event {
	return domain.Event{
		ID:        "evt-" + runID,
		Type:      domain.EventTypeRunSubmitted,
		RunID:     runID,
		Timestamp: time.Now(),
	}
}

func TestPool_ExecutesEachRequestOnce(t *testing.T) {
	bus := eventsmem.NewInMemoryEventBus()
	exec := newFakeExecutor()
	pool := NewPool(3, 16, bus, exec, &nopMetrics{}, zaptest.NewLogger(t), time.Hour)

	require.NoError(t, pool.Start())
	assert.Equal(t, 1, bus.SubscriberCount(domain.TopicRunRequests))

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(context.Background(), domain.TopicRunRequests, request(fmt.Sprintf("run-%d", i))))
	}

	assert.Eventually(t, func() bool { return exec.total() == 10 }, time.Second, 5*time.Millisecond)

	exec.mu.Lock()
	for id, n := range exec.calls {
		assert.Equal(t, 1, n, "run %s executed more than once", id)
	}
	exec.mu.Unlock()

	require.NoError(t, pool.Shutdown(context.Background()))
	require.NoError(t, bus.Close())
}

func TestPool_IgnoresOtherEvents(t *testing.T) {
	bus := eventsmem.NewInMemoryEventBus()
	exec := newFakeExecutor()
	pool := NewPool(1, 1, bus, exec, &nopMetrics{}, zaptest.NewLogger(t), time.Hour)
	require.NoError(t, pool.Start())

	ignored := request("x")
	ignored.Type = domain.EventTypeRunCompleted
	require.NoError(t, bus.Publish(context.Background(), domain.TopicRunRequests, ignored))
	require.NoError(t, bus.Publish(context.Background(), domain.TopicRunRequests, domain.Event{Type: domain.EventTypeRunSubmitted}))
	require.NoError(t, bus.Publish(context.Background(), domain.TopicRunRequests, request("y")))

	assert.Eventually(t, func() bool { return exec.total() == 1 }, time.Second, 5*time.Millisecond)

	exec.mu.Lock()
	assert.Equal(t, 1, exec.calls["y"])
	exec.mu.Unlock()

	require.NoError(t, pool.Shutdown(context.Background()))
	require.NoError(t, bus.Close())
}

func TestPool_ExecutorErrorKeepsWorkerAlive(t *testing.T) {
	bus := eventsmem.NewInMemoryEventBus()
	exec := newFakeExecutor()
	exec.err = errors.New("storage down")
	pool := NewPool(1, 4, bus, exec, &nopMetrics{}, zaptest.NewLogger(t), time.Hour)
	require.NoError(t, pool.Start())

	require.NoError(t, bus.Publish(context.Background(), domain.TopicRunRequests, request("a")))
	require.NoError(t, bus.Publish(context.Background(), domain.TopicRunRequests, request("b")))

	assert.Eventually(t, func() bool { return exec.total() == 2 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return pool.Health().IsHealthy() }, time.Second, 5*time.Millisecond)

	require.NoError(t, pool.Shutdown(context.Background()))
	require.NoError(t, bus.Close())
}

func TestPool_ShutdownCancelsRunningWork(t *testing.T) {
	bus := eventsmem.NewInMemoryEventBus()
	exec := newFakeExecutor()
	exec.block = make(chan struct{})
	pool := NewPool(2, 4, bus, exec, &nopMetrics{}, zaptest.NewLogger(t), time.Hour)
	require.NoError(t, pool.Start())

	require.NoError(t, bus.Publish(context.Background(), domain.TopicRunRequests, request("slow")))

	assert.Eventually(t, func() bool {
		return pool.Health().GetStatus().BusyWorkers == 1
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))

	status := pool.Health().GetStatus()
	assert.Equal(t, 2, status.StoppedWorkers)
	assert.False(t, status.Healthy)
	require.NoError(t, bus.Close())
}

func TestPool_ShutdownLogsQueuedRuns(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	bus := eventsmem.NewInMemoryEventBus()
	exec := newFakeExecutor()
	exec.block = make(chan struct{})
	pool := NewPool(1, 4, bus, exec, &nopMetrics{}, zap.New(core), time.Hour)
	require.NoError(t, pool.Start())

	require.NoError(t, bus.Publish(context.Background(), domain.TopicRunRequests, request("busy")))
	assert.Eventually(t, func() bool {
		return pool.Health().GetStatus().BusyWorkers == 1
	}, time.Second, 5*time.Millisecond)

	for _, id := range []string{"q1", "q2", "q3"} {
		require.NoError(t, bus.Publish(context.Background(), domain.TopicRunRequests, request(id)))
	}
	assert.Eventually(t, func() bool { return len(pool.jobs) == 3 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))

	assert.Empty(t, pool.jobs)
	assert.Equal(t, 1, exec.total())

	var dropped []string
	for _, entry := range logs.FilterMessage("dropping queued run on shutdown").All() {
		dropped = append(dropped, entry.ContextMap()["run_id"].(string))
	}
	assert.Equal(t, []string{"q1", "q2", "q3"}, dropped)
	assert.Equal(t, 1, logs.FilterMessage("queued runs left unexecuted").Len())

	require.NoError(t, bus.Close())
}
