package memory

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aescanero/cutdeck/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryEventBus_FanOut(t *testing.T) {
	bus := NewInMemoryEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var first, second atomic.Int32
	require.NoError(t, bus.Subscribe(ctx, "topic", func(ctx context.Context, e domain.Event) error {
		first.Add(1)
		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx, "topic", func(ctx context.Context, e domain.Event) error {
		second.Add(1)
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), "topic", domain.Event{ID: "1"}))
	require.NoError(t, bus.Publish(context.Background(), "other", domain.Event{ID: "2"}))

	assert.Eventually(t, func() bool {
		return first.Load() == 1 && second.Load() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestInMemoryEventBus_UnsubscribeOnCancel(t *testing.T) {
	bus := NewInMemoryEventBus()
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, bus.Subscribe(ctx, "topic", func(ctx context.Context, e domain.Event) error {
		return nil
	}))
	require.NoError(t, bus.Subscribe(context.Background(), "topic", func(ctx context.Context, e domain.Event) error {
		return nil
	}))
	assert.Equal(t, 2, bus.SubscriberCount("topic"))

	cancel()

	assert.Eventually(t, func() bool {
		return bus.SubscriberCount("topic") == 1
	}, time.Second, 5*time.Millisecond)
}

func TestInMemoryEventBus_Close(t *testing.T) {
	bus := NewInMemoryEventBus()
	require.NoError(t, bus.Subscribe(context.Background(), "topic", func(ctx context.Context, e domain.Event) error {
		return nil
	}))

	require.NoError(t, bus.Close())
	assert.Equal(t, 0, bus.SubscriberCount("topic"))
}

func TestInMemoryEventBus_PreservesOrder(t *testing.T) {
	bus := NewInMemoryEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan string, 100)
	require.NoError(t, bus.Subscribe(ctx, "topic", func(ctx context.Context, e domain.Event) error {
		received <- e.ID
		return nil
	}))

	for i := 0; i < 100; i++ {
		require.NoError(t, bus.Publish(context.Background(), "topic", domain.Event{ID: fmt.Sprint(i)}))
	}

	for i := 0; i < 100; i++ {
		select {
		case id := <-received:
			assert.Equal(t, fmt.Sprint(i), id)
		case <-time.After(time.Second):
			t.Fatalf("event %d not delivered", i)
		}
	}
}

func TestInMemoryEventBus_SlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	bus := NewInMemoryEventBus()
	release := make(chan struct{})

	require.NoError(t, bus.Subscribe(context.Background(), "topic", func(ctx context.Context, e domain.Event) error {
		<-release
		return nil
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			_ = bus.Publish(context.Background(), "topic", domain.Event{ID: fmt.Sprint(i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}

	close(release)
	require.NoError(t, bus.Close())
}
