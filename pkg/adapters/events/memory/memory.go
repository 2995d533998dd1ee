package memory

import (
	"context"
	"sync"

	"github.com/aescanero/cutdeck/pkg/domain"
	"github.com/aescanero/cutdeck/pkg/ports"
)

// InMemoryEventBus implements EventBus using in-memory handlers.
// Every subscriber of a topic receives every event, in publish order.
type InMemoryEventBus struct {
	subscribers map[string]map[uint64]*subscription
	nextID      uint64
	mu          sync.RWMutex
	wg          sync.WaitGroup
}

type delivery struct {
	ctx   context.Context
	event domain.Event
}

// subscription delivers queued events to one handler on its own goroutine
type subscription struct {
	handler ports.EventHandler
	wg      *sync.WaitGroup

	mu     sync.Mutex
	queue  []delivery
	closed bool
	signal chan struct{}
	done   chan struct{}
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus() *InMemoryEventBus {
	return &InMemoryEventBus{
		subscribers: make(map[string]map[uint64]*subscription),
	}
}

// Publish publishes an event to all subscribers of a topic.
// It never waits for handlers.
func (e *InMemoryEventBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, sub := range e.subscribers[topic] {
		sub.enqueue(delivery{ctx: context.WithoutCancel(ctx), event: event})
	}

	return nil
}

// Subscribe subscribes to events on a topic until ctx is cancelled
func (e *InMemoryEventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	sub := &subscription{
		handler: handler,
		wg:      &e.wg,
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	e.mu.Lock()
	e.nextID++
	id := e.nextID
	if e.subscribers[topic] == nil {
		e.subscribers[topic] = make(map[uint64]*subscription)
	}
	e.subscribers[topic][id] = sub
	e.mu.Unlock()

	go sub.run()

	// Clean up the subscription on context cancellation
	go func() {
		select {
		case <-ctx.Done():
			e.unsubscribe(topic, id)
		case <-sub.done:
		}
	}()

	return nil
}

// SubscriberCount returns the number of live subscriptions on a topic
func (e *InMemoryEventBus) SubscriberCount(topic string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subscribers[topic])
}

// Close removes all subscribers and waits for in-flight handlers
func (e *InMemoryEventBus) Close() error {
	e.mu.Lock()
	subs := e.subscribers
	e.subscribers = make(map[string]map[uint64]*subscription)
	e.mu.Unlock()

	for _, byID := range subs {
		for _, sub := range byID {
			sub.stop()
		}
	}

	e.wg.Wait()
	return nil
}

// unsubscribe removes a single subscription
func (e *InMemoryEventBus) unsubscribe(topic string, id uint64) {
	e.mu.Lock()
	sub, ok := e.subscribers[topic][id]
	delete(e.subscribers[topic], id)
	if len(e.subscribers[topic]) == 0 {
		delete(e.subscribers, topic)
	}
	e.mu.Unlock()

	if ok {
		sub.stop()
	}
}

func (s *subscription) enqueue(d delivery) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.queue = append(s.queue, d)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// stop drops undelivered events and ends the delivery goroutine
func (s *subscription) stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	dropped := len(s.queue)
	s.queue = nil
	s.mu.Unlock()

	for i := 0; i < dropped; i++ {
		s.wg.Done()
	}
	close(s.done)
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
		}

		for {
			s.mu.Lock()
			if s.closed || len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			d := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			_ = s.handler(d.ctx, d.event)
			s.wg.Done()
		}
	}
}
