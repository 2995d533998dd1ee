package domain

import (
	"time"
)

// EventType identifies what happened to a run
type EventType string

const (
	EventTypeRunSubmitted EventType = "run.submitted"
	EventTypeRunStarted   EventType = "run.started"
	EventTypeRunRound     EventType = "run.round"
	EventTypeRunCompleted EventType = "run.completed"
	EventTypeRunFailed    EventType = "run.failed"
	EventTypeRunCancelled EventType = "run.cancelled"
)

// Event topics
const (
	// TopicRunRequests carries runs waiting for a worker. Each event is handled once.
	TopicRunRequests = "run.requests"

	// TopicRunEvents carries lifecycle and superstep events. Every subscriber sees every event.
	TopicRunEvents = "run.events"
)

// Event is published on the event bus
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	RunID     string                 `json:"run_id"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// IsTerminal returns true for events that end a run
func (t EventType) IsTerminal() bool {
	return t == EventTypeRunCompleted ||
		t == EventTypeRunFailed ||
		t == EventTypeRunCancelled
}
