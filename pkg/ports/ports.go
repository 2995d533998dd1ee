package ports

import (
	"context"
	"errors"
	"time"

	"github.com/aescanero/cutdeck/pkg/domain"
)

// ErrRunNotFound is returned by RunStorage when no record exists
var ErrRunNotFound = errors.New("run not found")

// EventHandler handles an event delivered by the bus
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus publishes and delivers run events
type EventBus interface {
	Publish(ctx context.Context, topic string, event domain.Event) error
	// Subscribe registers handler until ctx is cancelled
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Close() error
}

// RunStorage persists run records
type RunStorage interface {
	SaveRun(ctx context.Context, run *domain.RunState) error
	GetRun(ctx context.Context, runID string) (*domain.RunState, error)
	DeleteRun(ctx context.Context, runID string) error
	ListRuns(ctx context.Context) ([]*domain.RunState, error)
}

// MetricsCollector records run and worker metrics
type MetricsCollector interface {
	RecordRunSubmitted(graph string)
	RecordRunCompleted(graph string, status string, rounds int, duration time.Duration)
	RecordRound(graph string, activeNodes int, duration time.Duration)
	RecordRunError(graph string, kind string)
	SetActiveRuns(count int)
	RecordWorkerPoolStatus(idle, busy, stopped int)
}
