package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aescanero/cutdeck/pkg/domain"
	"github.com/aescanero/cutdeck/pkg/ports"
)

// InMemoryRunStorage implements RunStorage using an in-memory map
type InMemoryRunStorage struct {
	runs map[string]*domain.RunState
	mu   sync.RWMutex
}

// NewInMemoryRunStorage creates a new in-memory run storage
func NewInMemoryRunStorage() *InMemoryRunStorage {
	return &InMemoryRunStorage{
		runs: make(map[string]*domain.RunState),
	}
}

// SaveRun stores a copy of the run record
func (s *InMemoryRunStorage) SaveRun(ctx context.Context, run *domain.RunState) error {
	if run == nil || run.RunID == "" {
		return fmt.Errorf("invalid run record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Copy to avoid mutations through the caller's pointer
	s.runs[run.RunID] = run.Clone()
	return nil
}

// GetRun retrieves a copy of the run record
func (s *InMemoryRunStorage) GetRun(ctx context.Context, runID string) (*domain.RunState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrRunNotFound, runID)
	}
	return run.Clone(), nil
}

// DeleteRun removes a run record
func (s *InMemoryRunStorage) DeleteRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runs, runID)
	return nil
}

// ListRuns returns all run records, most recently submitted first
func (s *InMemoryRunStorage) ListRuns(ctx context.Context) ([]*domain.RunState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]*domain.RunState, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run.Clone())
	}
	sortRuns(runs)
	return runs, nil
}

func sortRuns(runs []*domain.RunState) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].SubmittedAt.Equal(runs[j].SubmittedAt) {
			return runs[i].RunID < runs[j].RunID
		}
		return runs[i].SubmittedAt.After(runs[j].SubmittedAt)
	})
}
