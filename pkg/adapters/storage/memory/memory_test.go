package memory

import (
	"context"
	"testing"
	"time"

	"github.com/aescanero/cutdeck/pkg/domain"
	"github.com/aescanero/cutdeck/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRunStorage_SaveAndGet(t *testing.T) {
	s := NewInMemoryRunStorage()
	ctx := context.Background()

	run := &domain.RunState{
		RunID:  "run-1",
		Graph:  "counter",
		Status: domain.ExecutionStatusCompleted,
		Values: map[string]interface{}{"count": 5},
	}
	require.NoError(t, s.SaveRun(ctx, run))

	// Mutating the caller's record must not leak into storage
	run.Values["count"] = 99

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 5, got.Values["count"])
	assert.Equal(t, domain.ExecutionStatusCompleted, got.Status)
}

func TestInMemoryRunStorage_NotFound(t *testing.T) {
	s := NewInMemoryRunStorage()

	_, err := s.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ports.ErrRunNotFound)
}

func TestInMemoryRunStorage_InvalidRecord(t *testing.T) {
	s := NewInMemoryRunStorage()

	assert.Error(t, s.SaveRun(context.Background(), nil))
	assert.Error(t, s.SaveRun(context.Background(), &domain.RunState{}))
}

func TestInMemoryRunStorage_ListAndDelete(t *testing.T) {
	s := NewInMemoryRunStorage()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.SaveRun(ctx, &domain.RunState{RunID: "old", SubmittedAt: now.Add(-time.Minute)}))
	require.NoError(t, s.SaveRun(ctx, &domain.RunState{RunID: "new", SubmittedAt: now}))

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].RunID)
	assert.Equal(t, "old", runs[1].RunID)

	require.NoError(t, s.DeleteRun(ctx, "old"))
	runs, err = s.ListRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
