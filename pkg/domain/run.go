package domain

import (
	"time"
)

// ExecutionStatus represents the lifecycle state of a run
type ExecutionStatus string

const (
	ExecutionStatusSubmitted ExecutionStatus = "submitted"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal returns true once a run can no longer change
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted ||
		s == ExecutionStatusFailed ||
		s == ExecutionStatusCancelled
}

// RunState is the stored record of one graph run
type RunState struct {
	RunID       string                 `json:"run_id"`
	Graph       string                 `json:"graph"`
	Params      map[string]interface{} `json:"params,omitempty"`
	Status      ExecutionStatus        `json:"status"`
	Rounds      int                    `json:"rounds"`
	Values      map[string]interface{} `json:"values,omitempty"`
	ErrorKind   string                 `json:"error_kind,omitempty"`
	Error       string                 `json:"error,omitempty"`
	SubmittedAt time.Time              `json:"submitted_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// Clone returns a copy that shares no maps with the receiver
func (s *RunState) Clone() *RunState {
	c := *s
	c.Params = cloneMap(s.Params)
	c.Values = cloneMap(s.Values)
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
