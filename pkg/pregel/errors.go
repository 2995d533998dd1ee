package pregel

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput indicates an empty name or nil argument.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNilNode indicates a nil node was declared.
	ErrNilNode = errors.New("node is nil")

	// ErrNilPlan indicates Run was called without a plan.
	ErrNilPlan = errors.New("plan is nil")

	// ErrUnknownPolicy indicates an update policy name that is not registered.
	ErrUnknownPolicy = errors.New("unknown update policy")

	ErrDuplicateChannel  = errors.New("duplicate channel")
	ErrDuplicateNode     = errors.New("duplicate node")
	ErrUnknownChannel    = errors.New("unknown channel")
	ErrUnmappedOutputKey = errors.New("unmapped output key")
	ErrNodeFailed        = errors.New("node failed")
	ErrNonTermination    = errors.New("run did not reach quiescence")
)

// Error kinds reported by ErrorKind.
const (
	KindConfiguration  = "configuration"
	KindComputation    = "computation"
	KindNonTermination = "non_termination"
	KindCancelled      = "cancelled"
	KindTimeout        = "timeout"
	KindUnknown        = "unknown"
)

// DuplicateChannelError is returned when a channel name is declared twice.
type DuplicateChannelError struct {
	Channel string
}

func (e *DuplicateChannelError) Error() string {
	return fmt.Sprintf("duplicate channel: %s", e.Channel)
}

func (e *DuplicateChannelError) Is(target error) bool {
	return target == ErrDuplicateChannel
}

// DuplicateNodeError is returned when a node name is declared twice.
type DuplicateNodeError struct {
	Node string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("duplicate node: %s", e.Node)
}

func (e *DuplicateNodeError) Is(target error) bool {
	return target == ErrDuplicateNode
}

// UnknownChannelError is returned when a channel is read or referenced but was
// never declared. Node is empty for direct reads.
type UnknownChannelError struct {
	Node    string
	Channel string
}

func (e *UnknownChannelError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("unknown channel: %s (node=%s)", e.Channel, e.Node)
	}
	return fmt.Sprintf("unknown channel: %s", e.Channel)
}

func (e *UnknownChannelError) Is(target error) bool {
	return target == ErrUnknownChannel
}

// UnmappedOutputKeyError is returned when a node emits an output key that is
// missing from its write-map.
type UnmappedOutputKeyError struct {
	Node  string
	Key   string
	Round int
}

func (e *UnmappedOutputKeyError) Error() string {
	return fmt.Sprintf("unmapped output key: %s (node=%s, round=%d)", e.Key, e.Node, e.Round)
}

func (e *UnmappedOutputKeyError) Is(target error) bool {
	return target == ErrUnmappedOutputKey
}

// NodeError wraps a failure raised by a node's computation.
type NodeError struct {
	Node  string
	Round int
	Err   error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s failed in round %d: %v", e.Node, e.Round, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

func (e *NodeError) Is(target error) bool {
	return target == ErrNodeFailed
}

// NonTerminationError is returned when a run still has active nodes after
// MaxRounds committed supersteps.
type NonTerminationError struct {
	MaxRounds int
}

func (e *NonTerminationError) Error() string {
	return fmt.Sprintf("run did not reach quiescence within %d rounds", e.MaxRounds)
}

func (e *NonTerminationError) Is(target error) bool {
	return target == ErrNonTermination
}

// IsConfigError reports whether err is a plan configuration error.
// Uses errors.Is to handle wrapped errors.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrDuplicateChannel) ||
		errors.Is(err, ErrDuplicateNode) ||
		errors.Is(err, ErrUnknownChannel) ||
		errors.Is(err, ErrUnmappedOutputKey) ||
		errors.Is(err, ErrUnknownPolicy) ||
		errors.Is(err, ErrNilNode) ||
		errors.Is(err, ErrInvalidInput)
}

// ErrorKind classifies a run error for reporting.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrNonTermination):
		return KindNonTermination
	case IsConfigError(err):
		return KindConfiguration
	case errors.Is(err, ErrNodeFailed):
		return KindComputation
	default:
		return KindUnknown
	}
}
