package pregel

import (
	"fmt"
)

// UpdatePolicy merges a committed write into a channel's current value.
type UpdatePolicy interface {
	// Name identifies the policy in logs and descriptors.
	Name() string

	// Update returns the channel value after applying one write.
	Update(current, value any) (any, error)
}

type lastValue struct{}

// LastValue returns the policy where each write replaces the current value.
func LastValue() UpdatePolicy {
	return lastValue{}
}

func (lastValue) Name() string { return "LastValue" }

func (lastValue) Update(_, value any) (any, error) {
	return value, nil
}

// ReducerFunc folds a write into the current channel value. current is the
// committed value and must not be modified; return a new value instead.
type ReducerFunc func(current, value any) (any, error)

type reducer struct {
	name string
	fn   ReducerFunc
}

// Reducer returns a policy that folds every write into the current value with fn.
// Writes from one superstep are folded in node declaration order.
func Reducer(name string, fn ReducerFunc) UpdatePolicy {
	return &reducer{name: name, fn: fn}
}

func (r *reducer) Name() string { return r.name }

func (r *reducer) Update(current, value any) (any, error) {
	if r.fn == nil {
		return nil, fmt.Errorf("%w: reducer %s has no function", ErrInvalidInput, r.name)
	}
	return r.fn(current, value)
}

// PolicyByName resolves the built-in policies by their declared name.
func PolicyByName(name string) (UpdatePolicy, error) {
	switch name {
	case "LastValue", "last_value":
		return LastValue(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownPolicy, name)
	}
}

// Channel is a declared state cell.
type Channel struct {
	name    string
	policy  UpdatePolicy
	initial any
}

// Name returns the channel name.
func (c *Channel) Name() string { return c.name }

// Policy returns the channel's update policy.
func (c *Channel) Policy() UpdatePolicy { return c.policy }

// Initial returns the value the channel holds before the first superstep.
func (c *Channel) Initial() any { return c.initial }

// ChannelRegistry holds channel declarations in declaration order.
//
// ChannelRegistry is NOT safe for concurrent use. Declare channels from a
// single goroutine before compiling.
type ChannelRegistry struct {
	order    []*Channel
	channels map[string]*Channel
}

// NewChannelRegistry creates an empty channel registry
func NewChannelRegistry() *ChannelRegistry {
	return &ChannelRegistry{
		channels: make(map[string]*Channel),
	}
}

// Declare registers a channel with its update policy and initial value
func (r *ChannelRegistry) Declare(name string, policy UpdatePolicy, initial any) error {
	if name == "" {
		return fmt.Errorf("%w: channel name is required", ErrInvalidInput)
	}
	if policy == nil {
		return fmt.Errorf("%w: channel %s has no update policy", ErrInvalidInput, name)
	}
	if _, exists := r.channels[name]; exists {
		return &DuplicateChannelError{Channel: name}
	}

	ch := &Channel{name: name, policy: policy, initial: initial}
	r.channels[name] = ch
	r.order = append(r.order, ch)
	return nil
}

// Lookup returns the declared channel by name
func (r *ChannelRegistry) Lookup(name string) (*Channel, bool) {
	ch, ok := r.channels[name]
	return ch, ok
}

// Has reports whether a channel is declared
func (r *ChannelRegistry) Has(name string) bool {
	_, ok := r.channels[name]
	return ok
}

// Names returns channel names in declaration order
func (r *ChannelRegistry) Names() []string {
	names := make([]string, len(r.order))
	for i, ch := range r.order {
		names[i] = ch.name
	}
	return names
}

// Len returns the number of declared channels
func (r *ChannelRegistry) Len() int {
	return len(r.order)
}

// channelStore holds the committed values of one run.
// Only the scheduler mutates it, and only between supersteps.
type channelStore struct {
	policies map[string]UpdatePolicy
	values   map[string]any
}

func newChannelStore(channels []*Channel) *channelStore {
	s := &channelStore{
		policies: make(map[string]UpdatePolicy, len(channels)),
		values:   make(map[string]any, len(channels)),
	}
	for _, ch := range channels {
		s.policies[ch.name] = ch.policy
		s.values[ch.name] = ch.initial
	}
	return s
}

// Read returns the committed value of a channel
func (s *channelStore) Read(name string) (any, error) {
	if _, declared := s.policies[name]; !declared {
		return nil, &UnknownChannelError{Channel: name}
	}
	return s.values[name], nil
}

// snapshot copies the committed values
func (s *channelStore) snapshot() Snapshot {
	snap := make(Snapshot, len(s.values))
	for k, v := range s.values {
		snap[k] = v
	}
	return snap
}

// stage applies writes to a copy of the committed values. The store is left
// untouched if any update fails.
func (s *channelStore) stage(writes []pendingWrite, round int) (map[string]any, error) {
	next := make(map[string]any, len(s.values))
	for k, v := range s.values {
		next[k] = v
	}

	for _, w := range writes {
		policy, ok := s.policies[w.channel]
		if !ok {
			return nil, &UnknownChannelError{Node: w.node, Channel: w.channel}
		}
		updated, err := policy.Update(next[w.channel], w.value)
		if err != nil {
			return nil, &NodeError{
				Node:  w.node,
				Round: round,
				Err:   fmt.Errorf("update channel %s (%s): %w", w.channel, policy.Name(), err),
			}
		}
		next[w.channel] = updated
	}

	return next, nil
}

// commit swaps in values produced by stage
func (s *channelStore) commit(next map[string]any) {
	s.values = next
}
