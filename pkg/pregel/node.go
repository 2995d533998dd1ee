package pregel

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// Node is a computation unit that reads and writes channels.
type Node interface {
	// Name returns the node's unique identifier.
	Name() string

	// Inputs returns the names of the channels the node subscribes to.
	Inputs() []string

	// Outputs returns the write-map from output key to destination channel.
	Outputs() map[string]string

	// Compute runs one superstep for the node. It must not have side effects
	// outside its returned outputs.
	//
	// Values in the snapshot are shared with the committed channel state and
	// with every other node of the round, so they must be treated as
	// read-only. To change a map or slice, build a new one and return it as
	// an output.
	Compute(ctx context.Context, in Snapshot) (Result, error)
}

// Result is the outcome of one Compute call: either active with outputs or inactive.
type Result struct {
	active  bool
	outputs map[string]any
}

// Active returns a result that writes outputs. An empty map still counts as
// activity for quiescence detection.
func Active(outputs map[string]any) Result {
	if outputs == nil {
		outputs = map[string]any{}
	}
	return Result{active: true, outputs: outputs}
}

// Inactive returns a result that writes nothing this superstep.
func Inactive() Result {
	return Result{}
}

// IsActive reports whether the node produced output.
func (r Result) IsActive() bool { return r.active }

// Outputs returns the output key to value mapping of an active result.
func (r Result) Outputs() map[string]any { return r.outputs }

// Snapshot maps channel names to the values visible during a superstep.
// Values are not copied, so callers must never mutate them in place.
type Snapshot map[string]any

// Get returns the value of a channel
func (s Snapshot) Get(name string) (any, bool) {
	v, ok := s[name]
	return v, ok
}

// Int returns the value of a channel as an int. Whole float64 values are
// accepted so JSON-decoded numbers work.
func (s Snapshot) Int(name string) (int, bool) {
	v, ok := s[name]
	if !ok {
		return 0, false
	}
	return ToInt(v)
}

// ToInt converts the numeric types commonly found in channel values to int.
func ToInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

// subset returns the part of the snapshot a node subscribes to
func (s Snapshot) subset(names []string) Snapshot {
	sub := make(Snapshot, len(names))
	for _, name := range names {
		sub[name] = s[name]
	}
	return sub
}

// ComputeFunc is the signature of a FuncNode computation.
type ComputeFunc func(ctx context.Context, in Snapshot) (Result, error)

// FuncNode wraps a function as a Node.
//
// Example:
//
//	node := pregel.NewFuncNode("double", []string{"x"}, map[string]string{"out": "y"},
//	    func(ctx context.Context, in pregel.Snapshot) (pregel.Result, error) {
//	        x, _ := in.Int("x")
//	        return pregel.Active(map[string]any{"out": x * 2}), nil
//	    })
type FuncNode struct {
	name    string
	inputs  []string
	outputs map[string]string
	fn      ComputeFunc
}

// NewFuncNode creates a node from a function.
func NewFuncNode(name string, subscribeTo []string, writeTo map[string]string, fn ComputeFunc) *FuncNode {
	inputs := make([]string, len(subscribeTo))
	copy(inputs, subscribeTo)

	outputs := make(map[string]string, len(writeTo))
	for k, v := range writeTo {
		outputs[k] = v
	}

	return &FuncNode{
		name:    name,
		inputs:  inputs,
		outputs: outputs,
		fn:      fn,
	}
}

func (n *FuncNode) Name() string { return n.name }

func (n *FuncNode) Inputs() []string { return n.inputs }

func (n *FuncNode) Outputs() map[string]string { return n.outputs }

// Compute runs the wrapped function.
func (n *FuncNode) Compute(ctx context.Context, in Snapshot) (Result, error) {
	if n.fn == nil {
		return Result{}, fmt.Errorf("%w: node %s has no function", ErrInvalidInput, n.name)
	}
	return n.fn(ctx, in)
}

// nodeEntry is a declared node with its subscriptions and write-map captured
// at declaration time.
type nodeEntry struct {
	node   Node
	name   string
	inputs []string
	writes map[string]string
}

// NodeRegistry holds node declarations in declaration order. Every channel a
// node references must already be declared in the bound ChannelRegistry.
//
// NodeRegistry is NOT safe for concurrent use.
type NodeRegistry struct {
	channels *ChannelRegistry
	order    []*nodeEntry
	nodes    map[string]*nodeEntry
}

// NewNodeRegistry creates a node registry validating against channels
func NewNodeRegistry(channels *ChannelRegistry) *NodeRegistry {
	return &NodeRegistry{
		channels: channels,
		nodes:    make(map[string]*nodeEntry),
	}
}

// Declare registers a node after checking its channel references
func (r *NodeRegistry) Declare(node Node) error {
	if node == nil {
		return ErrNilNode
	}

	name := node.Name()
	if name == "" {
		return fmt.Errorf("%w: node name is required", ErrInvalidInput)
	}
	if _, exists := r.nodes[name]; exists {
		return &DuplicateNodeError{Node: name}
	}

	inputs := make([]string, 0, len(node.Inputs()))
	for _, ch := range node.Inputs() {
		if !r.channels.Has(ch) {
			return &UnknownChannelError{Node: name, Channel: ch}
		}
		inputs = append(inputs, ch)
	}

	writes := make(map[string]string, len(node.Outputs()))
	for _, key := range sortedKeys(node.Outputs()) {
		ch := node.Outputs()[key]
		if !r.channels.Has(ch) {
			return &UnknownChannelError{Node: name, Channel: ch}
		}
		writes[key] = ch
	}

	entry := &nodeEntry{
		node:   node,
		name:   name,
		inputs: inputs,
		writes: writes,
	}
	r.nodes[name] = entry
	r.order = append(r.order, entry)
	return nil
}

// Names returns node names in declaration order
func (r *NodeRegistry) Names() []string {
	names := make([]string, len(r.order))
	for i, e := range r.order {
		names[i] = e.name
	}
	return names
}

// Len returns the number of declared nodes
func (r *NodeRegistry) Len() int {
	return len(r.order)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
