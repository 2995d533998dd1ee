package pregel

import (
	"fmt"
)

// Graph assembles channels and nodes before compilation.
//
// Declarations are validated eagerly: a node referencing an undeclared
// channel is rejected by AddNode, so channels must be added first.
//
// Graph is NOT safe for concurrent use. Build it in a single goroutine.
type Graph struct {
	channels *ChannelRegistry
	nodes    *NodeRegistry
}

// New creates an empty graph
func New() *Graph {
	channels := NewChannelRegistry()
	return &Graph{
		channels: channels,
		nodes:    NewNodeRegistry(channels),
	}
}

// AddChannel declares a channel
func (g *Graph) AddChannel(name string, policy UpdatePolicy, initial any) error {
	return g.channels.Declare(name, policy, initial)
}

// AddNode declares a node
func (g *Graph) AddNode(node Node) error {
	return g.nodes.Declare(node)
}

// Channels returns the channel registry
func (g *Graph) Channels() *ChannelRegistry {
	return g.channels
}

// Nodes returns the node registry
func (g *Graph) Nodes() *NodeRegistry {
	return g.nodes
}

// Compile freezes the graph into an immutable execution plan.
// Later declarations on the graph do not affect the returned plan.
func (g *Graph) Compile() (*Plan, error) {
	if g.nodes.Len() == 0 {
		return nil, fmt.Errorf("%w: graph must have at least one node", ErrInvalidInput)
	}

	channels := make([]*Channel, len(g.channels.order))
	copy(channels, g.channels.order)

	nodes := make([]*nodeEntry, len(g.nodes.order))
	copy(nodes, g.nodes.order)

	plan := &Plan{
		channels: channels,
		nodes:    nodes,
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

// Plan is the immutable pairing of channels and nodes that a run executes.
// A Plan can be run any number of times, concurrently; each run starts from
// the declared initial values.
type Plan struct {
	channels []*Channel
	nodes    []*nodeEntry
}

// Validate checks the plan's referential integrity
func (p *Plan) Validate() error {
	declared := make(map[string]bool, len(p.channels))
	for _, ch := range p.channels {
		if declared[ch.name] {
			return &DuplicateChannelError{Channel: ch.name}
		}
		declared[ch.name] = true
	}

	seen := make(map[string]bool, len(p.nodes))
	for _, n := range p.nodes {
		if n == nil || n.node == nil {
			return ErrNilNode
		}
		if seen[n.name] {
			return &DuplicateNodeError{Node: n.name}
		}
		seen[n.name] = true

		for _, ch := range n.inputs {
			if !declared[ch] {
				return &UnknownChannelError{Node: n.name, Channel: ch}
			}
		}
		for _, key := range sortedKeys(n.writes) {
			if ch := n.writes[key]; !declared[ch] {
				return &UnknownChannelError{Node: n.name, Channel: ch}
			}
		}
	}

	return nil
}

// ChannelNames returns channel names in declaration order
func (p *Plan) ChannelNames() []string {
	names := make([]string, len(p.channels))
	for i, ch := range p.channels {
		names[i] = ch.name
	}
	return names
}

// NodeNames returns node names in declaration order
func (p *Plan) NodeNames() []string {
	names := make([]string, len(p.nodes))
	for i, n := range p.nodes {
		names[i] = n.name
	}
	return names
}
