package graphs

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aescanero/cutdeck/pkg/pregel"
)

var (
	// ErrGraphNotFound is returned when no factory is registered under a name
	ErrGraphNotFound = errors.New("graph not found")

	// ErrInvalidParams is returned when a factory rejects its parameters
	ErrInvalidParams = errors.New("invalid graph parameters")
)

// Factory builds a graph from run parameters
type Factory func(params map[string]any) (*pregel.Graph, error)

// Descriptor describes a catalog entry
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Defaults    map[string]any `json:"defaults,omitempty"`
}

type entry struct {
	desc    Descriptor
	factory Factory
}

// Catalog is a registry of graph factories, safe for concurrent use
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]entry)}
}

// Register adds a factory. Names must be unique.
func (c *Catalog) Register(desc Descriptor, factory Factory) error {
	if desc.Name == "" {
		return fmt.Errorf("graph name is required")
	}
	if factory == nil {
		return fmt.Errorf("graph %q: factory is required", desc.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[desc.Name]; exists {
		return fmt.Errorf("graph %q already registered", desc.Name)
	}
	c.entries[desc.Name] = entry{desc: desc, factory: factory}
	return nil
}

// Build constructs and compiles the named graph
func (c *Catalog) Build(name string, params map[string]any) (*pregel.Plan, error) {
	c.mu.RLock()
	e, ok := c.entries[name]
	c.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGraphNotFound, name)
	}

	g, err := e.factory(params)
	if err != nil {
		return nil, err
	}
	return g.Compile()
}

// Has reports whether a graph is registered
func (c *Catalog) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[name]
	return ok
}

// List returns all descriptors sorted by name
func (c *Catalog) List() []Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Descriptor, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Default returns a catalog with the built-in graphs registered
func Default() *Catalog {
	c := NewCatalog()
	for _, b := range builtins() {
		if err := c.Register(b.desc, b.factory); err != nil {
			panic(err)
		}
	}
	return c
}

func builtins() []entry {
	return []entry{
		{
			desc: Descriptor{
				Name:        "counter",
				Description: "Increments a counter once per round until it reaches limit",
				Defaults:    map[string]any{"start": 0, "limit": 5},
			},
			factory: Counter,
		},
		{
			desc: Descriptor{
				Name:        "relay",
				Description: "A source node counts up to limit while a mirror copies the previous round's value",
				Defaults:    map[string]any{"limit": 3},
			},
			factory: Relay,
		},
		{
			desc: Descriptor{
				Name:        "sum",
				Description: "Two nodes write into a summing channel for a number of rounds",
				Defaults:    map[string]any{"rounds": 3, "stepX": 1, "stepY": 2},
			},
			factory: Sum,
		},
	}
}

// intParam reads an integer parameter, accepting JSON numbers
func intParam(params map[string]any, key string, def int) (int, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, nil
	}
	n, ok := pregel.ToInt(v)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be an integer, got %v", ErrInvalidParams, key, v)
	}
	return n, nil
}
