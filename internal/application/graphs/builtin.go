package graphs

import (
	"context"
	"fmt"

	"github.com/aescanero/cutdeck/pkg/pregel"
)

// Counter builds a single-node graph: count goes from start to limit,
// one increment per round.
func Counter(params map[string]any) (*pregel.Graph, error) {
	start, err := intParam(params, "start", 0)
	if err != nil {
		return nil, err
	}
	limit, err := intParam(params, "limit", 5)
	if err != nil {
		return nil, err
	}

	g := pregel.New()
	if err := g.AddChannel("count", pregel.LastValue(), start); err != nil {
		return nil, err
	}

	counter := pregel.NewFuncNode("counter",
		[]string{"count"},
		map[string]string{"next": "count"},
		func(ctx context.Context, in pregel.Snapshot) (pregel.Result, error) {
			count, ok := in.Int("count")
			if !ok {
				return pregel.Result{}, fmt.Errorf("count is not an integer: %v", in["count"])
			}
			if count >= limit {
				return pregel.Inactive(), nil
			}
			return pregel.Active(map[string]any{"next": count + 1}), nil
		})

	if err := g.AddNode(counter); err != nil {
		return nil, err
	}
	return g, nil
}

// Relay builds a two-node graph where mirror copies a into b. Because mirror
// only sees the previous round's a, b trails a by one round.
func Relay(params map[string]any) (*pregel.Graph, error) {
	limit, err := intParam(params, "limit", 3)
	if err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", ErrInvalidParams)
	}

	g := pregel.New()
	if err := g.AddChannel("a", pregel.LastValue(), 0); err != nil {
		return nil, err
	}
	if err := g.AddChannel("b", pregel.LastValue(), 0); err != nil {
		return nil, err
	}

	source := pregel.NewFuncNode("source",
		[]string{"a"},
		map[string]string{"out": "a"},
		func(ctx context.Context, in pregel.Snapshot) (pregel.Result, error) {
			a, _ := in.Int("a")
			if a >= limit {
				return pregel.Inactive(), nil
			}
			return pregel.Active(map[string]any{"out": a + 1}), nil
		})

	mirror := pregel.NewFuncNode("mirror",
		[]string{"a", "b"},
		map[string]string{"out": "b"},
		func(ctx context.Context, in pregel.Snapshot) (pregel.Result, error) {
			a, _ := in.Int("a")
			b, _ := in.Int("b")
			if a == b {
				return pregel.Inactive(), nil
			}
			return pregel.Active(map[string]any{"out": a}), nil
		})

	for _, n := range []pregel.Node{source, mirror} {
		if err := g.AddNode(n); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Sum builds a graph where x and y both write into a summing channel each
// round. x also advances the ticks channel that bounds the run.
func Sum(params map[string]any) (*pregel.Graph, error) {
	rounds, err := intParam(params, "rounds", 3)
	if err != nil {
		return nil, err
	}
	stepX, err := intParam(params, "stepX", 1)
	if err != nil {
		return nil, err
	}
	stepY, err := intParam(params, "stepY", 2)
	if err != nil {
		return nil, err
	}
	if rounds < 0 {
		return nil, fmt.Errorf("%w: rounds must not be negative", ErrInvalidParams)
	}

	sum := pregel.Reducer("Sum", func(current, value any) (any, error) {
		c, ok := pregel.ToInt(current)
		if !ok {
			return nil, fmt.Errorf("total is not an integer: %v", current)
		}
		v, ok := pregel.ToInt(value)
		if !ok {
			return nil, fmt.Errorf("write is not an integer: %v", value)
		}
		return c + v, nil
	})

	g := pregel.New()
	if err := g.AddChannel("ticks", pregel.LastValue(), 0); err != nil {
		return nil, err
	}
	if err := g.AddChannel("total", sum, 0); err != nil {
		return nil, err
	}

	x := pregel.NewFuncNode("x",
		[]string{"ticks"},
		map[string]string{"tick": "ticks", "step": "total"},
		func(ctx context.Context, in pregel.Snapshot) (pregel.Result, error) {
			ticks, _ := in.Int("ticks")
			if ticks >= rounds {
				return pregel.Inactive(), nil
			}
			return pregel.Active(map[string]any{"tick": ticks + 1, "step": stepX}), nil
		})

	y := pregel.NewFuncNode("y",
		[]string{"ticks"},
		map[string]string{"step": "total"},
		func(ctx context.Context, in pregel.Snapshot) (pregel.Result, error) {
			ticks, _ := in.Int("ticks")
			if ticks >= rounds {
				return pregel.Inactive(), nil
			}
			return pregel.Active(map[string]any{"step": stepY}), nil
		})

	for _, n := range []pregel.Node{x, y} {
		if err := g.AddNode(n); err != nil {
			return nil, err
		}
	}
	return g, nil
}
