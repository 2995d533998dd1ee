// Package pregel implements a bulk-synchronous graph computation engine.
//
// A graph is made of channels and nodes. Channels are named state cells with an
// update policy. Nodes subscribe to channels, compute over a snapshot of their
// values and write results back through a write-map. Execution advances in
// supersteps:
//   - Snapshot every channel once
//   - Invoke every node against that snapshot
//   - Translate output keys to destination channels
//   - Commit all writes in node declaration order
//   - Stop once no node is active
//
// Nodes never observe writes made by other nodes in the same superstep, so a
// run is a deterministic function of the declared initial values.
//
// Example usage:
//
//	g := pregel.New()
//	_ = g.AddChannel("count", pregel.LastValue(), 0)
//	_ = g.AddNode(pregel.NewFuncNode("counter",
//	    []string{"count"},
//	    map[string]string{"out": "count"},
//	    func(ctx context.Context, in pregel.Snapshot) (pregel.Result, error) {
//	        n, _ := in.Int("count")
//	        if n < 5 {
//	            return pregel.Active(map[string]any{"out": n + 1}), nil
//	        }
//	        return pregel.Inactive(), nil
//	    }))
//
//	plan, err := g.Compile()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := pregel.Run(ctx, plan)
package pregel
