// Package orchestrator implements the run lifecycle on top of the pregel engine.
//
// The orchestrator manager coordinates graph runs by:
//   - Validating run requests against the graph catalog
//   - Managing run lifecycle (submit, execute, monitor, cancel)
//   - Publishing lifecycle and superstep events to the event bus
//   - Tracking run records via run storage
//
// The validator rejects unknown graphs and parameters that cannot be
// decoded before any record is created.
package orchestrator
