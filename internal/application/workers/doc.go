// Package workers implements the worker pool for executing submitted runs.
//
// The worker pool manages a fixed number of goroutines that:
//   - Receive run requests from a single subscription on the event bus
//   - Execute each run through the orchestrator
//   - Report busy and idle status while they work
//
// The health monitor tracks worker status, logs it and records metrics.
package workers
