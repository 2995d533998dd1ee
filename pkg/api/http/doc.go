// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - The engine smoke test (/daggyd/test)
//   - Graph listing and synchronous runs
//   - Asynchronous run submission, status, results and cancellation
//   - Health checks
//   - Prometheus metrics
package http
