// Package domain defines the run records and events shared by the orchestrator,
// the adapters and the API layers.
package domain
