// Package websocket provides real-time run event streaming via WebSocket.
//
// Clients can connect to /api/v1/runs/:id/ws to receive the current run
// record followed by lifecycle and superstep events for that run. The
// connection closes after the run reaches a terminal state.
package websocket
