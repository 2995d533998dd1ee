// Package events provides event bus implementations.
//
// Implementations:
//   - redis: Redis Streams; queue topics use a consumer group, other topics fan out
//   - memory: In-memory fan-out for tests and single-process deployments
package events
