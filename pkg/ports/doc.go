// Package ports declares the interfaces the application layer depends on.
//
// Adapters under pkg/adapters implement them:
//   - EventBus: memory, redis streams
//   - RunStorage: memory, redis
//   - MetricsCollector: prometheus
package ports
