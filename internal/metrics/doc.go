// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Batches delivered to the sink adapter, by result
//   - Quote updates received and dataset rows produced
//   - Sink table update latency
//   - Sink adapter lifecycle state
//
// Collectors are registered on an explicit registry so tests and
// multiple adapters in one process do not collide.
package metrics
