// Package metric provides Prometheus metrics for tidekv.
//
//   - prometheus.go: the registry, command/connection metrics and the
//     /metrics handler
//   - collector.go: a collector reading keyspace counters at scrape time
//
// Every recording method is safe on a nil *Metrics, so components may run
// without metrics.
package metric
