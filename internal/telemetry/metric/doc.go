// Package metric exposes memkv metrics in Prometheus format.
//
//   - prometheus.go: the registry, its gauges and counters, and the HTTP
//     handler
//   - collector.go: a collector reading background job queue state at
//     scrape time
//
// Every Registry method accepts a nil receiver, so components can record
// metrics without checking whether metrics are enabled.
package metric
