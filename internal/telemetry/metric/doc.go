// Package metric provides Prometheus metrics for tcpctl.
//
//   - prometheus.go: Registry of counters, gauges and the connect histogram
//   - collector.go: Collector reporting session table contents at scrape time
//
// The CLI "stats" command prints a Snapshot of the registry.
package metric
