// Package metric provides Prometheus metrics for tcpctl.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/tcpctl-go/internal/core/domain"
)

// SessionSource is the read side of the session table.
type SessionSource interface {
	Sessions() []*domain.Session
}

// Collector reports the session table contents at scrape time.
type Collector struct {
	source  SessionSource
	tracked *prometheus.Desc
	byState *prometheus.Desc
}

// NewCollector creates a collector over the given table.
func NewCollector(source SessionSource) *Collector {
	return &Collector{
		source: source,
		tracked: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sessions_tracked"),
			"Session records currently held in the table.",
			nil, nil,
		),
		byState: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sessions_by_state"),
			"Session records by lifecycle state.",
			[]string{"state"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.tracked
	ch <- c.byState
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	sessions := c.source.Sessions()
	ch <- prometheus.MustNewConstMetric(c.tracked, prometheus.GaugeValue, float64(len(sessions)))

	counts := map[domain.SessionState]int{
		domain.StateCreated:         0,
		domain.StateSocketAllocated: 0,
		domain.StateConnected:       0,
		domain.StateClosed:          0,
	}
	for _, s := range sessions {
		counts[s.State]++
	}
	for state, n := range counts {
		ch <- prometheus.MustNewConstMetric(c.byState, prometheus.GaugeValue, float64(n), state.String())
	}
}
