package metric

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/memkv/internal/bio"
)

// BioStats is the view of a background job queue the collector reads.
type BioStats interface {
	Pending(k bio.Kind) int
	Failures(k bio.Kind) int64
}

// BioCollector reports background job queue state at scrape time.
type BioCollector struct {
	q        BioStats
	pending  *prometheus.Desc
	failures *prometheus.Desc
}

// NewBioCollector creates a collector for q.
func NewBioCollector(q BioStats) *BioCollector {
	return &BioCollector{
		q: q,
		pending: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "bio", "pending_jobs"),
			"Background jobs waiting or running, per kind",
			[]string{"kind"}, nil),
		failures: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "bio", "failed_jobs_total"),
			"Background jobs that returned an error, per kind",
			[]string{"kind"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *BioCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.pending
	ch <- c.failures
}

// Collect implements prometheus.Collector.
func (c *BioCollector) Collect(ch chan<- prometheus.Metric) {
	for _, k := range bio.Kinds() {
		ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(c.q.Pending(k)), k.String())
		ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(c.q.Failures(k)), k.String())
	}
}
