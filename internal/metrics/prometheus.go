package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collectors holds the per-process Prometheus instruments. They complement
// the Redis counters: Redis powers the activity feed, Prometheus powers
// dashboards and alerting.
type Collectors struct {
	ExportsTotal   *prometheus.CounterVec
	ImportsTotal   *prometheus.CounterVec
	SideloadsTotal *prometheus.CounterVec
	ImportDuration prometheus.Histogram
	BatchSize      prometheus.Histogram
}

// NewCollectors creates and registers the instruments on reg.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		ExportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "porter",
			Name:      "exports_total",
			Help:      "Exported snapshots by content type and result.",
		}, []string{"content_type", "result"}),
		ImportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "porter",
			Name:      "imports_total",
			Help:      "Imported snapshots by content type and result.",
		}, []string{"content_type", "result"}),
		SideloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "porter",
			Name:      "media_sideloads_total",
			Help:      "Media rehydration attempts by result.",
		}, []string{"result"}),
		ImportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "porter",
			Name:      "import_duration_seconds",
			Help:      "Wall time of one snapshot import, media included.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "porter",
			Name:      "batch_size",
			Help:      "Items per batch transfer.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),
	}

	reg.MustRegister(
		c.ExportsTotal,
		c.ImportsTotal,
		c.SideloadsTotal,
		c.ImportDuration,
		c.BatchSize,
	)
	return c
}

// ObserveExport records one export attempt.
func (c *Collectors) ObserveExport(contentType string, err error) {
	if c == nil {
		return
	}
	c.ExportsTotal.WithLabelValues(contentType, resultLabel(err)).Inc()
}

// ObserveImport records one import attempt and its duration.
func (c *Collectors) ObserveImport(contentType string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	c.ImportsTotal.WithLabelValues(contentType, resultLabel(err)).Inc()
	c.ImportDuration.Observe(duration.Seconds())
}

// ObserveSideload records one media rehydration attempt.
func (c *Collectors) ObserveSideload(failed bool) {
	if c == nil {
		return
	}
	result := "success"
	if failed {
		result = "error"
	}
	c.SideloadsTotal.WithLabelValues(result).Inc()
}

// ObserveBatch records the size of one batch transfer.
func (c *Collectors) ObserveBatch(size int) {
	if c == nil {
		return
	}
	c.BatchSize.Observe(float64(size))
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
