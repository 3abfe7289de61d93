// Package metrics exposes Prometheus counters for list and history activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cartwise"

// Outcome labels.
const (
	OutcomeArchived = "archived"
	OutcomeNoop     = "noop"
	OutcomeError    = "error"
	OutcomeOK       = "ok"
)

type Metrics struct {
	registry *prometheus.Registry

	ListWrites      *prometheus.CounterVec
	Archives        *prometheus.CounterVec
	ArchiveDuration prometheus.Histogram
	Extractions     *prometheus.CounterVec
	Reconciliations *prometheus.CounterVec
	DashboardCache  *prometheus.CounterVec
	FeedDropped     prometheus.Counter
	Backups         *prometheus.CounterVec
}

// New registers every collector on a fresh registry, along with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ListWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "list_writes_total",
			Help:      "List mutations by operation.",
		}, []string{"op"}),
		Archives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archives_total",
			Help:      "Finish shopping attempts by outcome.",
		}, []string{"outcome"}),
		ArchiveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "archive_duration_seconds",
			Help:      "Time spent archiving a shopping trip.",
			Buckets:   prometheus.DefBuckets,
		}),
		Extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receipt_extractions_total",
			Help:      "Receipt extraction calls by outcome.",
		}, []string{"outcome"}),
		Reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Receipts merged into archived purchases by outcome.",
		}, []string{"outcome"}),
		DashboardCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dashboard_cache_total",
			Help:      "Analytics dashboard cache lookups by result.",
		}, []string{"result"}),
		FeedDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_dropped_snapshots_total",
			Help:      "Snapshots dropped because a subscriber fell behind.",
		}),
		Backups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_total",
			Help:      "Database backups by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ListWrites,
		m.Archives,
		m.ArchiveDuration,
		m.Extractions,
		m.Reconciliations,
		m.DashboardCache,
		m.FeedDropped,
		m.Backups,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveArchive records one finish shopping attempt.
func (m *Metrics) ObserveArchive(outcome string, start time.Time) {
	m.Archives.WithLabelValues(outcome).Inc()
	if outcome != OutcomeError {
		m.ArchiveDuration.Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
