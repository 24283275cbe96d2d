// Package metrics exposes Prometheus instrumentation for segment-index
// fetches and manifest assembly.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the index and manifest instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	IndexFetches       *prometheus.CounterVec
	IndexFetchBytes    prometheus.Counter
	IndexFetchDuration prometheus.Histogram
	IndexBuilds        *prometheus.CounterVec
	IndexReferences    prometheus.Histogram
	IndexesLive        prometheus.Gauge
	ManifestBuilds     *prometheus.CounterVec
}

// New creates and registers the metrics with the given registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IndexFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vodindex",
			Subsystem: "index",
			Name:      "fetches_total",
			Help:      "Combined init+index fetches by stream type and result.",
		}, []string{"type", "result"}),
		IndexFetchBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vodindex",
			Subsystem: "index",
			Name:      "fetch_bytes_total",
			Help:      "Bytes received by init+index fetches.",
		}),
		IndexFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vodindex",
			Subsystem: "index",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of init+index fetches.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		IndexBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vodindex",
			Subsystem: "index",
			Name:      "builds_total",
			Help:      "Segment index builds by container and result.",
		}, []string{"container", "result"}),
		IndexReferences: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vodindex",
			Subsystem: "index",
			Name:      "references",
			Help:      "Number of segment references per built index.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		IndexesLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vodindex",
			Subsystem: "index",
			Name:      "live",
			Help:      "Segment indexes currently held by open streams.",
		}),
		ManifestBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vodindex",
			Subsystem: "manifest",
			Name:      "builds_total",
			Help:      "Manifest assemblies by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.IndexFetches,
		m.IndexFetchBytes,
		m.IndexFetchDuration,
		m.IndexBuilds,
		m.IndexReferences,
		m.IndexesLive,
		m.ManifestBuilds,
	)

	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveFetch records one init+index fetch.
func (m *Metrics) ObserveFetch(streamType string, n int, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.IndexFetches.WithLabelValues(streamType, result(err)).Inc()
	m.IndexFetchDuration.Observe(d.Seconds())
	m.IndexFetchBytes.Add(float64(n))
}

// ObserveBuild records one segment index build.
func (m *Metrics) ObserveBuild(container string, refs int, err error) {
	if m == nil {
		return
	}
	m.IndexBuilds.WithLabelValues(container, result(err)).Inc()
	if err == nil {
		m.IndexReferences.Observe(float64(refs))
	}
}

// IndexOpened counts an index becoming ready.
func (m *Metrics) IndexOpened() {
	if m == nil {
		return
	}
	m.IndexesLive.Inc()
}

// IndexClosed counts a ready index being released.
func (m *Metrics) IndexClosed() {
	if m == nil {
		return
	}
	m.IndexesLive.Dec()
}

// ObserveManifest records one manifest assembly.
func (m *Metrics) ObserveManifest(err error) {
	if m == nil {
		return
	}
	m.ManifestBuilds.WithLabelValues(result(err)).Inc()
}
