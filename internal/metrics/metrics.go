// Package metrics exposes Prometheus collectors for the ingestion pipeline
// and the display fan-out.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ccpd/signboard/internal/fault"
	"github.com/ccpd/signboard/internal/ingest"
	"github.com/ccpd/signboard/internal/upload"
)

const namespace = "signboard"

// Metrics holds every collector the service reports.
type Metrics struct {
	registry *prometheus.Registry

	dedupLookups     *prometheus.CounterVec
	pagesRasterized  prometheus.Counter
	uploads          *prometheus.CounterVec
	uploadsInFlight  prometheus.Gauge
	assembleDuration *prometheus.HistogramVec
	snapshotFailures prometheus.Counter
	displays         prometheus.Gauge
}

var (
	_ ingest.Observer = (*Metrics)(nil)
	_ upload.Observer = (*Metrics)(nil)
)

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		dedupLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "dedup_lookups_total",
			Help:      "Digest folder lookups by outcome.",
		}, []string{"outcome"}),
		pagesRasterized: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "pages_rasterized_total",
			Help:      "Pages rendered from source documents.",
		}),
		uploads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "uploads_total",
			Help:      "Remote uploads by status.",
		}, []string{"status"}),
		uploadsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "uploads_in_flight",
			Help:      "Uploads currently running.",
		}),
		assembleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "assemble_duration_seconds",
			Help:      "Playlist assembly duration by result.",
			Buckets:   []float64{0.05, 0.25, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"result"}),
		snapshotFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "snapshot_failures_total",
			Help:      "Dashboard snapshot writes that failed.",
		}),
		displays: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "display",
			Name:      "connected",
			Help:      "Display clients currently connected.",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) DedupHit()  { m.dedupLookups.WithLabelValues("hit").Inc() }
func (m *Metrics) DedupMiss() { m.dedupLookups.WithLabelValues("miss").Inc() }

func (m *Metrics) PagesRasterized(n int) {
	m.pagesRasterized.Add(float64(n))
}

// AssembleFinished labels the duration with the error kind, or "ok".
func (m *Metrics) AssembleFinished(d time.Duration, err error) {
	m.assembleDuration.WithLabelValues(resultLabel(err)).Observe(d.Seconds())
}

func (m *Metrics) UploadStarted() {
	m.uploadsInFlight.Inc()
}

func (m *Metrics) UploadFinished(err error) {
	m.uploadsInFlight.Dec()
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.uploads.WithLabelValues(status).Inc()
}

func (m *Metrics) SnapshotFailed(error) {
	m.snapshotFailures.Inc()
}

func (m *Metrics) DisplayConnected()    { m.displays.Inc() }
func (m *Metrics) DisplayDisconnected() { m.displays.Dec() }

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	switch fault.KindOf(err) {
	case fault.ErrInvalidInput:
		return "invalid_input"
	case fault.ErrConversion:
		return "conversion"
	case fault.ErrUpload:
		return "upload"
	case fault.ErrRemoteStore:
		return "remote_store"
	case fault.ErrIO:
		return "io"
	default:
		return "error"
	}
}
