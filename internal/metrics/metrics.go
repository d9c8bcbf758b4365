// Package metrics exposes Prometheus instrumentation for the API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mapchat/api/internal/export"
	"mapchat/api/internal/sentiment"
	"mapchat/api/internal/tier"
)

const namespace = "mapchat"

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	ingestFiles   *prometheus.CounterVec
	ingestedRows  *prometheus.CounterVec
	exports       *prometheus.CounterVec
	denials       *prometheus.CounterVec
	renderSeconds *prometheus.HistogramVec
	rebuilds      prometheus.Counter
	sentiments    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ingestFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_files_total",
			Help:      "Uploaded files by format and outcome",
		}, []string{"format", "outcome"}),
		ingestedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_rows_total",
			Help:      "Ingested rows by format, split into added and dropped",
		}, []string{"format", "result"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Export requests by format and outcome",
		}, []string{"format", "outcome"}),
		denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_denials_total",
			Help:      "Exports refused by the tier gate",
		}, []string{"kind", "tier"}),
		renderSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Time spent rasterizing or printing an export",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"format"}),
		rebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciler_rebuilds_total",
			Help:      "Full collection rebuilds from the drawing layer",
		}),
		sentiments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sentiment_analyses_total",
			Help:      "Background sentiment analyses by category and outcome",
		}, []string{"category", "outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration, m.ingestFiles, m.ingestedRows, m.exports,
		m.denials, m.renderSeconds, m.rebuilds, m.sentiments,
	)
	return m
}

// Registry exposes the underlying registry, e.g. for extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// LiveSessions registers a gauge read from fn at scrape time.
func (m *Metrics) LiveSessions(fn func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_live",
		Help:      "Mounted map sessions",
	}, func() float64 { return float64(fn()) }))
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) ObserveIngest(format string, added, dropped int, err error) {
	if format == "" {
		format = "unknown"
	}
	if err != nil {
		m.ingestFiles.WithLabelValues(format, "rejected").Inc()
		return
	}
	m.ingestFiles.WithLabelValues(format, "ok").Inc()
	m.ingestedRows.WithLabelValues(format, "added").Add(float64(added))
	m.ingestedRows.WithLabelValues(format, "dropped").Add(float64(dropped))
}

func (m *Metrics) ObserveExport(format export.Format, outcome string) {
	m.exports.WithLabelValues(string(format), outcome).Inc()
}

// ExportDenied matches export.Options.OnDenied.
func (m *Metrics) ExportDenied(kind export.Kind, t tier.Tier) {
	m.denials.WithLabelValues(string(kind), string(t)).Inc()
}

// ExportRendered matches export.Options.OnRendered.
func (m *Metrics) ExportRendered(format export.Format, d time.Duration) {
	m.renderSeconds.WithLabelValues(string(format)).Observe(d.Seconds())
}

func (m *Metrics) Rebuilt() {
	m.rebuilds.Inc()
}

// SentimentAnalyzed matches comments.Options.OnAnalyzed.
func (m *Metrics) SentimentAnalyzed(r sentiment.Result, err error) {
	if err != nil {
		m.sentiments.WithLabelValues("", "failed").Inc()
		return
	}
	m.sentiments.WithLabelValues(string(r.Category), "ok").Inc()
}
