// Package metrics exposes Prometheus metrics for digest runs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/dedupe"
	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/enrich"
	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/pipeline"
	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/seen"
	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/sources"
)

// Namespace prefixes every metric name.
const Namespace = "newsdigest"

// Metrics implements pipeline.Observer on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal          *prometheus.CounterVec
	RunDuration        prometheus.Histogram
	LastSuccess        prometheus.Gauge
	ItemsFetched       *prometheus.CounterVec
	SourceFailures     *prometheus.CounterVec
	DedupeItems        *prometheus.CounterVec
	EnrichmentOutcomes *prometheus.CounterVec
	StoreErrors        *prometheus.CounterVec
	ItemsDelivered     prometheus.Counter
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "runs_total",
			Help:      "Digest runs by final state.",
		}, []string{"state"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of digest runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that ended in done.",
		}),
		ItemsFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "items_fetched_total",
			Help:      "Raw items returned per source.",
		}, []string{"source"}),
		SourceFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "source_failures_total",
			Help:      "Source fetches that failed and contributed nothing.",
		}, []string{"source"}),
		DedupeItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "dedupe_items_total",
			Help:      "Merge stage outcomes per item.",
		}, []string{"outcome"}),
		EnrichmentOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "enrichment_total",
			Help:      "Enrichments by degradation tier.",
		}, []string{"tier"}),
		StoreErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "store_errors_total",
			Help:      "Seen store failures by operation.",
		}, []string{"op"}),
		ItemsDelivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "items_delivered_total",
			Help:      "Items handed to a successful delivery.",
		}),
	}
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) SourceFetched(res sources.Result) {
	if res.Err != nil {
		m.SourceFailures.WithLabelValues(res.Name).Inc()
		return
	}
	m.ItemsFetched.WithLabelValues(res.Name).Add(float64(res.Count))
}

func (m *Metrics) Deduped(res dedupe.Result) {
	m.DedupeItems.WithLabelValues("kept").Add(float64(len(res.Items)))
	m.DedupeItems.WithLabelValues("duplicate").Add(float64(res.Duplicates))
	m.DedupeItems.WithLabelValues("already_seen").Add(float64(res.AlreadySeen))
	m.DedupeItems.WithLabelValues("no_key").Add(float64(res.NoKey))
	m.DedupeItems.WithLabelValues("excluded").Add(float64(len(res.Excluded)))
}

func (m *Metrics) Enriched(stats enrich.Stats) {
	m.EnrichmentOutcomes.WithLabelValues(enrich.Structured.String()).Add(float64(stats.Structured))
	m.EnrichmentOutcomes.WithLabelValues(enrich.Malformed.String()).Add(float64(stats.Malformed))
	m.EnrichmentOutcomes.WithLabelValues(enrich.Failed.String()).Add(float64(stats.Failed))
}

func (m *Metrics) StoreFailed(op seen.Op) {
	m.StoreErrors.WithLabelValues(string(op)).Inc()
}

func (m *Metrics) RunFinished(r *pipeline.Report) {
	m.RunsTotal.WithLabelValues(r.State.String()).Inc()
	if !r.FinishedAt.IsZero() {
		m.RunDuration.Observe(r.FinishedAt.Sub(r.StartedAt).Seconds())
	}
	if r.Succeeded() {
		m.LastSuccess.Set(float64(r.FinishedAt.Unix()))
	}
	if r.Delivered {
		m.ItemsDelivered.Add(float64(r.Items))
	}
}

var _ pipeline.Observer = (*Metrics)(nil)
