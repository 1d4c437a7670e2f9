package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain/repository.Metrics using Prometheus.
type Recorder struct {
	fetchesTotal   *prometheus.CounterVec
	cacheTotal     *prometheus.CounterVec
	providerErrors *prometheus.CounterVec
	rateLimitWait  *prometheus.HistogramVec
	latency        *prometheus.HistogramVec
	lastRunFetched prometheus.Gauge
	lastRunFailed  prometheus.Gauge
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		fetchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volscreen_fetches_total",
				Help: "Records resolved, labeled by data source",
			},
			[]string{"source"},
		),
		cacheTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volscreen_cache_lookups_total",
				Help: "Cache lookups by outcome",
			},
			[]string{"outcome"},
		),
		providerErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volscreen_provider_errors_total",
				Help: "Provider errors by provider and kind",
			},
			[]string{"provider", "kind"},
		),
		rateLimitWait: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "volscreen_rate_limit_wait_seconds",
				Help:    "Time spent waiting for rate limit permits",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"provider"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "volscreen_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		lastRunFetched: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "volscreen_last_run_fetched",
				Help: "Symbols resolved in the last fetch pass",
			},
		),
		lastRunFailed: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "volscreen_last_run_failed",
				Help: "Symbols failed in the last fetch pass",
			},
		),
	}
}

// RecordFetch counts a resolved record by data source.
func (r *Recorder) RecordFetch(source string) {
	r.fetchesTotal.WithLabelValues(source).Inc()
}

// RecordCacheHit counts a fresh cache hit.
func (r *Recorder) RecordCacheHit() {
	r.cacheTotal.WithLabelValues("hit").Inc()
}

// RecordCacheMiss counts a cache miss or stale entry.
func (r *Recorder) RecordCacheMiss() {
	r.cacheTotal.WithLabelValues("miss").Inc()
}

// RecordProviderError counts a provider error occurrence.
func (r *Recorder) RecordProviderError(provider, kind string) {
	r.providerErrors.WithLabelValues(provider, kind).Inc()
}

// RecordRateLimitWait records time spent blocked on a permit.
func (r *Recorder) RecordRateLimitWait(provider string, seconds float64) {
	r.rateLimitWait.WithLabelValues(provider).Observe(seconds)
}

// RecordFetchLatency records operation latency in seconds.
func (r *Recorder) RecordFetchLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordRunResult records the outcome of a fetch pass.
func (r *Recorder) RecordRunResult(fetched, failed int) {
	r.lastRunFetched.Set(float64(fetched))
	r.lastRunFailed.Set(float64(failed))
}
