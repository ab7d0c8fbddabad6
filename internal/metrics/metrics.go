// Package metrics exposes Prometheus instrumentation for secret resolution.
//
// Nothing is registered until InitMetrics is called; before that every
// Record method is a no-op, so libraries and tests pay nothing for it.
// Labels carry provider identifiers and failure kinds only, never secret
// names or values.
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache metrics
	cacheLookupsTotal *prometheus.CounterVec
	cacheClearsTotal  prometheus.Counter

	// Provider metrics
	providerCallsTotal   *prometheus.CounterVec
	providerCallDuration *prometheus.HistogramVec
	staleFallbacksTotal  *prometheus.CounterVec

	// Resolution metrics
	resolutionFailuresTotal *prometheus.CounterVec
	resolutionDuration      prometheus.Histogram

	// Registration guard
	metricsOnce       sync.Once
	metricsRegistered atomic.Bool
)

// ResolutionMetrics provides methods to record resolution metrics.
type ResolutionMetrics struct{}

// NewResolutionMetrics creates a new ResolutionMetrics instance.
func NewResolutionMetrics() *ResolutionMetrics {
	return &ResolutionMetrics{}
}

// InitMetrics registers all metrics with the default Prometheus registry.
// It should be called once at startup if metrics are served.
func InitMetrics() {
	metricsOnce.Do(func() {
		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secretref_cache_lookups_total",
				Help: "Cache lookups by provider and state (fresh, stale, absent)",
			},
			[]string{"provider", "state"},
		)

		cacheClearsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "secretref_cache_clears_total",
				Help: "Total number of cache generation cutovers",
			},
		)

		providerCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secretref_provider_calls_total",
				Help: "Provider Get calls by provider and outcome",
			},
			[]string{"provider", "outcome"},
		)

		providerCallDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "secretref_provider_call_duration_seconds",
				Help:    "Duration of provider Get calls in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"provider"},
		)

		staleFallbacksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secretref_stale_fallbacks_total",
				Help: "References served from a stale cache entry after an Unavailable failure",
			},
			[]string{"provider"},
		)

		resolutionFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secretref_resolution_failures_total",
				Help: "Unresolved references by failure kind",
			},
			[]string{"kind"},
		)

		resolutionDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "secretref_resolution_duration_seconds",
				Help:    "Duration of whole resolution passes in seconds",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30},
			},
		)

		metricsRegistered.Store(true)
	})
}

// RecordCacheLookup records the state a cache lookup observed.
func (m *ResolutionMetrics) RecordCacheLookup(provider, state string) {
	if !metricsRegistered.Load() {
		return
	}
	cacheLookupsTotal.WithLabelValues(provider, state).Inc()
}

// RecordCacheClear records a cache clear.
func (m *ResolutionMetrics) RecordCacheClear() {
	if !metricsRegistered.Load() {
		return
	}
	cacheClearsTotal.Inc()
}

// RecordProviderCall records one provider Get and how it ended.
func (m *ResolutionMetrics) RecordProviderCall(provider, outcome string, durationSeconds float64) {
	if !metricsRegistered.Load() {
		return
	}
	providerCallsTotal.WithLabelValues(provider, outcome).Inc()
	providerCallDuration.WithLabelValues(provider).Observe(durationSeconds)
}

// RecordStaleFallback records a stale value served in place of a failed fetch.
func (m *ResolutionMetrics) RecordStaleFallback(provider string) {
	if !metricsRegistered.Load() {
		return
	}
	staleFallbacksTotal.WithLabelValues(provider).Inc()
}

// RecordFailure records an unresolved reference.
func (m *ResolutionMetrics) RecordFailure(kind string) {
	if !metricsRegistered.Load() {
		return
	}
	resolutionFailuresTotal.WithLabelValues(kind).Inc()
}

// RecordResolution records the duration of a resolution pass.
func (m *ResolutionMetrics) RecordResolution(durationSeconds float64) {
	if !metricsRegistered.Load() {
		return
	}
	resolutionDuration.Observe(durationSeconds)
}

// GetCacheLookupsTotal returns the cache lookup counter for testing.
func GetCacheLookupsTotal() *prometheus.CounterVec {
	return cacheLookupsTotal
}

// GetProviderCallsTotal returns the provider call counter for testing.
func GetProviderCallsTotal() *prometheus.CounterVec {
	return providerCallsTotal
}

// GetStaleFallbacksTotal returns the stale fallback counter for testing.
func GetStaleFallbacksTotal() *prometheus.CounterVec {
	return staleFallbacksTotal
}

// GetResolutionFailuresTotal returns the failure counter for testing.
func GetResolutionFailuresTotal() *prometheus.CounterVec {
	return resolutionFailuresTotal
}

// IsMetricsRegistered returns whether metrics have been initialized.
func IsMetricsRegistered() bool {
	return metricsRegistered.Load()
}
