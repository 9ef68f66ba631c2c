package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moniker_resolutions_total",
			Help: "Total number of moniker resolutions by outcome",
		},
		[]string{"outcome"},
	)
	ResolverRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moniker_resolver_request_duration_seconds",
			Help:    "Resolver HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"endpoint"},
	)

	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moniker_cache_hits_total",
			Help: "Total number of resolution cache hits",
		},
	)
	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moniker_cache_misses_total",
			Help: "Total number of resolution cache misses",
		},
	)

	BreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "moniker_breaker_state",
			Help: "Resolver circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
	)
	BreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moniker_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"from", "to"},
	)

	AdapterFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moniker_adapter_fetches_total",
			Help: "Total number of adapter fetches by source type and outcome",
		},
		[]string{"source_type", "outcome"},
	)
	AdapterFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moniker_adapter_fetch_duration_seconds",
			Help:    "Adapter fetch duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"source_type"},
	)

	TelemetryDropsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moniker_telemetry_drops_total",
			Help: "Total number of telemetry reports dropped after failure",
		},
	)

	DeprecationWarningsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moniker_deprecation_warnings_total",
			Help: "Total number of deprecation warnings emitted",
		},
	)
)

// InitMetrics registers all collectors with the default registry. Hosting
// processes call it once; library code records into the collectors whether
// or not they are registered.
func InitMetrics() {
	prometheus.MustRegister(ResolutionsTotal)
	prometheus.MustRegister(ResolverRequestDuration)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(BreakerState)
	prometheus.MustRegister(BreakerTransitionsTotal)
	prometheus.MustRegister(AdapterFetchesTotal)
	prometheus.MustRegister(AdapterFetchDuration)
	prometheus.MustRegister(TelemetryDropsTotal)
	prometheus.MustRegister(DeprecationWarningsTotal)
}
