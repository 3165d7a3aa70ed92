package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/irrigation-advisor/internal/traffic"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation.
	HTTPRequestsInFlight prometheus.Gauge

	// Outbound provider calls by provider, endpoint and status class.
	ProviderCallsTotal *prometheus.CounterVec

	// Outbound provider latency. Watch for: p95 > 2s (upstream degradation).
	ProviderDuration *prometheus.HistogramVec

	// Retry attempts per provider. Watch for: high retries = unstable upstream.
	ProviderRetriesTotal *prometheus.CounterVec

	// Provider errors by stable category (timeout, rate_limited, upstream_5xx, ...).
	ProviderErrorsTotal *prometheus.CounterVec

	// Advisories produced, by rule outcome (rain, humid, heat, standard).
	AdvisoriesTotal *prometheus.CounterVec

	// Non-fatal sub-call failures during an irrigation check (geocode, nearby).
	PartialFailuresTotal *prometheus.CounterVec

	// News requests answered from the backup feed, by reason (error, too_few).
	NewsFallbackTotal *prometheus.CounterVec

	// News cache hits. Hit rate = hits / newsRequestsTotal.
	NewsCacheHitsTotal prometheus.Counter

	// News requests served.
	NewsRequestsTotal prometheus.Counter

	// News cache misses that overlapped another miss for the same city.
	NewsStampedeDetectedTotal prometheus.Counter

	// News requests that shared another request's upstream call.
	NewsCoalescedTotal prometheus.Counter

	// Startup cache warm runs, failures and duration.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// Cache errors by operation. Watch for: backend down.
	CacheErrorsTotal *prometheus.CounterVec

	// Store operation errors by operation. Watch for: database unavailable.
	StoreErrorsTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload.
	RateLimitDeniedTotal prometheus.Counter

	// Circuit breaker state per component (0 closed, 1 open, 2 half-open).
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions per component.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// In-flight requests left when shutdown began.
	ShutdownInFlight prometheus.Gauge

	trafficGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	ProviderCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "providerCallsTotal",
			Help: "Total number of outbound provider API calls",
		},
		[]string{"provider", "endpoint", "status"},
	)
	ProviderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "providerDurationSeconds",
			Help:    "Outbound provider API latency in seconds (per call)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "endpoint", "status"},
	)
	ProviderRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "providerRetriesTotal",
			Help: "Total number of retry attempts for provider calls",
		},
		[]string{"provider"},
	)
	ProviderErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "providerErrorsTotal",
			Help: "Provider call failures by error category",
		},
		[]string{"provider", "category"},
	)
	AdvisoriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisoriesTotal",
			Help: "Irrigation advisories produced, by rule outcome",
		},
		[]string{"outcome"},
	)
	PartialFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "irrigationPartialFailuresTotal",
			Help: "Non-fatal sub-call failures during irrigation checks",
		},
		[]string{"call"},
	)
	NewsFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsFallbackTotal",
			Help: "News requests answered with the backup feed",
		},
		[]string{"reason"},
	)
	NewsCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "newsCacheHitsTotal",
			Help: "News requests served from cache",
		},
	)
	NewsRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "newsRequestsTotal",
			Help: "Total number of news requests",
		},
	)
	NewsStampedeDetectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "newsCacheStampedeDetectedTotal",
			Help: "Concurrent news cache misses for the same city",
		},
	)
	NewsCoalescedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "newsRequestCoalescingHitsTotal",
			Help: "News requests served by a shared in-flight upstream call",
		},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Total number of news cache warm runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "News cache warm runs with at least one failed city",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Duration of news cache warm runs",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30},
		},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache backend errors by operation",
		},
		[]string{"operation"},
	)
	StoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeErrorsTotal",
			Help: "Document store errors by operation",
		},
		[]string{"operation"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	ShutdownInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shutdownInFlightRequests",
			Help: "In-flight requests remaining when graceful shutdown started",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		ProviderCallsTotal, ProviderDuration, ProviderRetriesTotal, ProviderErrorsTotal,
		AdvisoriesTotal, PartialFailuresTotal,
		NewsFallbackTotal, NewsCacheHitsTotal, NewsRequestsTotal,
		NewsStampedeDetectedTotal, NewsCoalescedTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		CacheErrorsTotal, StoreErrorsTotal,
		RateLimitDeniedTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		ShutdownInFlight,
	)
}

// RegisterTrafficGauges registers sliding-window gauges over the traffic tracker.
// Call from main after config load with the health window.
func RegisterTrafficGauges(window time.Duration) {
	trafficGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "upstreamErrorsInWindow",
					Help: "Weather upstream failures in the health window",
				},
				func() float64 {
					errs, _ := traffic.ErrorRate(window)
					return float64(errs)
				},
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in the health window",
				},
				func() float64 { return float64(traffic.DenialCount(window)) },
			),
		)
	})
}

// RecordCircuitBreakerTransition updates breaker metrics. state values follow circuitbreaker.State.
func RecordCircuitBreakerTransition(component, from, to string, state int) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(float64(state))
}

// RecordShutdownInFlight records how many requests were still running at shutdown.
func RecordShutdownInFlight(n int64) {
	ShutdownInFlight.Set(float64(n))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
