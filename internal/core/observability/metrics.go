// Package observability holds the service's Prometheus collectors.
package observability

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type collectors struct {
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	upstreamLatencySeconds     *prometheus.HistogramVec
	upstreamErrorsTotal        *prometheus.CounterVec
	regionCacheResults         *prometheus.CounterVec
	searchStrategyResults      *prometheus.CounterVec
	availabilityChecks         *prometheus.CounterVec
	searchCacheHits            prometheus.Counter
	searchCacheMisses          prometheus.Counter
	cacheOpTotal               *prometheus.CounterVec
	cacheOpDurationSeconds     *prometheus.HistogramVec
	invalidationsTotal         *prometheus.CounterVec
	invalidatedKeysTotal       prometheus.Counter
	invalidationDuration       prometheus.Histogram
	kafkaConsumerErrors        *prometheus.CounterVec
	lookupEventsDropped        prometheus.Counter
	buildInfo                  *prometheus.GaugeVec
}

var cur atomic.Pointer[collectors]

func init() {
	Init(prometheus.DefaultRegisterer, true)
}

// Init builds a fresh collector set and, when enabled, registers it on reg.
// Disabled collectors still accept observations but are never exported.
func Init(reg prometheus.Registerer, enabled bool) {
	c := newCollectors()
	if enabled && reg != nil {
		reg.MustRegister(
			c.httpRequestsTotal,
			c.httpRequestDurationSeconds,
			c.upstreamLatencySeconds,
			c.upstreamErrorsTotal,
			c.regionCacheResults,
			c.searchStrategyResults,
			c.availabilityChecks,
			c.searchCacheHits,
			c.searchCacheMisses,
			c.cacheOpTotal,
			c.cacheOpDurationSeconds,
			c.invalidationsTotal,
			c.invalidatedKeysTotal,
			c.invalidationDuration,
			c.kafkaConsumerErrors,
			c.lookupEventsDropped,
			c.buildInfo,
		)
	}
	cur.Store(c)
}

func newCollectors() *collectors {
	latency := prometheus.ExponentialBuckets(0.005, 2, 14) // 5ms to ~40s
	return &collectors{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds.",
				Buckets: latency,
			},
			[]string{"method", "route", "status"},
		),
		upstreamLatencySeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "upstream_latency_seconds",
				Help:    "Latency of upstream provider calls in seconds.",
				Buckets: latency,
			},
			[]string{"upstream"},
		),
		upstreamErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upstream_errors_total",
				Help: "Failed upstream provider calls.",
			},
			[]string{"upstream"},
		),
		regionCacheResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "region_cache_results_total",
				Help: "Region resolver cache lookups by outcome.",
			},
			[]string{"outcome"},
		),
		searchStrategyResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_search_results_total",
				Help: "Catalog search attempts by strategy and outcome.",
			},
			[]string{"strategy", "outcome"},
		),
		availabilityChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "availability_checks_total",
				Help: "Loan availability checks by outcome.",
			},
			[]string{"outcome"},
		),
		searchCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "search_cache_hits_total",
			Help: "Catalog search cache hits.",
		}),
		searchCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "search_cache_misses_total",
			Help: "Catalog search cache misses.",
		}),
		cacheOpTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_op_total",
				Help: "Cache backend operations by op and result.",
			},
			[]string{"op", "result"},
		),
		cacheOpDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "redis_operation_duration_seconds",
				Help:    "Duration of redis operations in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
			[]string{"op"},
		),
		invalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invalidation_events_total",
				Help: "Holdings invalidation events by op and result.",
			},
			[]string{"op", "result"},
		),
		invalidatedKeysTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "invalidated_keys_total",
			Help: "Search cache keys deleted by invalidation events.",
		}),
		invalidationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "invalidation_duration_seconds",
			Help:    "Time to apply one invalidation event.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		kafkaConsumerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_consumer_errors_total",
				Help: "Kafka consumer errors by kind.",
			},
			[]string{"kind"},
		),
		lookupEventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lookup_events_dropped_total",
			Help: "Lookup events dropped because the publish queue was full.",
		}),
		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "app_build_info",
				Help: "Build information for the binary.",
			},
			[]string{"version"},
		),
	}
}

func get() *collectors { return cur.Load() }

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	c := get()
	st := strconv.Itoa(status)
	c.httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	c.httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

// ObserveUpstream records one provider call; err counts it as failed.
func ObserveUpstream(upstream string, err error, durationSeconds float64) {
	c := get()
	c.upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
	if err != nil {
		c.upstreamErrorsTotal.WithLabelValues(upstream).Inc()
	}
}

func IncRegionCache(outcome string) {
	get().regionCacheResults.WithLabelValues(outcome).Inc()
}

func IncSearchStrategy(strategy, outcome string) {
	get().searchStrategyResults.WithLabelValues(strategy, outcome).Inc()
}

func IncAvailability(outcome string) {
	get().availabilityChecks.WithLabelValues(outcome).Inc()
}

func AddCacheHits(n int) {
	if n > 0 {
		get().searchCacheHits.Add(float64(n))
	}
}

func AddCacheMisses(n int) {
	if n > 0 {
		get().searchCacheMisses.Add(float64(n))
	}
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	c := get()
	c.cacheOpTotal.WithLabelValues(op, result(err)).Inc()
	c.cacheOpDurationSeconds.WithLabelValues(op).Observe(durationSeconds)
}

func ObserveInvalidation(op string, keys int, d time.Duration, err error) {
	c := get()
	c.invalidationsTotal.WithLabelValues(op, result(err)).Inc()
	c.invalidationDuration.Observe(d.Seconds())
	if err == nil && keys > 0 {
		c.invalidatedKeysTotal.Add(float64(keys))
	}
}

func IncKafkaConsumerError(kind string) {
	get().kafkaConsumerErrors.WithLabelValues(kind).Inc()
}

func IncLookupEventDropped() {
	get().lookupEventsDropped.Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	get().buildInfo.WithLabelValues(version).Set(1)
}
