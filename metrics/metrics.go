package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// LimitListenerMaxConns for the max number of connections accepted by the limit listener
	LimitListenerMaxConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rawhttp_limit_listener_max_conns",
		Help: "The maximum number of simultaneous connections accepted by the server",
	})

	// LimitListenerConcurrentConns for the number of connections currently being served
	LimitListenerConcurrentConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rawhttp_limit_listener_concurrent_conns",
		Help: "The number of connections currently being served",
	})

	// LimitListenerWaitingConns for the number of connections waiting for a free slot
	LimitListenerWaitingConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rawhttp_limit_listener_waiting_conns",
		Help: "The number of connections waiting for a free slot to be served",
	})

	// ConnectionsTotal counts accepted connections per scheduling model
	ConnectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rawhttp_connections_total",
		Help: "The total number of accepted connections",
	}, []string{"model"})

	// RequestsTotal counts responses written, by method and status code
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rawhttp_requests_total",
		Help: "The total number of requests answered",
	}, []string{"method", "status_code"})

	// RequestDuration measures the time from the end of parsing to the end of encoding
	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rawhttp_request_duration_seconds",
		Help:    "Time spent routing, handling and encoding a request",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	// RequestErrorsTotal counts parse, routing and handler failures by kind
	RequestErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rawhttp_request_errors_total",
		Help: "The total number of requests that failed to parse, route or be handled",
	}, []string{"kind"})

	// HandlerPanicsTotal counts handlers that panicked
	HandlerPanicsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rawhttp_handler_panics_total",
		Help: "The total number of recovered handler panics",
	})

	// PoolOpenConns is the number of store connections open, idle or in use
	PoolOpenConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rawhttp_pool_open_conns",
		Help: "The number of open store connections",
	})

	// PoolIdleConns is the number of store connections waiting in the pool
	PoolIdleConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rawhttp_pool_idle_conns",
		Help: "The number of idle store connections",
	})

	// PoolAcquireDuration measures how long handlers wait for a store connection
	PoolAcquireDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rawhttp_pool_acquire_duration_seconds",
		Help:    "Time spent waiting for a store connection",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
	}, []string{"result"})

	// RateLimitCachedEntries is the number of entries in the rate limiter cache
	RateLimitCachedEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rawhttp_rate_limit_cached_entries",
		Help: "The number of entries in the rate limiter cache",
	}, []string{"op"})

	// RateLimitCacheRequests is the number of rate limiter cache lookups
	RateLimitCacheRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rawhttp_rate_limit_cache_requests",
		Help: "The number of rate limiter cache hits and misses",
	}, []string{"op", "cache"})

	// RateLimitBlockedCount is the number of connections that exceeded their limit
	RateLimitBlockedCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rawhttp_rate_limit_blocked_count",
		Help: "The number of connections that hit the rate limit, by enforcement",
	}, []string{"limit_name", "enforced"})
)

func init() {
	prometheus.MustRegister(
		LimitListenerMaxConns,
		LimitListenerConcurrentConns,
		LimitListenerWaitingConns,
		ConnectionsTotal,
		RequestsTotal,
		RequestDuration,
		RequestErrorsTotal,
		HandlerPanicsTotal,
		PoolOpenConns,
		PoolIdleConns,
		PoolAcquireDuration,
		RateLimitCachedEntries,
		RateLimitCacheRequests,
		RateLimitBlockedCount,
	)
}
