package ratelimiter

import (
	"net"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gitlab.com/gitlab-org/labkit/log"
	"golang.org/x/time/rate"

	"gitlab.com/gitlab-org/rawhttp/internal/lru"
	"gitlab.com/gitlab-org/rawhttp/metrics"
)

const (
	// DefaultSourceIPLimitPerSecond is the limit per second that rate.Limiter
	// needs to generate tokens every second.
	// The default value is 20 requests per second.
	DefaultSourceIPLimitPerSecond = 20.0
	// DefaultSourceIPBurstSize is the maximum burst allowed per rate limiter.
	// E.g. The first 100 connections within 1s will succeed, but the 101st will fail.
	DefaultSourceIPBurstSize = 100

	defaultSourceIPItems              = 5000
	defaultSourceIPExpirationInterval = time.Minute
)

// Option function to configure a RateLimiter
type Option func(*RateLimiter)

// RateLimiter holds an LRU cache of token buckets keyed by source IP.
// It uses "golang.org/x/time/rate" as its Token Bucket rate limiter per entry.
// It also holds a now function that can be mocked in unit tests.
type RateLimiter struct {
	name           string
	now            func() time.Time
	limitPerSecond float64
	burstSize      int
	enforce        bool
	blockedCount   *prometheus.CounterVec
	cacheOptions   []lru.Option
	cache          *lru.Cache
}

// New creates a new RateLimiter with default values that can be configured via Option functions
func New(name string, opts ...Option) *RateLimiter {
	rl := &RateLimiter{
		name:           name,
		now:            time.Now,
		limitPerSecond: DefaultSourceIPLimitPerSecond,
		burstSize:      DefaultSourceIPBurstSize,
		enforce:        true,
		blockedCount:   metrics.RateLimitBlockedCount,
		cacheOptions: []lru.Option{
			lru.WithMaxEntries(defaultSourceIPItems),
			lru.WithDuration(defaultSourceIPExpirationInterval),
			lru.WithMetrics(metrics.RateLimitCachedEntries, metrics.RateLimitCacheRequests),
		},
	}

	for _, opt := range opts {
		opt(rl)
	}

	rl.cache = lru.New(name, rl.cacheOptions...)

	return rl
}

// WithNow replaces the RateLimiter now function
func WithNow(now func() time.Time) Option {
	return func(rl *RateLimiter) {
		rl.now = now
	}
}

// WithLimitPerSecond allows configuring the limit per second for RateLimiter
func WithLimitPerSecond(limit float64) Option {
	return func(rl *RateLimiter) {
		rl.limitPerSecond = limit
	}
}

// WithBurstSize configures burst per key for the RateLimiter
func WithBurstSize(burst int) Option {
	return func(rl *RateLimiter) {
		rl.burstSize = burst
	}
}

// WithEnforce makes ConnAllowed refuse connections over the limit. When
// false, hits are only logged and counted.
func WithEnforce(enforce bool) Option {
	return func(rl *RateLimiter) {
		rl.enforce = enforce
	}
}

// WithBlockedCountMetric configures metric reporting how many times a
// connection was over the limit
func WithBlockedCountMetric(m *prometheus.CounterVec) Option {
	return func(rl *RateLimiter) {
		rl.blockedCount = m
	}
}

// WithCacheOptions replaces the options of the token bucket cache
func WithCacheOptions(opts ...lru.Option) Option {
	return func(rl *RateLimiter) {
		rl.cacheOptions = opts
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	limiterI, _ := rl.cache.FindOrFetch(key, func() (interface{}, error) {
		return rate.NewLimiter(rate.Limit(rl.limitPerSecond), rl.burstSize), nil
	})

	return limiterI.(*rate.Limiter)
}

// Allowed takes a token from key's bucket
func (rl *RateLimiter) Allowed(key string) bool {
	// AllowN allows us to use the rl.now function, so we can test this more easily.
	return rl.limiter(key).AllowN(rl.now(), 1)
}

// ConnAllowed checks the source IP of a freshly accepted connection
func (rl *RateLimiter) ConnAllowed(conn net.Conn) bool {
	sourceIP := SourceIP(conn.RemoteAddr())
	if rl.Allowed(sourceIP) {
		return true
	}

	rl.logBlocked(sourceIP)

	if rl.blockedCount != nil {
		rl.blockedCount.WithLabelValues(rl.name, strconv.FormatBool(rl.enforce)).Inc()
	}

	return !rl.enforce
}

// Stop releases the cache worker
func (rl *RateLimiter) Stop() {
	rl.cache.Stop()
}

func (rl *RateLimiter) logBlocked(sourceIP string) {
	log.WithFields(logrus.Fields{
		"rate_limiter_name":             rl.name,
		"source_ip":                     sourceIP,
		"rate_limiter_enforce":          rl.enforce,
		"rate_limiter_limit_per_second": rl.limitPerSecond,
		"rate_limiter_burst_size":       rl.burstSize,
	}).Info("source IP hit rate limit")
}

// SourceIP strips the port from addr
func SourceIP(addr net.Addr) string {
	if addr == nil {
		return ""
	}

	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}

	return host
}
