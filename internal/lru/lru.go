package lru

import (
	"time"

	"github.com/karlseguin/ccache/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// getsPerPromote is the number of hits after which an item moves to the
// front of the LRU list
const getsPerPromote = 64

// itemsToPruneDiv prunes 1/16 of the items when the cache is full
const itemsToPruneDiv = 16

const (
	defaultMaxEntries = 5000
	defaultDuration   = time.Minute
)

// Option configures a Cache
type Option func(*Cache)

// WithMaxEntries caps the number of cached items
func WithMaxEntries(n int64) Option {
	return func(c *Cache) {
		c.maxEntries = n
	}
}

// WithDuration sets how long an item stays valid
func WithDuration(d time.Duration) Option {
	return func(c *Cache) {
		c.duration = d
	}
}

// WithMetrics reports cache size and lookups under op
func WithMetrics(cachedEntries *prometheus.GaugeVec, cacheRequests *prometheus.CounterVec) Option {
	return func(c *Cache) {
		c.metricCachedEntries = cachedEntries
		c.metricCacheRequests = cacheRequests
	}
}

// Cache wraps a ccache and allows setting custom metrics for hits/misses.
type Cache struct {
	op                  string
	maxEntries          int64
	duration            time.Duration
	cache               *ccache.Cache
	metricCachedEntries *prometheus.GaugeVec
	metricCacheRequests *prometheus.CounterVec
}

// New creates an LRU cache named op
func New(op string, opts ...Option) *Cache {
	c := &Cache{
		op:         op,
		maxEntries: defaultMaxEntries,
		duration:   defaultDuration,
	}

	for _, opt := range opts {
		opt(c)
	}

	configuration := ccache.Configure()
	configuration.MaxSize(c.maxEntries)
	configuration.ItemsToPrune(uint32(c.maxEntries/itemsToPruneDiv) + 1)
	configuration.GetsPerPromote(getsPerPromote)
	configuration.OnDelete(func(*ccache.Item) {
		if c.metricCachedEntries != nil {
			c.metricCachedEntries.WithLabelValues(c.op).Dec()
		}
	})

	c.cache = ccache.New(configuration)

	return c
}

// FindOrFetch returns the cached, unexpired item for key or stores the
// result of fetchFn.
func (c *Cache) FindOrFetch(key string, fetchFn func() (interface{}, error)) (interface{}, error) {
	item := c.cache.Get(key)

	if item != nil && !item.Expired() {
		c.observe("hit")
		return item.Value(), nil
	}

	value, err := fetchFn()
	if err != nil {
		c.observe("error")
		return nil, err
	}

	c.observe("miss")
	if c.metricCachedEntries != nil {
		c.metricCachedEntries.WithLabelValues(c.op).Inc()
	}

	c.cache.Set(key, value, c.duration)

	return value, nil
}

// Stop ends the cache's background worker
func (c *Cache) Stop() {
	c.cache.Stop()
}

func (c *Cache) observe(result string) {
	if c.metricCacheRequests != nil {
		c.metricCacheRequests.WithLabelValues(c.op, result).Inc()
	}
}
