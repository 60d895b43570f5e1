package pool

import "time"

// Defaults applied by New
const (
	DefaultMaxOpen        = 15
	DefaultMinIdle        = 2
	DefaultAcquireTimeout = 15 * time.Second
	DefaultIdleTimeout    = 10 * time.Minute
	DefaultMaxLifetime    = 30 * time.Minute

	defaultMaintenanceInterval = 30 * time.Second
)

type config struct {
	maxOpen             int64
	minIdle             int
	acquireTimeout      time.Duration
	idleTimeout         time.Duration
	maxLifetime         time.Duration
	maintenanceInterval time.Duration
	now                 func() time.Time
	metrics             bool
}

func defaultConfig() config {
	return config{
		maxOpen:             DefaultMaxOpen,
		minIdle:             DefaultMinIdle,
		acquireTimeout:      DefaultAcquireTimeout,
		idleTimeout:         DefaultIdleTimeout,
		maxLifetime:         DefaultMaxLifetime,
		maintenanceInterval: defaultMaintenanceInterval,
		now:                 time.Now,
	}
}

// Option configures a Pool
type Option func(*config)

// WithMaxOpen caps the number of connections in use at once
func WithMaxOpen(n int) Option {
	return func(c *config) {
		c.maxOpen = int64(n)
	}
}

// WithMinIdle sets how many idle connections Fill and Run keep open
func WithMinIdle(n int) Option {
	return func(c *config) {
		c.minIdle = n
	}
}

// WithAcquireTimeout bounds how long Acquire waits for a free slot
func WithAcquireTimeout(d time.Duration) Option {
	return func(c *config) {
		c.acquireTimeout = d
	}
}

// WithIdleTimeout closes connections left idle for longer than d. Zero
// keeps them forever.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *config) {
		c.idleTimeout = d
	}
}

// WithMaxLifetime closes connections older than d. Zero keeps them forever.
func WithMaxLifetime(d time.Duration) Option {
	return func(c *config) {
		c.maxLifetime = d
	}
}

// WithMaintenanceInterval sets how often Run prunes and tops up
func WithMaintenanceInterval(d time.Duration) Option {
	return func(c *config) {
		c.maintenanceInterval = d
	}
}

// WithNow replaces the clock, for tests
func WithNow(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

// WithMetrics reports pool gauges and acquire durations
func WithMetrics() Option {
	return func(c *config) {
		c.metrics = true
	}
}
