package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gitlab.com/gitlab-org/labkit/log"
	"golang.org/x/sync/semaphore"

	"gitlab.com/gitlab-org/rawhttp/metrics"
)

//go:generate mockgen -destination mock/pool_mock.go -package mock gitlab.com/gitlab-org/rawhttp/internal/pool Conn,ConnDialer

var (
	// ErrClosed is returned by Acquire once Close has been called
	ErrClosed = errors.New("pool closed")
	// ErrAcquireTimeout is returned when no connection became available
	// within the acquire timeout
	ErrAcquireTimeout = errors.New("timed out waiting for a connection")
	// ErrBadConn marks errors after which a connection must not be reused.
	// With discards connections whose callback returned an error matching it.
	ErrBadConn = errors.New("bad connection")
)

// Conn is a connection managed by a Pool
type Conn interface {
	Ping(ctx context.Context) error
	Close() error
}

// Dialer opens new connections for a Pool
type Dialer[C Conn] interface {
	Dial(ctx context.Context) (C, error)
}

// ConnDialer is a Dialer of plain Conn values
type ConnDialer = Dialer[Conn]

// DialerFunc adapts a function to Dialer
type DialerFunc[C Conn] func(ctx context.Context) (C, error)

// Dial calls f
func (f DialerFunc[C]) Dial(ctx context.Context) (C, error) {
	return f(ctx)
}

type idleConn[C Conn] struct {
	conn      C
	created   time.Time
	idleSince time.Time
}

// Pool hands out connections, at most maxOpen at a time. Acquired
// connections go back with Release, or are scoped with With.
type Pool[C Conn] struct {
	dialer Dialer[C]
	cfg    config
	sem    *semaphore.Weighted

	mu     sync.Mutex
	idle   []idleConn[C]
	inUse  map[interface{}]time.Time
	open   int
	closed bool
}

// New returns an empty pool. Call Fill to open the minimum idle
// connections and Run to maintain them.
func New[C Conn](d Dialer[C], opts ...Option) *Pool[C] {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Pool[C]{
		dialer: d,
		cfg:    cfg,
		sem:    semaphore.NewWeighted(cfg.maxOpen),
		inUse:  make(map[interface{}]time.Time),
	}
}

// Fill opens connections until the pool holds the minimum number of idle
// connections. It fails on the first connection that cannot be opened.
func (p *Pool[C]) Fill(ctx context.Context) error {
	return p.topUp(ctx)
}

// Acquire returns an idle connection or opens a new one. It waits for a
// free slot for at most the acquire timeout. Idle connections are pinged
// before being handed out.
func (p *Pool[C]) Acquire(ctx context.Context) (C, error) {
	var zero C

	start := p.cfg.now()

	acquireCtx, cancel := context.WithTimeout(ctx, p.cfg.acquireTimeout)
	defer cancel()

	if err := p.sem.Acquire(acquireCtx, 1); err != nil {
		p.observeAcquire(start, "timeout")

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		return zero, fmt.Errorf("%w after %s", ErrAcquireTimeout, p.cfg.acquireTimeout)
	}

	c, err := p.get(acquireCtx)
	if err != nil {
		p.sem.Release(1)
		p.observeAcquire(start, "error")

		return zero, err
	}

	p.observeAcquire(start, "ok")

	return c, nil
}

func (p *Pool[C]) get(ctx context.Context) (C, error) {
	var zero C

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return zero, ErrClosed
		}

		if len(p.idle) == 0 {
			p.open++
			p.mu.Unlock()

			return p.dial(ctx)
		}

		ic := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		p.mu.Unlock()

		if p.expired(ic) {
			p.discard(ic.conn)
			continue
		}

		if err := ic.conn.Ping(ctx); err != nil {
			log.WithError(err).Debug("discarding connection that failed ping")
			p.discard(ic.conn)

			continue
		}

		p.mu.Lock()
		p.inUse[ic.conn] = ic.created
		p.mu.Unlock()
		p.updateGauges()

		return ic.conn, nil
	}
}

// dial opens a connection for a slot already counted in p.open
func (p *Pool[C]) dial(ctx context.Context) (C, error) {
	c, err := p.dialer.Dial(ctx)
	if err != nil {
		p.mu.Lock()
		p.open--
		p.mu.Unlock()

		var zero C
		return zero, fmt.Errorf("opening connection: %w", err)
	}

	p.mu.Lock()
	p.inUse[c] = p.cfg.now()
	p.mu.Unlock()
	p.updateGauges()

	return c, nil
}

// Release returns c to the pool. A non-nil err discards the connection
// instead. Release must be called exactly once for each successful
// Acquire.
func (p *Pool[C]) Release(c C, err error) {
	defer p.sem.Release(1)

	p.mu.Lock()
	created, ok := p.inUse[c]
	delete(p.inUse, c)

	ic := idleConn[C]{conn: c, created: created, idleSince: p.cfg.now()}

	if !ok || err != nil || p.closed || p.expired(ic) {
		p.mu.Unlock()
		p.discard(c)

		return
	}

	p.idle = append(p.idle, ic)
	p.mu.Unlock()
	p.updateGauges()
}

// With acquires a connection, runs fn with it and releases it on every
// exit path, panics included. The connection is discarded when fn panics
// or returns an error matching ErrBadConn.
func (p *Pool[C]) With(ctx context.Context, fn func(C) error) (err error) {
	c, err := p.Acquire(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			p.Release(c, fmt.Errorf("%w: panic: %v", ErrBadConn, r))
			panic(r)
		}

		var releaseErr error
		if errors.Is(err, ErrBadConn) {
			releaseErr = err
		}

		p.Release(c, releaseErr)
	}()

	return fn(c)
}

// Run prunes expired idle connections and tops the pool back up to the
// minimum idle count until ctx is done
func (p *Pool[C]) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.prune()

			if err := p.topUp(ctx); err != nil && ctx.Err() == nil {
				log.WithError(err).Warn("failed to replenish idle connections")
			}
		}
	}
}

func (p *Pool[C]) prune() {
	p.mu.Lock()

	var expired []C
	kept := p.idle[:0]

	for _, ic := range p.idle {
		if p.expired(ic) {
			expired = append(expired, ic.conn)
			continue
		}

		kept = append(kept, ic)
	}

	p.idle = kept
	p.mu.Unlock()

	for _, c := range expired {
		p.discard(c)
	}
}

// topUp dials while the pool is below the idle minimum and a slot is free
func (p *Pool[C]) topUp(ctx context.Context) error {
	for {
		p.mu.Lock()
		if p.closed || len(p.idle) >= p.cfg.minIdle || int64(p.open) >= p.cfg.maxOpen {
			p.mu.Unlock()
			return nil
		}
		p.mu.Unlock()

		if !p.sem.TryAcquire(1) {
			return nil
		}

		p.mu.Lock()
		p.open++
		p.mu.Unlock()

		c, err := p.dial(ctx)
		if err != nil {
			p.sem.Release(1)
			return err
		}

		p.Release(c, nil)
	}
}

// Close closes idle connections and refuses new acquisitions. Connections
// in use are closed when they are released.
func (p *Pool[C]) Close() error {
	p.mu.Lock()
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, ic := range idle {
		p.discard(ic.conn)
	}

	return nil
}

// Stats describes the pool at one point in time
type Stats struct {
	Open  int
	Idle  int
	InUse int
}

// Stats returns the current connection counts
func (p *Pool[C]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Open:  p.open,
		Idle:  len(p.idle),
		InUse: len(p.inUse),
	}
}

func (p *Pool[C]) expired(ic idleConn[C]) bool {
	now := p.cfg.now()

	if p.cfg.maxLifetime > 0 && !ic.created.IsZero() && now.Sub(ic.created) >= p.cfg.maxLifetime {
		return true
	}

	return p.cfg.idleTimeout > 0 && !ic.idleSince.IsZero() && now.Sub(ic.idleSince) >= p.cfg.idleTimeout
}

func (p *Pool[C]) discard(c C) {
	if err := c.Close(); err != nil {
		log.WithError(err).Debug("failed to close connection")
	}

	p.mu.Lock()
	p.open--
	p.mu.Unlock()
	p.updateGauges()
}

func (p *Pool[C]) updateGauges() {
	if !p.cfg.metrics {
		return
	}

	stats := p.Stats()
	metrics.PoolOpenConns.Set(float64(stats.Open))
	metrics.PoolIdleConns.Set(float64(stats.Idle))
}

func (p *Pool[C]) observeAcquire(start time.Time, result string) {
	if !p.cfg.metrics {
		return
	}

	metrics.PoolAcquireDuration.With(prometheus.Labels{"result": result}).Observe(p.cfg.now().Sub(start).Seconds())
}
