package netutil

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	errKeepaliveNotSupported  = errors.New("keepalive not supported")
	errCloseWriteNotSupported = errors.New("half close not supported")
)

// SharedLimitListener returns a Listener that accepts simultaneous
// connections from the provided Listener only if a shared availability pool
// permits it. Based on https://godoc.org/golang.org/x/net/netutil
func SharedLimitListener(listener net.Listener, limiter *Limiter) net.Listener {
	return &sharedLimitListener{
		Listener: listener,
		limiter:  limiter,
		done:     make(chan struct{}),
	}
}

// Limiter is used to provide a shared pool of connection slots. Use NewLimiter
// to create an instance
type Limiter struct {
	sem                  chan struct{}
	concurrentConnsCount prometheus.Gauge
	waitingConnsCount    prometheus.Gauge
}

// LimiterOption configures a Limiter
type LimiterOption func(*Limiter)

// WithMetrics reports the slot usage of the limiter to the given gauges
func WithMetrics(maxConnsCount, concurrentConnsCount, waitingConnsCount prometheus.Gauge) LimiterOption {
	return func(l *Limiter) {
		maxConnsCount.Set(float64(cap(l.sem)))
		l.concurrentConnsCount = concurrentConnsCount
		l.waitingConnsCount = waitingConnsCount
	}
}

// NewLimiter creates a Limiter with n connection slots
func NewLimiter(n int, opts ...LimiterOption) *Limiter {
	l := &Limiter{sem: make(chan struct{}, n)}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// InUse returns the number of taken slots
func (l *Limiter) InUse() int {
	return len(l.sem)
}

func (l *Limiter) inc(g prometheus.Gauge) {
	if g != nil {
		g.Inc()
	}
}

func (l *Limiter) dec(g prometheus.Gauge) {
	if g != nil {
		g.Dec()
	}
}

type sharedLimitListener struct {
	net.Listener
	closeOnce sync.Once     // ensures the done chan is only closed once
	limiter   *Limiter      // A pool of connection slots shared with other listeners
	done      chan struct{} // no values sent; closed when Close is called
}

// acquire returns false when the listener was closed before a slot was free
func (l *sharedLimitListener) acquire() bool {
	l.limiter.inc(l.limiter.waitingConnsCount)
	defer l.limiter.dec(l.limiter.waitingConnsCount)

	select {
	case <-l.done:
		return false
	case l.limiter.sem <- struct{}{}:
		l.limiter.inc(l.limiter.concurrentConnsCount)
		return true
	}
}

func (l *sharedLimitListener) release() {
	<-l.limiter.sem
	l.limiter.dec(l.limiter.concurrentConnsCount)
}

func (l *sharedLimitListener) Accept() (net.Conn, error) {
	acquired := l.acquire()
	// If the semaphore isn't acquired because the listener was closed, expect
	// that this call to accept won't block, but immediately return an error.
	c, err := l.Listener.Accept()
	if err != nil {
		if acquired {
			l.release()
		}
		return nil, err
	}

	if !acquired {
		c.Close()
		return nil, net.ErrClosed
	}

	return &limitedConn{
		Conn:    c,
		release: l.release,
	}, nil
}

func (l *sharedLimitListener) Close() error {
	err := l.Listener.Close()
	l.closeOnce.Do(func() { close(l.done) })
	return err
}

// limitedConn gives its slot back on the first Close
type limitedConn struct {
	net.Conn
	releaseOnce sync.Once
	release     func()
}

func (c *limitedConn) Close() error {
	err := c.Conn.Close()
	c.releaseOnce.Do(c.release)
	return err
}

// CloseWrite half closes the underlying connection when it supports it
func (c *limitedConn) CloseWrite() error {
	cw, ok := c.Conn.(interface{ CloseWrite() error })
	if !ok {
		return errCloseWriteNotSupported
	}

	return cw.CloseWrite()
}

func (c *limitedConn) SetKeepAlive(enabled bool) error {
	tcpConn, ok := c.Conn.(*net.TCPConn)
	if !ok {
		return errKeepaliveNotSupported
	}

	return tcpConn.SetKeepAlive(enabled)
}

func (c *limitedConn) SetKeepAlivePeriod(period time.Duration) error {
	tcpConn, ok := c.Conn.(*net.TCPConn)
	if !ok {
		return errKeepaliveNotSupported
	}

	return tcpConn.SetKeepAlivePeriod(period)
}
