package server

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"gitlab.com/gitlab-org/labkit/log"

	"gitlab.com/gitlab-org/rawhttp/internal/dispatch"
	"gitlab.com/gitlab-org/rawhttp/internal/header"
	"gitlab.com/gitlab-org/rawhttp/internal/httperrors"
	"gitlab.com/gitlab-org/rawhttp/internal/logging"
	"gitlab.com/gitlab-org/rawhttp/internal/ratelimiter"
	"gitlab.com/gitlab-org/rawhttp/internal/request"
	"gitlab.com/gitlab-org/rawhttp/internal/response"
	"gitlab.com/gitlab-org/rawhttp/internal/stream"
	"gitlab.com/gitlab-org/rawhttp/metrics"
)

const (
	// lingerTimeout bounds the drain that runs before closing a connection
	// with unread input, so the peer gets the error response instead of a
	// reset
	lingerTimeout = 500 * time.Millisecond
	lingerBytes   = 256 << 10

	maxAcceptDelay = time.Second
)

// Server accepts connections and answers the requests read from them
type Server struct {
	dispatcher *dispatch.Dispatcher
	model      Model

	readTimeout        time.Duration
	writeTimeout       time.Duration
	idleTimeout        time.Duration
	shutdownTimeout    time.Duration
	maxRequestsPerConn int

	maxLineBytes   int
	maxBodyBytes   int
	maxHeaderCount int

	limiter                *ratelimiter.RateLimiter
	accessLogger           *logging.AccessLogger
	propagateCorrelationID bool
	customHeaders          header.Header

	mu    sync.Mutex
	conns map[*conn]struct{}
	wg    sync.WaitGroup
}

// New returns a Server routing requests with m. The route table behind m
// is shared by every connection and must not change once Serve runs.
func New(m dispatch.Matcher, opts ...Option) *Server {
	s := &Server{
		dispatcher:         dispatch.New(m),
		model:              ModelConcurrent,
		readTimeout:        DefaultReadTimeout,
		writeTimeout:       DefaultWriteTimeout,
		idleTimeout:        DefaultIdleTimeout,
		shutdownTimeout:    DefaultShutdownTimeout,
		maxRequestsPerConn: DefaultMaxRequestsPerConn,
		maxLineBytes:       stream.DefaultMaxLineBytes,
		maxBodyBytes:       stream.DefaultMaxBodyBytes,
		maxHeaderCount:     request.DefaultMaxHeaderCount,
		conns:              make(map[*conn]struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Serve accepts connections on l until ctx is cancelled or l fails. On
// cancellation it closes l and idle connections, then waits up to the
// shutdown timeout for in-flight requests before closing the rest.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		select {
		case <-ctx.Done():
			l.Close()
			s.closeIdle()
		case <-stop:
		}
	}()

	var delay time.Duration

	for {
		nc, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return s.shutdown()
			}

			var ne interface{ Temporary() bool }
			if errors.As(err, &ne) && ne.Temporary() {
				delay = backoff(delay)
				log.WithError(err).WithField("retry_in", delay).Warn("accept failed")
				time.Sleep(delay)

				continue
			}

			s.shutdown()

			return err
		}

		delay = 0

		metrics.ConnectionsTotal.WithLabelValues(s.model.String()).Inc()

		c := s.track(nc)

		if s.model == ModelBlocking {
			s.serveConn(ctx, c)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, c)
		}()
	}
}

func backoff(delay time.Duration) time.Duration {
	if delay == 0 {
		return 5 * time.Millisecond
	}

	delay *= 2
	if delay > maxAcceptDelay {
		delay = maxAcceptDelay
	}

	return delay
}

func (s *Server) shutdown() error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(s.shutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		log.WithField("timeout", s.shutdownTimeout).Warn("shutdown timeout exceeded, closing remaining connections")
		s.closeAll()
		<-done
	}

	return nil
}

// conn is an accepted connection and whether it waits for its next request
type conn struct {
	net.Conn
	remoteAddr string
	idle       int32
}

func (c *conn) setIdle(idle bool) {
	var v int32
	if idle {
		v = 1
	}

	atomic.StoreInt32(&c.idle, v)
}

func (c *conn) isIdle() bool {
	return atomic.LoadInt32(&c.idle) == 1
}

func (s *Server) track(nc net.Conn) *conn {
	c := &conn{Conn: nc}

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	return c
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()

	c.Close()
}

func (s *Server) closeIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for c := range s.conns {
		if c.isIdle() {
			c.Close()
		}
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for c := range s.conns {
		c.Close()
	}
}

// serveConn reads requests from c until the client or the server ends the
// connection. Only the concurrent model keeps connections alive.
func (s *Server) serveConn(ctx context.Context, c *conn) {
	defer s.untrack(c)

	// behind a PROXY protocol listener the remote address comes from a
	// header the client sends first, so it is only resolved under the read
	// deadline
	c.SetReadDeadline(time.Now().Add(s.readTimeout))
	if addr := c.RemoteAddr(); addr != nil {
		c.remoteAddr = addr.String()
	}

	logger := logging.LogConnection(c.remoteAddr)

	if s.limiter != nil && !s.limiter.ConnAllowed(c.Conn) {
		s.reject(c, logger, httperrors.ErrRateLimited)
		return
	}

	r := stream.NewReader(c,
		stream.WithMaxLineBytes(s.maxLineBytes),
		stream.WithMaxBodyBytes(s.maxBodyBytes),
	)
	p := request.NewParser(r, request.WithMaxHeaderCount(s.maxHeaderCount))

	for served := 0; ; served++ {
		timeout := s.readTimeout
		if served > 0 {
			timeout = s.idleTimeout

			c.setIdle(true)
			if ctx.Err() != nil {
				return
			}
		}

		c.SetReadDeadline(time.Now().Add(timeout))

		req, err := p.Parse()
		c.setIdle(false)

		if err != nil && !errors.Is(err, request.ErrUnsupportedMethod) {
			if errors.Is(err, request.ErrConnectionClosed) {
				return
			}

			s.reject(c, logger, err)
			return
		}

		req.RemoteAddr = c.remoteAddr

		keepAlive := s.model == ModelConcurrent &&
			req.KeepAlive() &&
			served+1 < s.maxRequestsPerConn &&
			ctx.Err() == nil

		if werr := s.serveRequest(ctx, c, req, err, keepAlive); werr != nil {
			logger.WithError(werr).Debug("failed to write response")
			return
		}

		if !keepAlive {
			return
		}
	}
}

// serveRequest answers one parsed request. parseErr is either nil or
// ErrUnsupportedMethod, in which case the request is answered with 501
// without being routed.
func (s *Server) serveRequest(ctx context.Context, c *conn, req *request.Request, parseErr error, keepAlive bool) error {
	ctx = logging.ContextWithCorrelationID(ctx, req, s.propagateCorrelationID)
	start := time.Now()

	var resp *response.Response
	if parseErr != nil {
		metrics.RequestErrorsTotal.WithLabelValues(httperrors.Kind(parseErr)).Inc()
		resp = httperrors.FromError(parseErr)
	} else {
		resp = s.dispatcher.Dispatch(ctx, req)
	}

	enc := response.Encoder{OmitBody: req.Method == request.MethodHead}

	err := s.write(c, enc, s.finalize(resp, req, keepAlive))

	duration := time.Since(start)
	method := methodLabel(req.Method)

	metrics.RequestsTotal.WithLabelValues(method, strconv.Itoa(resp.Status)).Inc()
	metrics.RequestDuration.WithLabelValues(method).Observe(duration.Seconds())

	if s.accessLogger != nil {
		s.accessLogger.Log(ctx, req, resp.Status, enc.Size(resp), duration)
	}

	return err
}

// reject answers a request that could not be read and closes the
// connection
func (s *Server) reject(c *conn, logger *logrus.Entry, err error) {
	kind := httperrors.Kind(err)

	metrics.RequestErrorsTotal.WithLabelValues(kind).Inc()
	logger.WithError(err).WithField("kind", kind).Info("rejecting request")

	resp := httperrors.FromError(err)
	resp.Header.Set(header.Connection, "close")

	if werr := s.write(c, response.Encoder{}, resp); werr != nil {
		logger.WithError(werr).Debug("failed to write error response")
		return
	}

	metrics.RequestsTotal.WithLabelValues(methodLabel(""), strconv.Itoa(resp.Status)).Inc()

	linger(c)
}

func (s *Server) write(c *conn, enc response.Encoder, resp *response.Response) error {
	c.SetWriteDeadline(time.Now().Add(s.writeTimeout))

	return enc.Encode(c, resp)
}

// finalize adds the configured custom headers the handler did not set and
// tells the client whether the connection stays open. The handler's
// response is copied, not modified.
func (s *Server) finalize(resp *response.Response, req *request.Request, keepAlive bool) *response.Response {
	out := *resp
	out.Header = resp.Header.Clone()

	for _, f := range s.customHeaders.Fields() {
		if !resp.Header.Has(f.Name) {
			out.Header.Add(f.Name, f.Value)
		}
	}

	switch {
	case !keepAlive:
		out.Header.Set(header.Connection, "close")
	case req.Version == request.HTTP10:
		out.Header.Set(header.Connection, "keep-alive")
	}

	return &out
}

// linger half-closes the connection and discards what the client is still
// sending, until it closes its side or lingerTimeout passes
func linger(c *conn) {
	cw, ok := c.Conn.(interface{ CloseWrite() error })
	if !ok {
		return
	}

	if err := cw.CloseWrite(); err != nil {
		return
	}

	c.SetReadDeadline(time.Now().Add(lingerTimeout))
	io.Copy(io.Discard, io.LimitReader(c, lingerBytes))
}

func methodLabel(m request.Method) string {
	if !m.Known() {
		return "OTHER"
	}

	return m.String()
}
