package server

import (
	"time"

	"gitlab.com/gitlab-org/rawhttp/internal/header"
	"gitlab.com/gitlab-org/rawhttp/internal/logging"
	"gitlab.com/gitlab-org/rawhttp/internal/ratelimiter"
)

// Defaults applied by New
const (
	DefaultReadTimeout        = 5 * time.Second
	DefaultWriteTimeout       = 10 * time.Second
	DefaultIdleTimeout        = 15 * time.Second
	DefaultShutdownTimeout    = 30 * time.Second
	DefaultMaxRequestsPerConn = 100
)

// Option configures a Server
type Option func(*Server)

// WithModel selects the connection scheduling model
func WithModel(m Model) Option {
	return func(s *Server) {
		s.model = m
	}
}

// WithReadTimeout bounds the time to read the first request of a
// connection
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = d
	}
}

// WithWriteTimeout bounds the time to write one response
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.writeTimeout = d
	}
}

// WithIdleTimeout bounds the time a kept-alive connection may wait for,
// and read, its next request
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.idleTimeout = d
	}
}

// WithShutdownTimeout bounds how long Serve waits for in-flight
// connections once its context is cancelled
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.shutdownTimeout = d
	}
}

// WithMaxRequestsPerConn closes a kept-alive connection after n requests
func WithMaxRequestsPerConn(n int) Option {
	return func(s *Server) {
		s.maxRequestsPerConn = n
	}
}

// WithMaxLineBytes caps the request line and each header line
func WithMaxLineBytes(n int) Option {
	return func(s *Server) {
		s.maxLineBytes = n
	}
}

// WithMaxBodyBytes caps the request body
func WithMaxBodyBytes(n int) Option {
	return func(s *Server) {
		s.maxBodyBytes = n
	}
}

// WithMaxHeaderCount caps the number of header lines
func WithMaxHeaderCount(n int) Option {
	return func(s *Server) {
		s.maxHeaderCount = n
	}
}

// WithRateLimiter refuses connections from source IPs over their budget
func WithRateLimiter(rl *ratelimiter.RateLimiter) Option {
	return func(s *Server) {
		s.limiter = rl
	}
}

// WithAccessLogger writes an access log entry per request
func WithAccessLogger(l *logging.AccessLogger) Option {
	return func(s *Server) {
		s.accessLogger = l
	}
}

// WithPropagateCorrelationID reuses the client's X-Request-ID as the
// correlation id
func WithPropagateCorrelationID(propagate bool) Option {
	return func(s *Server) {
		s.propagateCorrelationID = propagate
	}
}

// WithCustomHeaders adds h to every routed response that does not already
// carry a field of the same name
func WithCustomHeaders(h header.Header) Option {
	return func(s *Server) {
		s.customHeaders = h.Clone()
	}
}
