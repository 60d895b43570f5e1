package config

import (
	"time"

	"github.com/namsral/flag"

	"gitlab.com/gitlab-org/rawhttp/internal/pool"
	"gitlab.com/gitlab-org/rawhttp/internal/ratelimiter"
	"gitlab.com/gitlab-org/rawhttp/internal/request"
	"gitlab.com/gitlab-org/rawhttp/internal/server"
	"gitlab.com/gitlab-org/rawhttp/internal/stream"
)

var (
	port                   = flag.Int("port", 3000, "The port to listen on when neither -listen-http nor -listen-proxy is set, 0 picks a free one")
	connectionModel        = flag.String("connection-model", "concurrent", "How accepted connections are served: 'blocking' (one at a time) or 'concurrent'")
	maxConns               = flag.Int("max-conns", 0, "Limit on the number of concurrent connections to the HTTP or proxy listeners, 0 for no limit")
	statusPath             = flag.String("status-path", "", "The url path for a status page, e.g., /-/status")
	metricsAddress         = flag.String("metrics-address", "", "The address to listen on for metrics requests")
	sentryDSN              = flag.String("sentry-dsn", "", "The address for sending sentry crash reporting to")
	sentryEnvironment      = flag.String("sentry-environment", "", "The environment for sentry crash reporting")
	propagateCorrelationID = flag.Bool("propagate-correlation-id", true, "Reuse existing Correlation-ID from the incoming request header `X-Request-ID` if present")
	logFormat              = flag.String("log-format", "json", "The log output format: 'text' or 'json'")
	logVerbose             = flag.Bool("log-verbose", false, "Verbose logging")

	// Request limits
	maxLineBytes   = flag.Int("max-line-bytes", stream.DefaultMaxLineBytes, "The longest request line or header line accepted, in bytes")
	maxBodyBytes   = flag.Int("max-body-bytes", stream.DefaultMaxBodyBytes, "The largest request body accepted, in bytes")
	maxHeaderCount = flag.Int("max-header-count", request.DefaultMaxHeaderCount, "The maximum number of header fields in a request")

	// Server timeouts
	serverReadTimeout        = flag.Duration("server-read-timeout", server.DefaultReadTimeout, "The maximum duration for reading the first request of a connection, including the body")
	serverWriteTimeout       = flag.Duration("server-write-timeout", server.DefaultWriteTimeout, "The maximum duration for writing one response")
	serverIdleTimeout        = flag.Duration("server-idle-timeout", server.DefaultIdleTimeout, "The maximum duration a kept-alive connection may take to send its next request")
	serverShutdownTimeout    = flag.Duration("server-shutdown-timeout", server.DefaultShutdownTimeout, "How long to wait for in-flight requests on shutdown (default: 30s)")
	serverKeepAlive          = flag.Duration("server-keep-alive", 15*time.Second, "The TCP keep-alive period of accepted connections. If negative, TCP keep-alives are disabled.")
	serverMaxRequestsPerConn = flag.Int("server-max-requests-per-conn", server.DefaultMaxRequestsPerConn, "The number of requests served on a kept-alive connection before it is closed")

	// Connection rate limits
	rateLimitSourceIP        = flag.Float64("rate-limit-source-ip", 0.0, "Rate limit new connections per second from a single IP, 0 means is disabled")
	rateLimitSourceIPBurst   = flag.Int("rate-limit-source-ip-burst", ratelimiter.DefaultSourceIPBurstSize, "Rate limit new connections from a single IP, maximum burst allowed per second")
	rateLimitSourceIPEnforce = flag.Bool("rate-limit-source-ip-enforce", true, "Refuse connections over the source IP limit, when false they are only logged")

	// Data store
	dbHost           = flag.String("db-host", "localhost", "The database host")
	dbPort           = flag.Int("db-port", 5432, "The database port")
	dbName           = flag.String("db-name", "test-db", "The database name")
	dbUser           = flag.String("db-user", "postgres", "The database user")
	dbPassword       = flag.String("db-password", "123456", "The database password, only accepted from the environment or the config file")
	dbMaxConns       = flag.Int("db-max-conns", pool.DefaultMaxOpen, "The maximum number of database connections in use")
	dbMinIdle        = flag.Int("db-min-idle", pool.DefaultMinIdle, "The number of idle database connections kept open")
	dbAcquireTimeout = flag.Duration("db-acquire-timeout", pool.DefaultAcquireTimeout, "The maximum time to wait for a database connection")
	dbIdleTimeout    = flag.Duration("db-idle-timeout", pool.DefaultIdleTimeout, "How long a database connection may stay idle, 0 keeps it forever")
	dbMaxLifetime    = flag.Duration("db-max-lifetime", pool.DefaultMaxLifetime, "The maximum lifetime of a database connection, 0 keeps it forever")

	showVersion = flag.Bool("version", false, "Show version")

	// See initFlags()
	listenHTTP  = MultiStringFlag{separator: ","}
	listenProxy = MultiStringFlag{separator: ","}

	header = MultiStringFlag{separator: ";;"}
)

// initFlags will be called from LoadConfig
func initFlags() {
	flag.Var(&listenHTTP, "listen-http", "The address(es) to listen on for HTTP requests")
	flag.Var(&listenProxy, "listen-proxy", "The address(es) to listen on for requests behind a proxy sending the PROXY protocol header (https://www.haproxy.org/download/1.8/doc/proxy-protocol.txt)")
	flag.Var(&header, "header", "The additional http header(s) that should be send to the client")

	// read from -config=/path/to/rawhttp-config
	flag.String(flag.DefaultConfigFlagname, "", "path to config file")

	flag.Parse()
}
