package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"gitlab.com/gitlab-org/rawhttp/internal/api"
	cfg "gitlab.com/gitlab-org/rawhttp/internal/config"
	"gitlab.com/gitlab-org/rawhttp/internal/healthcheck"
	"gitlab.com/gitlab-org/rawhttp/internal/logging"
	"gitlab.com/gitlab-org/rawhttp/internal/netutil"
	"gitlab.com/gitlab-org/rawhttp/internal/pool"
	"gitlab.com/gitlab-org/rawhttp/internal/ratelimiter"
	"gitlab.com/gitlab-org/rawhttp/internal/server"
	"gitlab.com/gitlab-org/rawhttp/internal/store"
	"gitlab.com/gitlab-org/rawhttp/metrics"
)

const livenessPath = "/-/liveness"

type theApp struct {
	config      *cfg.Config
	db          *store.Memory
	pool        *pool.Pool[store.Conn]
	server      *server.Server
	rateLimiter *ratelimiter.RateLimiter
	limiter     *netutil.Limiter
}

func newApp(config *cfg.Config) (*theApp, error) {
	a := &theApp{config: config}

	creds := config.Store.Credentials()

	// the database lives in process; it is reached only through the pool
	a.db = store.NewMemory(creds)
	a.pool = pool.New[store.Conn](store.NewDialer(a.db, creds),
		pool.WithMaxOpen(config.Store.MaxConns),
		pool.WithMinIdle(config.Store.MinIdle),
		pool.WithAcquireTimeout(config.Store.AcquireTimeout),
		pool.WithIdleTimeout(config.Store.IdleTimeout),
		pool.WithMaxLifetime(config.Store.MaxLifetime),
		pool.WithMetrics(),
	)

	routes, err := api.Routes(api.New(a.pool, api.WithStatusPath(config.General.StatusPath)))
	if err != nil {
		return nil, fmt.Errorf("registering routes: %w", err)
	}

	opts, err := a.serverOptions()
	if err != nil {
		return nil, err
	}

	a.server = server.New(routes, opts...)

	if config.General.MaxConns > 0 {
		a.limiter = netutil.NewLimiter(
			config.General.MaxConns,
			netutil.WithMetrics(
				metrics.LimitListenerMaxConns,
				metrics.LimitListenerConcurrentConns,
				metrics.LimitListenerWaitingConns,
			),
		)
	}

	return a, nil
}

func (a *theApp) serverOptions() ([]server.Option, error) {
	config := a.config

	model, err := server.ParseModel(config.General.ConnectionModel)
	if err != nil {
		return nil, err
	}

	accessLogger, err := logging.NewAccessLogger(config.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("configuring access log: %w", err)
	}

	opts := []server.Option{
		server.WithModel(model),
		server.WithReadTimeout(config.Server.ReadTimeout),
		server.WithWriteTimeout(config.Server.WriteTimeout),
		server.WithIdleTimeout(config.Server.IdleTimeout),
		server.WithShutdownTimeout(config.Server.ShutdownTimeout),
		server.WithMaxRequestsPerConn(config.Server.MaxRequestsPerConn),
		server.WithMaxLineBytes(config.Limits.MaxLineBytes),
		server.WithMaxBodyBytes(config.Limits.MaxBodyBytes),
		server.WithMaxHeaderCount(config.Limits.MaxHeaderCount),
		server.WithAccessLogger(accessLogger),
		server.WithPropagateCorrelationID(config.General.PropagateCorrelationID),
		server.WithCustomHeaders(config.General.CustomHeaders),
	}

	if config.RateLimit.SourceIPLimitPerSecond > 0 {
		a.rateLimiter = ratelimiter.New("source_ip",
			ratelimiter.WithLimitPerSecond(config.RateLimit.SourceIPLimitPerSecond),
			ratelimiter.WithBurstSize(config.RateLimit.SourceIPBurst),
			ratelimiter.WithEnforce(config.RateLimit.SourceIPEnforce),
		)

		opts = append(opts, server.WithRateLimiter(a.rateLimiter))
	}

	return opts, nil
}

// listen opens every configured listener. On failure the listeners
// already opened are closed.
func (a *theApp) listen() (listeners []net.Listener, err error) {
	defer func() {
		if err != nil {
			closeAll(listeners)
		}
	}()

	for _, addr := range a.config.ListenHTTPStrings.Split() {
		l, err := createListener(listenerConfig{
			addr:      addr,
			limiter:   a.limiter,
			keepAlive: a.config.Server.KeepAlivePeriod,
		})
		if err != nil {
			return listeners, err
		}

		log.WithField("listener", l.Addr().String()).Debug("Set up HTTP listener")
		listeners = append(listeners, l)
	}

	for _, addr := range a.config.ListenProxyStrings.Split() {
		l, err := createListener(listenerConfig{
			addr:      addr,
			limiter:   a.limiter,
			keepAlive: a.config.Server.KeepAlivePeriod,
			isProxyV2: true,
		})
		if err != nil {
			return listeners, err
		}

		log.WithField("listener", l.Addr().String()).Debug("Set up proxy listener")
		listeners = append(listeners, l)
	}

	return listeners, nil
}

// Run serves on listeners, and on metricsListener when it is not nil,
// until ctx is done. It owns the listeners and closes the pool and the
// database on return.
func (a *theApp) Run(ctx context.Context, listeners []net.Listener, metricsListener net.Listener) error {
	defer a.close()

	if err := a.pool.Fill(ctx); err != nil {
		log.WithError(err).Warn("failed to open the minimum idle database connections")
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.pool.Run(ctx)
	})

	for _, l := range listeners {
		l := l

		g.Go(func() error {
			if err := a.server.Serve(ctx, l); err != nil {
				return fmt.Errorf("serving %s: %w", l.Addr(), err)
			}

			return nil
		})
	}

	if metricsListener != nil {
		a.serveMetrics(ctx, g, metricsListener)
	}

	return g.Wait()
}

func (a *theApp) serveMetrics(ctx context.Context, g *errgroup.Group, l net.Listener) {
	srv := &http.Server{Handler: metricsHandler()}

	g.Go(func() error {
		if err := srv.Serve(l); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving metrics: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})
}

func metricsHandler() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.Handle(livenessPath, healthcheck.HTTPHandler()).Methods(http.MethodGet, http.MethodHead)

	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(r)
}

func (a *theApp) close() {
	if err := a.pool.Close(); err != nil {
		log.WithError(err).Warn("failed to close the database pool")
	}

	if err := a.db.Close(); err != nil {
		log.WithError(err).Warn("failed to close the database")
	}

	if a.rateLimiter != nil {
		a.rateLimiter.Stop()
	}
}

func runApp(ctx context.Context, config *cfg.Config) error {
	a, err := newApp(config)
	if err != nil {
		return err
	}

	listeners, err := a.listen()
	if err != nil {
		return err
	}

	var metricsListener net.Listener
	if config.General.MetricsAddress != "" {
		metricsListener, err = net.Listen("tcp", config.General.MetricsAddress)
		if err != nil {
			closeAll(listeners)
			return fmt.Errorf("listening for metrics on %s: %w", config.General.MetricsAddress, err)
		}

		log.WithField("listener", config.General.MetricsAddress).Debug("Set up metrics listener")
	}

	return a.Run(ctx, listeners, metricsListener)
}

func closeAll(listeners []net.Listener) {
	for _, l := range listeners {
		l.Close()
	}
}
