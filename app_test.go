package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cfg "gitlab.com/gitlab-org/rawhttp/internal/config"
	"gitlab.com/gitlab-org/rawhttp/internal/header"
)

func testConfig() *cfg.Config {
	return &cfg.Config{
		General: cfg.General{
			ConnectionModel:        "concurrent",
			MaxConns:               10,
			StatusPath:             "/-/status",
			PropagateCorrelationID: true,
			CustomHeaders:          header.New(header.Field{Name: "X-Served-By", Value: "rawhttp"}),
		},
		Limits: cfg.Limits{
			MaxLineBytes:   8192,
			MaxBodyBytes:   1 << 20,
			MaxHeaderCount: 100,
		},
		Server: cfg.Server{
			ReadTimeout:        5 * time.Second,
			WriteTimeout:       5 * time.Second,
			IdleTimeout:        5 * time.Second,
			ShutdownTimeout:    5 * time.Second,
			KeepAlivePeriod:    time.Minute,
			MaxRequestsPerConn: 100,
		},
		Store: cfg.Store{
			Host:           "localhost",
			Port:           5432,
			Name:           "test-db",
			User:           "postgres",
			Password:       "123456",
			MaxConns:       3,
			MinIdle:        1,
			AcquireTimeout: time.Second,
			IdleTimeout:    time.Minute,
			MaxLifetime:    time.Hour,
		},
		Log:                cfg.Log{Format: "json"},
		ListenHTTPStrings:  cfg.NewMultiStringFlag(",", "127.0.0.1:0"),
		ListenProxyStrings: cfg.NewMultiStringFlag(",", "127.0.0.1:0"),
	}
}

type runningApp struct {
	app         *theApp
	httpAddr    string
	proxyAddr   string
	metricsAddr string
}

func startApp(t *testing.T, config *cfg.Config) *runningApp {
	t.Helper()

	a, err := newApp(config)
	require.NoError(t, err)

	listeners, err := a.listen()
	require.NoError(t, err)
	require.Len(t, listeners, 2)

	metricsListener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)

	go func() {
		errCh <- a.Run(ctx, listeners, metricsListener)
	}()

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-errCh)
	})

	return &runningApp{
		app:         a,
		httpAddr:    listeners[0].Addr().String(),
		proxyAddr:   listeners[1].Addr().String(),
		metricsAddr: metricsListener.Addr().String(),
	}
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()

	rsp, err := http.Get(url)
	require.NoError(t, err)
	defer rsp.Body.Close()

	body, err := io.ReadAll(rsp.Body)
	require.NoError(t, err)

	return rsp, string(body)
}

func TestAppServesUsers(t *testing.T) {
	app := startApp(t, testConfig())
	base := "http://" + app.httpAddr

	rsp, body := get(t, base+"/")
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	require.Equal(t, "Hello World", body)
	require.Equal(t, "rawhttp", rsp.Header.Get("X-Served-By"))

	rsp, err := http.Post(base+"/users", "application/json", strings.NewReader(`{"name":"alice","age":30}`))
	require.NoError(t, err)
	created, err := io.ReadAll(rsp.Body)
	rsp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	require.JSONEq(t, `{"message":"User added"}`, string(created))

	rsp, body = get(t, base+"/users")
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	require.JSONEq(t, `[{"name":"alice","age":30}]`, body)

	rsp, body = get(t, base+"/users/1")
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	require.JSONEq(t, `{"name":"alice","age":30}`, body)

	rsp, body = get(t, base+"/users/abc")
	require.Equal(t, http.StatusBadRequest, rsp.StatusCode)
	require.JSONEq(t, `{"error":"ID must be u32"}`, body)

	rsp, _ = get(t, base+"/products")
	require.Equal(t, http.StatusInternalServerError, rsp.StatusCode)

	rsp, body = get(t, base+"/-/status")
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	require.Equal(t, "success\n", body)
}

func TestAppProxyListener(t *testing.T) {
	app := startApp(t, testConfig())

	conn, err := net.Dial("tcp", app.proxyAddr)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err = io.WriteString(conn, "PROXY TCP4 10.1.1.1 127.0.0.1 56324 80\r\n"+
		"GET / HTTP/1.1\r\nHost: localhost\r\nConnection: close\r\n\r\n")
	require.NoError(t, err)

	raw, err := io.ReadAll(conn)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(raw), "HTTP/1.1 200 OK\r\n"), string(raw))
	require.True(t, strings.HasSuffix(string(raw), "\r\n\r\nHello World"), string(raw))
}

func TestAppMetricsListener(t *testing.T) {
	app := startApp(t, testConfig())

	rsp, _ := get(t, "http://"+app.httpAddr+"/")
	require.Equal(t, http.StatusOK, rsp.StatusCode)

	rsp, body := get(t, "http://"+app.metricsAddr+"/metrics")
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	require.Contains(t, body, `rawhttp_requests_total{method="GET",status_code="200"}`)
	require.Contains(t, body, "rawhttp_limit_listener_max_conns 10")
	require.Contains(t, body, "rawhttp_pool_open_conns")

	rsp, body = get(t, "http://"+app.metricsAddr+livenessPath)
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	require.Equal(t, "success\n", body)
	require.Equal(t, "no-store", rsp.Header.Get("Cache-Control"))
}

func TestAppClosesStoreOnShutdown(t *testing.T) {
	a, err := newApp(testConfig())
	require.NoError(t, err)

	listeners, err := a.listen()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)

	go func() {
		errCh <- a.Run(ctx, listeners, nil)
	}()

	require.Eventually(t, func() bool {
		return a.pool.Stats().Idle >= 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-errCh)
	require.Zero(t, a.db.OpenConns())
}

func TestAppListenFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	config := testConfig()
	config.ListenProxyStrings = cfg.NewMultiStringFlag(",", busy.Addr().String())

	a, err := newApp(config)
	require.NoError(t, err)

	_, err = a.listen()
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to listen on "+busy.Addr().String())
}

func TestNewAppRejectsUnknownConnectionModel(t *testing.T) {
	config := testConfig()
	config.General.ConnectionModel = "forking"

	_, err := newApp(config)
	require.Error(t, err)
}
