package main

import (
	"fmt"
	"net"
	"time"

	proxyproto "github.com/pires/go-proxyproto"

	"gitlab.com/gitlab-org/rawhttp/internal/netutil"
)

type keepAliveListener struct {
	net.Listener
	period time.Duration
}

type keepAliveSetter interface {
	SetKeepAlive(bool) error
	SetKeepAlivePeriod(time.Duration) error
}

type listenerConfig struct {
	addr      string
	isProxyV2 bool
	limiter   *netutil.Limiter
	// keepAlive is the TCP keep-alive period, negative disables keep-alives
	keepAlive time.Duration
}

func (ln *keepAliveListener) Accept() (net.Conn, error) {
	conn, err := ln.Listener.Accept()
	if err != nil {
		return nil, err
	}

	kc, ok := conn.(keepAliveSetter)
	if !ok {
		return conn, nil
	}

	if ln.period < 0 {
		kc.SetKeepAlive(false)
		return conn, nil
	}

	kc.SetKeepAlive(true)
	kc.SetKeepAlivePeriod(ln.period)

	return conn, nil
}

// createListener listens on config.addr and wraps the listener with the
// connection limit, TCP keep-alives and, for proxy listeners, the PROXY
// protocol v1/v2 header parsing
func createListener(config listenerConfig) (net.Listener, error) {
	l, err := net.Listen("tcp", config.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", config.addr, err)
	}

	if config.limiter != nil {
		l = netutil.SharedLimitListener(l, config.limiter)
	}

	if config.keepAlive != 0 {
		l = &keepAliveListener{Listener: l, period: config.keepAlive}
	}

	if config.isProxyV2 {
		l = &proxyproto.Listener{
			Listener: l,
			Policy: func(upstream net.Addr) (proxyproto.Policy, error) {
				return proxyproto.REQUIRE, nil
			},
		}
	}

	return l, nil
}
