package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/hashicorp/go-multierror"

	"gitlab.com/gitlab-org/rawhttp/internal/server"
)

// Validation errors, returned joined by Validate and matched with errors.Is
var (
	ErrInvalidPort            = errors.New("port must be between 0 and 65535")
	ErrInvalidListener        = errors.New("listener address must be host:port")
	ErrInvalidConnectionModel = errors.New("connection-model must be 'blocking' or 'concurrent'")
	ErrInvalidMaxConns        = errors.New("max-conns must not be negative")
	ErrInvalidStatusPath      = errors.New("status-path must start with /")
	ErrInvalidLimit           = errors.New("request limits must be positive")
	ErrInvalidTimeout         = errors.New("server timeouts must be positive")
	ErrInvalidRequestsPerConn = errors.New("server-max-requests-per-conn must be positive")
	ErrInvalidRateLimit       = errors.New("rate-limit-source-ip must not be negative")
	ErrInvalidRateLimitBurst  = errors.New("rate-limit-source-ip-burst must be positive when rate limiting is enabled")
	ErrInvalidDBPort          = errors.New("db-port must be between 1 and 65535")
	ErrInvalidDBMaxConns      = errors.New("db-max-conns must be positive")
	ErrInvalidDBMinIdle       = errors.New("db-min-idle must be between 0 and db-max-conns")
	ErrInvalidDBTimeout       = errors.New("db-acquire-timeout must be positive and db idle timeout and lifetime must not be negative")
)

// Validate checks every group of config and reports all the problems at once
func Validate(config *Config) error {
	var result *multierror.Error

	for _, validate := range []func(*Config) error{
		validateGeneralConfig,
		validateListenersConfig,
		validateLimitsConfig,
		validateServerConfig,
		validateRateLimitConfig,
		validateStoreConfig,
	} {
		if err := validate(config); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}

func validateGeneralConfig(config *Config) error {
	var result *multierror.Error

	if config.General.Port < 0 || config.General.Port > 65535 {
		result = multierror.Append(result, ErrInvalidPort)
	}

	if _, err := server.ParseModel(config.General.ConnectionModel); err != nil {
		result = multierror.Append(result, fmt.Errorf("%w: %v", ErrInvalidConnectionModel, err))
	}

	if config.General.MaxConns < 0 {
		result = multierror.Append(result, ErrInvalidMaxConns)
	}

	if config.General.StatusPath != "" && !strings.HasPrefix(config.General.StatusPath, "/") {
		result = multierror.Append(result, ErrInvalidStatusPath)
	}

	return result.ErrorOrNil()
}

func validateListenersConfig(config *Config) error {
	var result *multierror.Error

	addrs := append(config.ListenHTTPStrings.Split(), config.ListenProxyStrings.Split()...)
	for _, addr := range addrs {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			result = multierror.Append(result, fmt.Errorf("%w: %v", ErrInvalidListener, err))
		}
	}

	return result.ErrorOrNil()
}

func validateLimitsConfig(config *Config) error {
	l := config.Limits
	if l.MaxLineBytes <= 0 || l.MaxBodyBytes <= 0 || l.MaxHeaderCount <= 0 {
		return ErrInvalidLimit
	}

	return nil
}

func validateServerConfig(config *Config) error {
	var result *multierror.Error

	s := config.Server
	if s.ReadTimeout <= 0 || s.WriteTimeout <= 0 || s.IdleTimeout <= 0 || s.ShutdownTimeout <= 0 {
		result = multierror.Append(result, ErrInvalidTimeout)
	}

	if s.MaxRequestsPerConn <= 0 {
		result = multierror.Append(result, ErrInvalidRequestsPerConn)
	}

	return result.ErrorOrNil()
}

func validateRateLimitConfig(config *Config) error {
	r := config.RateLimit

	if r.SourceIPLimitPerSecond < 0 {
		return ErrInvalidRateLimit
	}

	if r.SourceIPLimitPerSecond > 0 && r.SourceIPBurst < 1 {
		return ErrInvalidRateLimitBurst
	}

	return nil
}

func validateStoreConfig(config *Config) error {
	var result *multierror.Error

	s := config.Store

	if s.Port < 1 || s.Port > 65535 {
		result = multierror.Append(result, ErrInvalidDBPort)
	}

	if s.MaxConns < 1 {
		result = multierror.Append(result, ErrInvalidDBMaxConns)
	}

	if s.MinIdle < 0 || s.MinIdle > s.MaxConns {
		result = multierror.Append(result, ErrInvalidDBMinIdle)
	}

	if s.AcquireTimeout <= 0 || s.IdleTimeout < 0 || s.MaxLifetime < 0 {
		result = multierror.Append(result, ErrInvalidDBTimeout)
	}

	return result.ErrorOrNil()
}
