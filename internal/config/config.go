package config

import (
	"net"
	"strconv"
	"time"

	"github.com/namsral/flag"
	log "github.com/sirupsen/logrus"

	hdr "gitlab.com/gitlab-org/rawhttp/internal/header"
	"gitlab.com/gitlab-org/rawhttp/internal/store"
)

// Config stores all the config options of the server.
type Config struct {
	General   General
	Limits    Limits
	Server    Server
	RateLimit RateLimit
	Store     Store
	Log       Log
	Sentry    Sentry

	// These fields contain the raw strings passed for listen-http and
	// listen-proxy. When both are empty ListenHTTPStrings holds ":<port>".
	ListenHTTPStrings  MultiStringFlag
	ListenProxyStrings MultiStringFlag
}

// General groups settings that are general to the server and can not
// be categorized under other head.
type General struct {
	Port            int
	ConnectionModel string
	MaxConns        int
	MetricsAddress  string
	StatusPath      string

	PropagateCorrelationID bool

	ShowVersion bool

	CustomHeaders hdr.Header
}

// Limits caps the size of a request
type Limits struct {
	MaxLineBytes   int
	MaxBodyBytes   int
	MaxHeaderCount int
}

// Server groups connection timeouts and keep-alive settings
type Server struct {
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	ShutdownTimeout    time.Duration
	KeepAlivePeriod    time.Duration
	MaxRequestsPerConn int
}

// RateLimit config struct
type RateLimit struct {
	// SourceIPLimitPerSecond is the rate per second of new connections from
	// one source IP, 0 disables the limiter
	SourceIPLimitPerSecond float64
	// SourceIPBurst is the maximum burst allowed per source IP
	SourceIPBurst int
	// SourceIPEnforce refuses limited connections instead of only logging
	SourceIPEnforce bool
}

// Store groups the database location, credentials and pool settings
type Store struct {
	Host           string
	Port           int
	Name           string
	User           string
	Password       string
	MaxConns       int
	MinIdle        int
	AcquireTimeout time.Duration
	IdleTimeout    time.Duration
	MaxLifetime    time.Duration
}

// Credentials returns the settings needed to dial the database
func (s Store) Credentials() store.Credentials {
	return store.Credentials{
		Host:     s.Host,
		Port:     s.Port,
		Name:     s.Name,
		User:     s.User,
		Password: s.Password,
	}
}

// Log groups settings related to configuring logging
type Log struct {
	Format  string
	Verbose bool
}

// Sentry groups settings related to configuring Sentry
type Sentry struct {
	DSN         string
	Environment string
}

func loadConfig() (*Config, error) {
	config := &Config{
		General: General{
			Port:                   *port,
			ConnectionModel:        *connectionModel,
			MaxConns:               *maxConns,
			MetricsAddress:         *metricsAddress,
			StatusPath:             *statusPath,
			PropagateCorrelationID: *propagateCorrelationID,
			ShowVersion:            *showVersion,
		},
		Limits: Limits{
			MaxLineBytes:   *maxLineBytes,
			MaxBodyBytes:   *maxBodyBytes,
			MaxHeaderCount: *maxHeaderCount,
		},
		Server: Server{
			ReadTimeout:        *serverReadTimeout,
			WriteTimeout:       *serverWriteTimeout,
			IdleTimeout:        *serverIdleTimeout,
			ShutdownTimeout:    *serverShutdownTimeout,
			KeepAlivePeriod:    *serverKeepAlive,
			MaxRequestsPerConn: *serverMaxRequestsPerConn,
		},
		RateLimit: RateLimit{
			SourceIPLimitPerSecond: *rateLimitSourceIP,
			SourceIPBurst:          *rateLimitSourceIPBurst,
			SourceIPEnforce:        *rateLimitSourceIPEnforce,
		},
		Store: Store{
			Host:           *dbHost,
			Port:           *dbPort,
			Name:           *dbName,
			User:           *dbUser,
			Password:       *dbPassword,
			MaxConns:       *dbMaxConns,
			MinIdle:        *dbMinIdle,
			AcquireTimeout: *dbAcquireTimeout,
			IdleTimeout:    *dbIdleTimeout,
			MaxLifetime:    *dbMaxLifetime,
		},
		Log: Log{
			Format:  *logFormat,
			Verbose: *logVerbose,
		},
		Sentry: Sentry{
			DSN:         *sentryDSN,
			Environment: *sentryEnvironment,
		},

		ListenHTTPStrings:  listenHTTP,
		ListenProxyStrings: listenProxy,
	}

	// Without explicit listeners, serve plain HTTP on all interfaces
	if config.ListenHTTPStrings.Len() == 0 && config.ListenProxyStrings.Len() == 0 {
		config.ListenHTTPStrings = NewMultiStringFlag(defaultSeparator, net.JoinHostPort("", strconv.Itoa(config.General.Port)))
	}

	customHeaders, err := parseHeaderString(header.Split())
	if err != nil {
		return nil, err
	}
	config.General.CustomHeaders = customHeaders

	if err := Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// LogConfig logs the effective configuration at debug level. Secrets are
// left out.
func LogConfig(config *Config) {
	log.WithFields(log.Fields{
		"connection-model":             config.General.ConnectionModel,
		"default-config-filename":      flag.DefaultConfigFlagname,
		"db-acquire-timeout":           config.Store.AcquireTimeout,
		"db-host":                      config.Store.Host,
		"db-idle-timeout":              config.Store.IdleTimeout,
		"db-max-conns":                 config.Store.MaxConns,
		"db-max-lifetime":              config.Store.MaxLifetime,
		"db-min-idle":                  config.Store.MinIdle,
		"db-name":                      config.Store.Name,
		"db-port":                      config.Store.Port,
		"db-user":                      config.Store.User,
		"header":                       config.General.CustomHeaders.Len(),
		"listen-http":                  config.ListenHTTPStrings.Split(),
		"listen-proxy":                 config.ListenProxyStrings.Split(),
		"log-format":                   config.Log.Format,
		"max-body-bytes":               config.Limits.MaxBodyBytes,
		"max-conns":                    config.General.MaxConns,
		"max-header-count":             config.Limits.MaxHeaderCount,
		"max-line-bytes":               config.Limits.MaxLineBytes,
		"metrics-address":              config.General.MetricsAddress,
		"port":                         config.General.Port,
		"propagate-correlation-id":     config.General.PropagateCorrelationID,
		"rate-limit-source-ip":         config.RateLimit.SourceIPLimitPerSecond,
		"rate-limit-source-ip-burst":   config.RateLimit.SourceIPBurst,
		"rate-limit-source-ip-enforce": config.RateLimit.SourceIPEnforce,
		"sentry-environment":           config.Sentry.Environment,
		"server-idle-timeout":          config.Server.IdleTimeout,
		"server-keep-alive":            config.Server.KeepAlivePeriod,
		"server-max-requests-per-conn": config.Server.MaxRequestsPerConn,
		"server-read-timeout":          config.Server.ReadTimeout,
		"server-shutdown-timeout":      config.Server.ShutdownTimeout,
		"server-write-timeout":         config.Server.WriteTimeout,
		"status-path":                  config.General.StatusPath,
	}).Debug("Start server with configuration")
}

// LoadConfig parses configuration settings passed as command line arguments,
// environment variables or via config file, and populates a Config object
// with those values
func LoadConfig() (*Config, error) {
	initFlags()

	return loadConfig()
}
