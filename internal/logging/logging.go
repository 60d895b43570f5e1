package logging

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gitlab.com/gitlab-org/labkit/correlation"
	"gitlab.com/gitlab-org/labkit/log"

	"gitlab.com/gitlab-org/rawhttp/internal/header"
	"gitlab.com/gitlab-org/rawhttp/internal/request"
)

// ConfigureLogging will initialize the system logger.
func ConfigureLogging(format string, verbose bool) error {
	var levelOption log.LoggerOption

	if format == "" {
		format = "json"
	}

	if verbose {
		levelOption = log.WithLogLevel("trace")
	} else {
		levelOption = log.WithLogLevel("info")
	}

	_, err := log.Initialize(
		log.WithFormatter(format),
		levelOption,
	)
	return err
}

// getAccessLogger will return the default logger, except when
// the log format is text, in which case a combined HTTP access
// logger will be configured.
func getAccessLogger(format string) (*logrus.Logger, error) {
	if format != "text" && format != "" {
		return logrus.StandardLogger(), nil
	}

	accessLogger := log.New()
	_, err := log.Initialize(
		log.WithLogger(accessLogger),  // Configure `accessLogger`
		log.WithFormatter("combined"), // Use the combined formatter
	)
	if err != nil {
		return nil, err
	}

	return accessLogger, nil
}

// AccessLogger writes one entry per served request
type AccessLogger struct {
	logger *logrus.Logger
}

// NewAccessLogger returns an access logger for the given log format
func NewAccessLogger(format string) (*AccessLogger, error) {
	logger, err := getAccessLogger(format)
	if err != nil {
		return nil, err
	}

	return &AccessLogger{logger: logger}, nil
}

// Log records a served request
func (l *AccessLogger) Log(ctx context.Context, req *request.Request, status, written int, duration time.Duration) {
	l.logger.WithFields(log.Fields{
		"correlation_id": correlation.ExtractFromContext(ctx),
		"duration_ms":    duration.Milliseconds(),
		"host":           req.Header.Get("Host"),
		"method":         req.Method.String(),
		"proto":          req.Version,
		"referrer":       req.Header.Get("Referer"),
		"remote_ip":      req.RemoteAddr,
		"status":         status,
		"uri":            req.RequestURI(),
		"user_agent":     req.Header.Get("User-Agent"),
		"written_bytes":  written,
	}).Info("access")
}

// ContextWithCorrelationID returns ctx carrying the request's correlation
// id: the client supplied X-Request-ID when propagate is set, a fresh one
// otherwise
func ContextWithCorrelationID(ctx context.Context, req *request.Request, propagate bool) context.Context {
	id := ""
	if propagate {
		id = req.Header.Get(header.XRequestID)
	}

	if id == "" {
		id = correlation.SafeRandomID()
	}

	return correlation.ContextWithCorrelation(ctx, id)
}

// LogRequest will inject request method and path to the logged messages
func LogRequest(ctx context.Context, req *request.Request) *logrus.Entry {
	return log.WithFields(log.Fields{
		"correlation_id": correlation.ExtractFromContext(ctx),
		"method":         req.Method.String(),
		"path":           req.Path,
		"remote_addr":    req.RemoteAddr,
	})
}

// LogConnection will inject the peer address to the logged messages
func LogConnection(remoteAddr string) *logrus.Entry {
	return log.WithField("remote_addr", remoteAddr)
}
