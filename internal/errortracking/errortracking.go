package errortracking

import (
	"context"

	"gitlab.com/gitlab-org/labkit/errortracking"

	"gitlab.com/gitlab-org/rawhttp/internal/request"
)

// CaptureOption alias to avoid importing labkit/errortracking in internal packages
type CaptureOption = errortracking.CaptureOption

// Initialize configures the Sentry client. It is a no-op for an empty DSN.
func Initialize(dsn, environment, version string) error {
	if dsn == "" {
		return nil
	}

	return errortracking.Initialize(
		errortracking.WithSentryDSN(dsn),
		errortracking.WithVersion(version),
		errortracking.WithLoggerName("rawhttp"),
		errortracking.WithSentryEnvironment(environment),
	)
}

// CaptureErrWithReqAndStackTrace calls labkit's errortracking function and attaches the request line, stack trace and any additional fields
func CaptureErrWithReqAndStackTrace(ctx context.Context, err error, req *request.Request, fields ...CaptureOption) {
	opts := append(
		fields,
		errortracking.WithContext(ctx),
		errortracking.WithField("method", req.Method.String()),
		errortracking.WithField("path", req.Path),
		errortracking.WithStackTrace(),
	)

	errortracking.Capture(err, opts...)
}

// CaptureErrWithStackTrace calls labkit's errortracking function and attaches the stack trace and any additional fields
func CaptureErrWithStackTrace(err error, fields ...CaptureOption) {
	opts := append(
		fields,
		errortracking.WithStackTrace(),
	)

	errortracking.Capture(err, opts...)
}
