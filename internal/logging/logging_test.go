package logging

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gitlab.com/gitlab-org/labkit/correlation"

	"gitlab.com/gitlab-org/rawhttp/internal/header"
	"gitlab.com/gitlab-org/rawhttp/internal/request"
)

func TestConfigureLogging(t *testing.T) {
	for _, format := range []string{"", "json", "text"} {
		require.NoError(t, ConfigureLogging(format, false), format)
	}

	require.NoError(t, ConfigureLogging("json", true))
	require.Equal(t, logrus.TraceLevel, logrus.GetLevel())

	require.NoError(t, ConfigureLogging("json", false))
}

func TestGetAccessLogger(t *testing.T) {
	logger, err := getAccessLogger("json")
	require.NoError(t, err)
	require.Equal(t, logrus.StandardLogger(), logger)

	logger, err = getAccessLogger("text")
	require.NoError(t, err)
	require.NotEqual(t, logrus.StandardLogger(), logger)
}

func TestAccessLoggerLog(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	logger, err := NewAccessLogger("json")
	require.NoError(t, err)

	req := &request.Request{
		Method:     request.MethodGet,
		Path:       "/users/1",
		RawQuery:   "a=b",
		Version:    request.HTTP11,
		RemoteAddr: "127.0.0.1",
	}
	req.Header.Add("User-Agent", "curl/7.79")

	ctx := correlation.ContextWithCorrelation(context.Background(), "abc123")
	logger.Log(ctx, req, 200, 42, 1500*time.Millisecond)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	require.Equal(t, "access", entry.Message)
	require.Equal(t, "abc123", entry.Data["correlation_id"])
	require.Equal(t, "/users/1?a=b", entry.Data["uri"])
	require.Equal(t, 200, entry.Data["status"])
	require.Equal(t, 42, entry.Data["written_bytes"])
	require.Equal(t, int64(1500), entry.Data["duration_ms"])
	require.Equal(t, "curl/7.79", entry.Data["user_agent"])
}

func TestContextWithCorrelationID(t *testing.T) {
	req := &request.Request{}
	req.Header.Add(header.XRequestID, "from-client")

	ctx := ContextWithCorrelationID(context.Background(), req, true)
	require.Equal(t, "from-client", correlation.ExtractFromContext(ctx))

	ctx = ContextWithCorrelationID(context.Background(), req, false)
	id := correlation.ExtractFromContext(ctx)
	require.NotEmpty(t, id)
	require.NotEqual(t, "from-client", id)

	ctx = ContextWithCorrelationID(context.Background(), &request.Request{}, true)
	require.NotEmpty(t, correlation.ExtractFromContext(ctx))
}

func TestLogRequest(t *testing.T) {
	req := &request.Request{Method: request.MethodPost, Path: "/users", RemoteAddr: "10.0.0.1:1234"}
	ctx := correlation.ContextWithCorrelation(context.Background(), "xyz")

	entry := LogRequest(ctx, req)

	require.Equal(t, "xyz", entry.Data["correlation_id"])
	require.Equal(t, "POST", entry.Data["method"])
	require.Equal(t, "/users", entry.Data["path"])
	require.Equal(t, "10.0.0.1:1234", entry.Data["remote_addr"])

	require.Equal(t, "10.0.0.2:80", LogConnection("10.0.0.2:80").Data["remote_addr"])
}
