package httperrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"gitlab.com/gitlab-org/rawhttp/internal/header"
	"gitlab.com/gitlab-org/rawhttp/internal/request"
	"gitlab.com/gitlab-org/rawhttp/internal/router"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
		wantBody   string
	}{
		{
			name:       "malformed_request_line",
			err:        fmt.Errorf("%w: expected 3 tokens", request.ErrMalformedRequestLine),
			wantStatus: http.StatusBadRequest,
			wantKind:   "malformed_request_line",
			wantBody:   `{"error":"Bad Request"}`,
		},
		{
			name:       "malformed_header",
			err:        request.ErrMalformedHeader,
			wantStatus: http.StatusBadRequest,
			wantKind:   "malformed_header",
			wantBody:   `{"error":"Bad Request"}`,
		},
		{
			name:       "malformed_content_length",
			err:        request.ErrMalformedContentLength,
			wantStatus: http.StatusBadRequest,
			wantKind:   "malformed_content_length",
			wantBody:   `{"error":"Bad Request"}`,
		},
		{
			name:       "truncated_body",
			err:        fmt.Errorf("%w: got 3 of 5 bytes", request.ErrUnexpectedEOF),
			wantStatus: http.StatusBadRequest,
			wantKind:   "unexpected_eof",
			wantBody:   `{"error":"Bad Request"}`,
		},
		{
			name:       "too_large",
			err:        fmt.Errorf("%w: line exceeds 8192 bytes", request.ErrRequestTooLarge),
			wantStatus: http.StatusRequestEntityTooLarge,
			wantKind:   "request_too_large",
			wantBody:   `{"error":"Request Too Large"}`,
		},
		{
			name:       "unsupported_method",
			err:        request.ErrUnsupportedMethod,
			wantStatus: http.StatusNotImplemented,
			wantKind:   "unsupported_method",
			wantBody:   `{"error":"Not Implemented"}`,
		},
		{
			name:       "chunked",
			err:        request.ErrUnsupportedTransferEncoding,
			wantStatus: http.StatusNotImplemented,
			wantKind:   "unsupported_transfer_encoding",
			wantBody:   `{"error":"Not Implemented"}`,
		},
		{
			name:       "no_match",
			err:        fmt.Errorf("%w: GET /nope", router.ErrNoMatch),
			wantStatus: http.StatusNotFound,
			wantKind:   "no_match",
			wantBody:   `{"message":"Not found"}`,
		},
		{
			name:       "rate_limited",
			err:        ErrRateLimited,
			wantStatus: http.StatusTooManyRequests,
			wantKind:   "rate_limited",
			wantBody:   `{"error":"Too Many Requests"}`,
		},
		{
			name:       "anything_else",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantKind:   "handler_failure",
			wantBody:   `{"error":"Internal Server Error"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := FromError(tt.err)

			require.Equal(t, tt.wantStatus, resp.Status)
			require.Equal(t, "application/json", resp.Header.Get(header.ContentType))
			require.JSONEq(t, tt.wantBody, string(resp.Body))
			require.False(t, resp.Header.Has(header.Allow))
			require.Equal(t, tt.wantKind, Kind(tt.err))
		})
	}
}

func TestFromErrorMethodNotAllowedSetsAllow(t *testing.T) {
	err := &router.MethodNotAllowedError{Allowed: []request.Method{request.MethodGet, request.MethodHead}}

	resp := FromError(fmt.Errorf("routing: %w", err))

	require.Equal(t, http.StatusMethodNotAllowed, resp.Status)
	require.Equal(t, "GET, HEAD", resp.Header.Get(header.Allow))
	require.Equal(t, "method_not_allowed", Kind(err))
}

func TestCustomMessages(t *testing.T) {
	resp := BadRequest("ID must be u32")
	require.Equal(t, http.StatusBadRequest, resp.Status)
	require.JSONEq(t, `{"error":"ID must be u32"}`, string(resp.Body))

	resp = NotFound("User not found")
	require.Equal(t, http.StatusNotFound, resp.Status)
	require.JSONEq(t, `{"message":"User not found"}`, string(resp.Body))

	require.Equal(t, http.StatusTooManyRequests, TooManyRequests().Status)
	require.Equal(t, http.StatusInternalServerError, InternalServerError().Status)
}

func TestInternalServerErrorWithRequestLogs(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	req := &request.Request{Method: request.MethodGet, Path: "/users"}
	resp := InternalServerErrorWithRequest(context.Background(), req, "handler failed", errors.New("db down"))

	require.Equal(t, http.StatusInternalServerError, resp.Status)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	require.Equal(t, logrus.ErrorLevel, entry.Level)
	require.Equal(t, "handler failed", entry.Message)
	require.Equal(t, "/users", entry.Data["path"])
}
