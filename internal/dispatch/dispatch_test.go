package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gitlab.com/gitlab-org/rawhttp/internal/header"
	"gitlab.com/gitlab-org/rawhttp/internal/request"
	"gitlab.com/gitlab-org/rawhttp/internal/response"
	"gitlab.com/gitlab-org/rawhttp/internal/router"
	"gitlab.com/gitlab-org/rawhttp/metrics"
)

type mockMatcher struct {
	mock.Mock
}

func (m *mockMatcher) Match(method request.Method, path string) (router.Handler, request.Params, error) {
	args := m.Called(method, path)

	h, _ := args.Get(0).(router.Handler)
	params, _ := args.Get(1).(request.Params)

	return h, params, args.Error(2)
}

func newTable(t *testing.T, routes map[string]router.HandlerFunc) *router.Table {
	t.Helper()

	b := router.NewBuilder()
	for pattern, h := range routes {
		require.NoError(t, b.Handle(request.MethodGet, pattern, h))
	}

	return b.Build()
}

func errorBody(t *testing.T, resp *response.Response) map[string]string {
	t.Helper()

	var body map[string]string
	require.NoError(t, json.Unmarshal(resp.Body, &body))

	return body
}

func TestDispatchReturnsHandlerResponse(t *testing.T) {
	want := response.Text(http.StatusOK, "user 123").WithHeader("X-Custom", "1")

	table := newTable(t, map[string]router.HandlerFunc{
		"/users/:id": func(_ context.Context, req *request.Request) (*response.Response, error) {
			require.Equal(t, "123", req.Params.Get("id"))
			return want, nil
		},
	})

	req := &request.Request{Method: request.MethodGet, Path: "/users/123", Version: request.HTTP11}
	got := New(table).Dispatch(context.Background(), req)

	require.Same(t, want, got)
	require.Equal(t, request.Params{"id": "123"}, req.Params)
}

func TestDispatchPrefersLiteralRoute(t *testing.T) {
	table := newTable(t, map[string]router.HandlerFunc{
		"/users/:id": func(context.Context, *request.Request) (*response.Response, error) {
			return response.Text(http.StatusOK, "param"), nil
		},
		"/users/admin": func(context.Context, *request.Request) (*response.Response, error) {
			return response.Text(http.StatusOK, "literal"), nil
		},
	})

	req := &request.Request{Method: request.MethodGet, Path: "/users/admin"}
	resp := New(table).Dispatch(context.Background(), req)

	require.Equal(t, "literal", string(resp.Body))
	require.Empty(t, req.Params.Get("id"))
}

func TestDispatchRoutingMisses(t *testing.T) {
	table := newTable(t, map[string]router.HandlerFunc{
		"/users": func(context.Context, *request.Request) (*response.Response, error) {
			return response.New(http.StatusOK), nil
		},
	})

	d := New(table)

	resp := d.Dispatch(context.Background(), &request.Request{Method: request.MethodGet, Path: "/nope"})
	require.Equal(t, http.StatusNotFound, resp.Status)

	resp = d.Dispatch(context.Background(), &request.Request{Method: request.MethodDelete, Path: "/users"})
	require.Equal(t, http.StatusMethodNotAllowed, resp.Status)
	require.Equal(t, "GET, HEAD", resp.Header.Get(header.Allow))
}

func TestDispatchUsesMatcher(t *testing.T) {
	m := &mockMatcher{}
	m.On("Match", request.MethodPost, "/things").Return(nil, nil, router.ErrNoMatch).Once()

	before := testutil.ToFloat64(metrics.RequestErrorsTotal.WithLabelValues("no_match"))

	resp := New(m).Dispatch(context.Background(), &request.Request{Method: request.MethodPost, Path: "/things"})

	require.Equal(t, http.StatusNotFound, resp.Status)
	require.Equal(t, before+1, testutil.ToFloat64(metrics.RequestErrorsTotal.WithLabelValues("no_match")))
	m.AssertExpectations(t)
}

func TestDispatchHandlerFailures(t *testing.T) {
	tests := map[string]router.HandlerFunc{
		"returned_error": func(context.Context, *request.Request) (*response.Response, error) {
			return nil, errors.New("database is gone")
		},
		"nil_response": func(context.Context, *request.Request) (*response.Response, error) {
			return nil, nil
		},
		"invalid_status": func(context.Context, *request.Request) (*response.Response, error) {
			return response.New(42), nil
		},
		"panic": func(context.Context, *request.Request) (*response.Response, error) {
			panic("boom")
		},
	}

	for name, h := range tests {
		t.Run(name, func(t *testing.T) {
			hook := test.NewGlobal()

			m := &mockMatcher{}
			m.On("Match", request.MethodGet, "/fail").Return(h, request.Params{}, nil)

			resp := New(m).Dispatch(context.Background(), &request.Request{Method: request.MethodGet, Path: "/fail"})

			require.Equal(t, http.StatusInternalServerError, resp.Status)
			require.Equal(t, map[string]string{"error": "Internal Server Error"}, errorBody(t, resp))

			require.NotEmpty(t, hook.Entries)
			entry := hook.LastEntry()
			require.Equal(t, logrus.ErrorLevel, entry.Level)
			require.Equal(t, "handler failed", entry.Message)
			require.ErrorIs(t, entry.Data[logrus.ErrorKey].(error), ErrHandlerFailure)
		})
	}
}

func TestInvokePanicIsCounted(t *testing.T) {
	before := testutil.ToFloat64(metrics.HandlerPanicsTotal)

	resp, err := Invoke(context.Background(), router.HandlerFunc(func(context.Context, *request.Request) (*response.Response, error) {
		panic(errors.New("boom"))
	}), &request.Request{})

	require.Nil(t, resp)
	require.ErrorIs(t, err, ErrHandlerFailure)
	require.Contains(t, err.Error(), "panic: boom")
	require.Equal(t, before+1, testutil.ToFloat64(metrics.HandlerPanicsTotal))
}

func TestInvokeWrapsHandlerError(t *testing.T) {
	cause := errors.New("cause")

	_, err := Invoke(context.Background(), router.HandlerFunc(func(context.Context, *request.Request) (*response.Response, error) {
		return nil, cause
	}), &request.Request{})

	require.ErrorIs(t, err, ErrHandlerFailure)
	require.ErrorIs(t, err, cause)

	var herr *HandlerError
	require.ErrorAs(t, err, &herr)
	require.Equal(t, cause, herr.Err)
}
