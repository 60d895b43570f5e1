package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"gitlab.com/gitlab-org/rawhttp/internal/request"
	"gitlab.com/gitlab-org/rawhttp/internal/response"
)

// named returns a handler whose response body identifies it
func named(name string) Handler {
	return HandlerFunc(func(context.Context, *request.Request) (*response.Response, error) {
		return response.Text(200, name), nil
	})
}

func nameOf(t *testing.T, h Handler) string {
	t.Helper()

	resp, err := h.ServeRequest(context.Background(), &request.Request{})
	require.NoError(t, err)

	return string(resp.Body)
}

func buildTable(t *testing.T, routes [][3]string) *Table {
	t.Helper()

	b := NewBuilder()
	for _, r := range routes {
		require.NoError(t, b.Handle(request.Method(r[0]), r[1], named(r[2])))
	}

	return b.Build()
}

func TestMatch(t *testing.T) {
	table := buildTable(t, [][3]string{
		{"GET", "/", "root"},
		{"GET", "/users", "list"},
		{"POST", "/users", "create"},
		{"GET", "/users/:id", "get"},
		{"GET", "/users/admin", "admin"},
		{"GET", "/users/:id/posts/:post", "post"},
		{"GET", "/products", "products"},
	})

	tests := []struct {
		name       string
		method     request.Method
		path       string
		wantName   string
		wantParams request.Params
	}{
		{name: "root", method: "GET", path: "/", wantName: "root"},
		{name: "literal", method: "GET", path: "/users", wantName: "list"},
		{name: "same_path_other_method", method: "POST", path: "/users", wantName: "create"},
		{name: "parameter", method: "GET", path: "/users/123", wantName: "get", wantParams: request.Params{"id": "123"}},
		{name: "literal_beats_parameter", method: "GET", path: "/users/admin", wantName: "admin"},
		{
			name:       "two_parameters",
			method:     "GET",
			path:       "/users/7/posts/hello%20world",
			wantName:   "post",
			wantParams: request.Params{"id": "7", "post": "hello%20world"},
		},
		{name: "head_falls_back_to_get", method: "HEAD", path: "/products", wantName: "products"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, params, err := table.Match(tt.method, tt.path)
			require.NoError(t, err)
			require.Equal(t, tt.wantName, nameOf(t, h))
			require.Equal(t, tt.wantParams, params)
		})
	}
}

func TestMatchMisses(t *testing.T) {
	table := buildTable(t, [][3]string{
		{"GET", "/users", "list"},
		{"POST", "/users", "create"},
		{"GET", "/users/:id", "get"},
		{"DELETE", "/users/:id", "delete"},
	})

	tests := []struct {
		name        string
		method      request.Method
		path        string
		wantAllowed []request.Method
	}{
		{name: "unknown_path", method: "GET", path: "/nope"},
		{name: "extra_segment", method: "GET", path: "/users/1/2"},
		{name: "trailing_slash_is_an_empty_segment", method: "GET", path: "/users/"},
		{name: "empty_segment_never_binds", method: "DELETE", path: "/users/"},
		{
			name:        "method_not_allowed",
			method:      "PUT",
			path:        "/users",
			wantAllowed: []request.Method{"GET", "HEAD", "POST"},
		},
		{
			name:        "method_not_allowed_with_parameter",
			method:      "POST",
			path:        "/users/42",
			wantAllowed: []request.Method{"DELETE", "GET", "HEAD"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, params, err := table.Match(tt.method, tt.path)
			require.Nil(t, h)
			require.Nil(t, params)

			if tt.wantAllowed == nil {
				require.ErrorIs(t, err, ErrNoMatch)
				return
			}

			require.ErrorIs(t, err, ErrMethodNotAllowed)

			var mna *MethodNotAllowedError
			require.ErrorAs(t, err, &mna)
			require.Equal(t, tt.wantAllowed, mna.Allowed)
		})
	}
}

func TestMatchIgnoresRegistrationOrder(t *testing.T) {
	routes := [][3]string{
		{"GET", "/a/:x/c", "param-first"},
		{"GET", "/:y/b/c", "param-second"},
		{"GET", "/a/b/:z", "param-last"},
	}

	reversed := [][3]string{routes[2], routes[1], routes[0]}

	for _, table := range []*Table{buildTable(t, routes), buildTable(t, reversed)} {
		h, params, err := table.Match("GET", "/a/b/c")
		require.NoError(t, err)
		require.Equal(t, "param-last", nameOf(t, h))
		require.Equal(t, request.Params{"z": "c"}, params)
	}
}

func TestHandleRejects(t *testing.T) {
	tests := []struct {
		name    string
		method  request.Method
		pattern string
		handler Handler
		wantErr error
	}{
		{name: "relative", method: "GET", pattern: "users", handler: named("x"), wantErr: ErrInvalidPattern},
		{name: "unnamed_parameter", method: "GET", pattern: "/users/:", handler: named("x"), wantErr: ErrInvalidPattern},
		{name: "repeated_parameter", method: "GET", pattern: "/:a/:a", handler: named("x"), wantErr: ErrInvalidPattern},
		{name: "unknown_method", method: "BREW", pattern: "/", handler: named("x"), wantErr: ErrInvalidPattern},
		{name: "nil_handler", method: "GET", pattern: "/x", wantErr: ErrInvalidPattern},
		{name: "exact_duplicate", method: "GET", pattern: "/users/:id", handler: named("x"), wantErr: ErrDuplicateRoute},
		{name: "same_shape", method: "GET", pattern: "/users/:name", handler: named("x"), wantErr: ErrDuplicateRoute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			require.NoError(t, b.Handle("GET", "/users/:id", named("get")))

			err := b.Handle(tt.method, tt.pattern, tt.handler)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestHandleSameShapeOtherMethod(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Handle("GET", "/users/:id", named("get")))
	require.NoError(t, b.Handle("DELETE", "/users/:name", named("delete")))
	require.NoError(t, b.HandleFunc("GET", "/users/:id/avatar", func(context.Context, *request.Request) (*response.Response, error) {
		return response.New(204), nil
	}))

	require.Equal(t, []string{
		"DELETE /users/:name",
		"GET /users/:id",
		"GET /users/:id/avatar",
	}, b.Build().Routes())
}
