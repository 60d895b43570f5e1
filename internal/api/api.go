package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"gitlab.com/gitlab-org/rawhttp/internal/healthcheck"
	"gitlab.com/gitlab-org/rawhttp/internal/request"
	"gitlab.com/gitlab-org/rawhttp/internal/response"
	"gitlab.com/gitlab-org/rawhttp/internal/router"
	"gitlab.com/gitlab-org/rawhttp/internal/store"
)

// ConnPool lends store connections for the duration of a callback.
// *pool.Pool[store.Conn] implements it.
type ConnPool interface {
	With(ctx context.Context, fn func(store.Conn) error) error
}

// API serves the users and products routes
type API struct {
	pool       ConnPool
	statusPath string
}

// Option configures an API
type Option func(*API)

// WithStatusPath serves the status check on path
func WithStatusPath(path string) Option {
	return func(a *API) {
		a.statusPath = path
	}
}

// New returns an API reading and writing through p
func New(p ConnPool, opts ...Option) *API {
	a := &API{pool: p}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Register adds every route to b
func (a *API) Register(b *router.Builder) error {
	var result *multierror.Error

	add := func(method request.Method, pattern string, fn router.HandlerFunc) {
		if err := b.Handle(method, pattern, fn); err != nil {
			result = multierror.Append(result, err)
		}
	}

	add(request.MethodGet, "/", a.hello)
	add(request.MethodGet, "/users", a.withConn(a.listUsers))
	add(request.MethodPost, "/users", a.createUser)
	add(request.MethodGet, "/users/:id", a.getUser)
	add(request.MethodGet, "/products", a.listProducts)

	if a.statusPath != "" {
		if err := b.Handle(request.MethodGet, a.statusPath, healthcheck.Handler(a.ping)); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}

// Routes builds the route table of a
func Routes(a *API) (*router.Table, error) {
	b := router.NewBuilder()
	if err := a.Register(b); err != nil {
		return nil, err
	}

	return b.Build(), nil
}

type connHandler func(ctx context.Context, req *request.Request, conn store.Conn) (*response.Response, error)

// withConn borrows a connection for fn and gives it back whatever fn
// returns
func (a *API) withConn(fn connHandler) router.HandlerFunc {
	return func(ctx context.Context, req *request.Request) (*response.Response, error) {
		var resp *response.Response

		err := a.pool.With(ctx, func(conn store.Conn) error {
			var err error
			resp, err = fn(ctx, req, conn)

			return err
		})
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
		}

		return resp, nil
	}
}

func (a *API) ping(ctx context.Context) error {
	return a.pool.With(ctx, func(conn store.Conn) error {
		return conn.Ping(ctx)
	})
}

func isStoreFailure(err error) bool {
	return err != nil && !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrConstraint)
}
