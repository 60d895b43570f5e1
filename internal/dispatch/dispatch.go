package dispatch

import (
	"context"
	"errors"
	"fmt"

	"gitlab.com/gitlab-org/rawhttp/internal/httperrors"
	"gitlab.com/gitlab-org/rawhttp/internal/request"
	"gitlab.com/gitlab-org/rawhttp/internal/response"
	"gitlab.com/gitlab-org/rawhttp/internal/router"
	"gitlab.com/gitlab-org/rawhttp/metrics"
)

// ErrHandlerFailure is matched by every error Invoke returns
var ErrHandlerFailure = errors.New("handler failure")

// HandlerError carries the reason a handler did not produce a usable
// response
type HandlerError struct {
	Err error
}

func (e *HandlerError) Error() string {
	return ErrHandlerFailure.Error() + ": " + e.Err.Error()
}

// Is makes errors.Is(err, ErrHandlerFailure) hold
func (e *HandlerError) Is(target error) bool {
	return target == ErrHandlerFailure
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Matcher resolves a method and path to a handler. *router.Table
// implements it.
type Matcher interface {
	Match(method request.Method, path string) (router.Handler, request.Params, error)
}

// Dispatcher routes parsed requests to their handlers
type Dispatcher struct {
	matcher Matcher
}

// New returns a Dispatcher over m
func New(m Matcher) *Dispatcher {
	return &Dispatcher{matcher: m}
}

// Dispatch routes req and runs its handler. It always returns a response:
// routing misses become 404 or 405 and handler failures become 500.
func (d *Dispatcher) Dispatch(ctx context.Context, req *request.Request) *response.Response {
	handler, params, err := d.matcher.Match(req.Method, req.Path)
	if err != nil {
		metrics.RequestErrorsTotal.WithLabelValues(httperrors.Kind(err)).Inc()
		return httperrors.FromError(err)
	}

	req.Params = params

	resp, err := Invoke(ctx, handler, req)
	if err != nil {
		metrics.RequestErrorsTotal.WithLabelValues(httperrors.Kind(err)).Inc()
		return httperrors.InternalServerErrorWithRequest(ctx, req, "handler failed", err)
	}

	return resp
}

// Invoke calls h and checks what it returned. A returned error, a nil
// response, a status outside 100-599 or a panic all come back as a
// *HandlerError.
func Invoke(ctx context.Context, h router.Handler, req *request.Request) (resp *response.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.HandlerPanicsTotal.Inc()

			resp = nil
			err = &HandlerError{Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	resp, err = h.ServeRequest(ctx, req)

	switch {
	case err != nil:
		return nil, &HandlerError{Err: err}
	case resp == nil:
		return nil, &HandlerError{Err: errors.New("nil response")}
	case resp.Status < 100 || resp.Status > 599:
		return nil, &HandlerError{Err: fmt.Errorf("%w: %d", response.ErrInvalidStatus, resp.Status)}
	}

	return resp, nil
}
