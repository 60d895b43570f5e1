package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gitlab.com/gitlab-org/rawhttp/internal/request"
	"gitlab.com/gitlab-org/rawhttp/internal/response"
)

var (
	// ErrInvalidPattern is returned by Handle for a pattern it cannot compile
	ErrInvalidPattern = errors.New("invalid route pattern")
	// ErrDuplicateRoute is returned by Handle when the method already has a
	// route of the same shape
	ErrDuplicateRoute = errors.New("duplicate route")
	// ErrNoMatch is returned by Match when no route matches the path
	ErrNoMatch = errors.New("no route matches")
	// ErrMethodNotAllowed is wrapped by MethodNotAllowedError
	ErrMethodNotAllowed = errors.New("method not allowed")
)

// Handler serves a routed request. Path parameters are available in
// req.Params.
type Handler interface {
	ServeRequest(ctx context.Context, req *request.Request) (*response.Response, error)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, req *request.Request) (*response.Response, error)

// ServeRequest calls f
func (f HandlerFunc) ServeRequest(ctx context.Context, req *request.Request) (*response.Response, error) {
	return f(ctx, req)
}

// MethodNotAllowedError is returned by Match when the path matches a route
// registered under other methods
type MethodNotAllowedError struct {
	Allowed []request.Method
}

func (e *MethodNotAllowedError) Error() string {
	return fmt.Sprintf("%s: allowed %s", ErrMethodNotAllowed, strings.Join(e.AllowedMethods(), ", "))
}

// Unwrap makes errors.Is(err, ErrMethodNotAllowed) hold
func (e *MethodNotAllowedError) Unwrap() error {
	return ErrMethodNotAllowed
}

// AllowedMethods returns the methods as strings, for the Allow header
func (e *MethodNotAllowedError) AllowedMethods() []string {
	out := make([]string, len(e.Allowed))
	for i, m := range e.Allowed {
		out[i] = m.String()
	}

	return out
}

type route struct {
	method   request.Method
	pattern  string
	segments []segment
	handler  Handler
}

// Builder collects routes at startup. Build freezes them into a Table.
type Builder struct {
	routes []*route
}

// NewBuilder returns an empty Builder
func NewBuilder() *Builder {
	return &Builder{}
}

// Handle registers handler for method and pattern. Patterns are absolute
// paths whose ":name" segments capture one path segment each.
func (b *Builder) Handle(method request.Method, pattern string, handler Handler) error {
	if !method.Known() {
		return fmt.Errorf("%w: unknown method %q", ErrInvalidPattern, method)
	}

	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s %s", ErrInvalidPattern, method, pattern)
	}

	segments, err := compile(pattern)
	if err != nil {
		return err
	}

	r := &route{method: method, pattern: pattern, segments: segments, handler: handler}

	for _, existing := range b.routes {
		if existing.method == method && sameShape(existing.segments, segments) {
			return fmt.Errorf("%w: %s %s conflicts with %s", ErrDuplicateRoute, method, pattern, existing.pattern)
		}
	}

	b.routes = append(b.routes, r)

	return nil
}

// HandleFunc registers a function as handler
func (b *Builder) HandleFunc(method request.Method, pattern string, fn func(context.Context, *request.Request) (*response.Response, error)) error {
	return b.Handle(method, pattern, HandlerFunc(fn))
}

// Build returns the immutable route table
func (b *Builder) Build() *Table {
	t := &Table{
		routes: make(map[request.Method]map[int][]*route),
		shapes: make(map[int][]*route),
	}

	for _, r := range b.routes {
		n := len(r.segments)

		if t.routes[r.method] == nil {
			t.routes[r.method] = make(map[int][]*route)
		}

		t.routes[r.method][n] = append(t.routes[r.method][n], r)
		t.shapes[n] = append(t.shapes[n], r)
	}

	for _, bySize := range t.routes {
		for _, candidates := range bySize {
			sort.SliceStable(candidates, func(i, j int) bool {
				return moreSpecific(candidates[i].segments, candidates[j].segments)
			})
		}
	}

	return t
}

// Table is a read-only route table, safe for concurrent use without locking
type Table struct {
	routes map[request.Method]map[int][]*route
	shapes map[int][]*route
}

// Match finds the handler for method and path and binds the path
// parameters. When several routes match, the one with a literal segment at
// the leftmost position where they differ wins. HEAD falls back to GET.
func (t *Table) Match(method request.Method, path string) (Handler, request.Params, error) {
	segments := splitPath(path)

	if r, params := t.lookup(method, segments); r != nil {
		return r.handler, params, nil
	}

	if method == request.MethodHead {
		if r, params := t.lookup(request.MethodGet, segments); r != nil {
			return r.handler, params, nil
		}
	}

	if allowed := t.allowed(segments); len(allowed) > 0 {
		return nil, nil, &MethodNotAllowedError{Allowed: allowed}
	}

	return nil, nil, fmt.Errorf("%w: %s %s", ErrNoMatch, method, path)
}

// Routes lists the registered routes as "METHOD pattern", sorted
func (t *Table) Routes() []string {
	var out []string

	for _, candidates := range t.shapes {
		for _, r := range candidates {
			out = append(out, r.method.String()+" "+r.pattern)
		}
	}

	sort.Strings(out)

	return out
}

func (t *Table) lookup(method request.Method, segments []string) (*route, request.Params) {
	for _, r := range t.routes[method][len(segments)] {
		if params, ok := match(r.segments, segments); ok {
			return r, params
		}
	}

	return nil, nil
}

func (t *Table) allowed(segments []string) []request.Method {
	seen := make(map[request.Method]struct{})

	for _, r := range t.shapes[len(segments)] {
		if _, ok := match(r.segments, segments); ok {
			seen[r.method] = struct{}{}
		}
	}

	if _, ok := seen[request.MethodGet]; ok {
		seen[request.MethodHead] = struct{}{}
	}

	methods := make([]request.Method, 0, len(seen))
	for m := range seen {
		methods = append(methods, m)
	}

	sort.Slice(methods, func(i, j int) bool { return methods[i] < methods[j] })

	return methods
}

func splitPath(path string) []string {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil
	}

	return strings.Split(path, "/")
}
