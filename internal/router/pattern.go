package router

import (
	"fmt"
	"strings"

	"gitlab.com/gitlab-org/rawhttp/internal/request"
)

const paramPrefix = ":"

// segment is either a literal compared byte for byte or a named parameter
// capturing one non-empty path segment
type segment struct {
	literal string
	param   string
}

func (s segment) isParam() bool {
	return s.param != ""
}

func compile(pattern string) ([]segment, error) {
	if !strings.HasPrefix(pattern, "/") {
		return nil, fmt.Errorf("%w: %q must start with /", ErrInvalidPattern, pattern)
	}

	parts := splitPath(pattern)
	segments := make([]segment, 0, len(parts))
	names := make(map[string]struct{})

	for _, part := range parts {
		if !strings.HasPrefix(part, paramPrefix) {
			segments = append(segments, segment{literal: part})
			continue
		}

		name := strings.TrimPrefix(part, paramPrefix)
		if name == "" {
			return nil, fmt.Errorf("%w: %q has an unnamed parameter", ErrInvalidPattern, pattern)
		}

		if _, dup := names[name]; dup {
			return nil, fmt.Errorf("%w: %q repeats parameter %q", ErrInvalidPattern, pattern, name)
		}

		names[name] = struct{}{}
		segments = append(segments, segment{param: name})
	}

	return segments, nil
}

// match walks both sequences left to right. The caller guarantees equal
// lengths.
func match(pattern []segment, path []string) (request.Params, bool) {
	var params request.Params

	for i, s := range pattern {
		if !s.isParam() {
			if s.literal != path[i] {
				return nil, false
			}

			continue
		}

		if path[i] == "" {
			return nil, false
		}

		if params == nil {
			params = make(request.Params, len(pattern))
		}

		params[s.param] = path[i]
	}

	return params, true
}

// sameShape ignores parameter names: /users/:id and /users/:name can never
// be told apart
func sameShape(a, b []segment) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i].isParam() != b[i].isParam() {
			return false
		}

		if !a[i].isParam() && a[i].literal != b[i].literal {
			return false
		}
	}

	return true
}

// moreSpecific orders a before b when a has a literal where b has a
// parameter at the first position their kinds differ
func moreSpecific(a, b []segment) bool {
	for i := range a {
		if a[i].isParam() != b[i].isParam() {
			return !a[i].isParam()
		}
	}

	return false
}
