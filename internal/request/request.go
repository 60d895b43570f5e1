package request

import (
	"errors"

	"gitlab.com/gitlab-org/rawhttp/internal/header"
)

// Protocol versions the parser accepts
const (
	HTTP10 = "HTTP/1.0"
	HTTP11 = "HTTP/1.1"
)

var (
	// ErrMalformedRequestLine is returned when the request line is not
	// exactly "METHOD /path HTTP/1.x"
	ErrMalformedRequestLine = errors.New("malformed request line")
	// ErrUnsupportedMethod is returned for a method outside the known set.
	// The rest of the request is still consumed.
	ErrUnsupportedMethod = errors.New("unsupported method")
	// ErrMalformedHeader is returned for a header line without a colon
	ErrMalformedHeader = header.ErrMalformedHeader
	// ErrMalformedContentLength is returned when Content-Length is not a
	// non-negative integer
	ErrMalformedContentLength = errors.New("malformed content length")
	// ErrUnsupportedTransferEncoding is returned when the request uses a
	// transfer coding, chunked bodies are not supported
	ErrUnsupportedTransferEncoding = errors.New("unsupported transfer encoding")
)

// Params holds the path parameters bound by the router
type Params map[string]string

// Get returns the value bound to name
func (p Params) Get(name string) string {
	return p[name]
}

// Request is a parsed HTTP/1.x request. It is owned by the connection
// goroutine that parsed it until the response is written.
type Request struct {
	Method   Method
	Path     string
	RawQuery string
	Version  string
	Header   header.Header
	Body     []byte

	// Params is populated after routing
	Params Params

	RemoteAddr string
}

// KeepAlive reports whether the client asked for the connection to stay
// open after the response
func (r *Request) KeepAlive() bool {
	if r.Header.HasToken(header.Connection, "close") {
		return false
	}

	if r.Version == HTTP10 {
		return r.Header.HasToken(header.Connection, "keep-alive")
	}

	return true
}

// RequestURI returns the path with its query string
func (r *Request) RequestURI() string {
	if r.RawQuery == "" {
		return r.Path
	}

	return r.Path + "?" + r.RawQuery
}

func truncate(s string) string {
	const max = 64
	if len(s) > max {
		return s[:max] + "..."
	}

	return s
}
