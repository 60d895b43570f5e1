package request

import (
	"fmt"
	"strconv"
	"strings"

	"gitlab.com/gitlab-org/rawhttp/internal/header"
	"gitlab.com/gitlab-org/rawhttp/internal/stream"
)

// DefaultMaxHeaderCount caps the number of header lines in one request
const DefaultMaxHeaderCount = 100

var (
	// ErrRequestTooLarge is returned when a line, the header block or the
	// body exceeds its cap
	ErrRequestTooLarge = stream.ErrRequestTooLarge
	// ErrConnectionClosed is returned when the peer closed the connection
	// before sending the first byte of a request
	ErrConnectionClosed = stream.ErrConnectionClosed
	// ErrUnexpectedEOF is returned when the peer closed the connection in
	// the middle of a request
	ErrUnexpectedEOF = stream.ErrUnexpectedEOF
)

type state int

const (
	stateRequestLine state = iota
	stateHeaders
	stateBody
	stateDone
	stateError
)

func (s state) String() string {
	switch s {
	case stateRequestLine:
		return "request-line"
	case stateHeaders:
		return "headers"
	case stateBody:
		return "body"
	case stateDone:
		return "done"
	case stateError:
		return "error"
	}

	return "state(" + strconv.Itoa(int(s)) + ")"
}

// ParserOption configures a Parser
type ParserOption func(*Parser)

// WithMaxHeaderCount limits how many header lines a request may carry
func WithMaxHeaderCount(n int) ParserOption {
	return func(p *Parser) {
		p.maxHeaderCount = n
	}
}

// Parser reads consecutive requests from a stream. It walks
// request-line -> headers -> body -> done, each transition performed by
// step. Any failure moves it to the terminal error state, after which the
// connection has to be closed.
type Parser struct {
	r              *stream.Reader
	maxHeaderCount int

	state     state
	req       *Request
	methodErr error
	err       error
}

// NewParser returns a parser reading from r
func NewParser(r *stream.Reader, opts ...ParserOption) *Parser {
	p := &Parser{
		r:              r,
		maxHeaderCount: DefaultMaxHeaderCount,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Parse reads the next request from the stream.
//
// An unknown method yields the parsed request together with
// ErrUnsupportedMethod: the request has been fully consumed and the stream
// is positioned at the next request. Every other error leaves the parser
// in its error state and returns a nil request.
func (p *Parser) Parse() (*Request, error) {
	if p.state == stateError {
		return nil, p.err
	}

	p.state = stateRequestLine
	p.req = &Request{}
	p.methodErr = nil

	for p.state != stateDone {
		next, err := p.step()
		if err != nil {
			p.state = stateError
			p.err = err
			p.req = nil

			return nil, err
		}

		p.state = next
	}

	return p.req, p.methodErr
}

func (p *Parser) step() (state, error) {
	switch p.state {
	case stateRequestLine:
		return p.readRequestLine()
	case stateHeaders:
		return p.readHeader()
	case stateBody:
		return p.readBody()
	}

	return stateError, fmt.Errorf("request: no transition out of %s", p.state)
}

func (p *Parser) readRequestLine() (state, error) {
	line, err := p.r.ReadLine()
	if err != nil {
		return stateError, err
	}

	// Clients may send a stray CRLF after a body, it carries no request
	if len(line) == 0 {
		return stateRequestLine, nil
	}

	if err := p.parseRequestLine(string(line)); err != nil {
		return stateError, err
	}

	return stateHeaders, nil
}

func (p *Parser) parseRequestLine(line string) error {
	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return fmt.Errorf("%w: expected 3 tokens, got %d in %q", ErrMalformedRequestLine, len(parts), truncate(line))
	}

	method, target, version := parts[0], parts[1], parts[2]

	if !strings.HasPrefix(target, "/") {
		return fmt.Errorf("%w: target %q is not an absolute path", ErrMalformedRequestLine, truncate(target))
	}

	if version != HTTP10 && version != HTTP11 {
		return fmt.Errorf("%w: unsupported version %q", ErrMalformedRequestLine, truncate(version))
	}

	p.req.Method, p.methodErr = ParseMethod(method)
	p.req.Version = version
	p.req.Path = target

	if idx := strings.IndexByte(target, '?'); idx >= 0 {
		p.req.Path, p.req.RawQuery = target[:idx], target[idx+1:]
	}

	return nil
}

func (p *Parser) readHeader() (state, error) {
	line, err := p.r.ReadLine()
	if err != nil {
		return stateError, unexpectedClose(err)
	}

	if len(line) == 0 {
		return stateBody, nil
	}

	if line[0] == ' ' || line[0] == '\t' {
		return stateError, fmt.Errorf("%w: obsolete line folding", ErrMalformedHeader)
	}

	if p.req.Header.Len() >= p.maxHeaderCount {
		return stateError, fmt.Errorf("%w: more than %d header fields", ErrRequestTooLarge, p.maxHeaderCount)
	}

	field, err := header.ParseLine(line)
	if err != nil {
		return stateError, err
	}

	p.req.Header.Add(field.Name, field.Value)

	return stateHeaders, nil
}

func (p *Parser) readBody() (state, error) {
	if p.req.Header.Has(header.TransferEncoding) {
		return stateError, fmt.Errorf("%w: %q", ErrUnsupportedTransferEncoding, truncate(p.req.Header.Get(header.TransferEncoding)))
	}

	length, present, err := p.contentLength()
	if err != nil {
		return stateError, err
	}

	if !present {
		return stateDone, nil
	}

	body, err := p.r.ReadExact(length)
	if err != nil {
		return stateError, unexpectedClose(err)
	}

	p.req.Body = body

	return stateDone, nil
}

// contentLength validates every Content-Length field. Repeated fields are
// accepted only when they all carry the same value.
func (p *Parser) contentLength() (int, bool, error) {
	values := p.req.Header.Values(header.ContentLength)
	if len(values) == 0 {
		return 0, false, nil
	}

	raw := values[0]
	for _, v := range values[1:] {
		if v != raw {
			return 0, false, fmt.Errorf("%w: conflicting values %q and %q", ErrMalformedContentLength, truncate(raw), truncate(v))
		}
	}

	if raw == "" || strings.TrimLeft(raw, "0123456789") != "" {
		return 0, false, fmt.Errorf("%w: %q", ErrMalformedContentLength, truncate(raw))
	}

	n, err := strconv.ParseUint(raw, 10, 63)
	if err != nil || n > uint64(p.r.MaxBodyBytes()) {
		return 0, false, fmt.Errorf("%w: body of %s bytes exceeds the %d bytes limit", ErrRequestTooLarge, truncate(raw), p.r.MaxBodyBytes())
	}

	return int(n), true, nil
}

// unexpectedClose turns a clean close in the middle of a request into
// ErrUnexpectedEOF: only a close between requests is a clean one
func unexpectedClose(err error) error {
	if err == stream.ErrConnectionClosed {
		return fmt.Errorf("%w: connection closed mid-request", ErrUnexpectedEOF)
	}

	return err
}
