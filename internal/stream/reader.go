package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

const (
	// DefaultMaxLineBytes caps a single request or header line, terminator excluded.
	DefaultMaxLineBytes = 8 << 10
	// DefaultMaxBodyBytes caps a length-delimited read.
	DefaultMaxBodyBytes = 1 << 20
)

var (
	// ErrConnectionClosed is returned when the peer went away before the
	// first byte of a new line was received, or the transport failed.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrUnexpectedEOF is returned when the peer went away in the middle of
	// a line or a length-delimited read.
	ErrUnexpectedEOF = errors.New("unexpected end of stream")
	// ErrRequestTooLarge is returned when a line or a body exceeds its cap.
	ErrRequestTooLarge = errors.New("request too large")
)

// Option configures a Reader
type Option func(*Reader)

// WithMaxLineBytes sets the longest line ReadLine accepts
func WithMaxLineBytes(n int) Option {
	return func(r *Reader) {
		r.maxLineBytes = n
	}
}

// WithMaxBodyBytes sets the largest length ReadExact accepts
func WithMaxBodyBytes(n int) Option {
	return func(r *Reader) {
		r.maxBodyBytes = n
	}
}

// Reader accumulates bytes from a connection and hands them out as
// terminator-delimited lines or length-delimited chunks. Short reads from the
// underlying io.Reader are retried internally, so a caller blocks only until
// a full line or the requested byte count is available.
type Reader struct {
	br           *bufio.Reader
	maxLineBytes int
	maxBodyBytes int
}

// NewReader wraps r. The internal buffer is sized to hold exactly one line of
// the maximum length plus its CRLF terminator.
func NewReader(r io.Reader, opts ...Option) *Reader {
	rd := &Reader{
		maxLineBytes: DefaultMaxLineBytes,
		maxBodyBytes: DefaultMaxBodyBytes,
	}

	for _, opt := range opts {
		opt(rd)
	}

	rd.br = bufio.NewReaderSize(r, rd.maxLineBytes+2)

	return rd
}

// MaxBodyBytes returns the configured body cap
func (r *Reader) MaxBodyBytes() int {
	return r.maxBodyBytes
}

// Buffered returns the number of bytes already received but not yet consumed
func (r *Reader) Buffered() int {
	return r.br.Buffered()
}

// ReadLine returns the next line without its terminator. CRLF terminates a
// line; a bare LF is accepted as well.
func (r *Reader) ReadLine() ([]byte, error) {
	line, err := r.br.ReadSlice('\n')
	if err != nil {
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			return nil, fmt.Errorf("%w: line exceeds %d bytes", ErrRequestTooLarge, r.maxLineBytes)
		case errors.Is(err, io.EOF) && len(line) == 0:
			return nil, ErrConnectionClosed
		case errors.Is(err, io.EOF):
			return nil, fmt.Errorf("%w: line terminator missing after %d bytes", ErrUnexpectedEOF, len(line))
		default:
			return nil, &transportError{cause: err}
		}
	}

	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}

	if len(line) > r.maxLineBytes {
		return nil, fmt.Errorf("%w: line exceeds %d bytes", ErrRequestTooLarge, r.maxLineBytes)
	}

	// ReadSlice hands out the internal buffer, which the next read overwrites
	out := make([]byte, len(line))
	copy(out, line)

	return out, nil
}

// ReadExact returns exactly n bytes. Running out of input before n bytes
// were received is an error, never a short result.
func (r *Reader) ReadExact(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("stream: negative read length %d", n)
	}

	if n > r.maxBodyBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds the %d bytes limit", ErrRequestTooLarge, n, r.maxBodyBytes)
	}

	buf := make([]byte, n)
	read, err := io.ReadFull(r.br, buf)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: got %d of %d bytes", ErrUnexpectedEOF, read, n)
		}

		return nil, &transportError{cause: err}
	}

	return buf, nil
}

// transportError reports a failing connection as ErrConnectionClosed while
// keeping the original cause reachable for logging and timeout checks.
type transportError struct {
	cause error
}

func (e *transportError) Error() string {
	return fmt.Sprintf("%s: %v", ErrConnectionClosed, e.cause)
}

func (e *transportError) Is(target error) bool {
	return target == ErrConnectionClosed
}

func (e *transportError) Unwrap() error {
	return e.cause
}
