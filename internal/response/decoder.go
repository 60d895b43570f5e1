package response

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gitlab.com/gitlab-org/rawhttp/internal/header"
	"gitlab.com/gitlab-org/rawhttp/internal/stream"
)

// ErrMalformedStatusLine is returned by Decode for a status line it cannot
// split into version, code and reason, or a response it cannot frame
var ErrMalformedStatusLine = errors.New("malformed status line")

// Decode reads one response written by Encode: status line, header fields
// up to the blank line and a Content-Length delimited body. A response
// without Content-Length has an empty body.
func Decode(r *stream.Reader) (*Response, error) {
	line, err := r.ReadLine()
	if err != nil {
		return nil, err
	}

	parts := strings.SplitN(string(line), " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/1.") {
		return nil, fmt.Errorf("%w: %q", ErrMalformedStatusLine, line)
	}

	status, err := strconv.Atoi(parts[1])
	if err != nil || status < 100 || status > 599 {
		return nil, fmt.Errorf("%w: bad status code %q", ErrMalformedStatusLine, parts[1])
	}

	resp := &Response{Status: status}

	for {
		line, err := r.ReadLine()
		if err != nil {
			return nil, err
		}

		if len(line) == 0 {
			break
		}

		field, err := header.ParseLine(line)
		if err != nil {
			return nil, err
		}

		resp.Header.Add(field.Name, field.Value)
	}

	if !resp.Header.Has(header.ContentLength) {
		return resp, nil
	}

	length, err := strconv.Atoi(resp.Header.Get(header.ContentLength))
	if err != nil || length < 0 {
		return nil, fmt.Errorf("%w: bad content length %q", ErrMalformedStatusLine, resp.Header.Get(header.ContentLength))
	}

	if resp.Body, err = r.ReadExact(length); err != nil {
		return nil, err
	}

	return resp, nil
}
