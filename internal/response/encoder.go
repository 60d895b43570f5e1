package response

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gitlab.com/gitlab-org/rawhttp/internal/header"
)

// ErrInvalidStatus is returned when encoding a status outside 100-599
var ErrInvalidStatus = errors.New("invalid status code")

const defaultVersion = "HTTP/1.1"

var headerSanitizer = strings.NewReplacer("\r", " ", "\n", " ")

// Encoder writes responses in HTTP/1.x wire format
type Encoder struct {
	// Version used in the status line, HTTP/1.1 when empty
	Version string
	// OmitBody drops the body bytes but keeps Content-Length, for HEAD
	OmitBody bool
}

// Encode writes the status line, the header fields in insertion order, a
// blank line and the body. Content-Length always reflects len(resp.Body),
// whatever the handler set. Responses that cannot carry a body (1xx, 204,
// 304) are written without body and without Content-Length. resp itself is
// not modified.
func (e Encoder) Encode(w io.Writer, resp *Response) error {
	if resp.Status < 100 || resp.Status > 599 {
		return fmt.Errorf("%w: %d", ErrInvalidStatus, resp.Status)
	}

	h := resp.Header.Clone()
	body := resp.Body

	if bodyless(resp.Status) {
		h.Del(header.ContentLength)
		body = nil
	} else {
		h.Set(header.ContentLength, strconv.Itoa(len(body)))
	}

	if e.OmitBody {
		body = nil
	}

	version := e.Version
	if version == "" {
		version = defaultVersion
	}

	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "%s %d %s\r\n", version, resp.Status, ReasonPhrase(resp.Status))

	for _, f := range h.Fields() {
		bw.WriteString(headerSanitizer.Replace(f.Name))
		bw.WriteString(": ")
		bw.WriteString(headerSanitizer.Replace(f.Value))
		bw.WriteString("\r\n")
	}

	bw.WriteString("\r\n")
	bw.Write(body)

	return bw.Flush()
}

// Size returns the number of body bytes Encode writes for resp
func (e Encoder) Size(resp *Response) int {
	if e.OmitBody || bodyless(resp.Status) {
		return 0
	}

	return len(resp.Body)
}

func bodyless(status int) bool {
	return status < 200 || status == 204 || status == 304
}
