package response

import (
	"encoding/json"
	"fmt"
	"net/http"

	"gitlab.com/gitlab-org/rawhttp/internal/header"
)

// Content types set by the constructors
const (
	ContentTypeJSON = "application/json"
	ContentTypeText = "text/plain; charset=utf-8"
)

// Response is what a handler hands back to the dispatcher. Body is written
// verbatim; the encoder takes care of Content-Length.
type Response struct {
	Status int
	Header header.Header
	Body   []byte
}

// New returns a response with no body
func New(status int) *Response {
	return &Response{Status: status}
}

// Text returns a plain text response
func Text(status int, body string) *Response {
	resp := &Response{Status: status, Body: []byte(body)}
	resp.Header.Set(header.ContentType, ContentTypeText)

	return resp
}

// JSON serializes v into a JSON response
func JSON(status int, v interface{}) (*Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %d response: %w", status, err)
	}

	resp := &Response{Status: status, Body: body}
	resp.Header.Set(header.ContentType, ContentTypeJSON)

	return resp, nil
}

// WithHeader sets a header field and returns resp for chaining
func (r *Response) WithHeader(name, value string) *Response {
	r.Header.Set(name, value)
	return r
}

// ReasonPhrase returns the standard reason phrase for code
func ReasonPhrase(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}

	return "Unknown"
}
