package httperrors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"gitlab.com/gitlab-org/rawhttp/internal/errortracking"
	"gitlab.com/gitlab-org/rawhttp/internal/header"
	"gitlab.com/gitlab-org/rawhttp/internal/logging"
	"gitlab.com/gitlab-org/rawhttp/internal/request"
	"gitlab.com/gitlab-org/rawhttp/internal/response"
	"gitlab.com/gitlab-org/rawhttp/internal/router"
)

// ErrRateLimited is returned when a source IP exceeded its request budget
var ErrRateLimited = errors.New("rate limited")

type content struct {
	status  int
	kind    string
	field   string
	message string
}

var (
	content400 = content{
		status:  http.StatusBadRequest,
		kind:    "bad_request",
		field:   "error",
		message: "Bad Request",
	}
	content404 = content{
		status:  http.StatusNotFound,
		kind:    "no_match",
		field:   "message",
		message: "Not found",
	}
	content405 = content{
		status:  http.StatusMethodNotAllowed,
		kind:    "method_not_allowed",
		field:   "error",
		message: "Method Not Allowed",
	}
	content413 = content{
		status:  http.StatusRequestEntityTooLarge,
		kind:    "request_too_large",
		field:   "error",
		message: "Request Too Large",
	}
	content429 = content{
		status:  http.StatusTooManyRequests,
		kind:    "rate_limited",
		field:   "error",
		message: "Too Many Requests",
	}
	content500 = content{
		status:  http.StatusInternalServerError,
		kind:    "handler_failure",
		field:   "error",
		message: "Internal Server Error",
	}
	content501 = content{
		status:  http.StatusNotImplemented,
		kind:    "not_implemented",
		field:   "error",
		message: "Not Implemented",
	}
)

// badRequestKinds keeps the parse failure in the metrics label while all
// of them answer with the same 400
var badRequestKinds = []struct {
	err  error
	kind string
}{
	{request.ErrMalformedRequestLine, "malformed_request_line"},
	{request.ErrMalformedHeader, "malformed_header"},
	{request.ErrMalformedContentLength, "malformed_content_length"},
	{request.ErrUnexpectedEOF, "unexpected_eof"},
}

func errorResponse(c content) *response.Response {
	body, _ := json.Marshal(map[string]string{c.field: c.message})

	resp := &response.Response{Status: c.status, Body: body}
	resp.Header.Set(header.ContentType, response.ContentTypeJSON)

	return resp
}

func classify(err error) (content, string) {
	for _, k := range badRequestKinds {
		if errors.Is(err, k.err) {
			return content400, k.kind
		}
	}

	switch {
	case errors.Is(err, request.ErrRequestTooLarge):
		return content413, content413.kind
	case errors.Is(err, request.ErrUnsupportedMethod):
		return content501, "unsupported_method"
	case errors.Is(err, request.ErrUnsupportedTransferEncoding):
		return content501, "unsupported_transfer_encoding"
	case errors.Is(err, router.ErrNoMatch):
		return content404, content404.kind
	case errors.Is(err, router.ErrMethodNotAllowed):
		return content405, content405.kind
	case errors.Is(err, ErrRateLimited):
		return content429, content429.kind
	}

	return content500, content500.kind
}

// FromError translates a parse, routing or handler error into the response
// sent to the client. Anything it does not recognise becomes a 500.
// A connection closed between requests must not be answered at all, callers
// check for request.ErrConnectionClosed first.
func FromError(err error) *response.Response {
	c, _ := classify(err)
	resp := errorResponse(c)

	var mna interface{ AllowedMethods() []string }
	if errors.As(err, &mna) {
		resp.Header.Set(header.Allow, strings.Join(mna.AllowedMethods(), ", "))
	}

	return resp
}

// Kind returns a short label naming the failure, for logs and metrics
func Kind(err error) string {
	_, kind := classify(err)
	return kind
}

// BadRequest returns a 400 response carrying message as its error
func BadRequest(message string) *response.Response {
	c := content400
	c.message = message

	return errorResponse(c)
}

// NotFound returns the 404 response with a custom message
func NotFound(message string) *response.Response {
	c := content404
	c.message = message

	return errorResponse(c)
}

// TooManyRequests returns the 429 response
func TooManyRequests() *response.Response {
	return errorResponse(content429)
}

// InternalServerError returns the 500 response
func InternalServerError() *response.Response {
	return errorResponse(content500)
}

// InternalServerErrorWithRequest logs and reports err before returning the
// 500 response
func InternalServerErrorWithRequest(ctx context.Context, req *request.Request, reason string, err error) *response.Response {
	logging.LogRequest(ctx, req).WithError(err).Error(reason)
	errortracking.CaptureErrWithReqAndStackTrace(ctx, err, req)

	return errorResponse(content500)
}
