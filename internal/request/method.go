package request

import "fmt"

// Method is an HTTP request method
type Method string

// Known methods. Any other method is rejected with ErrUnsupportedMethod.
const (
	MethodGet     Method = "GET"
	MethodHead    Method = "HEAD"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodPatch   Method = "PATCH"
	MethodOptions Method = "OPTIONS"
	MethodConnect Method = "CONNECT"
	MethodTrace   Method = "TRACE"
)

var knownMethods = map[Method]struct{}{
	MethodGet:     {},
	MethodHead:    {},
	MethodPost:    {},
	MethodPut:     {},
	MethodDelete:  {},
	MethodPatch:   {},
	MethodOptions: {},
	MethodConnect: {},
	MethodTrace:   {},
}

// ParseMethod validates token against the known set. Methods are case
// sensitive, "get" is not GET.
func ParseMethod(token string) (Method, error) {
	m := Method(token)
	if !m.Known() {
		return m, fmt.Errorf("%w: %q", ErrUnsupportedMethod, truncate(token))
	}

	return m, nil
}

// Known reports whether m belongs to the known set
func (m Method) Known() bool {
	_, ok := knownMethods[m]
	return ok
}

func (m Method) String() string {
	return string(m)
}
