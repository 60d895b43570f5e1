package header

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedHeader is returned for a header line without a colon or
// without a field name
var ErrMalformedHeader = errors.New("malformed header")

// Canonical names of the fields the server itself reads or writes
const (
	Allow            = "Allow"
	CacheControl     = "Cache-Control"
	Connection       = "Connection"
	ContentLength    = "Content-Length"
	ContentType      = "Content-Type"
	TransferEncoding = "Transfer-Encoding"
	XRequestID       = "X-Request-ID"
)

// Field is a single header line. Name keeps the casing it was received or
// set with.
type Field struct {
	Name  string
	Value string
}

// Header is an ordered list of header fields. Lookups ignore the case of the
// field name, duplicate names are kept as separate fields.
type Header struct {
	fields []Field
}

// New builds a Header from name/value pairs
func New(fields ...Field) Header {
	h := Header{}
	for _, f := range fields {
		h.Add(f.Name, f.Value)
	}

	return h
}

// ParseLine splits a "Name: value" line on its first colon and trims the
// surrounding whitespace of both parts
func ParseLine(line []byte) (Field, error) {
	idx := bytes.IndexByte(line, ':')
	if idx < 0 {
		return Field{}, fmt.Errorf("%w: missing colon in %q", ErrMalformedHeader, truncate(line))
	}

	name := strings.TrimSpace(string(line[:idx]))
	if name == "" || strings.ContainsAny(name, " \t") {
		return Field{}, fmt.Errorf("%w: invalid field name in %q", ErrMalformedHeader, truncate(line))
	}

	return Field{
		Name:  name,
		Value: strings.TrimSpace(string(line[idx+1:])),
	}, nil
}

// Add appends a field, keeping any existing fields with the same name
func (h *Header) Add(name, value string) {
	h.fields = append(h.fields, Field{Name: name, Value: value})
}

// Set replaces every field called name with a single one. The new field
// takes the position of the first replaced field, or is appended.
func (h *Header) Set(name, value string) {
	kept := h.fields[:0]
	placed := false

	for _, f := range h.fields {
		if !strings.EqualFold(f.Name, name) {
			kept = append(kept, f)
			continue
		}

		if !placed {
			kept = append(kept, Field{Name: name, Value: value})
			placed = true
		}
	}

	h.fields = kept
	if !placed {
		h.Add(name, value)
	}
}

// Get returns the value of the first field called name
func (h Header) Get(name string) string {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}

	return ""
}

// Values returns the values of every field called name, in order
func (h Header) Values(name string) []string {
	var values []string

	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			values = append(values, f.Value)
		}
	}

	return values
}

// Has reports whether at least one field is called name
func (h Header) Has(name string) bool {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return true
		}
	}

	return false
}

// Del removes every field called name
func (h *Header) Del(name string) {
	kept := h.fields[:0]

	for _, f := range h.fields {
		if !strings.EqualFold(f.Name, name) {
			kept = append(kept, f)
		}
	}

	h.fields = kept
}

// Len returns the number of fields
func (h Header) Len() int {
	return len(h.fields)
}

// Fields returns a copy of the fields in insertion order
func (h Header) Fields() []Field {
	out := make([]Field, len(h.fields))
	copy(out, h.fields)

	return out
}

// Clone returns a deep copy of h
func (h Header) Clone() Header {
	return Header{fields: h.Fields()}
}

// HasToken reports whether any comma separated value of the fields called
// name equals token, ignoring case. Used for Connection: close/keep-alive.
func (h Header) HasToken(name, token string) bool {
	for _, v := range h.Values(name) {
		for _, t := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(t), token) {
				return true
			}
		}
	}

	return false
}

func truncate(line []byte) string {
	const max = 64
	if len(line) > max {
		return string(line[:max]) + "..."
	}

	return string(line)
}
