package config

import (
	"errors"
	"fmt"

	hdr "gitlab.com/gitlab-org/rawhttp/internal/header"
)

var errInvalidHeaderParameter = errors.New("invalid syntax specified as header parameter")

// parseHeaderString parses "Name: value" strings into a header set, in
// the order given. A name may appear only once.
func parseHeaderString(customHeaders []string) (hdr.Header, error) {
	var headers hdr.Header

	for _, keyValueString := range customHeaders {
		field, err := hdr.ParseLine([]byte(keyValueString))
		if err != nil {
			return hdr.Header{}, fmt.Errorf("%w: %v", errInvalidHeaderParameter, err)
		}

		if headers.Has(field.Name) {
			return hdr.Header{}, fmt.Errorf("%w: duplicate header %q", errInvalidHeaderParameter, field.Name)
		}

		headers.Add(field.Name, field.Value)
	}

	return headers, nil
}
