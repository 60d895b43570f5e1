package server

import (
	"fmt"
	"strings"
)

// Model selects how accepted connections are scheduled
type Model int

const (
	// ModelBlocking serves one connection at a time on the accept loop and
	// closes it after a single response
	ModelBlocking Model = iota
	// ModelConcurrent serves every connection on its own goroutine, with
	// keep-alive
	ModelConcurrent
)

// ParseModel parses "blocking" or "concurrent"
func ParseModel(s string) (Model, error) {
	switch strings.ToLower(s) {
	case "blocking":
		return ModelBlocking, nil
	case "concurrent":
		return ModelConcurrent, nil
	}

	return 0, fmt.Errorf("unknown connection model %q", s)
}

func (m Model) String() string {
	switch m {
	case ModelBlocking:
		return "blocking"
	case ModelConcurrent:
		return "concurrent"
	}

	return fmt.Sprintf("model(%d)", int(m))
}
