package validateargs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidParams(t *testing.T) {
	args := []string{"rawhttp",
		"-listen-http", ":3010",
		"-db-user", "postgres",
		"-db-password-hint", "x",
		"db-password"}
	require.NoError(t, NotAllowed(args))
}

func TestInvalidNotAllowedParams(t *testing.T) {
	tests := map[string][]string{
		"password passed":        {"rawhttp", "-db-password", "abc123"},
		"double dash":            {"rawhttp", "--db-password", "abc123"},
		"key=value":              {"rawhttp", "-db-password=abc123"},
		"after other parameters": {"rawhttp", "-listen-http", ":3010", "--db-password=abc123"},
	}

	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			err := NotAllowed(args)
			require.ErrorIs(t, err, ErrNotAllowed)
			require.Contains(t, err.Error(), "-db-password")
		})
	}
}
