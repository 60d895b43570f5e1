package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"gitlab.com/gitlab-org/rawhttp/internal/store"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig()
	require.NoError(t, err)

	require.Equal(t, 3000, cfg.General.Port)
	require.Equal(t, "concurrent", cfg.General.ConnectionModel)
	require.Equal(t, []string{":3000"}, cfg.ListenHTTPStrings.Split())
	require.Zero(t, cfg.ListenProxyStrings.Len())
	require.Zero(t, cfg.General.CustomHeaders.Len())
	require.Equal(t, store.Credentials{
		Host:     "localhost",
		Port:     5432,
		Name:     "test-db",
		User:     "postgres",
		Password: "123456",
	}, cfg.Store.Credentials())
}

func TestLoadConfigListeners(t *testing.T) {
	tests := map[string]struct {
		port          int
		listenHTTP    []string
		listenProxy   []string
		expectedHTTP  []string
		expectedProxy []string
	}{
		"port only": {
			port:         8080,
			expectedHTTP: []string{":8080"},
		},
		"explicit http listeners": {
			port:         8080,
			listenHTTP:   []string{"127.0.0.1:3000", "[::1]:3000"},
			expectedHTTP: []string{"127.0.0.1:3000", "[::1]:3000"},
		},
		"proxy listener only": {
			port:          8080,
			listenProxy:   []string{"127.0.0.1:3001"},
			expectedProxy: []string{"127.0.0.1:3001"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			setFlags(t, func() {
				*port = tc.port
				listenHTTP = NewMultiStringFlag(",", tc.listenHTTP...)
				listenProxy = NewMultiStringFlag(",", tc.listenProxy...)
			})

			cfg, err := loadConfig()
			require.NoError(t, err)
			require.Equal(t, tc.expectedHTTP, cfg.ListenHTTPStrings.Split())
			require.Equal(t, tc.expectedProxy, cfg.ListenProxyStrings.Split())
		})
	}
}

func TestLoadConfigCustomHeaders(t *testing.T) {
	setFlags(t, func() {
		header = NewMultiStringFlag(";;", "X-Test-String: Test;;X-Other: value", "Cache-Control: no-store")
	})

	cfg, err := loadConfig()
	require.NoError(t, err)

	h := cfg.General.CustomHeaders
	require.Equal(t, 3, h.Len())
	require.Equal(t, "Test", h.Get("X-Test-String"))
	require.Equal(t, "value", h.Get("x-other"))
	require.Equal(t, "no-store", h.Get("Cache-Control"))
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := map[string]struct {
		set         func()
		expectedErr error
	}{
		"invalid header": {
			set:         func() { header = NewMultiStringFlag(";;", "Tk= N") },
			expectedErr: errInvalidHeaderParameter,
		},
		"invalid connection model": {
			set:         func() { *connectionModel = "forking" },
			expectedErr: ErrInvalidConnectionModel,
		},
		"invalid listener": {
			set:         func() { listenHTTP = NewMultiStringFlag(",", "localhost") },
			expectedErr: ErrInvalidListener,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			setFlags(t, tc.set)

			cfg, err := loadConfig()
			require.ErrorIs(t, err, tc.expectedErr)
			require.Nil(t, cfg)
		})
	}
}

func TestParseHeaderString(t *testing.T) {
	tests := []struct {
		name          string
		headerStrings []string
		valid         bool
		expectedLen   int
	}{
		{
			name:          "Normal case",
			headerStrings: []string{"X-Test-String: Test"},
			valid:         true,
			expectedLen:   1,
		},
		{
			name:          "Non-tracking header case",
			headerStrings: []string{"Tk: N"},
			valid:         true,
			expectedLen:   1,
		},
		{
			name:          "Content security header case",
			headerStrings: []string{"content-security-policy: default-src 'self'"},
			valid:         true,
			expectedLen:   1,
		},
		{
			name:          "Multiple header strings",
			headerStrings: []string{"content-security-policy: default-src 'self'", "X-Test-String: Test", "My amazing header : Amazing"},
			valid:         false,
		},
		{
			name:          "Multiple distinct header strings",
			headerStrings: []string{"content-security-policy: default-src 'self'", "X-Test-String: Test"},
			valid:         true,
			expectedLen:   2,
		},
		{
			name:          "Duplicate header names",
			headerStrings: []string{"X-Test-String: Test", "x-test-string: Other"},
			valid:         false,
		},
		{
			name:          "Missing colon",
			headerStrings: []string{"Tk= N"},
			valid:         false,
		},
		{
			name:          "Empty name",
			headerStrings: []string{": value"},
			valid:         false,
		},
		{
			name:          "No headers",
			headerStrings: nil,
			valid:         true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers, err := parseHeaderString(tt.headerStrings)
			if tt.valid {
				require.NoError(t, err)
				require.Equal(t, tt.expectedLen, headers.Len())
			} else {
				require.ErrorIs(t, err, errInvalidHeaderParameter)
			}
		})
	}
}

func TestParseHeaderStringKeepsOrder(t *testing.T) {
	headers, err := parseHeaderString([]string{"B: 2", "A: 1"})
	require.NoError(t, err)

	fields := headers.Fields()
	require.Len(t, fields, 2)
	require.Equal(t, "B", fields[0].Name)
	require.Equal(t, "A", fields[1].Name)
}

// setFlags changes package level flag values and restores them when the
// test ends
func setFlags(t *testing.T, set func()) {
	t.Helper()

	oldPort, oldModel := *port, *connectionModel
	oldHTTP, oldProxy, oldHeader := listenHTTP, listenProxy, header

	t.Cleanup(func() {
		*port, *connectionModel = oldPort, oldModel
		listenHTTP, listenProxy, header = oldHTTP, oldProxy, oldHeader
	})

	set()
}
