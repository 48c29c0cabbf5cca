package mcp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServerConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServerConfig
		wantErr string
	}{
		{
			name:    "missing id",
			cfg:     ServerConfig{Transport: TransportStdio, Command: "server"},
			wantErr: "server ID is required",
		},
		{
			name:    "stdio missing command",
			cfg:     ServerConfig{ID: "s1", Transport: TransportStdio},
			wantErr: "command is required",
		},
		{
			name:    "stdio path traversal in command",
			cfg:     ServerConfig{ID: "s1", Transport: TransportStdio, Command: "../../bin/evil"},
			wantErr: "path traversal",
		},
		{
			name:    "stdio path traversal in workdir",
			cfg:     ServerConfig{ID: "s1", Transport: TransportStdio, Command: "server", WorkDir: "/tmp/../../etc"},
			wantErr: "path traversal",
		},
		{
			name:    "stdio shell metachars in args",
			cfg:     ServerConfig{ID: "s1", Transport: TransportStdio, Command: "server", Args: []string{"--flag; rm -rf /"}},
			wantErr: "shell metacharacters",
		},
		{
			name: "stdio spaces and quotes allowed in args",
			cfg:  ServerConfig{ID: "s1", Transport: TransportStdio, Command: "server", Args: []string{`--name "my server"`}},
		},
		{
			name:    "http missing url",
			cfg:     ServerConfig{ID: "s1", Transport: TransportHTTP},
			wantErr: "URL is required",
		},
		{
			name:    "http bad scheme",
			cfg:     ServerConfig{ID: "s1", Transport: TransportHTTP, URL: "ftp://example.com"},
			wantErr: "must start with http",
		},
		{
			name: "http valid",
			cfg:  ServerConfig{ID: "s1", Transport: TransportHTTP, URL: "https://tools.example.com/rpc"},
		},
		{
			name: "stdio valid",
			cfg:  ServerConfig{ID: "s1", Transport: TransportStdio, Command: "uvx", Args: []string{"some-server"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestHasShellMetachars(t *testing.T) {
	require.True(t, hasShellMetachars("a && b"))
	require.True(t, hasShellMetachars("$(whoami)"))
	require.True(t, hasShellMetachars("a | b"))
	require.False(t, hasShellMetachars("--path /usr/local/bin"))
	require.False(t, hasShellMetachars(`--label "with spaces"`))
}

func TestRPCErrorMessage(t *testing.T) {
	err := &rpcError{Code: -32601, Message: "method not found"}
	require.Contains(t, err.Error(), "-32601")
	require.Contains(t, err.Error(), "method not found")
}
