package mcp

import (
	"context"
	"encoding/json"
	"errors"
)

// errNoSession is returned by transports once disconnected: calls keep
// failing with it until the server is reconnected.
var errNoSession = errors.New("no session")

// Transport carries JSON-RPC traffic to one server. Both bindings — a
// spawned subprocess on stdio and an HTTP endpoint — satisfy it.
type Transport interface {
	// Connect establishes the session.
	Connect(ctx context.Context) error

	// Close tears the session down. Calls after Close fail with a
	// no-session error.
	Close() error

	// Call issues one request and blocks for its response, honoring ctx
	// cancellation.
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)

	// Notify sends a fire-and-forget notification.
	Notify(ctx context.Context, method string, params any) error

	// Notifications streams server-pushed notifications.
	Notifications() <-chan *rpcNotification

	// Connected reports whether the session is live.
	Connected() bool
}

func newTransport(cfg *ServerConfig) Transport {
	if cfg.Transport == TransportHTTP {
		return NewHTTPTransport(cfg)
	}
	return NewStdioTransport(cfg)
}
