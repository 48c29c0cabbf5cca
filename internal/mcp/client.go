package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

const protocolVersion = "2024-11-05"

// Client drives one remote tool server: connect and handshake, capability
// listing, tool calls, and teardown. Listed tools/resources/prompts are
// cached at connect time and refreshed on demand.
type Client struct {
	config    *ServerConfig
	transport Transport
	logger    *slog.Logger

	mu        sync.RWMutex
	tools     []*Tool
	resources []*Resource
	prompts   []*Prompt

	serverInfo ServerInfo
}

// NewClient returns an unconnected client for cfg.
func NewClient(cfg *ServerConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config:    cfg,
		transport: newTransport(cfg),
		logger:    logger.With("mcp_server", cfg.ID),
	}
}

// Connect establishes the transport session, performs the initialize
// handshake, and caches the server's advertised capabilities.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return fmt.Errorf("transport connect: %w", err)
	}

	result, err := c.transport.Call(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"roots": map[string]any{"listChanged": true},
		},
		"clientInfo": map[string]any{
			"name":    "orcha",
			"version": "1.0.0",
		},
	})
	if err != nil {
		c.transport.Close()
		return fmt.Errorf("initialize: %w", err)
	}

	var init initializeResult
	if err := json.Unmarshal(result, &init); err != nil {
		c.transport.Close()
		return fmt.Errorf("parse initialize result: %w", err)
	}
	c.serverInfo = init.ServerInfo
	c.logger.Info("connected to remote tool server",
		"name", c.serverInfo.Name,
		"version", c.serverInfo.Version,
		"protocol", init.ProtocolVersion)

	if err := c.transport.Notify(ctx, "notifications/initialized", nil); err != nil {
		c.logger.Warn("initialized notification failed", "error", err)
	}

	if err := c.RefreshCapabilities(ctx); err != nil {
		c.logger.Warn("capability refresh failed", "error", err)
	}
	return nil
}

// Close tears down the transport session.
func (c *Client) Close() error {
	return c.transport.Close()
}

// Config returns the server configuration this client was built from.
func (c *Client) Config() *ServerConfig {
	return c.config
}

// ServerInfo returns the identity reported during the handshake.
func (c *Client) ServerInfo() ServerInfo {
	return c.serverInfo
}

// Connected reports whether the transport session is live.
func (c *Client) Connected() bool {
	return c.transport.Connected()
}

// RefreshCapabilities re-lists the server's tools, resources and prompts.
// A server that doesn't implement one of the list methods simply leaves
// that cache empty; listing failures are not fatal.
func (c *Client) RefreshCapabilities(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if result, err := c.transport.Call(ctx, "tools/list", nil); err == nil {
		var resp listToolsResult
		if json.Unmarshal(result, &resp) == nil {
			c.tools = resp.Tools
			c.logger.Debug("refreshed tools", "count", len(c.tools))
		}
	}
	if result, err := c.transport.Call(ctx, "resources/list", nil); err == nil {
		var resp listResourcesResult
		if json.Unmarshal(result, &resp) == nil {
			c.resources = resp.Resources
			c.logger.Debug("refreshed resources", "count", len(c.resources))
		}
	}
	if result, err := c.transport.Call(ctx, "prompts/list", nil); err == nil {
		var resp listPromptsResult
		if json.Unmarshal(result, &resp) == nil {
			c.prompts = resp.Prompts
			c.logger.Debug("refreshed prompts", "count", len(c.prompts))
		}
	}
	return nil
}

// Tools returns the cached tool list.
func (c *Client) Tools() []*Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tools
}

// Resources returns the cached resource list.
func (c *Client) Resources() []*Resource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resources
}

// Prompts returns the cached prompt list.
func (c *Client) Prompts() []*Prompt {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prompts
}

// CallTool invokes one of the server's tools.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*ToolCallResult, error) {
	params := callToolParams{Name: name}
	if arguments != nil {
		encoded, err := json.Marshal(arguments)
		if err != nil {
			return nil, fmt.Errorf("marshal arguments: %w", err)
		}
		params.Arguments = encoded
	}

	result, err := c.transport.Call(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}
	var callResult ToolCallResult
	if err := json.Unmarshal(result, &callResult); err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}
	return &callResult, nil
}

// ReadResource fetches a resource's contents by URI.
func (c *Client) ReadResource(ctx context.Context, uri string) ([]*ResourceContent, error) {
	result, err := c.transport.Call(ctx, "resources/read", map[string]any{"uri": uri})
	if err != nil {
		return nil, err
	}
	var read readResourceResult
	if err := json.Unmarshal(result, &read); err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}
	return read.Contents, nil
}

// GetPrompt renders a prompt template with arguments.
func (c *Client) GetPrompt(ctx context.Context, name string, arguments map[string]string) (*GetPromptResult, error) {
	result, err := c.transport.Call(ctx, "prompts/get", map[string]any{
		"name":      name,
		"arguments": arguments,
	})
	if err != nil {
		return nil, err
	}
	var prompt GetPromptResult
	if err := json.Unmarshal(result, &prompt); err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}
	return &prompt, nil
}

// Notifications streams server-pushed notifications (e.g. list-changed).
func (c *Client) Notifications() <-chan *rpcNotification {
	return c.transport.Notifications()
}
