package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestManager starts an httptest-backed remote tool server advertising
// one "echo" tool and returns a Manager connected to it as server "s1".
func newTestManager(t *testing.T) *Manager {
	t.Helper()

	srv := rpcTestServer(t, func(method string, params json.RawMessage) (any, *rpcError) {
		switch method {
		case "initialize":
			return initializeResult{
				ProtocolVersion: protocolVersion,
				ServerInfo:      ServerInfo{Name: "test-server", Version: "1.0"},
			}, nil
		case "tools/list":
			return listToolsResult{Tools: []*Tool{{
				Name:        "echo",
				Description: "echoes its input",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}}}`),
			}}}, nil
		case "resources/list":
			return listResourcesResult{}, nil
		case "prompts/list":
			return listPromptsResult{}, nil
		case "tools/call":
			var call callToolParams
			require.NoError(t, json.Unmarshal(params, &call))
			var args struct {
				Text string `json:"text"`
			}
			if len(call.Arguments) > 0 {
				require.NoError(t, json.Unmarshal(call.Arguments, &args))
			}
			return ToolCallResult{Content: []ToolResultContent{{Type: "text", Text: args.Text}}}, nil
		default:
			return nil, &rpcError{Code: -32601, Message: "method not found"}
		}
	})

	cfg := &Config{
		Enabled: true,
		Servers: []*ServerConfig{{
			ID:        "s1",
			Name:      "Test Server",
			Transport: TransportHTTP,
			URL:       srv.URL,
			AutoStart: true,
		}},
	}
	mgr := NewManager(cfg, slog.Default())
	require.NoError(t, mgr.Start(context.Background()))
	t.Cleanup(func() { _ = mgr.Stop() })
	return mgr
}

func TestManagerStartListsServerTools(t *testing.T) {
	mgr := newTestManager(t)

	client, ok := mgr.Client("s1")
	require.True(t, ok)
	require.True(t, client.Connected())
	require.Equal(t, "test-server", client.ServerInfo().Name)

	all := mgr.AllTools()
	require.Len(t, all["s1"], 1)
	require.Equal(t, "echo", all["s1"][0].Name)

	serverID, tool := mgr.FindTool("echo")
	require.Equal(t, "s1", serverID)
	require.NotNil(t, tool)

	_, missing := mgr.FindTool("nope")
	require.Nil(t, missing)
}

func TestManagerCallTool(t *testing.T) {
	mgr := newTestManager(t)

	result, err := mgr.CallTool(context.Background(), "s1", "echo", map[string]any{"text": "hello"})
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	require.Equal(t, "hello", result.Content[0].Text)

	_, err = mgr.CallTool(context.Background(), "unknown", "echo", nil)
	require.Error(t, err)
}

func TestManagerDisconnect(t *testing.T) {
	mgr := newTestManager(t)

	require.NoError(t, mgr.Disconnect("s1"))
	_, ok := mgr.Client("s1")
	require.False(t, ok)

	// Disconnecting an unknown server is a no-op.
	require.NoError(t, mgr.Disconnect("s1"))

	_, err := mgr.CallTool(context.Background(), "s1", "echo", nil)
	require.Error(t, err)
}

func TestManagerStartDisabled(t *testing.T) {
	mgr := NewManager(&Config{Enabled: false}, nil)
	require.NoError(t, mgr.Start(context.Background()))
	require.Empty(t, mgr.Clients())

	nilMgr := NewManager(nil, nil)
	require.NoError(t, nilMgr.Start(context.Background()))
	require.Error(t, nilMgr.Connect(context.Background(), "s1"))
}

func TestManagerToolSchemas(t *testing.T) {
	mgr := newTestManager(t)

	schemas := mgr.ToolSchemas()
	require.Len(t, schemas, 1)
	require.Equal(t, "s1", schemas[0].ServerID)
	require.Equal(t, "echo", schemas[0].Name)
	require.NotEmpty(t, schemas[0].InputSchema)
}

func TestManagerStatus(t *testing.T) {
	mgr := newTestManager(t)

	statuses := mgr.Status()
	require.Len(t, statuses, 1)
	require.Equal(t, "s1", statuses[0].ID)
	require.True(t, statuses[0].Connected)
	require.Equal(t, 1, statuses[0].Tools)
}
