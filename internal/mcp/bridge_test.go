package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/orcha/internal/registry"
)

type scriptedCaller struct {
	result *ToolCallResult
	err    error

	gotServer string
	gotTool   string
	gotArgs   map[string]any
}

func (c *scriptedCaller) CallTool(_ context.Context, serverID, toolName string, arguments map[string]any) (*ToolCallResult, error) {
	c.gotServer = serverID
	c.gotTool = toolName
	c.gotArgs = arguments
	return c.result, c.err
}

func TestToolBridgeExecuteForwardsCall(t *testing.T) {
	caller := &scriptedCaller{result: &ToolCallResult{
		Content: []ToolResultContent{{Type: "text", Text: "ok"}},
	}}
	bridge := NewToolBridge(caller, "s1", &Tool{Name: "echo"}, "mcp_s1_echo")

	res, err := bridge.Execute(context.Background(), json.RawMessage(`{"text":"hi"}`))
	require.NoError(t, err)
	require.False(t, res.IsError())
	require.Equal(t, "ok", res.Output)
	require.Equal(t, "s1", caller.gotServer)
	require.Equal(t, "echo", caller.gotTool)
	require.Equal(t, "hi", caller.gotArgs["text"])
}

func TestToolBridgeExecuteServerError(t *testing.T) {
	caller := &scriptedCaller{result: &ToolCallResult{
		Content: []ToolResultContent{{Type: "text", Text: "boom"}},
		IsError: true,
	}}
	bridge := NewToolBridge(caller, "s1", &Tool{Name: "echo"}, "mcp_s1_echo")

	res, err := bridge.Execute(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, res.IsError())
	require.Contains(t, res.Error, "boom")
}

func TestToolBridgeExecuteTransportErrorBecomesToolError(t *testing.T) {
	caller := &scriptedCaller{err: errNoSession}
	bridge := NewToolBridge(caller, "s1", &Tool{Name: "echo"}, "mcp_s1_echo")

	res, err := bridge.Execute(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, res.IsError())
	require.Contains(t, res.Error, "no session")
}

func TestToolBridgeExecuteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	caller := &scriptedCaller{err: context.Canceled}
	bridge := NewToolBridge(caller, "s1", &Tool{Name: "echo"}, "mcp_s1_echo")

	res, err := bridge.Execute(ctx, nil)
	require.NoError(t, err)
	require.True(t, res.IsError())
	require.True(t, strings.HasPrefix(res.Error, "cancelled:"))
}

func TestToolBridgeInvalidArguments(t *testing.T) {
	bridge := NewToolBridge(&scriptedCaller{}, "s1", &Tool{Name: "echo"}, "mcp_s1_echo")

	res, err := bridge.Execute(context.Background(), json.RawMessage(`{broken`))
	require.NoError(t, err)
	require.True(t, res.IsError())
	require.Contains(t, res.Error, "invalid arguments")
}

func TestSafeToolName(t *testing.T) {
	used := make(map[string]struct{})

	require.Equal(t, "mcp_s1_echo", safeToolName("s1", "echo", used))

	// Odd characters collapse to underscores.
	require.Equal(t, "mcp_my_server_read_file", safeToolName("My Server", "read/file", used))

	// A duplicate gets a stable hash suffix rather than colliding.
	dup := safeToolName("s1", "echo", used)
	require.NotEqual(t, "mcp_s1_echo", dup)
	require.True(t, strings.HasPrefix(dup, "mcp_s1_echo_"))

	// Overlong names truncate but stay unique and within bounds.
	long := safeToolName("s1", strings.Repeat("x", 200), used)
	require.LessOrEqual(t, len(long), maxToolNameLen)
}

func TestRegisterToolsTagsBySource(t *testing.T) {
	mgr := newTestManager(t)
	reg := registry.New()

	names := RegisterTools(reg, mgr)
	require.NotEmpty(t, names)
	require.Contains(t, names, "mcp_s1_echo")

	for _, summary := range reg.List() {
		require.Equal(t, "remote:s1", summary.Source)
	}

	// Disconnect semantics: removing by source prefix revokes exactly the
	// remote server's tools.
	removed := reg.RemoveBySourcePrefix("remote:")
	require.Equal(t, len(names), removed)
	require.Zero(t, reg.Len())
}

func TestFormatToolCallResult(t *testing.T) {
	text, isErr := formatToolCallResult(&ToolCallResult{
		Content: []ToolResultContent{{Type: "text", Text: "a"}, {Type: "text", Text: "b"}},
	})
	require.False(t, isErr)
	require.Equal(t, "a\nb", text)

	_, isErr = formatToolCallResult(&ToolCallResult{IsError: true})
	require.True(t, isErr)

	// Mixed content falls back to a JSON payload.
	payload, _ := formatToolCallResult(&ToolCallResult{
		Content: []ToolResultContent{{Type: "image", Data: "abc", MimeType: "image/png"}},
	})
	require.Contains(t, payload, "image/png")

	text, isErr = formatToolCallResult(nil)
	require.Empty(t, text)
	require.False(t, isErr)
}
