package gateway

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialStream(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func collectFrames(t *testing.T, conn *websocket.Conn) []StreamEvent {
	t.Helper()
	var frames []StreamEvent
	for {
		var ev StreamEvent
		require.NoError(t, conn.ReadJSON(&ev))
		frames = append(frames, ev)
		if ev.Event == "complete" || ev.Event == "error" {
			return frames
		}
	}
}

func TestStreamEmitsOrderedFrames(t *testing.T) {
	g, stub := newTestGateway(t)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	scriptTerminate(stub, "c1")

	conn := dialStream(t, srv)
	require.NoError(t, conn.WriteJSON(streamRequest{Message: "hello"}))

	frames := collectFrames(t, conn)
	require.Equal(t, "connected", frames[0].Event)
	require.Equal(t, "complete", frames[len(frames)-1].Event)

	var kinds []string
	for _, f := range frames {
		kinds = append(kinds, f.Event)
	}
	require.Contains(t, kinds, "step")
	require.Contains(t, kinds, "tool_call")
	require.Contains(t, kinds, "tool_result")
	require.Contains(t, kinds, "token_usage")

	// The user message frame precedes the first step frame, matching
	// recorder order.
	msgIdx, stepIdx := -1, -1
	for i, k := range kinds {
		if k == "message" && msgIdx < 0 {
			msgIdx = i
		}
		if k == "step" && stepIdx < 0 {
			stepIdx = i
		}
	}
	require.GreaterOrEqual(t, msgIdx, 0)
	require.Less(t, msgIdx, stepIdx)
}

func TestStreamRejectsEmptyMessage(t *testing.T) {
	g, _ := newTestGateway(t)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	conn := dialStream(t, srv)
	require.NoError(t, conn.WriteJSON(streamRequest{}))

	var ev StreamEvent
	require.NoError(t, conn.ReadJSON(&ev))
	require.Equal(t, "error", ev.Event)
}

func TestStreamReusesSession(t *testing.T) {
	g, stub := newTestGateway(t)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	scriptTerminate(stub, "c1")
	conn := dialStream(t, srv)
	require.NoError(t, conn.WriteJSON(streamRequest{Message: "hello", SessionID: "s1"}))
	frames := collectFrames(t, conn)

	connected, ok := frames[0].Data.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "s1", connected["session_id"])
	require.Equal(t, 1, g.SessionCount())
}
