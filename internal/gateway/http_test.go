package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/orcha/internal/agent"
)

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func TestHTTPChat(t *testing.T) {
	g, stub := newTestGateway(t)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	scriptTerminate(stub, "c1")
	resp := postJSON(t, srv.URL+"/api/chat", chatRequest{Message: "hello"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body ChatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.SessionID)
	require.Equal(t, agent.StateFinished, body.Summary.State)
	require.Len(t, body.Messages, 3)
	require.NotEmpty(t, body.Logs)
}

func TestHTTPChatValidation(t *testing.T) {
	g, _ := newTestGateway(t)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/chat", chatRequest{})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	get, err := http.Get(srv.URL + "/api/chat")
	require.NoError(t, err)
	defer get.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, get.StatusCode)
}

func TestHTTPReset(t *testing.T) {
	g, stub := newTestGateway(t)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	scriptTerminate(stub, "c1")
	chat := postJSON(t, srv.URL+"/api/chat", chatRequest{Message: "hello", SessionID: "s1"})
	chat.Body.Close()

	resp := postJSON(t, srv.URL+"/api/reset", resetRequest{SessionID: "s1"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.True(t, body["reset"])
	require.Equal(t, 0, g.SessionCount())
}

func TestHTTPStatus(t *testing.T) {
	g, _ := newTestGateway(t)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	require.Equal(t, "ok", st.Status)
	require.True(t, st.Connected)
	require.Equal(t, "stub", st.Model)
}
