package toolsearch

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/orcha/internal/registry"
	"github.com/haasonsaas/orcha/internal/tool"
)

type fakeTool struct {
	name, desc string
}

func (f fakeTool) Name() string            { return f.name }
func (f fakeTool) Description() string     { return f.desc }
func (f fakeTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (f fakeTool) Execute(context.Context, json.RawMessage) (*tool.Result, error) {
	return &tool.Result{}, nil
}

func newRegistry() *registry.Registry {
	reg := registry.New()
	reg.Add(fakeTool{name: "editor", desc: "read and write file contents"}, "local")
	reg.Add(fakeTool{name: "shell", desc: "run shell commands"}, "local")
	reg.Add(fakeTool{name: "browser", desc: "navigate and read web pages"}, "local")
	return reg
}

func TestRankOrdersByTokenOverlapDescending(t *testing.T) {
	reg := newRegistry()
	matches := Rank(reg.Collection(), "read file contents", 8, false)
	require.NotEmpty(t, matches)
	require.Equal(t, "editor", matches[0].Name)
}

func TestRankRespectsMaxResults(t *testing.T) {
	reg := newRegistry()
	matches := Rank(reg.Collection(), "read", 1, false)
	require.Len(t, matches, 1)
}

func TestRankExcludesZeroScoreTools(t *testing.T) {
	reg := newRegistry()
	matches := Rank(reg.Collection(), "zzzznomatch", 8, false)
	require.Empty(t, matches)
}

func TestRankIncludesSchemaWhenRequested(t *testing.T) {
	reg := newRegistry()
	matches := Rank(reg.Collection(), "shell", 8, true)
	require.Len(t, matches, 1)
	require.NotEmpty(t, matches[0].Schema)
}

func TestToolExecuteValidatesQuery(t *testing.T) {
	ts := New(newRegistry())
	result, err := ts.Execute(context.Background(), json.RawMessage(`{"query":""}`))
	require.NoError(t, err)
	require.True(t, result.IsError())
}

func TestToolExecuteReturnsJSONMatches(t *testing.T) {
	ts := New(newRegistry())
	result, err := ts.Execute(context.Background(), json.RawMessage(`{"query":"shell commands"}`))
	require.NoError(t, err)
	require.False(t, result.IsError())

	var matches []Match
	require.NoError(t, json.Unmarshal([]byte(result.Output), &matches))
	require.NotEmpty(t, matches)
	require.Equal(t, "shell", matches[0].Name)
}

func TestToolExecuteDefaultsMaxResultsAndDetail(t *testing.T) {
	ts := New(newRegistry())
	result, err := ts.Execute(context.Background(), json.RawMessage(`{"query":"read"}`))
	require.NoError(t, err)
	require.False(t, result.IsError())

	var matches []Match
	require.NoError(t, json.Unmarshal([]byte(result.Output), &matches))
	for _, m := range matches {
		require.Empty(t, m.Schema)
	}
}
