package registry

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/orcha/internal/tool"
)

type namedTool struct{ name string }

func (n namedTool) Name() string            { return n.name }
func (n namedTool) Description() string     { return "tool " + n.name }
func (n namedTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (n namedTool) Execute(_ context.Context, _ json.RawMessage) (*tool.Result, error) {
	return &tool.Result{Output: n.name}, nil
}

func TestAddDuplicateNameIsNoOp(t *testing.T) {
	r := New()
	r.Add(namedTool{"a"}, "local")
	r.Add(namedTool{"a"}, "remote:s1")

	entry, ok := r.Get("a")
	require.True(t, ok)
	require.Equal(t, "local", entry.Source)
	require.Equal(t, 1, r.Len())
}

func TestRemoveBySource(t *testing.T) {
	r := New()
	r.Add(namedTool{"a"}, "local")
	r.Add(namedTool{"b"}, "remote:s1")
	r.Add(namedTool{"c"}, "remote:s2")

	removed := r.RemoveBySource("remote:s1")
	require.Equal(t, 1, removed)
	require.Equal(t, 2, r.Len())

	_, ok := r.Get("b")
	require.False(t, ok)
	_, ok = r.Get("c")
	require.True(t, ok)
}

func TestRemoveBySourcePrefixRevokesOneServer(t *testing.T) {
	r := New()
	r.Add(namedTool{"a"}, "local")
	r.Add(namedTool{"b"}, "remote:s1")
	r.Add(namedTool{"c"}, "remote:s1")

	removed := r.RemoveBySourcePrefix("remote:")
	require.Equal(t, 2, removed)
	require.Equal(t, 1, r.Len())

	entry, ok := r.Get("a")
	require.True(t, ok)
	require.Equal(t, "local", entry.Source)
}

func TestListAndCollection(t *testing.T) {
	r := New()
	r.Add(namedTool{"b"}, "local")
	r.Add(namedTool{"a"}, "remote:s1")

	list := r.List()
	require.Len(t, list, 2)
	require.Equal(t, "a", list[0].Name)
	require.Equal(t, "b", list[1].Name)
	require.Equal(t, "remote:s1", list[0].Source)
	require.Equal(t, "tool a", list[0].Description)

	names := make(map[string]bool)
	for _, tl := range r.Collection() {
		names[tl.Name()] = true
	}
	require.True(t, names["a"] && names["b"])
}

func TestExecute(t *testing.T) {
	r := New()
	r.Add(namedTool{"a"}, "local")

	res, err := r.Execute(context.Background(), "a", nil)
	require.NoError(t, err)
	require.Equal(t, "a", res.Output)

	_, err = r.Execute(context.Background(), "missing", nil)
	require.ErrorIs(t, err, ErrNotFound)
}
