// Package registry implements the Tool Registry: a name-keyed set of tools
// each tagged with a source string, supporting atomic revocation of every
// tool from one source (or source prefix) without disturbing the rest.
//
// Adapted from the teacher's internal/agent.ToolRegistry (plain name->Tool
// map) by adding the source tag its internal/mcp.Manager already implies
// through per-server connect/disconnect, but never formalized as a registry
// field.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/haasonsaas/orcha/internal/tool"
)

// Entry pairs a registered Tool with the source tag it was added under.
type Entry struct {
	Tool   tool.Tool
	Source string
}

// Summary is the name/description/source projection returned by List.
type Summary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Source      string `json:"source"`
}

// Tool parameter limits, preserved from the teacher's bounds to guard
// against resource exhaustion from malformed or hostile tool calls.
const (
	MaxToolNameLength = 256
	MaxToolParamsSize = 10 << 20 // 10MB
)

// Registry maps unique tool name -> Entry{tool, source}.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Add inserts tool t under source. If a tool with the same name already
// exists, Add is a no-op that preserves the earlier registration.
func (r *Registry) Add(t tool.Tool, source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[t.Name()]; exists {
		return
	}
	r.entries[t.Name()] = Entry{Tool: t, Source: source}
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// RemoveBySource deletes every entry whose source exactly equals tag.
func (r *Registry) RemoveBySource(tag string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for name, e := range r.entries {
		if e.Source == tag {
			delete(r.entries, name)
			removed++
		}
	}
	return removed
}

// RemoveBySourcePrefix deletes every entry whose source starts with prefix.
func (r *Registry) RemoveBySourcePrefix(prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for name, e := range r.entries {
		if strings.HasPrefix(e.Source, prefix) {
			delete(r.entries, name)
			removed++
		}
	}
	return removed
}

// List returns a name-sorted projection of every entry.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Summary, 0, len(r.entries))
	for name, e := range r.entries {
		out = append(out, Summary{Name: name, Description: e.Tool.Description(), Source: e.Source})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Collection returns a live-snapshot slice of the currently registered
// tools, used by think() to produce schemas. Because it copies under the
// read lock, a single think() call observes an atomically consistent view
// even if the registry mutates concurrently afterward.
func (r *Registry) Collection() []tool.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]tool.Tool, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Tool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Execute runs the named tool with the given JSON arguments, applying the
// same name-length and payload-size guards the teacher's registry enforces.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (*tool.Result, error) {
	if len(name) > MaxToolNameLength {
		return &tool.Result{Error: fmt.Sprintf("tool name exceeds maximum length of %d characters", MaxToolNameLength)}, nil
	}
	if len(args) > MaxToolParamsSize {
		return &tool.Result{Error: fmt.Sprintf("tool parameters exceed maximum size of %d bytes", MaxToolParamsSize)}, nil
	}

	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return e.Tool.Execute(ctx, args)
}

// Len returns the number of registered entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// ErrNotFound is returned by Execute when no tool is registered under name.
var ErrNotFound = fmt.Errorf("registry: tool not found")
