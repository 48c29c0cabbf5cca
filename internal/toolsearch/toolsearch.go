// Package toolsearch implements the Tool-Search tool (SPEC_FULL.md §4.8):
// a registered tool that ranks the Tool Registry's entries against a
// tokenized query so an agent can keep its initial tool context small and
// discover the rest on demand.
//
// Grounded in the teacher's internal/mcp bridge's tool-listing shape
// (bridge.go's RegisterTools, which projects every remote tool down to
// name+description) generalized here into a scored ranking rather than a
// flat list.
package toolsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/haasonsaas/orcha/internal/registry"
	"github.com/haasonsaas/orcha/internal/tool"
)

// DefaultMaxResults is used when a query omits max_results.
const DefaultMaxResults = 8

// Detail selects how much of a matched tool to return.
type Detail string

const (
	DetailNames   Detail = "names"
	DetailSchemas Detail = "schemas"
)

// Tool implements the Tool-Search capability over a *registry.Registry.
type Tool struct {
	Registry *registry.Registry
}

// New returns a toolsearch.Tool backed by reg.
func New(reg *registry.Registry) *Tool {
	return &Tool{Registry: reg}
}

func (t *Tool) Name() string { return "tool_search" }

func (t *Tool) Description() string {
	return "Searches the tool registry for tools matching a query, returning the top-scoring matches.\n" +
		"1. Find tools for working with files\n" +
		"   Input: {\"query\": \"read write file contents\"}\n" +
		"   Output: [{\"name\":\"editor\",\"description\":\"...\",\"score\":0.75}]\n" +
		"2. Request full schemas instead of names only\n" +
		"   Input: {\"query\": \"run shell command\", \"detail\": \"schemas\"}\n" +
		"   Note: detail defaults to \"names\"; max_results defaults to 8."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "query": {"type": "string", "description": "Free-text description of the capability needed."},
    "max_results": {"type": "integer", "description": "Maximum number of matches to return (default 8)."},
    "detail": {"type": "string", "enum": ["names", "schemas"], "description": "Whether to include full JSON schemas (default names)."}
  },
  "required": ["query"]
}`)
}

type searchInput struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
	Detail     Detail `json:"detail"`
}

// Match is one ranked tool-search result.
type Match struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Score       float64         `json:"score"`
	Schema      json.RawMessage `json:"schema,omitempty"`
}

func (t *Tool) Execute(ctx context.Context, args json.RawMessage) (*tool.Result, error) {
	var in searchInput
	if err := json.Unmarshal(args, &in); err != nil {
		return &tool.Result{Error: fmt.Sprintf("invalid tool_search arguments: %v", err)}, nil
	}
	if strings.TrimSpace(in.Query) == "" {
		return &tool.Result{Error: "tool_search: \"query\" is required"}, nil
	}
	if in.MaxResults <= 0 {
		in.MaxResults = DefaultMaxResults
	}
	if in.Detail == "" {
		in.Detail = DetailNames
	}

	matches := Rank(t.Registry.Collection(), in.Query, in.MaxResults, in.Detail == DetailSchemas)

	encoded, err := json.Marshal(matches)
	if err != nil {
		return &tool.Result{Error: fmt.Sprintf("tool_search: encoding matches: %v", err)}, nil
	}
	return &tool.Result{Output: string(encoded)}, nil
}

// Rank scores every tool in tools against query's tokens, matched
// case-insensitively as substrings of each tool's name+description, and
// returns the top maxResults in descending score order. Ties break by
// name for determinism.
func Rank(tools []tool.Tool, query string, maxResults int, withSchema bool) []Match {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil
	}

	matches := make([]Match, 0, len(tools))
	for _, tl := range tools {
		haystack := strings.ToLower(tl.Name() + " " + tl.Description())
		score := scoreTokens(haystack, tokens)
		if score <= 0 {
			continue
		}
		m := Match{Name: tl.Name(), Description: tl.Description(), Score: score}
		if withSchema {
			m.Schema = tl.Schema()
		}
		matches = append(matches, m)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Name < matches[j].Name
	})

	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches
}

func tokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func scoreTokens(haystack string, tokens []string) float64 {
	hits := 0
	for _, tok := range tokens {
		if strings.Contains(haystack, tok) {
			hits++
		}
	}
	if hits == 0 {
		return 0
	}
	return float64(hits) / float64(len(tokens))
}
