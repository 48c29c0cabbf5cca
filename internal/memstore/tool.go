package memstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/orcha/internal/tool"
)

// Tool exposes the Store's actions (store, retrieve, search, list, clear)
// as a single dispatchable Tool, per SPEC_FULL.md §4.6.
type Tool struct {
	store *Store
}

// NewTool wraps store as a tool.Tool.
func NewTool(store *Store) *Tool {
	return &Tool{store: store}
}

func (t *Tool) Name() string { return "memory" }

func (t *Tool) Description() string {
	return "Store, retrieve, search, list, or clear durable key/value memories that " +
		"persist outside the conversation window.\n" +
		"1. Remember a fact for later.\n" +
		"   Input: {\"action\":\"store\",\"key\":\"preferred_editor\",\"value\":\"vim\"}\n" +
		"2. Recall a previously stored fact.\n" +
		"   Input: {\"action\":\"retrieve\",\"key\":\"preferred_editor\"}\n" +
		"   Output: \"vim\"\n"
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["store", "retrieve", "search", "list", "clear"]},
			"key": {"type": "string"},
			"value": {"type": "string"},
			"category": {"type": "string"},
			"query": {"type": "string"}
		},
		"required": ["action"]
	}`)
}

type toolInput struct {
	Action   string `json:"action"`
	Key      string `json:"key"`
	Value    string `json:"value"`
	Category string `json:"category"`
	Query    string `json:"query"`
}

func (t *Tool) Execute(ctx context.Context, args json.RawMessage) (*tool.Result, error) {
	var in toolInput
	if len(args) > 0 {
		if err := json.Unmarshal(args, &in); err != nil {
			return &tool.Result{Error: fmt.Sprintf("invalid arguments: %v", err)}, nil
		}
	}

	switch in.Action {
	case "store":
		if in.Key == "" {
			return &tool.Result{Error: "store requires a key"}, nil
		}
		entry, err := t.store.Store(ctx, in.Key, in.Value, in.Category)
		if err != nil {
			return &tool.Result{Error: err.Error()}, nil
		}
		return &tool.Result{Output: fmt.Sprintf("stored %q (category=%q)", entry.Key, entry.Category)}, nil

	case "retrieve":
		if in.Key == "" {
			return &tool.Result{Error: "retrieve requires a key"}, nil
		}
		entry, err := t.store.Retrieve(ctx, in.Key)
		if err != nil {
			if err == ErrNotFound {
				return &tool.Result{Error: fmt.Sprintf("no memory stored under key %q", in.Key)}, nil
			}
			return &tool.Result{Error: err.Error()}, nil
		}
		return &tool.Result{Output: entry.Value}, nil

	case "search":
		entries, err := t.store.Search(ctx, in.Query)
		if err != nil {
			return &tool.Result{Error: err.Error()}, nil
		}
		return &tool.Result{Output: formatEntries(entries)}, nil

	case "list":
		result, err := t.store.List(ctx, in.Category)
		if err != nil {
			return &tool.Result{Error: err.Error()}, nil
		}
		out, err := json.Marshal(map[string]any{
			"entries":         result.Entries,
			"category_counts": result.CategoryCounts,
		})
		if err != nil {
			return &tool.Result{Error: err.Error()}, nil
		}
		return &tool.Result{Output: string(out)}, nil

	case "clear":
		n, err := t.store.Clear(ctx, in.Key, in.Category)
		if err != nil {
			return &tool.Result{Error: err.Error()}, nil
		}
		return &tool.Result{Output: fmt.Sprintf("cleared %d entries", n)}, nil

	default:
		return &tool.Result{Error: fmt.Sprintf("unknown action %q", in.Action)}, nil
	}
}

func formatEntries(entries []Entry) string {
	if len(entries) == 0 {
		return "no matches"
	}
	out, _ := json.Marshal(entries)
	return string(out)
}
