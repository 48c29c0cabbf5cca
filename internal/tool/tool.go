// Package tool defines the Tool contract every dispatchable capability in
// the orchestrator implements: local tools, remote MCP proxies, the Task
// tool, the tool-search tool and the persistent-memory tool.
package tool

import (
	"context"
	"encoding/json"
)

// Example is one entry in a Tool's description, following the numbered
// usage-example convention from the schema format (name, one-line
// description, an Input json blob, and optional Output/Note lines).
type Example struct {
	Description string
	Input       string
	Output      string
	Note        string
}

// Tool is the minimal capability every dispatchable unit implements:
// a schema and an async Execute. Keep implementations small — local tools,
// remote proxies, the Task tool, the tool-search tool and the
// persistent-memory tool all satisfy this single interface rather than a
// class hierarchy.
type Tool interface {
	// Name is the unique key a ToolCall.FunctionName is matched against.
	Name() string

	// Description is a human/model-facing summary; implementations may
	// embed numbered usage examples per the schema format in SPEC_FULL.md §6.
	Description() string

	// Schema returns the JSON-Schema object describing Execute's expected
	// arguments.
	Schema() json.RawMessage

	// Execute runs the tool against parsed JSON arguments and returns its
	// result. Implementations must never panic across this boundary;
	// callers recover panics and convert them to a Result with IsError set.
	Execute(ctx context.Context, args json.RawMessage) (*Result, error)
}

// Result is a Tool's output. It is truthy (non-empty) iff any field is
// populated, and two Results can be concatenated for streaming or
// multi-part tool output.
type Result struct {
	Output      string `json:"output,omitempty"`
	Error       string `json:"error,omitempty"`
	Base64Image string `json:"base64_image,omitempty"`
	SystemNote  string `json:"system_note,omitempty"`
}

// IsEmpty reports whether the Result carries no content at all.
func (r *Result) IsEmpty() bool {
	return r == nil || (r.Output == "" && r.Error == "" && r.Base64Image == "" && r.SystemNote == "")
}

// IsError reports whether the Result represents a failed execution.
func (r *Result) IsError() bool {
	return r != nil && r.Error != ""
}

// Combine concatenates two Results' text fields, used to assemble streamed
// or multi-part tool output into one Result.
func Combine(a, b *Result) *Result {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return &Result{
		Output:      a.Output + b.Output,
		Error:       concatNonEmpty(a.Error, b.Error),
		Base64Image: firstNonEmpty(a.Base64Image, b.Base64Image),
		SystemNote:  concatNonEmpty(a.SystemNote, b.SystemNote),
	}
}

func concatNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "\n" + b
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// Param is the JSON-Schema-shaped "function" descriptor nested inside
// Schema, matching the `tool.to_param()` format named in SPEC_FULL.md §6:
// { type: "function", function: { name, description, parameters } }.
type Param struct {
	Type     string       `json:"type"`
	Function ParamDetails `json:"function"`
}

// ParamDetails carries a Tool's name, description and JSON-Schema
// parameters object.
type ParamDetails struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToParam renders a Tool as the function-calling schema the LLM
// collaborator expects.
func ToParam(t Tool) Param {
	return Param{
		Type: "function",
		Function: ParamDetails{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		},
	}
}
