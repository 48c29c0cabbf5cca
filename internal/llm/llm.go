// Package llm defines the external language-model collaborator contract
// (SPEC_FULL.md §6). The orchestrator core never implements a model
// backend itself — think() and the evaluation harness's graders depend
// only on this interface, the way the teacher's internal/agent depends on
// LLMProvider rather than embedding a concrete Anthropic/OpenAI client.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/orcha/internal/message"
	"github.com/haasonsaas/orcha/internal/tool"
)

// ToolChoice constrains whether and how the model must request a tool.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceNone     ToolChoice = "none"
	ToolChoiceRequired ToolChoice = "required"
)

// ToolResponse is the result of AskWithTools: the assistant reply appended
// to memory, plus any tool calls it requested.
type ToolResponse struct {
	Message   message.Message
	ToolCalls []message.ToolCall
}

// Model is a callable language-model backend. Implementations handle a
// specific provider's wire format; the core only ever depends on this
// interface, never on a concrete client.
//
// Implementations must be safe for concurrent use: a single Model instance
// is shared across every session's agent.
type Model interface {
	// Ask sends a plain completion request (no tool schemas) and returns
	// the generated text.
	Ask(ctx context.Context, messages []message.Message, systemMessages []string, modelName string) (string, error)

	// AskWithTools sends messages plus the currently registered tool
	// schemas and returns the assistant's reply, which may carry one or
	// more requested ToolCalls.
	AskWithTools(ctx context.Context, messages []message.Message, schemas []tool.Param, systemMessages []string, choice ToolChoice) (ToolResponse, error)

	// CountMessageTokens estimates the token cost of messages under this
	// model's tokenizer. Used by the context manager's health check.
	CountMessageTokens(messages []message.Message) (int, error)

	// Usage returns the cumulative input/completion token counters this
	// Model instance has accrued across every call so far.
	Usage() TokenUsage
}

// TokenUsage is the cumulative counter pair named in SPEC_FULL.md §6.
type TokenUsage struct {
	TotalInputTokens      int64
	TotalCompletionTokens int64
}

// Sum returns the two counters added together.
func (u TokenUsage) Sum() int64 { return u.TotalInputTokens + u.TotalCompletionTokens }

// RenderExamples renders examples as the numbered usage-example block of a
// tool's description, per the schema format named in SPEC_FULL.md §6: a
// one-line description, an Input json blob, and optional Output/Note lines.
func RenderExamples(examples []tool.Example) string {
	if len(examples) == 0 {
		return ""
	}
	var b strings.Builder
	for i, ex := range examples {
		fmt.Fprintf(&b, "%d. %s\n", i+1, ex.Description)
		fmt.Fprintf(&b, "   Input: %s\n", ex.Input)
		if ex.Output != "" {
			fmt.Fprintf(&b, "   Output: %s\n", ex.Output)
		}
		if ex.Note != "" {
			fmt.Fprintf(&b, "   Note: %s\n", ex.Note)
		}
	}
	return b.String()
}
