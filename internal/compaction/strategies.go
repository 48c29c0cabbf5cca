package compaction

import (
	"context"
	"fmt"

	"github.com/haasonsaas/orcha/internal/llm"
	"github.com/haasonsaas/orcha/internal/message"
)

// DropOldToolResults keeps the most recent Keep tool-role messages and
// drops older ones, unless their tool name (Message.Name) is in Exclude.
type DropOldToolResults struct {
	Keep    int
	Exclude map[string]bool
}

func (s DropOldToolResults) Name() string { return "drop_old_tool_results" }

func (s DropOldToolResults) Apply(_ context.Context, messages []message.Message) ([]message.Message, error) {
	toolIdx := make([]int, 0)
	for i, m := range messages {
		if m.Role == message.RoleTool {
			toolIdx = append(toolIdx, i)
		}
	}
	keep := s.Keep
	if keep < 0 {
		keep = 0
	}
	cutoff := len(toolIdx) - keep
	drop := make(map[int]bool)
	for i := 0; i < cutoff; i++ {
		idx := toolIdx[i]
		if s.Exclude[messages[idx].Name] {
			continue
		}
		drop[idx] = true
	}

	out := make([]message.Message, 0, len(messages))
	for i, m := range messages {
		if drop[i] {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// StripReasoning removes any region delimited by Start/End markers (e.g.
// "<thinking>"/"</thinking>") from assistant messages older than the most
// recent Keep assistant messages, preserving surrounding content.
type StripReasoning struct {
	Keep  int
	Start string
	End   string
}

func (s StripReasoning) Name() string { return "strip_reasoning" }

func (s StripReasoning) Apply(_ context.Context, messages []message.Message) ([]message.Message, error) {
	start, end := s.Start, s.End
	if start == "" {
		start = "<thinking>"
	}
	if end == "" {
		end = "</thinking>"
	}

	assistantIdx := make([]int, 0)
	for i, m := range messages {
		if m.Role == message.RoleAssistant {
			assistantIdx = append(assistantIdx, i)
		}
	}
	keep := s.Keep
	if keep < 0 {
		keep = 0
	}
	cutoff := len(assistantIdx) - keep
	strip := make(map[int]bool)
	for i := 0; i < cutoff; i++ {
		strip[assistantIdx[i]] = true
	}

	out := make([]message.Message, len(messages))
	copy(out, messages)
	for i := range out {
		if strip[i] && out[i].Content != "" {
			out[i].Content = stripAll(out[i].Content, start, end)
		}
	}
	return out, nil
}

// SelectiveRetention always keeps system and user messages, plus the last
// 2*Turns messages overall, merged and order-preserved.
type SelectiveRetention struct {
	Turns int
}

func (s SelectiveRetention) Name() string { return "selective_retention" }

func (s SelectiveRetention) Apply(_ context.Context, messages []message.Message) ([]message.Message, error) {
	turns := s.Turns
	if turns <= 0 {
		turns = 5
	}
	tailLen := 2 * turns
	tailStart := len(messages) - tailLen
	if tailStart < 0 {
		tailStart = 0
	}

	keep := make(map[int]bool, len(messages))
	for i, m := range messages {
		if m.Role == message.RoleSystem || m.Role == message.RoleUser {
			keep[i] = true
		}
	}
	for i := tailStart; i < len(messages); i++ {
		keep[i] = true
	}

	out := make([]message.Message, 0, len(keep))
	for i, m := range messages {
		if keep[i] {
			out = append(out, m)
		}
	}
	return out, nil
}

// LLMSummarize asks Model to produce a five-section structured summary
// (Task Overview; Current State; Important Discoveries; Next Steps;
// Context to Preserve), wrapped in <summary>...</summary>, and replaces the
// entire history with [system (if any), user(summary)]. On model failure
// it falls back to Fallback (typically SelectiveRetention).
type LLMSummarize struct {
	Model    llm.Model
	Fallback Strategy
}

func (s LLMSummarize) Name() string { return "llm_summarize" }

const summaryPromptTemplate = `Summarize this conversation so work can continue from it. Produce exactly
five sections, each introduced by its heading on its own line, wrapped as a
whole in <summary>...</summary>:

Task Overview
Current State
Important Discoveries
Next Steps
Context to Preserve

Conversation:
%s`

func (s LLMSummarize) Apply(ctx context.Context, messages []message.Message) ([]message.Message, error) {
	if s.Model == nil {
		return s.fallback(ctx, messages)
	}

	var transcript string
	for _, m := range messages {
		if m.Content == "" {
			continue
		}
		transcript += fmt.Sprintf("%s: %s\n", m.Role, m.Content)
	}

	prompt := fmt.Sprintf(summaryPromptTemplate, transcript)
	summary, err := s.Model.Ask(ctx, []message.Message{message.User(prompt)}, nil, "")
	if err != nil || summary == "" {
		return s.fallback(ctx, messages)
	}

	var sys *message.Message
	for _, m := range messages {
		if m.Role == message.RoleSystem {
			cp := m
			sys = &cp
			break
		}
	}

	out := make([]message.Message, 0, 2)
	if sys != nil {
		out = append(out, *sys)
	}
	out = append(out, message.User(fmt.Sprintf("<summary>%s</summary> Continue from this context.", summary)))
	return out, nil
}

func (s LLMSummarize) fallback(ctx context.Context, messages []message.Message) ([]message.Message, error) {
	fb := s.Fallback
	if fb == nil {
		fb = SelectiveRetention{Turns: 5}
	}
	return fb.Apply(ctx, messages)
}

// Composite applies each of Strategies in order, threading the output of
// one into the input of the next.
type Composite struct {
	Strategies []Strategy
}

func (c Composite) Name() string { return "composite" }

func (c Composite) Apply(ctx context.Context, messages []message.Message) ([]message.Message, error) {
	out := cloneMessages(messages)
	for _, strat := range c.Strategies {
		next, err := strat.Apply(ctx, out)
		if err != nil {
			return nil, fmt.Errorf("compaction: strategy %s: %w", strat.Name(), err)
		}
		out = next
	}
	return out, nil
}
