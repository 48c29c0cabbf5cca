package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/orcha/internal/message"
	"github.com/haasonsaas/orcha/internal/tool"
)

// AnthropicConfig configures an Anthropic-backed Model. Only APIKey is
// required.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxTokens    int
	MaxRetries   int

	// Tracker, when set, receives one LogCall per completed request.
	Tracker *CostTracker
}

const (
	defaultAnthropicModel     = "claude-sonnet-4-20250514"
	defaultAnthropicMaxTokens = 4096
)

// Anthropic implements Model against the Anthropic Messages API. It is safe
// for concurrent use; one instance is shared across every session's agent
// and accrues the cumulative token counters the run summary and cost
// tracker read.
type Anthropic struct {
	client       anthropic.Client
	defaultModel string
	maxTokens    int
	tracker      *CostTracker

	inputTokens      atomic.Int64
	completionTokens atomic.Int64
}

// NewAnthropic validates cfg and returns a ready client.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: anthropic api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaultAnthropicModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultAnthropicMaxTokens
	}
	return &Anthropic{
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
		maxTokens:    cfg.MaxTokens,
		tracker:      cfg.Tracker,
	}, nil
}

// Ask sends a plain completion request and returns the generated text.
func (a *Anthropic) Ask(ctx context.Context, messages []message.Message, systemMessages []string, modelName string) (string, error) {
	resp, err := a.complete(ctx, messages, nil, systemMessages, ToolChoiceNone, modelName)
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// AskWithTools sends messages plus tool schemas and returns the assistant
// reply with any requested tool calls.
func (a *Anthropic) AskWithTools(ctx context.Context, messages []message.Message, schemas []tool.Param, systemMessages []string, choice ToolChoice) (ToolResponse, error) {
	return a.complete(ctx, messages, schemas, systemMessages, choice, "")
}

func (a *Anthropic) complete(ctx context.Context, messages []message.Message, schemas []tool.Param, systemMessages []string, choice ToolChoice, modelName string) (ToolResponse, error) {
	if modelName == "" {
		modelName = a.defaultModel
	}

	converted, err := convertMessages(messages)
	if err != nil {
		return ToolResponse{}, fmt.Errorf("llm: convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelName),
		MaxTokens: int64(a.maxTokens),
		Messages:  converted,
	}
	for _, sys := range systemMessages {
		params.System = append(params.System, anthropic.TextBlockParam{Text: sys})
	}
	if len(schemas) > 0 {
		tools, err := convertToolParams(schemas)
		if err != nil {
			return ToolResponse{}, fmt.Errorf("llm: convert tools: %w", err)
		}
		params.Tools = tools
		params.ToolChoice = convertToolChoice(choice)
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return ToolResponse{}, fmt.Errorf("llm: anthropic request: %w", err)
	}

	a.inputTokens.Add(msg.Usage.InputTokens)
	a.completionTokens.Add(msg.Usage.OutputTokens)
	if a.tracker != nil {
		a.tracker.LogCall(modelName, msg.Usage.InputTokens, msg.Usage.OutputTokens)
	}

	var content string
	var calls []message.ToolCall
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			content += block.AsText().Text
		case "tool_use":
			use := block.AsToolUse()
			args, err := json.Marshal(use.Input)
			if err != nil {
				return ToolResponse{}, fmt.Errorf("llm: tool_use input for %s: %w", use.Name, err)
			}
			calls = append(calls, message.ToolCall{
				ID:           use.ID,
				FunctionName: use.Name,
				Arguments:    args,
			})
		}
	}

	return ToolResponse{
		Message:   message.Assistant(content, calls...),
		ToolCalls: calls,
	}, nil
}

// anthropicCharsPerToken mirrors the compaction package's estimate so the
// health check stays a local computation rather than a network round-trip.
const anthropicCharsPerToken = 4

// CountMessageTokens estimates token cost with a chars-per-token heuristic.
func (a *Anthropic) CountMessageTokens(messages []message.Message) (int, error) {
	total := 0
	for _, m := range messages {
		total += len(m.Content)/anthropicCharsPerToken + 1
		for _, tc := range m.ToolCalls {
			total += (len(tc.FunctionName) + len(tc.Arguments)) / anthropicCharsPerToken
		}
	}
	return total, nil
}

// Usage returns the cumulative counters accrued across every call.
func (a *Anthropic) Usage() TokenUsage {
	return TokenUsage{
		TotalInputTokens:      a.inputTokens.Load(),
		TotalCompletionTokens: a.completionTokens.Load(),
	}
}

func convertMessages(messages []message.Message) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case message.RoleSystem:
			// System prompts travel in MessageNewParams.System, not the
			// message list; a stray system message becomes a user turn so
			// the request stays valid.
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))

		case message.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))

		case message.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input map[string]any
				if len(tc.Arguments) > 0 {
					if err := json.Unmarshal(tc.Arguments, &input); err != nil {
						return nil, fmt.Errorf("tool call %s arguments: %w", tc.ID, err)
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.FunctionName))
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock(""))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))

		case message.RoleTool:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false),
			))

		default:
			return nil, fmt.Errorf("unknown role %q", m.Role)
		}
	}
	return out, nil
}

func convertToolParams(schemas []tool.Param) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(schemas))
	for _, p := range schemas {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(p.Function.Parameters, &schema); err != nil {
			return nil, fmt.Errorf("invalid schema for %s: %w", p.Function.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, p.Function.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid schema for %s: missing tool definition", p.Function.Name)
		}
		param.OfTool.Description = anthropic.String(p.Function.Description)
		out = append(out, param)
	}
	return out, nil
}

func convertToolChoice(choice ToolChoice) anthropic.ToolChoiceUnionParam {
	switch choice {
	case ToolChoiceNone:
		return anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	case ToolChoiceRequired:
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	default:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}
}
