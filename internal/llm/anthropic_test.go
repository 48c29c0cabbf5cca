package llm

import (
	"encoding/json"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/orcha/internal/message"
	"github.com/haasonsaas/orcha/internal/tool"
)

func TestNewAnthropicRequiresAPIKey(t *testing.T) {
	_, err := NewAnthropic(AnthropicConfig{})
	require.Error(t, err)

	a, err := NewAnthropic(AnthropicConfig{APIKey: "sk-test"})
	require.NoError(t, err)
	require.Equal(t, defaultAnthropicModel, a.defaultModel)
	require.Equal(t, defaultAnthropicMaxTokens, a.maxTokens)
}

func TestConvertMessagesRoles(t *testing.T) {
	msgs := []message.Message{
		message.User("hi"),
		message.Assistant("working", message.ToolCall{
			ID:           "c1",
			FunctionName: "echo",
			Arguments:    json.RawMessage(`{"text":"x"}`),
		}),
		message.Tool("c1", "echo", "x"),
	}

	out, err := convertMessages(msgs)
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, anthropic.MessageParamRoleUser, out[0].Role)
	require.Equal(t, anthropic.MessageParamRoleAssistant, out[1].Role)
	// Tool replies travel as user-role tool_result blocks.
	require.Equal(t, anthropic.MessageParamRoleUser, out[2].Role)
	require.Len(t, out[1].Content, 2)
}

func TestConvertMessagesRejectsMalformedToolArguments(t *testing.T) {
	msgs := []message.Message{
		message.Assistant("", message.ToolCall{
			ID:           "c1",
			FunctionName: "echo",
			Arguments:    json.RawMessage(`{not json`),
		}),
	}
	_, err := convertMessages(msgs)
	require.Error(t, err)
}

func TestConvertToolParams(t *testing.T) {
	params := []tool.Param{
		{
			Type: "function",
			Function: tool.ParamDetails{
				Name:        "echo",
				Description: "echoes input",
				Parameters:  json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}}}`),
			},
		},
	}
	out, err := convertToolParams(params)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].OfTool)
	require.Equal(t, "echo", out[0].OfTool.Name)

	params[0].Function.Parameters = json.RawMessage(`{broken`)
	_, err = convertToolParams(params)
	require.Error(t, err)
}

func TestConvertToolChoice(t *testing.T) {
	require.NotNil(t, convertToolChoice(ToolChoiceAuto).OfAuto)
	require.NotNil(t, convertToolChoice(ToolChoiceNone).OfNone)
	require.NotNil(t, convertToolChoice(ToolChoiceRequired).OfAny)
}

func TestAnthropicCountMessageTokens(t *testing.T) {
	a, err := NewAnthropic(AnthropicConfig{APIKey: "sk-test"})
	require.NoError(t, err)

	short, err := a.CountMessageTokens([]message.Message{message.User("hi")})
	require.NoError(t, err)
	long, err := a.CountMessageTokens([]message.Message{message.User(string(make([]byte, 4000)))})
	require.NoError(t, err)
	require.Greater(t, long, short)
}
