package compaction

import (
	"context"
	"testing"

	"github.com/haasonsaas/orcha/internal/llm"
	"github.com/haasonsaas/orcha/internal/message"
	"github.com/stretchr/testify/require"
)

func TestDropOldToolResultsKeepsRecentAndExcluded(t *testing.T) {
	msgs := []message.Message{
		message.User("go"),
		{Role: message.RoleTool, Name: "search", Content: "old-1", ToolCallID: "1"},
		{Role: message.RoleTool, Name: "keepme", Content: "old-2", ToolCallID: "2"},
		{Role: message.RoleTool, Name: "search", Content: "recent", ToolCallID: "3"},
	}
	strat := DropOldToolResults{Keep: 1, Exclude: map[string]bool{"keepme": true}}
	out, err := strat.Apply(context.Background(), msgs)
	require.NoError(t, err)

	var contents []string
	for _, m := range out {
		contents = append(contents, m.Content)
	}
	require.Contains(t, contents, "old-2")
	require.Contains(t, contents, "recent")
	require.NotContains(t, contents, "old-1")
	require.Len(t, out, 3)
}

func TestDropOldToolResultsKeepmeContentCheck(t *testing.T) {
	msgs := []message.Message{
		{Role: message.RoleTool, Name: "keepme", Content: "old-2", ToolCallID: "2"},
	}
	out, err := DropOldToolResults{Keep: 0, Exclude: map[string]bool{"keepme": true}}.Apply(context.Background(), msgs)
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestStripReasoningStripsOlderMessagesOnly(t *testing.T) {
	msgs := []message.Message{
		message.Assistant("<thinking>secret</thinking>answer one"),
		message.Assistant("<thinking>secret2</thinking>answer two"),
	}
	out, err := StripReasoning{Keep: 1}.Apply(context.Background(), msgs)
	require.NoError(t, err)
	require.Equal(t, "answer one", out[0].Content)
	require.Contains(t, out[1].Content, "<thinking>")
}

func TestSelectiveRetentionKeepsSystemAndUserAndOrder(t *testing.T) {
	msgs := []message.Message{
		message.System("sys"),
		message.User("u1"),
		message.Assistant("a1"),
		message.User("u2"),
		message.Assistant("a2"),
		message.User("u3"),
		message.Assistant("a3"),
	}
	out, err := SelectiveRetention{Turns: 1}.Apply(context.Background(), msgs)
	require.NoError(t, err)

	require.Equal(t, message.RoleSystem, out[0].Role)
	var prevIdx = -1
	for _, want := range []string{"sys", "u1", "u2", "u3", "a3"} {
		found := -1
		for i, m := range out {
			if m.Content == want {
				found = i
				break
			}
		}
		require.GreaterOrEqualf(t, found, 0, "missing %s", want)
		require.Greater(t, found, prevIdx)
		prevIdx = found
	}
}

func TestLLMSummarizeProducesBoundedSummary(t *testing.T) {
	stub := llm.NewStub()
	stub.AskFn = func(ctx context.Context, _ []message.Message, _ []string, _ string) (string, error) {
		return "Task Overview\n...\nNext Steps\n...", nil
	}
	msgs := []message.Message{
		message.System("sys"),
		message.User("do the thing"),
		message.Assistant("working on it"),
	}
	out, err := LLMSummarize{Model: stub}.Apply(context.Background(), msgs)
	require.NoError(t, err)
	require.LessOrEqual(t, len(out), 2)
	require.Contains(t, out[len(out)-1].Content, "<summary>")
}

func TestLLMSummarizeFallsBackOnModelFailure(t *testing.T) {
	stub := llm.NewStub()
	stub.AskFn = func(ctx context.Context, _ []message.Message, _ []string, _ string) (string, error) {
		return "", context.DeadlineExceeded
	}
	msgs := []message.Message{
		message.User("u1"),
		message.Assistant("a1"),
		message.User("u2"),
	}
	out, err := LLMSummarize{Model: stub}.Apply(context.Background(), msgs)
	require.NoError(t, err)
	for _, m := range msgs {
		if m.Role == message.RoleUser {
			require.Contains(t, contentsOf(out), m.Content)
		}
	}
}

func contentsOf(msgs []message.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestManagerTracksCompactionCountAndNeverGrowsTokens(t *testing.T) {
	stub := llm.NewStub()
	stub.TokensPerMessage = 100
	msgs := make([]message.Message, 20)
	for i := range msgs {
		msgs[i] = message.User("hello")
	}

	mgr := NewManager(stub, 500, SelectiveRetention{Turns: 2})
	out, check, err := mgr.MaybeCompact(context.Background(), msgs)
	require.NoError(t, err)
	require.True(t, check.NeedsCompaction)
	require.Equal(t, 1, mgr.CompactionCount())

	before, _ := stub.CountMessageTokens(msgs)
	after, _ := stub.CountMessageTokens(out)
	require.LessOrEqual(t, after, before)
}

func TestManagerSkipsCompactionUnderThreshold(t *testing.T) {
	stub := llm.NewStub()
	msgs := []message.Message{message.User("hi")}
	mgr := NewManager(stub, 100000, SelectiveRetention{Turns: 2})
	out, check, err := mgr.MaybeCompact(context.Background(), msgs)
	require.NoError(t, err)
	require.False(t, check.NeedsCompaction)
	require.Equal(t, msgs, out)
	require.Equal(t, 0, mgr.CompactionCount())
}
