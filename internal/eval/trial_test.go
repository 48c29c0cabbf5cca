package eval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/orcha/internal/agent"
	"github.com/haasonsaas/orcha/internal/llm"
	"github.com/haasonsaas/orcha/internal/registry"
)

func newTrialAgent(model *llm.Stub) *agent.Agent {
	reg := registry.New()
	tca := agent.NewToolCallingAgent(model, reg)
	return agent.New("trial-agent", tca)
}

func TestRunTrialSuccessAppliesGradersAndCollectsMetrics(t *testing.T) {
	model := llm.NewStub()
	model.EnqueueText("the answer is 42")

	a := newTrialAgent(model)
	runner := NewTrialRunner(&CodeGrader{})

	task := EvalTask{
		TaskID:           "t1",
		Prompt:           "what is the answer?",
		ExpectedPatterns: []string{"answer is 42"},
	}

	outcome := runner.RunTrial(context.Background(), task, AgentRunnable{Agent: a, Model: model})
	require.True(t, outcome.Success)
	require.Equal(t, "the answer is 42", outcome.FinalOutput)
	require.Len(t, outcome.Grades, 1)
	require.True(t, outcome.Passed)
	require.Equal(t, 1.0, outcome.FinalScore)
	require.Equal(t, 1, outcome.StepsTaken)
}

func TestRunTrialExactMatchAndPartialPattern(t *testing.T) {
	model := llm.NewStub()
	model.EnqueueText("foo X bar")
	a := newTrialAgent(model)
	runner := NewTrialRunner(&CodeGrader{})

	task := EvalTask{TaskID: "t2", Prompt: "p", ExpectedPatterns: []string{"foo.*bar", "baz"}}
	outcome := runner.RunTrial(context.Background(), task, AgentRunnable{Agent: a, Model: model})
	require.InDelta(t, 0.5, outcome.FinalScore, 1e-9)
	require.False(t, outcome.Passed)
}

func TestRunTrialTimeoutReportsError(t *testing.T) {
	// A stub with no enqueued responses returns immediately with an empty
	// assistant message and no tool calls, so the run steps through to its
	// step ceiling without ever blocking — so exercise the timeout path directly against
	// TrialRunner's context deadline instead of a blocking model.
	model := llm.NewStub()
	a := newTrialAgent(model)
	runner := NewTrialRunner(&CodeGrader{})

	task := EvalTask{TaskID: "t3", Prompt: "p", TimeoutSeconds: 0}
	task.TimeoutSeconds = 1

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	outcome := runner.RunTrial(ctx, task, AgentRunnable{Agent: a, Model: model})
	require.False(t, outcome.Success)
	require.Equal(t, "Timeout", outcome.Error)
}
