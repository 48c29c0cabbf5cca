package eval

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/orcha/internal/agent"
	"github.com/haasonsaas/orcha/internal/llm"
	"github.com/haasonsaas/orcha/internal/message"
)

// Runnable is the slice of *agent.Agent a TrialRunner needs: configurable
// step ceiling and effort, a memory to read the transcript back from, and
// Run itself. Grounded on trial.py's use of agent.max_steps,
// agent.effort_level, agent.memory.messages and agent.current_step.
type Runnable interface {
	Run(ctx context.Context, prompt string) (string, error)
	SetMaxSteps(n int)
	SetEffort(e agent.EffortLevel)
	Memory() *message.Memory
	CurrentStep() int
	LLM() llm.Model
}

// AgentRunnable adapts a *agent.Agent (plus the llm.Model it thinks with)
// to Runnable.
type AgentRunnable struct {
	Agent *agent.Agent
	Model llm.Model
}

func (r AgentRunnable) Run(ctx context.Context, prompt string) (string, error) {
	return r.Agent.Run(ctx, prompt)
}
func (r AgentRunnable) SetMaxSteps(n int)              { r.Agent.MaxSteps = n }
func (r AgentRunnable) SetEffort(e agent.EffortLevel)  { r.Agent.Effort = e }
func (r AgentRunnable) Memory() *message.Memory        { return r.Agent.Memory }
func (r AgentRunnable) CurrentStep() int               { return r.Agent.CurrentStep() }
func (r AgentRunnable) LLM() llm.Model                 { return r.Model }

// TrialRunner runs evaluation trials and collects outcomes, ported from
// original_source/app/eval/trial.py's TrialRunner.
type TrialRunner struct {
	Graders []Grader
}

// NewTrialRunner returns a TrialRunner applying graders in order.
func NewTrialRunner(graders ...Grader) *TrialRunner {
	return &TrialRunner{Graders: graders}
}

// RunTrial configures the agent from task, runs it under a wall-clock
// timeout, and grades the outcome with every configured grader, per
// SPEC_FULL.md §4.10's TrialRunner.run_trial contract.
func (tr *TrialRunner) RunTrial(ctx context.Context, task EvalTask, r Runnable) TrialOutcome {
	task = task.WithDefaults()

	trialID := uuid.NewString()[:8]
	start := time.Now()

	r.SetMaxSteps(task.MaxSteps)
	r.SetEffort(task.EffortLevel)

	timeout := time.Duration(task.TimeoutSeconds) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := r.Run(runCtx, task.Prompt)
	elapsed := time.Since(start).Seconds()

	if runCtx.Err() == context.DeadlineExceeded {
		return TrialOutcome{
			TaskID:             task.TaskID,
			TrialID:            trialID,
			RunTimestamp:       start,
			Success:            false,
			Error:              "Timeout",
			TimeElapsedSeconds: elapsed,
		}
	}
	if err != nil {
		return TrialOutcome{
			TaskID:             task.TaskID,
			TrialID:            trialID,
			RunTimestamp:       start,
			Success:            false,
			Error:              err.Error(),
			TimeElapsedSeconds: elapsed,
		}
	}

	msgs := r.Memory().Messages()

	var finalOutput string
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == message.RoleAssistant && msgs[i].Content != "" {
			finalOutput = msgs[i].Content
			break
		}
	}

	toolCallsCount := 0
	for _, m := range msgs {
		if len(m.ToolCalls) > 0 {
			toolCallsCount++
		}
	}

	var inputTokens, outputTokens int64
	if model := r.LLM(); model != nil {
		usage := model.Usage()
		inputTokens = usage.TotalInputTokens
		outputTokens = usage.TotalCompletionTokens
	}

	outcome := TrialOutcome{
		TaskID:             task.TaskID,
		TrialID:            trialID,
		RunTimestamp:       start,
		Success:            true,
		FinalOutput:        finalOutput,
		StepsTaken:         r.CurrentStep(),
		TokensUsed:         inputTokens + outputTokens,
		InputTokens:        inputTokens,
		OutputTokens:       outputTokens,
		TimeElapsedSeconds: elapsed,
		ToolCallsCount:     toolCallsCount,
		Transcript:         msgs,
	}

	grades := make([]GradeResult, 0, len(tr.Graders))
	for _, g := range tr.Graders {
		grades = append(grades, gradeRecovered(runCtx, g, task, outcome))
	}
	outcome.Grades = grades
	outcome.applyGrades()

	return outcome
}

// gradeRecovered calls g.Grade, converting a panic into a failed
// GradeResult so one bad grader never aborts the trial, matching trial.py's
// try/except around each grader.grade call.
func gradeRecovered(ctx context.Context, g Grader, task EvalTask, outcome TrialOutcome) (result GradeResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = GradeResult{GraderType: g.Name(), Reason: "Grader error: panic"}
		}
	}()
	return g.Grade(ctx, task, outcome)
}

// AgentFactory builds a fresh Runnable for one trial. Used by
// RunMultipleTrials so every trial starts from a clean agent instance.
type AgentFactory func(ctx context.Context) (Runnable, error)

// RunMultipleTrials runs n independent trials of task, each against a
// freshly constructed agent from factory, per trial.py's
// run_multiple_trials.
func (tr *TrialRunner) RunMultipleTrials(ctx context.Context, task EvalTask, factory AgentFactory, n int) ([]TrialOutcome, error) {
	outcomes := make([]TrialOutcome, 0, n)
	for i := 0; i < n; i++ {
		r, err := factory(ctx)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, tr.RunTrial(ctx, task, r))
	}
	return outcomes, nil
}
