// Package eval implements the evaluation harness named in SPEC_FULL.md
// §4.10: task definitions, graders, a trial runner, and the metrics report
// that aggregates many trials into pass@k and efficiency figures.
//
// Ported from original_source/app/eval/{task,outcome,grader,trial,metrics}.py,
// kept in the teacher's result-type idiom (no exceptions cross package
// boundaries; every failure mode becomes a field on the returned value).
package eval

import "github.com/haasonsaas/orcha/internal/agent"

// EvalTask is one test case for agent benchmarking, ported from
// original_source/app/eval/task.py's EvalTask model.
type EvalTask struct {
	TaskID string
	Prompt string

	// Category classifies the task ("coding", "tool_use", "reasoning", ...).
	Category string

	// ExpectedOutput, if set, is compared verbatim (after trimming) against
	// the trial's final output for an exact-match grade.
	ExpectedOutput string

	// ExpectedPatterns are regexes checked against the final output; a
	// task passes this check at an 80% match rate (CodeGrader).
	ExpectedPatterns []string

	// GradingCriteria is the rubric handed to ModelGrader.
	GradingCriteria []string

	// TestCode, if set, is handed to a TestCodeRunner collaborator rather
	// than exec'd in-process (SPEC_FULL.md §4.10: "sandboxed collaborator
	// interface call, out of scope").
	TestCode string

	// TestFile is a path to an executable/script CodeGrader invokes via
	// os/exec with a 60-second timeout; exit code 0 means pass.
	TestFile string

	TimeoutSeconds int
	MaxSteps       int
	EffortLevel    agent.EffortLevel
	Difficulty     string
	Tags           []string
}

// WithDefaults fills zero-valued fields with task.py's defaults:
// timeout_seconds=300, max_steps=20, effort_level=medium,
// difficulty=medium, category=general.
func (t EvalTask) WithDefaults() EvalTask {
	if t.TimeoutSeconds == 0 {
		t.TimeoutSeconds = 300
	}
	if t.MaxSteps == 0 {
		t.MaxSteps = 20
	}
	if t.EffortLevel == "" {
		t.EffortLevel = agent.EffortMedium
	}
	if t.Difficulty == "" {
		t.Difficulty = "medium"
	}
	if t.Category == "" {
		t.Category = "general"
	}
	return t
}
