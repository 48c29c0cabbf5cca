package eval

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/orcha/internal/llm"
	"github.com/haasonsaas/orcha/internal/message"
)

// Grader grades a TrialOutcome against the EvalTask it was produced from.
type Grader interface {
	Name() string
	Grade(ctx context.Context, task EvalTask, outcome TrialOutcome) GradeResult
}

// TestCodeRunner executes a task's TestCode against a trial's output and
// reports whether it passed. Out of scope per spec.md §1 ("no sandboxed
// code-exec backends"): CodeGrader depends only on this interface, the
// way the orchestrator depends on llm.Model rather than a concrete
// provider. A nil runner makes the test_code branch report "no runner
// configured" instead of silently skipping to test_file.
type TestCodeRunner interface {
	RunTestCode(ctx context.Context, testCode, output string) (passed bool, err error)
}

// testFileTimeout bounds CodeGrader's test_file subprocess invocation,
// ported from grader.py's subprocess.run(..., timeout=60).
const testFileTimeout = 60 * time.Second

// patternMatchThreshold is the fraction of ExpectedPatterns that must
// match for CodeGrader's pattern-matching branch to pass.
const patternMatchThreshold = 0.8

// CodeGrader grades by exact match, then regex pattern matching, then
// TestCodeRunner, then a test_file subprocess — in that priority order,
// exactly as original_source/app/eval/grader.py's CodeGrader.grade.
type CodeGrader struct {
	Runner TestCodeRunner
}

func (g *CodeGrader) Name() string { return "code" }

func (g *CodeGrader) Grade(ctx context.Context, task EvalTask, outcome TrialOutcome) GradeResult {
	if outcome.FinalOutput == "" && task.TestFile == "" && task.TestCode == "" {
		return GradeResult{GraderType: "code", Reason: "No output to grade and no test specified"}
	}

	if task.ExpectedOutput != "" && outcome.FinalOutput != "" {
		if strings.TrimSpace(task.ExpectedOutput) == strings.TrimSpace(outcome.FinalOutput) {
			return GradeResult{Passed: true, Score: 1.0, GraderType: "code", Reason: "Exact match"}
		}
	}

	if len(task.ExpectedPatterns) > 0 && outcome.FinalOutput != "" {
		matches := 0
		for _, p := range task.ExpectedPatterns {
			re, err := regexp.Compile(p)
			if err != nil {
				continue
			}
			if re.MatchString(outcome.FinalOutput) {
				matches++
			}
		}
		total := len(task.ExpectedPatterns)
		score := 0.0
		if total > 0 {
			score = float64(matches) / float64(total)
		}
		return GradeResult{
			Passed:     score >= patternMatchThreshold,
			Score:      score,
			GraderType: "code",
			Reason:     fmt.Sprintf("Pattern match: %d/%d patterns", matches, total),
			Details:    map[string]any{"matches": matches, "total": total},
		}
	}

	if task.TestCode != "" {
		if g.Runner == nil {
			return GradeResult{GraderType: "code", Reason: "No test runner configured for test_code"}
		}
		passed, err := g.Runner.RunTestCode(ctx, task.TestCode, outcome.FinalOutput)
		if err != nil {
			return GradeResult{GraderType: "code", Reason: fmt.Sprintf("Test execution error: %v", err)}
		}
		reason := "Test code failed"
		if passed {
			reason = "Test code passed"
		}
		return GradeResult{Passed: passed, Score: boolScore(passed), GraderType: "code", Reason: reason}
	}

	if task.TestFile != "" {
		return g.gradeTestFile(ctx, task)
	}

	return GradeResult{GraderType: "code", Reason: "No grading criteria matched"}
}

func (g *CodeGrader) gradeTestFile(ctx context.Context, task EvalTask) GradeResult {
	runCtx, cancel := context.WithTimeout(ctx, testFileTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, task.TestFile)
	output, err := cmd.CombinedOutput()

	if runCtx.Err() == context.DeadlineExceeded {
		return GradeResult{GraderType: "code", Reason: "test_file timeout (60s)"}
	}
	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return GradeResult{GraderType: "code", Reason: fmt.Sprintf("test_file error: %v", err)}
		}
	}

	passed := err == nil
	reason := string(output)
	if len(reason) > 500 {
		reason = reason[:500]
	}
	if reason == "" {
		reason = "No output"
	}
	return GradeResult{
		Passed:     passed,
		Score:      boolScore(passed),
		GraderType: "code",
		Reason:     reason,
		Details:    map[string]any{"exit_error": err != nil},
	}
}

func boolScore(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}

// gradingPromptTemplate is ModelGrader's fixed rubric prompt, ported
// verbatim in structure from grader.py's GRADING_PROMPT.
const gradingPromptTemplate = `You are evaluating an AI agent's response to a task.

Task: %s

Grading Criteria:
%s

Agent's Output:
%s

Grade this response on a scale of 0.0 to 1.0 based on the criteria above.
Consider:
- Did the agent complete the task correctly?
- Did it follow all the specified criteria?
- Is the output well-formed and complete?

Respond in this EXACT format (one item per line):
SCORE: <number between 0.0 and 1.0>
PASSED: <true or false>
REASON: <brief 1-2 sentence explanation>`

// ModelGrader grades using an LLM assessment against task.GradingCriteria,
// ported from grader.py's ModelGrader.
type ModelGrader struct {
	Model llm.Model
}

func (g *ModelGrader) Name() string { return "model" }

func (g *ModelGrader) Grade(ctx context.Context, task EvalTask, outcome TrialOutcome) GradeResult {
	if g.Model == nil {
		return GradeResult{GraderType: "model", Reason: "No LLM configured for grading"}
	}
	if len(task.GradingCriteria) == 0 {
		return GradeResult{GraderType: "model", Reason: "No grading criteria specified"}
	}

	var criteria strings.Builder
	for _, c := range task.GradingCriteria {
		fmt.Fprintf(&criteria, "- %s\n", c)
	}

	output := outcome.FinalOutput
	if output == "" {
		output = "(no output)"
	}
	prompt := fmt.Sprintf(gradingPromptTemplate, task.Prompt, strings.TrimSuffix(criteria.String(), "\n"), output)

	response, err := g.Model.Ask(ctx, []message.Message{message.User(prompt)}, nil, "")
	if err != nil {
		return GradeResult{GraderType: "model", Reason: fmt.Sprintf("Grading error: %v", err)}
	}

	return parseModelGrade(response)
}

func parseModelGrade(response string) GradeResult {
	score := 0.0
	passed := false
	reason := "Could not parse grading response"

	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "SCORE:"):
			if v, err := strconv.ParseFloat(strings.TrimSpace(line[len("SCORE:"):]), 64); err == nil {
				score = clamp01(v)
			}
		case strings.HasPrefix(upper, "PASSED:"):
			passed = strings.EqualFold(strings.TrimSpace(line[len("PASSED:"):]), "true")
		case strings.HasPrefix(upper, "REASON:"):
			reason = strings.TrimSpace(line[len("REASON:"):])
		}
	}

	return GradeResult{Passed: passed, Score: score, GraderType: "model", Reason: reason}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
