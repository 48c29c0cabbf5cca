// Package review implements the Doer-Critic Review Flow (SPEC_FULL.md
// §4.9): a doer agent iterates against a reviewer agent's feedback up to
// max_iterations times, stopping on the first PASS grade.
//
// Ported from original_source/app/flow/review.py's ReviewFlow.run loop
// (doer-prompt composition embedding the previous output and reviewer
// feedback, reviewer state reset between iterations) and
// original_source/app/agent/reviewer.py's extract_grade (case-insensitive
// scan for "GRADE: PASS"/"GRADE: FAIL", default PASS with a warning on
// ambiguity).
package review

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haasonsaas/orcha/internal/agent"
)

// DefaultMaxIterations matches original_source/app/flow/review.py's
// ReviewFlow default.
const DefaultMaxIterations = 3

// previewChars bounds how much of the previous doer output is embedded
// into the next doer prompt and the review prompt, matching review.py's
// [:500] / [:1000] truncation (generalized to one shared constant).
const previewChars = 500

// Grade is the reviewer's verdict on one iteration's doer output.
type Grade string

const (
	GradePass Grade = "PASS"
	GradeFail Grade = "FAIL"
)

// Doer runs a doer agent to completion against prompt and returns its
// final output.
type Doer interface {
	Run(ctx context.Context, prompt string) (string, error)
}

// Reviewer runs a reviewer agent to completion against a review prompt
// and returns its review text, after resetting its own step/state so each
// iteration reviews independently.
type Reviewer interface {
	Run(ctx context.Context, prompt string) (string, error)
	Reset()
}

// AgentReviewer adapts an *agent.Agent to the Reviewer interface, resetting
// its step counter and state to IDLE between iterations per review.py's
// "reviewer.state = AgentState.IDLE; reviewer.current_step = 0".
type AgentReviewer struct {
	Agent *agent.Agent
}

func (a AgentReviewer) Run(ctx context.Context, prompt string) (string, error) {
	return a.Agent.Run(ctx, prompt)
}

func (a AgentReviewer) Reset() {
	a.Agent.ResetToIdle()
}

// Outcome is the result of running the full Doer-Critic loop.
type Outcome struct {
	FinalOutput   string
	LastReview    string
	Grade         Grade
	Iterations    int
	MaxIterations int
	ReachedLimit  bool
}

// Flow coordinates one doer and one reviewer.
type Flow struct {
	Doer          Doer
	Reviewer      Reviewer
	MaxIterations int
	Logger        *slog.Logger
}

// New returns a Flow with DefaultMaxIterations and slog.Default() as its
// logger unless overridden on the returned value.
func New(doer Doer, reviewer Reviewer) *Flow {
	return &Flow{Doer: doer, Reviewer: reviewer, MaxIterations: DefaultMaxIterations, Logger: slog.Default()}
}

// Run executes the Doer-Critic loop against request, per SPEC_FULL.md
// §4.9: on PASS, return immediately annotated with iteration count and
// review text; on reaching MaxIterations without PASS, return the last
// output annotated as "max iterations reached."
func (f *Flow) Run(ctx context.Context, request string) (Outcome, error) {
	maxIter := f.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	var lastOutput, feedback string

	for iteration := 1; iteration <= maxIter; iteration++ {
		doerPrompt := request
		if iteration > 1 {
			doerPrompt = composeDoerPrompt(request, lastOutput, feedback)
		}

		f.Logger.Info("doer iteration", "iteration", iteration, "max_iterations", maxIter)
		doerResult, err := f.Doer.Run(ctx, doerPrompt)
		if err != nil {
			return Outcome{}, fmt.Errorf("review: doer run: %w", err)
		}
		lastOutput = doerResult

		f.Reviewer.Reset()
		reviewPrompt := composeReviewPrompt(request, doerResult)
		reviewResult, err := f.Reviewer.Run(ctx, reviewPrompt)
		if err != nil {
			return Outcome{}, fmt.Errorf("review: reviewer run: %w", err)
		}

		grade := ExtractGrade(reviewResult, f.Logger)
		f.Logger.Info("review grade", "iteration", iteration, "grade", grade)

		if grade == GradePass {
			return Outcome{
				FinalOutput:   doerResult,
				LastReview:    reviewResult,
				Grade:         GradePass,
				Iterations:    iteration,
				MaxIterations: maxIter,
			}, nil
		}

		feedback = reviewResult
		if iteration == maxIter {
			return Outcome{
				FinalOutput:   doerResult,
				LastReview:    reviewResult,
				Grade:         GradeFail,
				Iterations:    iteration,
				MaxIterations: maxIter,
				ReachedLimit:  true,
			}, nil
		}
	}

	return Outcome{FinalOutput: lastOutput, Grade: GradeFail, Iterations: maxIter, MaxIterations: maxIter, ReachedLimit: true}, nil
}

// ExtractGrade scans review text case-insensitively for the literal
// markers GRADE: PASS / GRADE: FAIL (optionally wrapped in **), defaulting
// to PASS with a logged warning when neither is found.
func ExtractGrade(reviewText string, logger *slog.Logger) Grade {
	upper := strings.ToUpper(reviewText)
	switch {
	case strings.Contains(upper, "GRADE: FAIL"):
		return GradeFail
	case strings.Contains(upper, "GRADE: PASS"):
		return GradePass
	default:
		if logger != nil {
			logger.Warn("could not determine grade from review text, defaulting to PASS")
		}
		return GradePass
	}
}

func composeDoerPrompt(request, lastOutput, feedback string) string {
	return fmt.Sprintf(
		"PREVIOUS ATTEMPT:\n%s\n\nREVIEWER FEEDBACK:\n%s\n\nPlease address the reviewer's concerns and improve your solution for the original task: %s",
		truncate(lastOutput, previewChars), feedback, request,
	)
}

func composeReviewPrompt(request, doerResult string) string {
	return fmt.Sprintf(
		"Please review the following output.\n\nTASK: %s\n\nOUTPUT TO REVIEW:\n%s\n\nProvide your assessment.",
		truncate(request, previewChars), truncate(doerResult, previewChars*2),
	)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
