package eval

import (
	"time"

	"github.com/haasonsaas/orcha/internal/message"
)

// GradeResult is one grader's verdict on a TrialOutcome, ported from
// original_source/app/eval/outcome.py's GradeResult model.
type GradeResult struct {
	Passed     bool
	Score      float64
	GraderType string
	Reason     string
	Details    map[string]any
}

// TrialOutcome is the complete result of a single evaluation trial,
// ported from original_source/app/eval/outcome.py's TrialOutcome model.
type TrialOutcome struct {
	TaskID        string
	TrialID       string
	RunTimestamp  time.Time

	Success     bool
	FinalOutput string
	Error       string

	Grades     []GradeResult
	FinalScore float64
	Passed     bool

	StepsTaken         int
	TokensUsed         int64
	InputTokens        int64
	OutputTokens       int64
	TimeElapsedSeconds float64
	ToolCallsCount     int

	Transcript []message.Message
}

// applyGrades sets FinalScore and Passed from the outcome's Grades,
// mirroring trial.py's run_trial: average score across graders, passed
// iff every grader passed.
func (o *TrialOutcome) applyGrades() {
	if len(o.Grades) == 0 {
		return
	}
	var sum float64
	allPassed := true
	for _, g := range o.Grades {
		sum += g.Score
		if !g.Passed {
			allPassed = false
		}
	}
	o.FinalScore = sum / float64(len(o.Grades))
	o.Passed = allPassed
}
