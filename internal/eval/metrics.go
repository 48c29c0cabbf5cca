package eval

import (
	"math"
	"sort"
	"strings"
)

// PassAtK computes the probability of at least one success among k
// samples drawn from the n trials in outcomes, via
// 1 - C(n-c, k) / C(n, k), ported from original_source/app/eval/metrics.py's
// calculate_pass_at_k with its two degenerate cases preserved:
//   - n < k: whether any trial passed at all (n==0 included).
//   - n-c < k: every remaining combination includes a success, so pass@k=1.
func PassAtK(outcomes []TrialOutcome, k int) float64 {
	if len(outcomes) == 0 || k <= 0 {
		return 0.0
	}

	n := len(outcomes)
	c := 0
	for _, o := range outcomes {
		if o.Passed {
			c++
		}
	}

	if n < k {
		if c > 0 {
			return 1.0
		}
		return 0.0
	}
	if n-c < k {
		return 1.0
	}

	ratio := comb(n-c, k) / comb(n, k)
	return 1.0 - ratio
}

// comb computes C(n, k) as a float64, matching Python's math.comb used by
// metrics.py. Returns 0 for an out-of-range k (n<0, k<0, k>n).
func comb(n, k int) float64 {
	if k < 0 || n < 0 || k > n {
		return 0
	}
	if k == 0 || k == n {
		return 1
	}
	if k > n-k {
		k = n - k
	}
	result := 1.0
	for i := 0; i < k; i++ {
		result *= float64(n-i) / float64(i+1)
	}
	return result
}

// TokenEfficiency is the token-cost breakdown named in SPEC_FULL.md §4.10:
// mean tokens per successful trial (+Inf if no successes), plus the raw
// totals metrics.py's token_efficiency also reports.
type TokenEfficiency struct {
	AvgTokensPerSuccess float64
	TotalTokens         int64
	SuccessCount        int
}

// ComputeTokenEfficiency ports metrics.py's token_efficiency.
func ComputeTokenEfficiency(outcomes []TrialOutcome) TokenEfficiency {
	if len(outcomes) == 0 {
		return TokenEfficiency{AvgTokensPerSuccess: math.Inf(1)}
	}

	var totalTokens int64
	var successTokens int64
	successCount := 0
	for _, o := range outcomes {
		totalTokens += o.TokensUsed
		if o.Passed {
			successCount++
			successTokens += o.TokensUsed
		}
	}

	if successCount == 0 {
		return TokenEfficiency{AvgTokensPerSuccess: math.Inf(1), TotalTokens: totalTokens}
	}
	return TokenEfficiency{
		AvgTokensPerSuccess: float64(successTokens) / float64(successCount),
		TotalTokens:         totalTokens,
		SuccessCount:        successCount,
	}
}

// TaskLookup resolves an outcome's TaskID to the category/difficulty tags
// needed for the by-category / by-difficulty breakdowns. Callers typically
// build this from a map[string]EvalTask.
type TaskLookup func(taskID string) (category, difficulty string, ok bool)

// LookupFromTasks builds a TaskLookup from a task_id -> EvalTask map,
// defaulting an unknown task_id's category/difficulty to "unknown" per
// metrics.py's tasks.get(outcome.task_id, {}).
func LookupFromTasks(tasks map[string]EvalTask) TaskLookup {
	return func(taskID string) (string, string, bool) {
		t, ok := tasks[taskID]
		if !ok {
			return "unknown", "unknown", false
		}
		category := t.Category
		if category == "" {
			category = "unknown"
		}
		difficulty := t.Difficulty
		if difficulty == "" {
			difficulty = "unknown"
		}
		return category, difficulty, true
	}
}

// SuccessRateByCategory groups outcomes by their task's category and
// reports the fraction that passed, ported from metrics.py's
// success_rate_by_category.
func SuccessRateByCategory(outcomes []TrialOutcome, lookup TaskLookup) map[string]float64 {
	return successRateBy(outcomes, lookup, func(cat, _ string) string { return cat })
}

// SuccessRateByDifficulty groups outcomes by their task's difficulty and
// reports the fraction that passed, ported from metrics.py's
// success_rate_by_difficulty.
func SuccessRateByDifficulty(outcomes []TrialOutcome, lookup TaskLookup) map[string]float64 {
	return successRateBy(outcomes, lookup, func(_, diff string) string { return diff })
}

func successRateBy(outcomes []TrialOutcome, lookup TaskLookup, key func(category, difficulty string) string) map[string]float64 {
	groups := make(map[string][]bool)
	for _, o := range outcomes {
		category, difficulty := "unknown", "unknown"
		if lookup != nil {
			category, difficulty, _ = lookup(o.TaskID)
		}
		k := key(category, difficulty)
		groups[k] = append(groups[k], o.Passed)
	}
	out := make(map[string]float64, len(groups))
	for k, passes := range groups {
		if len(passes) == 0 {
			out[k] = 0.0
			continue
		}
		n := 0
		for _, p := range passes {
			if p {
				n++
			}
		}
		out[k] = float64(n) / float64(len(passes))
	}
	return out
}

// AggregateReport is the comprehensive metrics report ported from
// metrics.py's aggregate_metrics.
type AggregateReport struct {
	TotalTrials int
	Passed      int
	Failed      int

	PassRate float64
	PassAt1  float64
	PassAt3  float64
	PassAt5  float64

	AvgScore float64
	MinScore float64
	MaxScore float64

	AvgSteps      float64
	AvgTokens     float64
	AvgTimeSecond float64
	AvgToolCalls  float64

	TokenEfficiency TokenEfficiency

	ByCategory   map[string]float64
	ByDifficulty map[string]float64

	ErrorCount   int
	TimeoutCount int
}

// AggregateMetrics builds the full report over outcomes, or an empty
// report if outcomes is empty (metrics.py returns {"error": ...} in that
// case; the Go equivalent is the zero-valued AggregateReport with empty
// category/difficulty maps. The report carries no separate empty flag;
// callers check len(outcomes)==0 on the slice themselves).
func AggregateMetrics(outcomes []TrialOutcome, lookup TaskLookup) AggregateReport {
	if len(outcomes) == 0 {
		return AggregateReport{ByCategory: map[string]float64{}, ByDifficulty: map[string]float64{}}
	}

	passed := 0
	for _, o := range outcomes {
		if o.Passed {
			passed++
		}
	}
	failed := len(outcomes) - passed

	var sumScore, sumSteps, sumTokens, sumTime, sumToolCalls float64
	minScore, maxScore := math.Inf(1), math.Inf(-1)
	errorCount, timeoutCount := 0, 0
	for _, o := range outcomes {
		sumScore += o.FinalScore
		sumSteps += float64(o.StepsTaken)
		sumTokens += float64(o.TokensUsed)
		sumTime += o.TimeElapsedSeconds
		sumToolCalls += float64(o.ToolCallsCount)
		if o.FinalScore < minScore {
			minScore = o.FinalScore
		}
		if o.FinalScore > maxScore {
			maxScore = o.FinalScore
		}
		if o.Error != "" {
			errorCount++
			if strings.Contains(o.Error, "Timeout") {
				timeoutCount++
			}
		}
	}

	n := float64(len(outcomes))
	return AggregateReport{
		TotalTrials: len(outcomes),
		Passed:      passed,
		Failed:      failed,

		PassRate: float64(passed) / n,
		PassAt1:  PassAtK(outcomes, 1),
		PassAt3:  PassAtK(outcomes, 3),
		PassAt5:  PassAtK(outcomes, 5),

		AvgScore: sumScore / n,
		MinScore: minScore,
		MaxScore: maxScore,

		AvgSteps:      sumSteps / n,
		AvgTokens:     sumTokens / n,
		AvgTimeSecond: sumTime / n,
		AvgToolCalls:  sumToolCalls / n,

		TokenEfficiency: ComputeTokenEfficiency(outcomes),

		ByCategory:   SuccessRateByCategory(outcomes, lookup),
		ByDifficulty: SuccessRateByDifficulty(outcomes, lookup),

		ErrorCount:   errorCount,
		TimeoutCount: timeoutCount,
	}
}

// sortedKeys returns m's keys sorted, for walking a report's per-category
// or per-difficulty map in a deterministic order.
func sortedKeys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
