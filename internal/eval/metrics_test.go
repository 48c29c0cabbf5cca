package eval

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func outcomesWithPasses(passes ...bool) []TrialOutcome {
	out := make([]TrialOutcome, len(passes))
	for i, p := range passes {
		out[i] = TrialOutcome{TaskID: "t1", Passed: p, FinalScore: boolScore(p), TokensUsed: 100}
	}
	return out
}

func TestPassAtKScenario(t *testing.T) {
	// n=5, c=2, k=3 => 1 - C(3,3)/C(5,3) = 1 - 1/10 = 0.9
	outcomes := outcomesWithPasses(true, true, false, false, false)
	require.InDelta(t, 0.9, PassAtK(outcomes, 3), 1e-9)
}

func TestPassAtKDegenerateCases(t *testing.T) {
	require.Equal(t, 0.0, PassAtK(nil, 3))

	// n < k: whether any trial passed.
	require.Equal(t, 1.0, PassAtK(outcomesWithPasses(true), 3))
	require.Equal(t, 0.0, PassAtK(outcomesWithPasses(false), 3))

	// c == n: every trial passed, pass@k == 1 for any k <= n.
	all := outcomesWithPasses(true, true, true)
	require.Equal(t, 1.0, PassAtK(all, 1))
	require.Equal(t, 1.0, PassAtK(all, 3))

	// c == 0: pass@k == 0 for any k <= n.
	none := outcomesWithPasses(false, false, false)
	require.Equal(t, 0.0, PassAtK(none, 1))
	require.Equal(t, 0.0, PassAtK(none, 3))
}

func TestPassAtKInRangeAndMatchesPassAt1(t *testing.T) {
	outcomes := outcomesWithPasses(true, false, true, false, true)
	for k := 1; k <= 5; k++ {
		v := PassAtK(outcomes, k)
		require.GreaterOrEqual(t, v, 0.0)
		require.LessOrEqual(t, v, 1.0)
	}
	require.InDelta(t, 3.0/5.0, PassAtK(outcomes, 1), 1e-9)
}

func TestTokenEfficiencyNoSuccesses(t *testing.T) {
	eff := ComputeTokenEfficiency(outcomesWithPasses(false, false))
	require.True(t, math.IsInf(eff.AvgTokensPerSuccess, 1))
	require.Equal(t, int64(200), eff.TotalTokens)
	require.Equal(t, 0, eff.SuccessCount)
}

func TestTokenEfficiencyWithSuccesses(t *testing.T) {
	eff := ComputeTokenEfficiency(outcomesWithPasses(true, false, true))
	require.Equal(t, 100.0, eff.AvgTokensPerSuccess)
	require.Equal(t, 2, eff.SuccessCount)
}

func TestSuccessRateByCategoryAndDifficulty(t *testing.T) {
	tasks := map[string]EvalTask{
		"t1": {TaskID: "t1", Category: "coding", Difficulty: "easy"},
		"t2": {TaskID: "t2", Category: "coding", Difficulty: "hard"},
		"t3": {TaskID: "t3", Category: "reasoning", Difficulty: "easy"},
	}
	outcomes := []TrialOutcome{
		{TaskID: "t1", Passed: true},
		{TaskID: "t2", Passed: false},
		{TaskID: "t3", Passed: true},
	}
	lookup := LookupFromTasks(tasks)

	byCat := SuccessRateByCategory(outcomes, lookup)
	require.InDelta(t, 0.5, byCat["coding"], 1e-9)
	require.InDelta(t, 1.0, byCat["reasoning"], 1e-9)

	byDiff := SuccessRateByDifficulty(outcomes, lookup)
	require.InDelta(t, 1.0, byDiff["easy"], 1e-9)
	require.InDelta(t, 0.0, byDiff["hard"], 1e-9)
}

func TestAggregateMetricsEmpty(t *testing.T) {
	report := AggregateMetrics(nil, nil)
	require.Equal(t, 0, report.TotalTrials)
	require.NotNil(t, report.ByCategory)
}

func TestAggregateMetricsBasic(t *testing.T) {
	outcomes := outcomesWithPasses(true, true, false)
	report := AggregateMetrics(outcomes, nil)
	require.Equal(t, 3, report.TotalTrials)
	require.Equal(t, 2, report.Passed)
	require.Equal(t, 1, report.Failed)
	require.InDelta(t, 2.0/3.0, report.PassRate, 1e-9)
	require.Equal(t, []string{"unknown"}, sortedKeys(report.ByCategory))
}
