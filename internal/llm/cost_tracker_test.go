package llm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCostTrackerLogCallKnownModel(t *testing.T) {
	ct := NewCostTracker()
	entry := ct.LogCall("anthropic/claude-3.5-sonnet", 1_000_000, 1_000_000)
	require.Equal(t, 18.0, entry.EstimatedCostUSD)
	require.Len(t, ct.Snapshot(), 1)
	require.InDelta(t, 18.0, ct.TotalCostUSD(), 1e-9)
}

func TestCostTrackerLogCallUnknownModelFallsBack(t *testing.T) {
	ct := NewCostTracker()
	known := ct.LogCall(fallbackPricingModel, 1000, 1000)
	ct2 := NewCostTracker()
	unknown := ct2.LogCall("some/unlisted-model", 1000, 1000)
	require.Equal(t, known.EstimatedCostUSD, unknown.EstimatedCostUSD)
}

func TestCostTrackerSnapshotIsACopy(t *testing.T) {
	ct := NewCostTracker()
	ct.LogCall(fallbackPricingModel, 10, 10)
	snap := ct.Snapshot()
	snap[0].Model = "mutated"
	require.Equal(t, fallbackPricingModel, ct.Snapshot()[0].Model)
}
