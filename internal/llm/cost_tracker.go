package llm

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// pricingPerMillion is the per-model input/output USD cost per one million
// tokens, ported from the teacher's original_source/app/utils/cost_tracker.py
// OPENROUTER_PRICING table. Unknown models fall back to the gpt-4o-mini row,
// matching that source's fallback behavior.
var pricingPerMillion = map[string][2]float64{
	"openai/gpt-4o-mini":                    {0.15, 0.60},
	"anthropic/claude-3.5-sonnet":           {3.00, 15.00},
	"anthropic/claude-3-7-sonnet-20250219":  {3.00, 15.00},
	"meta-llama/llama-3.3-70b-instruct":     {0.35, 0.40},
	"deepseek/deepseek-chat":                {0.14, 0.28},
	"deepseek/deepseek-coder":               {0.14, 0.28},
	"codellama/codellama-70b-instruct":      {0.78, 0.78},
	"openai/gpt-4o":                         {2.50, 10.00},
}

const fallbackPricingModel = "openai/gpt-4o-mini"

// CostEntry is one row of the CostTracker's ledger (SPEC_FULL.md §9's
// "cost-tracking log ... an append-only in-memory ledger").
type CostEntry struct {
	Model             string    `json:"model"`
	InputTokens       int64     `json:"input_tokens"`
	OutputTokens      int64     `json:"output_tokens"`
	EstimatedCostUSD  float64   `json:"estimated_cost_usd"`
	Timestamp         time.Time `json:"ts"`
}

var (
	costTotalCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orcha_llm_cost_usd_total",
		Help: "Cumulative estimated USD cost of LLM calls, by model.",
	}, []string{"model"})
	costTokensCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orcha_llm_tokens_total",
		Help: "Cumulative LLM tokens consumed, by model and direction.",
	}, []string{"model", "direction"})
)

// CostTracker is the process-wide, append-only ledger of model calls named
// in SPEC_FULL.md §5/§9 as shared state distinct from the Run Recorder.
// Safe for concurrent use; every LogCall also increments the package's
// Prometheus counters so the Evaluation Harness and Session Gateway can
// export spend alongside their own metrics.
type CostTracker struct {
	mu      sync.Mutex
	entries []CostEntry
}

// NewCostTracker returns an empty CostTracker.
func NewCostTracker() *CostTracker {
	return &CostTracker{}
}

// LogCall records one model call's token usage and returns its estimated
// USD cost, ported from cost_tracker.py's log_api_call/_calculate_cost.
func (t *CostTracker) LogCall(model string, inputTokens, outputTokens int64) CostEntry {
	pricing, ok := pricingPerMillion[model]
	if !ok {
		pricing = pricingPerMillion[fallbackPricingModel]
	}
	cost := float64(inputTokens)/1_000_000*pricing[0] + float64(outputTokens)/1_000_000*pricing[1]

	entry := CostEntry{
		Model:            model,
		InputTokens:      inputTokens,
		OutputTokens:     outputTokens,
		EstimatedCostUSD: cost,
		Timestamp:        time.Now().UTC(),
	}

	t.mu.Lock()
	t.entries = append(t.entries, entry)
	t.mu.Unlock()

	costTotalCounter.WithLabelValues(model).Add(cost)
	costTokensCounter.WithLabelValues(model, "input").Add(float64(inputTokens))
	costTokensCounter.WithLabelValues(model, "output").Add(float64(outputTokens))

	return entry
}

// Snapshot returns a copy of every entry logged so far, in insertion order.
func (t *CostTracker) Snapshot() []CostEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]CostEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// TotalCostUSD sums EstimatedCostUSD across every logged entry.
func (t *CostTracker) TotalCostUSD() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total float64
	for _, e := range t.entries {
		total += e.EstimatedCostUSD
	}
	return total
}
