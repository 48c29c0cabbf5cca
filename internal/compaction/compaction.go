// Package compaction implements the context-window manager and its
// compaction strategies (SPEC_FULL.md §4.5): pure transforms over a
// message list, selected and triggered by a token-budget watchdog.
//
// Adapted from the teacher's internal/compaction (token estimation,
// chunking heuristics) and internal/agent/compaction.go (threshold/state
// tracking), generalized from nexus's flush-confirmation workflow into
// the spec's simpler "apply strategy once over threshold" contract.
package compaction

import (
	"context"
	"strings"

	"github.com/haasonsaas/orcha/internal/llm"
	"github.com/haasonsaas/orcha/internal/message"
)

// CharsPerToken is the fallback character-to-token ratio used when no
// tokenizer is available, matching the teacher's compaction package.
const CharsPerToken = 4

// Strategy is a pure transform from one message list to another. It must
// never mutate its input slice or the Messages within it.
type Strategy interface {
	Apply(ctx context.Context, messages []message.Message) ([]message.Message, error)
	Name() string
}

// HealthCheck is the token-budget snapshot named in SPEC_FULL.md §4.5.
type HealthCheck struct {
	TokenCount        int
	ThresholdFraction float64
	NeedsCompaction   bool
	Warning           bool
}

// Check computes a HealthCheck for messages against threshold tokens,
// using model to count tokens. Warning fires at >=80% of threshold;
// NeedsCompaction fires at >=100%.
func Check(ctx context.Context, model llm.Model, messages []message.Message, threshold int) (HealthCheck, error) {
	if threshold <= 0 {
		threshold = 1
	}
	count, err := model.CountMessageTokens(messages)
	if err != nil {
		return HealthCheck{}, err
	}
	frac := float64(count) / float64(threshold)
	return HealthCheck{
		TokenCount:        count,
		ThresholdFraction: frac,
		NeedsCompaction:   frac >= 1.0,
		Warning:           frac >= 0.8,
	}, nil
}

// Manager watches token usage and applies a configured Strategy once a
// run's memory crosses threshold. It records compaction_count and
// last_savings_tokens for observability, per SPEC_FULL.md §4.5's
// "Guarantees" paragraph.
type Manager struct {
	Model     llm.Model
	Threshold int
	Strategy  Strategy

	compactionCount  int
	lastSavingsTokens int
}

// NewManager builds a Manager. threshold defaults to 100000 tokens, the
// configuration default named in SPEC_FULL.md §6.
func NewManager(model llm.Model, threshold int, strategy Strategy) *Manager {
	if threshold <= 0 {
		threshold = 100000
	}
	return &Manager{Model: model, Threshold: threshold, Strategy: strategy}
}

// MaybeCompact applies the configured strategy to messages if the health
// check reports NeedsCompaction. It never raises: a failing strategy or
// token-count call is returned as an error for the caller to log and
// ignore, per Base Agent step 1 (SPEC_FULL.md §4.1).
func (m *Manager) MaybeCompact(ctx context.Context, messages []message.Message) ([]message.Message, HealthCheck, error) {
	if m == nil || m.Model == nil || m.Strategy == nil {
		return messages, HealthCheck{}, nil
	}
	before, err := Check(ctx, m.Model, messages, m.Threshold)
	if err != nil {
		return messages, HealthCheck{}, err
	}
	if !before.NeedsCompaction {
		return messages, before, nil
	}
	out, err := m.Strategy.Apply(ctx, messages)
	if err != nil {
		return messages, before, err
	}
	afterCount, err := m.Model.CountMessageTokens(out)
	if err == nil {
		m.compactionCount++
		m.lastSavingsTokens = before.TokenCount - afterCount
	}
	return out, before, nil
}

// CompactionCount returns how many times MaybeCompact has triggered a
// strategy application.
func (m *Manager) CompactionCount() int { return m.compactionCount }

// LastSavingsTokens returns the token delta of the most recent compaction.
func (m *Manager) LastSavingsTokens() int { return m.lastSavingsTokens }

func cloneMessages(messages []message.Message) []message.Message {
	out := make([]message.Message, len(messages))
	copy(out, messages)
	return out
}

func estimateTokens(msg message.Message) int {
	chars := len(msg.Content)
	for _, tc := range msg.ToolCalls {
		chars += len(tc.Arguments)
	}
	return (chars + CharsPerToken - 1) / CharsPerToken
}

func estimateAll(messages []message.Message) int {
	total := 0
	for _, m := range messages {
		total += estimateTokens(m)
	}
	return total
}

func stripAll(s, start, end string) string {
	for {
		i := strings.Index(s, start)
		if i < 0 {
			return s
		}
		j := strings.Index(s[i+len(start):], end)
		if j < 0 {
			return s
		}
		s = s[:i] + s[i+len(start)+j+len(end):]
	}
}
