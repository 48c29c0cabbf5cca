// Package subagent implements the Sub-Agent Registry and the Task tool
// (SPEC_FULL.md §4.7): a fixed table of named agent types (explore, plan,
// code, test, build, review), each with its own step ceiling and tool set,
// plus keyword-based routing from a free-text task description to a type.
//
// Grounded in the teacher's internal/multiagent.SubagentRegistry
// (subagent_registry.go): the run-record lifecycle (Register/Start/
// Complete, archive-after sweep) is kept, generalized from nexus's
// session-handoff bookkeeping to tracking one Base Agent run per sub-agent
// type. The archive sweep itself is ported from a plain time.Ticker to
// github.com/robfig/cron/v3, per SPEC_FULL.md's domain-stack wiring.
package subagent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/orcha/internal/agent"
	"github.com/haasonsaas/orcha/internal/llm"
	"github.com/haasonsaas/orcha/internal/registry"
)

// Type identifies one of the fixed sub-agent specializations.
type Type string

const (
	TypeExplore Type = "explore"
	TypePlan    Type = "plan"
	TypeCode    Type = "code"
	TypeTest    Type = "test"
	TypeBuild   Type = "build"
	TypeReview  Type = "review"
)

// Definition is one row of the Sub-Agent Registry's defaults table
// (SPEC_FULL.md §4.7): the step ceiling and tool set a spawned agent of
// this Type starts with.
type Definition struct {
	MaxSteps int
	Tools    []string
}

// Defaults is the fixed table from spec.md §4.7.
var Defaults = map[Type]Definition{
	TypeExplore: {MaxSteps: 10, Tools: []string{"shell", "terminate"}},
	TypePlan:    {MaxSteps: 20, Tools: []string{"shell", "terminate"}},
	TypeCode:    {MaxSteps: 50, Tools: []string{"shell", "code-exec", "editor", "browser", "test-runner", "terminate"}},
	TypeTest:    {MaxSteps: 15, Tools: []string{"shell", "code-exec", "test-runner", "terminate"}},
	TypeBuild:   {MaxSteps: 10, Tools: []string{"shell", "code-exec", "terminate"}},
	TypeReview:  {MaxSteps: 3, Tools: []string{"test-runner"}},
}

// DefaultType is the fallback Type route_task returns when no keyword
// heuristic matches.
const DefaultType = TypeExplore

// routingKeywords maps each Type to the substrings its description is
// checked against, evaluated in the fixed precedence order below so that,
// e.g., a task description mentioning both "test" and "plan" routes to
// whichever keyword set is checked first.
var routingOrder = []Type{TypeReview, TypeTest, TypeBuild, TypeCode, TypePlan, TypeExplore}

var routingKeywords = map[Type][]string{
	TypeReview:  {"review", "critique", "grade", "feedback"},
	TypeTest:    {"test", "verify", "assert", "coverage"},
	TypeBuild:   {"build", "compile", "package", "release"},
	TypeCode:    {"implement", "code", "write", "refactor", "fix bug", "edit"},
	TypePlan:    {"plan", "design", "architecture", "approach"},
	TypeExplore: {"explore", "investigate", "find", "search", "understand"},
}

// RouteTask maps a free-text task description to a Type by keyword
// heuristic, defaulting to DefaultType when nothing matches.
func RouteTask(description string) Type {
	lower := strings.ToLower(description)
	for _, t := range routingOrder {
		for _, kw := range routingKeywords[t] {
			if strings.Contains(lower, kw) {
				return t
			}
		}
	}
	return DefaultType
}

// Status mirrors the teacher's SubagentRunStatus enum.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// RunRecord tracks one spawned sub-agent's lifecycle, trimmed from the
// teacher's SubagentRunRecord down to the fields the Task tool's output
// shape (§4.7) and the archive sweep actually need.
type RunRecord struct {
	RunID       string
	AgentType   Type
	Task        string
	Status      Status
	Result      string
	Error       string
	StepsTaken  int
	StartedAt   time.Time
	EndedAt     time.Time
	ArchiveAt   time.Time
}

func (r *RunRecord) isComplete() bool {
	return r.Status == StatusCompleted || r.Status == StatusError
}

// AgentFactory builds a fresh Base Agent plus the tool registry scoped to
// one sub-agent type, given its Definition and the task/context text that
// becomes its initial user message. Callers supply this so the registry
// stays decoupled from how tools and models are actually wired.
type AgentFactory func(t Type, def Definition, model llm.Model, reg *registry.Registry) *agent.Agent

// Registry tracks every spawned sub-agent run and archives completed ones
// past their retention window.
type Registry struct {
	mu            sync.RWMutex
	runs          map[string]*RunRecord
	retention     time.Duration
	newAgent      AgentFactory
	baseRegistry  *registry.Registry
	model         llm.Model
}

// NewRegistry returns a Registry that spawns agents via factory, filtering
// baseRegistry down to each sub-agent's Definition.Tools when spawning, and
// archives completed runs after retention (0 disables archiving).
func NewRegistry(model llm.Model, baseRegistry *registry.Registry, factory AgentFactory, retention time.Duration) *Registry {
	return &Registry{
		runs:         make(map[string]*RunRecord),
		retention:    retention,
		newAgent:     factory,
		baseRegistry: baseRegistry,
		model:        model,
	}
}

// Spawn creates, registers and runs a sub-agent of Type t against task
// (and optional context, appended to the task as additional instruction),
// returning the completed RunRecord. It never returns a Go error for an
// agent-local failure: that surfaces as Status=error on the record, per
// the Task tool's "failures surface as tool errors without killing the
// parent loop" contract (§4.7) — the caller (the Task tool) converts a
// non-nil err here into its own process error only for setup failures
// (e.g. an unknown Type, which cannot happen given RouteTask's fallback).
func (r *Registry) Spawn(ctx context.Context, t Type, task, taskContext string) (*RunRecord, error) {
	def, ok := Defaults[t]
	if !ok {
		return nil, fmt.Errorf("subagent: unknown agent type %q", t)
	}

	scoped := scopedRegistry(r.baseRegistry, def.Tools)
	a := r.newAgent(t, def, r.model, scoped)
	if a.MaxSteps == 0 {
		// The factory may have applied a per-type override; only fall back
		// to the defaults table when it left the ceiling unset.
		a.MaxSteps = def.MaxSteps
	}

	record := &RunRecord{
		RunID:     uuid.NewString(),
		AgentType: t,
		Task:      task,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
	r.mu.Lock()
	r.runs[record.RunID] = record
	r.mu.Unlock()

	prompt := task
	if taskContext != "" {
		prompt = task + "\n\nContext:\n" + taskContext
	}

	result, err := a.Run(ctx, prompt)

	r.mu.Lock()
	defer r.mu.Unlock()
	record.StepsTaken = a.CurrentStep()
	record.EndedAt = time.Now()
	if r.retention > 0 {
		record.ArchiveAt = record.EndedAt.Add(r.retention)
	}
	if err != nil {
		record.Status = StatusError
		record.Error = err.Error()
	} else {
		record.Status = StatusCompleted
		record.Result = result
	}
	return record, nil
}

// Get returns a copy of the run record for runID.
func (r *Registry) Get(runID string) (RunRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.runs[runID]
	if !ok {
		return RunRecord{}, false
	}
	return *rec, true
}

// Sweep deletes completed runs whose ArchiveAt has passed. It is called on
// a schedule (cmd/orchad wires it to a robfig/cron/v3 job) rather than
// owning its own ticker, so tests can call it deterministically.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, rec := range r.runs {
		if rec.isComplete() && !rec.ArchiveAt.IsZero() && !rec.ArchiveAt.After(now) {
			delete(r.runs, id)
			removed++
		}
	}
	return removed
}

// Active returns every run not yet complete, sorted by RunID for
// deterministic output.
func (r *Registry) Active() []RunRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RunRecord, 0)
	for _, rec := range r.runs {
		if !rec.isComplete() {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunID < out[j].RunID })
	return out
}

// scopedRegistry returns a fresh *registry.Registry containing only the
// entries from base whose name appears in allowed, preserving each entry's
// original source tag. Sub-agents never see tools outside their
// Definition's set.
func scopedRegistry(base *registry.Registry, allowed []string) *registry.Registry {
	out := registry.New()
	want := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		want[name] = true
	}
	for _, summary := range base.List() {
		if !want[summary.Name] {
			continue
		}
		if entry, ok := base.Get(summary.Name); ok {
			out.Add(entry.Tool, entry.Source)
		}
	}
	return out
}
