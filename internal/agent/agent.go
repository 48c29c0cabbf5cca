// Package agent implements the Base Agent step loop and state machine
// (SPEC_FULL.md §4.1) and its Tool-Calling Agent specialization (§4.2).
//
// Adapted from the teacher's internal/agent (loop.go's state-machine
// commentary and sanitize-config idiom, errors.go's sentinel-error style,
// event_emitter.go's sequencing) but re-architected around the spec's
// IDLE/RUNNING/FINISHED/ERROR machine and exception-free tool dispatch
// (design note in SPEC_FULL.md §9: "re-architect as result types").
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/orcha/internal/compaction"
	"github.com/haasonsaas/orcha/internal/message"
	"github.com/haasonsaas/orcha/internal/recorder"
)

// tracer emits one span per Run and one child span per step, following the
// teacher's internal/agent/trace.go idiom of tracing the loop boundary
// rather than every internal call.
var tracer = otel.Tracer("github.com/haasonsaas/orcha/internal/agent")

// State is one of the four states an Agent can occupy.
type State string

const (
	StateIdle     State = "IDLE"
	StateRunning  State = "RUNNING"
	StateFinished State = "FINISHED"
	StateError    State = "ERROR"
)

// EffortLevel is the coarse knob named in SPEC_FULL.md §3 that raises the
// per-run step ceiling.
type EffortLevel string

const (
	EffortLow    EffortLevel = "low"
	EffortMedium EffortLevel = "medium"
	EffortHigh   EffortLevel = "high"

	// EffortNone imposes no floor: EffectiveMaxSteps degenerates to the
	// configured max_steps alone. Reserved for exercising the raw
	// max-steps mechanism (SPEC_FULL.md §8's "max_steps = 0" boundary
	// case) independent of the effort table; ordinary agents use one of
	// low/medium/high and get at least that tier's floor (10, 20 or 50).
	EffortNone EffortLevel = "none"
)

// effortTable maps each known effort level to its step ceiling. Unknown
// levels (including the empty string) fall back to medium (20), per
// SPEC_FULL.md §3 and §8.
var effortTable = map[EffortLevel]int{
	EffortNone:   0,
	EffortLow:    10,
	EffortMedium: 20,
	EffortHigh:   50,
}

// EffectiveMaxSteps computes max(configured, effortTable[effort]), falling
// back to the medium tier for an unrecognized effort level.
func EffectiveMaxSteps(configured int, effort EffortLevel) int {
	tier, ok := effortTable[effort]
	if !ok {
		tier = effortTable[EffortMedium]
	}
	if configured > tier {
		return configured
	}
	return tier
}

// ErrIllegalState is returned by Run when the agent is asked to run from a
// non-IDLE state.
var ErrIllegalState = errors.New("agent: illegal state transition")

// DefaultDuplicateThreshold is the stuck-detection threshold named in
// SPEC_FULL.md §4.1.1.
const DefaultDuplicateThreshold = 2

// stuckPrefix is prepended to NextStepPrompt on a stuck event; prepending
// it again on a later stuck event replaces rather than accumulates
// (SPEC_FULL.md §4.1.2).
const stuckPrefix = "You seem to be repeating yourself. Try a new strategy: "

// maxPreviewChars bounds step_end event previews and final summaries.
const maxPreviewChars = 500

// reflectionPrefix marks the system message inserted by the reflection
// checkpoint hook so a later checkpoint can find and replace it instead of
// accumulating, the same single-marker-prefix idiom as stuckPrefix
// (SPEC_FULL.md §9).
const reflectionPrefix = "[reflection checkpoint] "

// reflectionInterval is how often (in steps) a reflection checkpoint is
// inserted when HighEffortMode && EnableReflection.
const reflectionInterval = 5

// reflectionPrompt is the fixed text of each reflection checkpoint.
const reflectionPrompt = "Pause and reflect: is the current approach working? " +
	"State what has been tried, what remains, and whether to change strategy."

// Stepper is the per-step behavior a concrete agent (e.g. ToolCallingAgent)
// supplies to the Base Agent's loop. Step returns observational text; it
// may call a.Finish() to request loop termination after this iteration.
type Stepper interface {
	Step(ctx context.Context, a *Agent) (string, error)
}

// Agent is the Base Agent: the step loop, state machine, stuck detection
// and effort-derived step ceiling shared by every concrete agent kind.
type Agent struct {
	Name                string
	SystemPrompt         string
	Memory              *message.Memory
	MaxSteps            int
	Effort              EffortLevel
	DuplicateThreshold  int
	HighEffortMode      bool
	EnableReflection    bool
	Compaction          *compaction.Manager
	Recorder            *recorder.Recorder
	Stepper             Stepper

	mu              sync.Mutex
	state           State
	currentStep     int
	nextStepPrompt  string
	finishRequested bool
	resultLog       []string
}

// New constructs an idle Agent. stepper supplies Step's behavior.
func New(name string, stepper Stepper) *Agent {
	return &Agent{
		Name:               name,
		Memory:             message.NewMemory(),
		Effort:             EffortMedium,
		DuplicateThreshold: DefaultDuplicateThreshold,
		Stepper:            stepper,
		state:              StateIdle,
	}
}

// State returns the agent's current state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// CurrentStep returns the 1-based index of the step currently executing
// (0 before the first step of a run).
func (a *Agent) CurrentStep() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentStep
}

// EffectiveMaxSteps returns max(a.MaxSteps, effortTable[a.Effort]).
func (a *Agent) EffectiveMaxSteps() int {
	return EffectiveMaxSteps(a.MaxSteps, a.Effort)
}

// NextStepPrompt returns the prompt text (possibly stuck-prefixed) to
// surface to the next Step call.
func (a *Agent) NextStepPrompt() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nextStepPrompt
}

// SetNextStepPrompt replaces the next-step prompt outright.
func (a *Agent) SetNextStepPrompt(prompt string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextStepPrompt = prompt
}

// Finish requests that the run loop terminate in the FINISHED state once
// the current step's Step call returns. Called by a Stepper (e.g. the
// Tool-Calling Agent's act(), §4.2 step 5) when a special tool fires.
func (a *Agent) Finish() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finishRequested = true
}

// transition moves the agent into state s, returning a restore function
// that puts it back into the previous state — the "scoped transition" of
// SPEC_FULL.md §3. Run calls it on any exit path that leaves the agent
// RUNNING (or in ERROR because its context was cancelled).
func (a *Agent) transition(s State) (restore func()) {
	a.mu.Lock()
	prev := a.state
	a.state = s
	a.mu.Unlock()
	return func() {
		a.mu.Lock()
		a.state = prev
		a.mu.Unlock()
	}
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// ResetToIdle forces the agent back to IDLE with its step counter cleared,
// regardless of its current state. Used between Doer-Critic iterations
// (SPEC_FULL.md §4.9: "reviewer state is reset between iterations") where
// a reviewer that just FINISHED or ERRORed must run again from scratch.
func (a *Agent) ResetToIdle() {
	a.mu.Lock()
	a.state = StateIdle
	a.currentStep = 0
	a.finishRequested = false
	a.mu.Unlock()
}

// Run drives the step loop to completion. If initialRequest is non-empty
// it is appended as a user message before the loop begins. Run requires
// the agent be IDLE; any other starting state is ErrIllegalState.
//
// Iteration stops when the Stepper calls Finish() (-> FINISHED) or
// current_step reaches EffectiveMaxSteps(); on the latter, current_step
// resets to 0 and state returns to IDLE with a termination notice appended
// to the returned summary, per SPEC_FULL.md §4.1.
func (a *Agent) Run(ctx context.Context, initialRequest string) (string, error) {
	a.mu.Lock()
	if a.state != StateIdle {
		state := a.state
		a.mu.Unlock()
		return "", fmt.Errorf("%w: agent %q is %s, not IDLE", ErrIllegalState, a.Name, state)
	}
	a.currentStep = 0
	a.finishRequested = false
	a.resultLog = nil
	a.mu.Unlock()

	ctx, runSpan := tracer.Start(ctx, "agent.run", trace.WithAttributes(attribute.String("agent.name", a.Name)))
	defer runSpan.End()

	if initialRequest != "" {
		a.Memory.Append(message.User(initialRequest))
		a.recordEvent(recorder.EventMessage, map[string]any{"role": "user"})
	}

	restore := a.transition(StateRunning)
	defer func() {
		if st := a.State(); st == StateRunning || (st == StateError && ctx.Err() != nil) {
			restore()
		}
	}()

	a.recordEvent(recorder.EventRunStart, map[string]any{"agent": a.Name})

	maxSteps := a.EffectiveMaxSteps()
	var runErr error
	finished := false

	for {
		a.mu.Lock()
		step := a.currentStep
		a.mu.Unlock()
		if step >= maxSteps {
			break
		}

		if a.Compaction != nil {
			if compacted, _, err := a.Compaction.MaybeCompact(ctx, a.Memory.Messages()); err == nil {
				a.Memory.Replace(compacted)
			} else {
				slog.Warn("compaction failed; continuing with uncompacted memory", "agent", a.Name, "error", err)
			}
			// Compaction failures are logged and ignored per SPEC_FULL.md §4.1
			// step 1: they must never abort the run.
		}

		a.mu.Lock()
		a.currentStep++
		stepNum := a.currentStep
		a.mu.Unlock()

		a.applyReflectionCheckpoint(stepNum)

		a.recordEvent(recorder.EventStepStart, map[string]any{"step": stepNum})

		stepCtx, stepSpan := tracer.Start(ctx, "agent.step", trace.WithAttributes(attribute.Int("agent.step", stepNum)))
		result, err := a.Stepper.Step(stepCtx, a)
		if err != nil {
			stepSpan.RecordError(err)
			stepSpan.SetStatus(codes.Error, err.Error())
			stepSpan.End()

			runErr = err
			a.setState(StateError)
			runSpan.RecordError(err)
			runSpan.SetStatus(codes.Error, err.Error())
			a.recordEvent(recorder.EventRunEnd, map[string]any{"state": StateError, "error": err.Error(), "partial_summary": a.GetRunSummary(nil)})
			return "", err
		}
		stepSpan.End()

		a.recordEvent(recorder.EventStepEnd, map[string]any{"step": stepNum, "preview": preview(result, maxPreviewChars)})

		a.mu.Lock()
		a.resultLog = append(a.resultLog, result)
		a.mu.Unlock()

		a.applyStuckDetection()

		a.mu.Lock()
		shouldFinish := a.finishRequested
		a.mu.Unlock()
		if shouldFinish {
			finished = true
			break
		}
	}

	if finished {
		a.setState(StateFinished)
	} else {
		a.mu.Lock()
		a.currentStep = 0
		a.resultLog = append(a.resultLog, "terminated: max steps reached")
		a.mu.Unlock()
		a.setState(StateIdle)
	}

	summary := a.joinResultLog()
	a.recordEvent(recorder.EventRunEnd, map[string]any{"state": a.State()})
	return summary, runErr
}

func (a *Agent) joinResultLog() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return strings.Join(a.resultLog, "\n")
}

func (a *Agent) recordEvent(event string, data any) {
	if a.Recorder == nil {
		return
	}
	_ = a.Recorder.Emit(event, data)
}

func preview(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

// IsStuck reports whether the most recent assistant message with
// non-empty content has appeared at least DuplicateThreshold times
// before among prior assistant messages, per SPEC_FULL.md §4.1.1.
func (a *Agent) IsStuck() bool {
	msgs := a.Memory.Messages()
	threshold := a.DuplicateThreshold
	if threshold <= 0 {
		threshold = DefaultDuplicateThreshold
	}
	return isStuck(msgs, threshold)
}

func isStuck(msgs []message.Message, threshold int) bool {
	var last string
	lastIdx := -1
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == message.RoleAssistant && msgs[i].Content != "" {
			last = msgs[i].Content
			lastIdx = i
			break
		}
	}
	if lastIdx < 0 {
		return false
	}
	count := 0
	for i := 0; i < lastIdx; i++ {
		if msgs[i].Role == message.RoleAssistant && msgs[i].Content == last {
			count++
		}
	}
	return count >= threshold
}

// applyStuckDetection runs IsStuck and, if stuck, prepends the stuck
// prefix to NextStepPrompt exactly once (replacing any prior prefix).
func (a *Agent) applyStuckDetection() {
	if !a.IsStuck() {
		return
	}
	current := a.NextStepPrompt()
	current = strings.TrimPrefix(current, stuckPrefix)
	a.SetNextStepPrompt(stuckPrefix + current)
}

// applyReflectionCheckpoint inserts a single reflection system message every
// reflectionInterval steps when HighEffortMode && EnableReflection are both
// set, replacing any earlier checkpoint rather than accumulating (SPEC_FULL.md
// §9 / §6).
func (a *Agent) applyReflectionCheckpoint(stepNum int) {
	if !a.HighEffortMode || !a.EnableReflection {
		return
	}
	if stepNum == 0 || stepNum%reflectionInterval != 0 {
		return
	}

	msgs := a.Memory.Messages()
	filtered := make([]message.Message, 0, len(msgs)+1)
	for _, m := range msgs {
		if m.Role == message.RoleSystem && strings.HasPrefix(m.Content, reflectionPrefix) {
			continue
		}
		filtered = append(filtered, m)
	}
	filtered = append(filtered, message.System(reflectionPrefix+reflectionPrompt))
	a.Memory.Replace(filtered)
}

// Summary is the run-summary shape returned by GetRunSummary (§4.1.3).
type Summary struct {
	Steps        int            `json:"steps"`
	Messages     int            `json:"messages"`
	ToolCalls    int            `json:"tool_calls"`
	State        State          `json:"state"`
	FinalPreview string         `json:"final_preview"`
	LLM          *LLMUsageStats `json:"llm,omitempty"`
}

// LLMUsageStats is the optional llm block of Summary.
type LLMUsageStats struct {
	InputTokens      int64 `json:"input_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

// GetRunSummary builds the Summary described in SPEC_FULL.md §4.1.3.
func (a *Agent) GetRunSummary(llmUsage *LLMUsageStats) Summary {
	msgs := a.Memory.Messages()
	toolCalls := 0
	for _, m := range msgs {
		toolCalls += len(m.ToolCalls)
	}
	var finalPreview string
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == message.RoleAssistant {
			finalPreview = preview(msgs[i].Content, maxPreviewChars)
			break
		}
	}
	a.mu.Lock()
	steps := a.currentStep
	state := a.state
	a.mu.Unlock()
	return Summary{
		Steps:        steps,
		Messages:     len(msgs),
		ToolCalls:    toolCalls,
		State:        state,
		FinalPreview: finalPreview,
		LLM:          llmUsage,
	}
}
