package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/orcha/internal/llm"
	"github.com/haasonsaas/orcha/internal/message"
	"github.com/haasonsaas/orcha/internal/recorder"
	"github.com/haasonsaas/orcha/internal/registry"
	"github.com/haasonsaas/orcha/internal/tool"
)

// DefaultSpecialTools is the set of tool names that transition an agent to
// FINISHED once dispatched, per SPEC_FULL.md §4.2 step 5. "terminate" is
// the canonical Terminate tool the teacher's internal/tools exposes.
var DefaultSpecialTools = map[string]bool{"terminate": true}

// ToolCallingAgent implements Stepper as think() followed, when the model
// requested tool calls, by act() — the §4.2 specialization of Base Agent.
//
// Tool calls within one assistant turn are dispatched strictly in the
// order the model emitted them, one at a time: SPEC_FULL.md §5's ordering
// guarantee rules out the teacher's concurrent ToolExecutor for this
// component (see DESIGN.md).
type ToolCallingAgent struct {
	Model        llm.Model
	Registry     *registry.Registry
	SpecialTools map[string]bool
	MaxObserve   int
}

// NewToolCallingAgent returns a ToolCallingAgent wired to model and reg,
// using DefaultSpecialTools.
func NewToolCallingAgent(model llm.Model, reg *registry.Registry) *ToolCallingAgent {
	return &ToolCallingAgent{Model: model, Registry: reg, SpecialTools: DefaultSpecialTools}
}

// Step implements Stepper: think() then, if the model requested tools,
// act().
func (tca *ToolCallingAgent) Step(ctx context.Context, a *Agent) (string, error) {
	requestedTools, err := tca.think(ctx, a)
	if err != nil {
		return "", err
	}
	if !requestedTools {
		return "", nil
	}
	return tca.act(ctx, a)
}

// think builds the model request from the agent's system prompt, memory,
// every currently-registered tool's schema, and any pending next-step
// prompt, submits it, and appends the assistant reply to memory. It
// returns true iff the reply requested at least one tool call.
func (tca *ToolCallingAgent) think(ctx context.Context, a *Agent) (bool, error) {
	var systemMessages []string
	if a.SystemPrompt != "" {
		systemMessages = append(systemMessages, a.SystemPrompt)
	}

	messages := a.Memory.Messages()
	if prompt := a.NextStepPrompt(); prompt != "" {
		messages = append(messages, message.User(prompt))
		a.SetNextStepPrompt("")
	}

	schemas := schemasFor(tca.Registry)

	resp, err := tca.Model.AskWithTools(ctx, messages, schemas, systemMessages, llm.ToolChoiceAuto)
	if err != nil {
		return false, fmt.Errorf("think: %w", err)
	}

	a.Memory.Append(resp.Message)
	a.recordEvent(recorder.EventMessage, map[string]any{"role": "assistant", "tool_calls": len(resp.ToolCalls)})

	return len(resp.ToolCalls) > 0, nil
}

// act dispatches every tool call in the most recent assistant message, in
// order, appending one tool-role reply per call. It never returns an
// error for a tool-local failure: those are converted into the tool-role
// error message per SPEC_FULL.md §7's propagation policy.
func (tca *ToolCallingAgent) act(ctx context.Context, a *Agent) (string, error) {
	last, ok := a.Memory.Last()
	if !ok || last.Role != message.RoleAssistant {
		return "", nil
	}

	var observations []string
	for _, call := range last.ToolCalls {
		output := tca.dispatchOne(ctx, call)
		if tca.MaxObserve > 0 && len(output.content) > tca.MaxObserve {
			output.content = output.content[:tca.MaxObserve]
		}

		reply := message.Tool(call.ID, call.FunctionName, output.content)
		reply.Base64Image = output.image
		a.Memory.Append(reply)
		a.recordEvent(recorder.EventMessage, map[string]any{"role": "tool", "name": call.FunctionName, "tool_call_id": call.ID})

		observations = append(observations, output.content)

		if tca.isSpecial(call.FunctionName) {
			a.Finish()
		}
	}

	return joinNonEmpty(observations), nil
}

type dispatchOutput struct {
	content string
	image   string
}

// dispatchOne resolves, parses and executes a single tool call, converting
// every failure mode named in SPEC_FULL.md §4.2 (unknown tool, malformed
// JSON, execution panic/error) into an observational string rather than
// propagating an error up the loop.
func (tca *ToolCallingAgent) dispatchOne(ctx context.Context, call message.ToolCall) dispatchOutput {
	entry, ok := tca.Registry.Get(call.FunctionName)
	if !ok {
		return dispatchOutput{content: fmt.Sprintf("error: tool %q not found", call.FunctionName)}
	}

	if len(call.Arguments) > 0 {
		var probe map[string]any
		if err := json.Unmarshal(call.Arguments, &probe); err != nil {
			return dispatchOutput{content: fmt.Sprintf("error: malformed JSON arguments for %q: %v", call.FunctionName, err)}
		}
		if err := validateAgainstSchema(entry.Tool.Schema(), call.Arguments); err != nil {
			return dispatchOutput{content: fmt.Sprintf("error: arguments for %q do not match its schema: %v", call.FunctionName, err)}
		}
	}

	result, err := tca.safeExecute(ctx, entry.Tool, call.Arguments)
	if err != nil {
		return dispatchOutput{content: fmt.Sprintf("error: %v", err)}
	}
	if result.IsError() {
		return dispatchOutput{content: "error: " + result.Error}
	}
	return dispatchOutput{content: result.Output, image: result.Base64Image}
}

// safeExecute recovers a panicking Tool.Execute and converts it to an
// error, matching Tool's contract that implementations must never panic
// across the interface boundary (internal/tool.Tool doc comment).
func (tca *ToolCallingAgent) safeExecute(ctx context.Context, t tool.Tool, args json.RawMessage) (res *tool.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panic: %v", r)
		}
	}()
	return t.Execute(ctx, args)
}

func (tca *ToolCallingAgent) isSpecial(name string) bool {
	if tca.SpecialTools == nil {
		return DefaultSpecialTools[name]
	}
	return tca.SpecialTools[name]
}

func schemasFor(reg *registry.Registry) []tool.Param {
	if reg == nil {
		return nil
	}
	tools := reg.Collection()
	out := make([]tool.Param, len(tools))
	for i, t := range tools {
		out[i] = tool.ToParam(t)
	}
	return out
}

// schemaCache memoizes compiled jsonschema.Schema by their raw JSON text so
// repeated calls to the same tool don't recompile its schema every step.
var schemaCache sync.Map // map[string]*jsonschema.Schema

// validateAgainstSchema validates args against a tool's declared parameter
// schema, generalizing SPEC_FULL.md §4.2 step 2's "malformed JSON" check to
// "schema-invalid JSON" per SPEC_FULL.md's domain-stack wiring of
// github.com/santhosh-tekuri/jsonschema/v5. An empty or uncompilable schema
// is treated as permissive (no validation), so a malformed tool schema
// never blocks dispatch.
func validateAgainstSchema(schema, args json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}

	compiled, err := compileSchema(schema)
	if err != nil {
		return nil
	}

	var doc any
	if err := json.Unmarshal(args, &doc); err != nil {
		return nil
	}
	return compiled.Validate(doc)
}

func compileSchema(schema json.RawMessage) (*jsonschema.Schema, error) {
	key := string(schema)
	if cached, ok := schemaCache.Load(key); ok {
		return cached.(*jsonschema.Schema), nil
	}

	compiler := jsonschema.NewCompiler()
	const resourceID = "tool-argument-schema.json"
	if err := compiler.AddResource(resourceID, bytes.NewReader(schema)); err != nil {
		return nil, err
	}
	compiled, err := compiler.Compile(resourceID)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

func joinNonEmpty(parts []string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += p
	}
	return out
}
