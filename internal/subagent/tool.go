package subagent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/orcha/internal/tool"
)

// TaskTool registers on the main agent (SPEC_FULL.md §4.7) and spawns a
// named sub-agent type to completion, returning its outcome as structured
// tool output. Modeled on the teacher's internal/multiagent.HandoffTool
// (handoff_tool.go), which exposes a similar "dispatch to another agent
// and report back" shape as a registrable Tool.
type TaskTool struct {
	Registry *Registry
}

// NewTaskTool returns a TaskTool backed by reg.
func NewTaskTool(reg *Registry) *TaskTool {
	return &TaskTool{Registry: reg}
}

func (t *TaskTool) Name() string { return "task" }

func (t *TaskTool) Description() string {
	return "Delegates a unit of work to a specialized sub-agent and returns its result.\n" +
		"1. Explore the auth module\n" +
		"   Input: {\"agent_type\": \"explore\", \"task\": \"Explore the auth module and summarize its structure\"}\n" +
		"   Output: {\"agent_type\":\"explore\",\"task\":\"...\",\"result\":\"...\",\"status\":\"completed\",\"steps_taken\":4}\n" +
		"2. Leave agent_type empty to route by keyword heuristic\n" +
		"   Input: {\"task\": \"Write unit tests for the parser\"}\n" +
		"   Note: routes to \"test\" via route_task's keyword match on \"tests\"."
}

func (t *TaskTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "agent_type": {"type": "string", "enum": ["explore", "plan", "code", "test", "build", "review"], "description": "Sub-agent type; omit to route automatically from task."},
    "task": {"type": "string", "description": "The task description given to the sub-agent as its initial instruction."},
    "context": {"type": "string", "description": "Optional extra context appended to the task."}
  },
  "required": ["task"]
}`)
}

type taskInput struct {
	AgentType string `json:"agent_type"`
	Task      string `json:"task"`
	Context   string `json:"context"`
}

type taskOutput struct {
	AgentType  Type   `json:"agent_type"`
	Task       string `json:"task"`
	Result     string `json:"result,omitempty"`
	Status     Status `json:"status"`
	StepsTaken int    `json:"steps_taken"`
}

// Execute spawns the requested (or routed) sub-agent type and runs it to
// completion. A sub-agent's own failure becomes a Result.Error rather than
// a Go error, per §4.7's "failures surface as tool errors without killing
// the parent loop."
func (t *TaskTool) Execute(ctx context.Context, args json.RawMessage) (*tool.Result, error) {
	var in taskInput
	if err := json.Unmarshal(args, &in); err != nil {
		return &tool.Result{Error: fmt.Sprintf("invalid task arguments: %v", err)}, nil
	}
	if in.Task == "" {
		return &tool.Result{Error: "task: \"task\" is required"}, nil
	}

	agentType := Type(in.AgentType)
	if agentType == "" {
		agentType = RouteTask(in.Task)
	}
	if _, ok := Defaults[agentType]; !ok {
		return &tool.Result{Error: fmt.Sprintf("task: unknown agent_type %q", in.AgentType)}, nil
	}

	record, err := t.Registry.Spawn(ctx, agentType, in.Task, in.Context)
	if err != nil {
		return &tool.Result{Error: fmt.Sprintf("task: %v", err)}, nil
	}

	out := taskOutput{
		AgentType:  record.AgentType,
		Task:       record.Task,
		Result:     record.Result,
		Status:     record.Status,
		StepsTaken: record.StepsTaken,
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		return &tool.Result{Error: fmt.Sprintf("task: encoding result: %v", err)}, nil
	}

	if record.Status == StatusError {
		return &tool.Result{Output: string(encoded), Error: record.Error}, nil
	}
	return &tool.Result{Output: string(encoded)}, nil
}
