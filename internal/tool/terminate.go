package tool

import (
	"context"
	"encoding/json"
	"fmt"
)

// Terminate is the loop-control tool every tool-calling agent registers:
// dispatching it tells the agent the interaction is complete. It carries no
// behavior of its own beyond echoing the model's completion status — the
// agent loop watches for its name in the special-tool set and transitions
// to FINISHED after the dispatching step.
type Terminate struct{}

// TerminateName is the registered name the agent's special-tool set matches.
const TerminateName = "terminate"

func (Terminate) Name() string { return TerminateName }

func (Terminate) Description() string {
	return "Finish the current interaction. Call this when the request is fully handled " +
		"or when you cannot make further progress. No other tool runs after it."
}

func (Terminate) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"status": {
				"type": "string",
				"description": "Completion status of the interaction.",
				"enum": ["success", "failure"]
			}
		},
		"required": ["status"]
	}`)
}

func (Terminate) Execute(_ context.Context, args json.RawMessage) (*Result, error) {
	var in struct {
		Status string `json:"status"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &in); err != nil {
			return &Result{Error: fmt.Sprintf("invalid arguments: %v", err)}, nil
		}
	}
	if in.Status == "" {
		in.Status = "success"
	}
	return &Result{Output: "The interaction has been completed with status: " + in.Status}, nil
}
