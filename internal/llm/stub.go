package llm

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/haasonsaas/orcha/internal/message"
	"github.com/haasonsaas/orcha/internal/tool"
)

// Stub is a scriptable Model used by package tests and the evaluation
// harness's dry-run mode. It is not wired to any real provider; the
// Anthropic adapter in this package satisfies the same Model interface for
// live use.
type Stub struct {
	mu        sync.Mutex
	responses []ToolResponse
	asks      []string
	next      int

	inputTokens      int64
	completionTokens int64

	// AskFn, when set, overrides Ask entirely.
	AskFn func(ctx context.Context, messages []message.Message, system []string, model string) (string, error)

	// TokensPerMessage is the fixed per-message token cost CountMessageTokens
	// charges; 0 falls back to counting message content length/4, matching
	// the teacher's compaction package's chars-per-token heuristic.
	TokensPerMessage int
}

// NewStub returns a Stub with no scripted responses.
func NewStub() *Stub {
	return &Stub{}
}

// Enqueue appends a scripted ToolResponse to be returned by the next
// AskWithTools call, in FIFO order.
func (s *Stub) Enqueue(resp ToolResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, resp)
}

// EnqueueText enqueues a plain assistant reply with no tool calls.
func (s *Stub) EnqueueText(content string) {
	s.Enqueue(ToolResponse{Message: message.Assistant(content)})
}

// EnqueueToolCall enqueues an assistant reply requesting a single tool call.
func (s *Stub) EnqueueToolCall(id, functionName string, args []byte) {
	call := message.ToolCall{ID: id, FunctionName: functionName, Arguments: args}
	s.Enqueue(ToolResponse{
		Message:   message.Assistant("", call),
		ToolCalls: []message.ToolCall{call},
	})
}

// Ask implements Model.
func (s *Stub) Ask(ctx context.Context, messages []message.Message, system []string, model string) (string, error) {
	if s.AskFn != nil {
		return s.AskFn(ctx, messages, system, model)
	}
	resp, err := s.AskWithTools(ctx, messages, nil, system, ToolChoiceNone)
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// AskWithTools implements Model, replaying scripted responses in order. If
// the script is exhausted it returns an empty assistant reply with no
// tool calls, so a caller's step loop terminates rather than blocking.
func (s *Stub) AskWithTools(ctx context.Context, messages []message.Message, schemas []tool.Param, system []string, choice ToolChoice) (ToolResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	atomic.AddInt64(&s.inputTokens, int64(s.countLocked(messages)))

	var resp ToolResponse
	if s.next < len(s.responses) {
		resp = s.responses[s.next]
		s.next++
	} else {
		resp = ToolResponse{Message: message.Assistant("")}
	}
	atomic.AddInt64(&s.completionTokens, int64(len(resp.Message.Content)/4+1))
	return resp, nil
}

// CountMessageTokens implements Model.
func (s *Stub) CountMessageTokens(messages []message.Message) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked(messages), nil
}

func (s *Stub) countLocked(messages []message.Message) int {
	per := s.TokensPerMessage
	total := 0
	for _, m := range messages {
		if per > 0 {
			total += per
			continue
		}
		total += len(m.Content)/4 + 1
	}
	return total
}

// Usage implements Model.
func (s *Stub) Usage() TokenUsage {
	return TokenUsage{
		TotalInputTokens:      atomic.LoadInt64(&s.inputTokens),
		TotalCompletionTokens: atomic.LoadInt64(&s.completionTokens),
	}
}
