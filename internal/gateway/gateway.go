// Package gateway implements the Session Gateway: the map from session ids
// to agents, per-session request serialization, and the HTTP plus streaming
// surfaces through which interactive clients drive an agent.
//
// Serialization follows the single-worker model: each Session owns a
// request channel drained by one goroutine, so requests within a session
// are totally ordered while sessions stay independent of each other.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/haasonsaas/orcha/internal/agent"
	"github.com/haasonsaas/orcha/internal/llm"
	"github.com/haasonsaas/orcha/internal/message"
	"github.com/haasonsaas/orcha/internal/recorder"
)

var (
	activeSessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orcha_gateway_active_sessions",
		Help: "Number of live sessions held by the gateway.",
	})
	chatDurationHist = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "orcha_gateway_chat_duration_seconds",
		Help:    "Wall-clock duration of chat requests.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)

// AgentFactory builds a fresh agent for a new session. The gateway owns the
// returned agent for the session's lifetime and attaches the session's
// recorder to it.
type AgentFactory func(sessionID string) (*agent.Agent, error)

// Gateway maps session ids to agents and serializes requests per session.
type Gateway struct {
	model     llm.Model
	modelName string
	logDir    string
	newAgent  AgentFactory
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// Options configures a Gateway.
type Options struct {
	Model     llm.Model
	ModelName string
	LogDir    string
	NewAgent  AgentFactory
	Logger    *slog.Logger
}

// New constructs a Gateway. Model, LogDir and NewAgent are required.
func New(opts Options) (*Gateway, error) {
	if opts.Model == nil {
		return nil, fmt.Errorf("gateway: model is required")
	}
	if opts.NewAgent == nil {
		return nil, fmt.Errorf("gateway: agent factory is required")
	}
	if opts.LogDir == "" {
		return nil, fmt.Errorf("gateway: log dir is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		model:     opts.Model,
		modelName: opts.ModelName,
		logDir:    opts.LogDir,
		newAgent:  opts.NewAgent,
		logger:    logger.With("component", "gateway"),
		sessions:  make(map[string]*Session),
	}, nil
}

// Session pairs one agent with its recorder and the worker goroutine that
// serializes every request addressed to it.
type Session struct {
	ID       string
	Agent    *agent.Agent
	Recorder *recorder.Recorder

	requests  chan func()
	closeOnce sync.Once
}

// enqueue hands fn to the session worker, honoring ctx while the worker is
// busy with earlier requests.
func (s *Session) enqueue(ctx context.Context, fn func()) error {
	select {
	case s.requests <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.requests)
	})
}

// Session returns the session for id, creating it (and its agent, recorder
// and worker goroutine) if absent. An empty id allocates a fresh one.
func (g *Gateway) Session(id string) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, fmt.Errorf("gateway: closed")
	}
	if sess, ok := g.sessions[id]; ok {
		return sess, nil
	}

	a, err := g.newAgent(id)
	if err != nil {
		return nil, fmt.Errorf("gateway: build agent for session %s: %w", id, err)
	}
	rec, err := recorder.Open(g.logDir, id)
	if err != nil {
		return nil, fmt.Errorf("gateway: open recorder for session %s: %w", id, err)
	}
	a.Recorder = rec

	sess := &Session{
		ID:       id,
		Agent:    a,
		Recorder: rec,
		requests: make(chan func(), 8),
	}
	go func() {
		for fn := range sess.requests {
			fn()
		}
	}()

	g.sessions[id] = sess
	activeSessionsGauge.Set(float64(len(g.sessions)))
	g.logger.Info("session created", "session_id", id)
	return sess, nil
}

// ChatResponse is the body returned for one chat request: the messages the
// run appended, the run summary, and the session's collected event log.
type ChatResponse struct {
	SessionID string            `json:"session_id"`
	Messages  []message.Message `json:"messages"`
	Summary   agent.Summary     `json:"summary"`
	Logs      []recorder.Record `json:"logs"`
}

// Chat routes one user message to the session's agent and waits for the
// run to complete. The session is looked up or created on the calling
// goroutine; the step-counter reset and the run itself execute on the
// session worker, so two Chat calls against the same session can never
// interleave.
func (g *Gateway) Chat(ctx context.Context, sessionID, userMessage string) (ChatResponse, error) {
	sess, err := g.Session(sessionID)
	if err != nil {
		return ChatResponse{}, err
	}

	type chatResult struct {
		resp ChatResponse
		err  error
	}
	done := make(chan chatResult, 1)
	if err := sess.enqueue(ctx, func() {
		resp, err := g.runChat(ctx, sess, userMessage)
		done <- chatResult{resp, err}
	}); err != nil {
		return ChatResponse{}, err
	}

	select {
	case r := <-done:
		return r.resp, r.err
	case <-ctx.Done():
		return ChatResponse{}, ctx.Err()
	}
}

func (g *Gateway) runChat(ctx context.Context, sess *Session, userMessage string) (ChatResponse, error) {
	start := time.Now()
	defer func() { chatDurationHist.Observe(time.Since(start).Seconds()) }()

	snapshot := sess.Agent.Memory.Len()
	sess.Agent.ResetToIdle()

	_, runErr := sess.Agent.Run(ctx, userMessage)

	usage := g.model.Usage()
	summary := sess.Agent.GetRunSummary(&agent.LLMUsageStats{
		InputTokens:      usage.TotalInputTokens,
		CompletionTokens: usage.TotalCompletionTokens,
	})

	all := sess.Agent.Memory.Messages()
	var appended []message.Message
	if snapshot <= len(all) {
		appended = all[snapshot:]
	} else {
		// Compaction mid-run can shrink the history below the snapshot;
		// return the whole post-compaction view in that case.
		appended = all
	}

	logs, err := recorder.ReadAll(g.logDir, sess.ID)
	if err != nil {
		g.logger.Warn("read run log failed", "session_id", sess.ID, "error", err)
	}

	resp := ChatResponse{
		SessionID: sess.ID,
		Messages:  appended,
		Summary:   summary,
		Logs:      logs,
	}
	if runErr != nil {
		g.logger.Error("agent run failed", "session_id", sess.ID, "error", runErr)
		return resp, runErr
	}
	return resp, nil
}

// Reset discards the session's agent, recorder and worker. The next Chat
// against the same id starts a fresh conversation.
func (g *Gateway) Reset(sessionID string) (bool, error) {
	g.mu.Lock()
	sess, ok := g.sessions[sessionID]
	if !ok {
		g.mu.Unlock()
		return false, nil
	}
	sess.close()
	closeErr := sess.Recorder.Close()
	delete(g.sessions, sessionID)
	activeSessionsGauge.Set(float64(len(g.sessions)))
	g.mu.Unlock()

	if closeErr != nil {
		return true, fmt.Errorf("gateway: close recorder for session %s: %w", sessionID, closeErr)
	}
	g.logger.Info("session reset", "session_id", sessionID)
	return true, nil
}

// Status reports the gateway's health for GET /api/status.
type Status struct {
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
	Model     string `json:"model"`
}

// Status returns the current health snapshot.
func (g *Gateway) Status() Status {
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	status := "ok"
	if closed {
		status = "closed"
	}
	return Status{
		Status:    status,
		Connected: !closed,
		Model:     g.modelName,
	}
}

// SessionCount returns how many sessions are currently live.
func (g *Gateway) SessionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// Close tears down every session: workers stop, recorders close. Resources
// are released before the session entries are discarded.
func (g *Gateway) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	var firstErr error
	for _, sess := range g.sessions {
		sess.close()
		if err := sess.Recorder.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	g.sessions = make(map[string]*Session)
	activeSessionsGauge.Set(0)
	g.mu.Unlock()
	return firstErr
}
