package gateway

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haasonsaas/orcha/internal/recorder"
)

const (
	streamWriteWait  = 10 * time.Second
	streamBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 8192,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// StreamEvent is one server-pushed JSON frame on the streaming channel.
// Event is one of: connected, thinking, tool_call, tool_result, step,
// token_usage, message, complete, error.
type StreamEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type streamRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// handleStream upgrades to a websocket, reads one chat request, and mirrors
// the run's recorder events to the client as they happen. Frame order
// within a run matches the recorder's order exactly: the subscriber runs
// under the recorder's lock and frames drain through a single writer.
func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var req streamRequest
	if err := conn.ReadJSON(&req); err != nil {
		g.writeFrame(conn, StreamEvent{Event: "error", Data: map[string]string{"message": "invalid request frame: " + err.Error()}})
		return
	}
	if req.Message == "" {
		g.writeFrame(conn, StreamEvent{Event: "error", Data: map[string]string{"message": "message is required"}})
		return
	}

	sess, err := g.Session(req.SessionID)
	if err != nil {
		g.writeFrame(conn, StreamEvent{Event: "error", Data: map[string]string{"message": err.Error()}})
		return
	}

	if !g.writeFrame(conn, StreamEvent{Event: "connected", Data: map[string]string{"session_id": sess.ID}}) {
		return
	}

	frames := make(chan StreamEvent, streamBufferSize)
	cancel := sess.Recorder.Subscribe(func(rec recorder.Record) {
		ev, ok := mapRecord(rec)
		if !ok {
			return
		}
		select {
		case frames <- ev:
		default:
			// A slow client never blocks the agent loop; overflow frames
			// are dropped and the complete frame still carries the summary.
		}
	})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for ev := range frames {
			if !g.writeFrame(conn, ev) {
				return
			}
		}
	}()

	resp, runErr := g.Chat(r.Context(), sess.ID, req.Message)

	cancel()
	close(frames)
	<-writerDone

	usage := g.model.Usage()
	g.writeFrame(conn, StreamEvent{Event: "token_usage", Data: map[string]int64{
		"input_tokens":      usage.TotalInputTokens,
		"completion_tokens": usage.TotalCompletionTokens,
	}})

	if runErr != nil {
		g.writeFrame(conn, StreamEvent{Event: "error", Data: map[string]any{
			"message": runErr.Error(),
			"summary": resp.Summary,
		}})
		return
	}
	g.writeFrame(conn, StreamEvent{Event: "complete", Data: resp.Summary})
}

func (g *Gateway) writeFrame(conn *websocket.Conn, ev StreamEvent) bool {
	conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := conn.WriteJSON(ev); err != nil {
		g.logger.Debug("stream write failed", "event", ev.Event, "error", err)
		return false
	}
	return true
}

// mapRecord translates one recorder Record into its streaming frame. Run
// boundary events are omitted, since "connected" and "complete" frames
// already bracket the run; step_end events are omitted as well.
func mapRecord(rec recorder.Record) (StreamEvent, bool) {
	switch rec.Event {
	case recorder.EventStepStart:
		return StreamEvent{Event: "step", Data: rec.Data}, true
	case recorder.EventMessage:
		data, _ := rec.Data.(map[string]any)
		role, _ := data["role"].(string)
		switch role {
		case "assistant":
			if calls, ok := data["tool_calls"].(int); ok && calls > 0 {
				return StreamEvent{Event: "tool_call", Data: rec.Data}, true
			}
			return StreamEvent{Event: "thinking", Data: rec.Data}, true
		case "tool":
			return StreamEvent{Event: "tool_result", Data: rec.Data}, true
		default:
			return StreamEvent{Event: "message", Data: rec.Data}, true
		}
	default:
		return StreamEvent{}, false
	}
}
