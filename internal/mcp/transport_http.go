package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const sseReconnectDelay = 5 * time.Second

// HTTPTransport posts JSON-RPC requests to the server's endpoint and
// listens for server-pushed notifications on a server-sent-events side
// channel at <url>/sse.
type HTTPTransport struct {
	config *ServerConfig
	logger *slog.Logger
	client *http.Client

	notifications chan *rpcNotification
	connected     atomic.Bool
	stop          chan struct{}
	wg            sync.WaitGroup
}

// NewHTTPTransport returns an unconnected HTTP transport for cfg.
func NewHTTPTransport(cfg *ServerConfig) *HTTPTransport {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCallTimeout
	}
	return &HTTPTransport{
		config:        cfg,
		logger:        slog.Default().With("mcp_server", cfg.ID, "transport", "http"),
		client:        &http.Client{Timeout: timeout},
		notifications: make(chan *rpcNotification, 100),
		stop:          make(chan struct{}),
	}
}

// Connect marks the transport live and starts the SSE listener. The actual
// handshake (initialize) is the Client's job; HTTP needs no connection
// setup of its own.
func (t *HTTPTransport) Connect(ctx context.Context) error {
	if t.config.URL == "" {
		return fmt.Errorf("URL is required for http transport")
	}
	t.connected.Store(true)
	t.logger.Info("http transport ready", "url", t.config.URL)

	t.wg.Add(1)
	go t.sseLoop(ctx)
	return nil
}

// Close stops the SSE listener; in-flight Calls fail via their contexts.
func (t *HTTPTransport) Close() error {
	t.connected.Store(false)
	close(t.stop)
	t.wg.Wait()
	return nil
}

// Call posts one request and decodes the response body.
func (t *HTTPTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !t.connected.Load() {
		return nil, fmt.Errorf("%w: server %s", errNoSession, t.config.ID)
	}

	req := rpcRequest{JSONRPC: "2.0", ID: uuid.NewString(), Method: method}
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = encoded
	}

	resp, err := t.post(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

// Notify posts one notification and discards the response body.
func (t *HTTPTransport) Notify(ctx context.Context, method string, params any) error {
	if !t.connected.Load() {
		return fmt.Errorf("%w: server %s", errNoSession, t.config.ID)
	}

	notif := rpcNotification{JSONRPC: "2.0", Method: method}
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		notif.Params = encoded
	}

	resp, err := t.post(ctx, notif)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (t *HTTPTransport) post(ctx context.Context, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range t.config.Headers {
		httpReq.Header.Set(k, v)
	}
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	return resp, nil
}

// Notifications implements Transport.
func (t *HTTPTransport) Notifications() <-chan *rpcNotification {
	return t.notifications
}

// Connected implements Transport.
func (t *HTTPTransport) Connected() bool {
	return t.connected.Load()
}

// sseLoop keeps one SSE connection open, reconnecting with a fixed delay
// until the transport closes.
func (t *HTTPTransport) sseLoop(ctx context.Context) {
	defer t.wg.Done()

	sseURL := strings.TrimSuffix(t.config.URL, "/") + "/sse"
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		default:
		}

		t.readSSE(ctx, sseURL)

		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-time.After(sseReconnectDelay):
		}
	}
}

func (t *HTTPTransport) readSSE(ctx context.Context, sseURL string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sseURL, nil)
	if err != nil {
		t.logger.Debug("create SSE request failed", "error", err)
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	for k, v := range t.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Debug("SSE connection failed", "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.logger.Debug("SSE returned non-200", "status", resp.StatusCode)
		return
	}
	t.logger.Debug("SSE connected", "url", sseURL)

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		default:
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var notif rpcNotification
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &notif); err != nil {
			continue
		}
		if notif.Method == "" {
			continue
		}
		select {
		case t.notifications <- &notif:
		default:
			t.logger.Warn("notification channel full, dropping", "method", notif.Method)
		}
	}
	if err := scanner.Err(); err != nil {
		t.logger.Debug("SSE scanner error", "error", err)
	}
}
