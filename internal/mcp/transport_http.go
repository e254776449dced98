package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sync"
	"time"

	"adfbridge/internal/logging"
)

const maxErrorBody = 64 << 10

// httpTransport POSTs JSON-RPC messages to a single endpoint and tracks
// the session the server assigns.
type httpTransport struct {
	mu sync.RWMutex

	endpoint        string
	client          *http.Client
	sessionID       string
	protocolVersion string
}

func newHTTPTransport(endpoint string, timeout time.Duration) *httpTransport {
	return &httpTransport{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (t *httpTransport) session() (string, string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessionID, t.protocolVersion
}

func (t *httpTransport) setSession(id, version string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id != "" {
		t.sessionID = id
	}
	if version != "" {
		t.protocolVersion = version
	}
}

func (t *httpTransport) newRequest(ctx context.Context, method string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json, text/event-stream")

	sessionID, version := t.session()
	if sessionID != "" {
		req.Header.Set(HeaderSessionID, sessionID)
	}
	if version != "" {
		req.Header.Set(HeaderProtocolVersion, version)
	}
	return req, nil
}

// send POSTs one message. For requests (non-nil msg.ID) it returns the
// matching response; for notifications it returns nil.
func (t *httpTransport) send(ctx context.Context, msg rpcRequest) (*rpcResponse, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := t.newRequest(ctx, http.MethodPost, body)
	if err != nil {
		return nil, err
	}

	timer := logging.StartTimer(logging.CategoryTransport, "MCP "+msg.Method)
	defer timer.Stop()

	resp, err := t.client.Do(req)
	if err != nil {
		logging.TransportError("MCP %s to %s: %v", msg.Method, t.endpoint, err)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	t.setSession(resp.Header.Get(HeaderSessionID), "")

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	if msg.ID == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil
	}
	if resp.StatusCode == http.StatusAccepted {
		return nil, fmt.Errorf("server accepted %s without a response", msg.Method)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	var out *rpcResponse
	switch mediaType {
	case "text/event-stream":
		out, err = responseFromStream(resp.Body, *msg.ID)
		if err != nil {
			return nil, err
		}
	default:
		var decoded rpcResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		out = &decoded
	}

	if out.Error != nil {
		return out, out.Error
	}
	return out, nil
}

// terminate ends the session with DELETE. Servers that do not support
// explicit termination answer 405, which is not an error.
func (t *httpTransport) terminate(ctx context.Context) error {
	defer t.client.CloseIdleConnections()

	sessionID, _ := t.session()
	if sessionID == "" {
		return nil
	}

	req, err := t.newRequest(ctx, http.MethodDelete, nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to terminate session: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	t.mu.Lock()
	t.sessionID = ""
	t.mu.Unlock()

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusMethodNotAllowed {
		return fmt.Errorf("session termination returned status %d", resp.StatusCode)
	}
	return nil
}
