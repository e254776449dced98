package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"adfbridge/internal/logging"
	"adfbridge/internal/response"
)

// DefaultEndpoint is where a locally started protocol server listens.
const DefaultEndpoint = "http://localhost:8000/mcp"

// Client talks to one MCP server. It is safe for concurrent use; the first
// call that needs a session performs the initialize handshake.
type Client struct {
	transport *httpTransport
	nextID    atomic.Int64

	mu   sync.Mutex
	info *InitializeResult

	clientName    string
	clientVersion string
}

// NewClient returns a client for endpoint. A zero timeout means no limit
// beyond the caller's context.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		transport:     newHTTPTransport(endpoint, timeout),
		clientName:    "adfbridge",
		clientVersion: "1.0.0",
	}
}

// Endpoint returns the server URL.
func (c *Client) Endpoint() string { return c.transport.endpoint }

func (c *Client) request(ctx context.Context, method string, params any) (*rpcResponse, error) {
	id := c.nextID.Add(1)
	return c.transport.send(ctx, rpcRequest{JSONRPC: "2.0", ID: &id, Method: method, Params: params})
}

func (c *Client) notify(ctx context.Context, method string) error {
	_, err := c.transport.send(ctx, rpcRequest{JSONRPC: "2.0", Method: method})
	return err
}

// Connect performs the initialize handshake. It is a no-op once connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.info != nil {
		return nil
	}

	resp, err := c.request(ctx, "initialize", map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]string{
			"name":    c.clientName,
			"version": c.clientVersion,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to connect to MCP server at %s: %w", c.transport.endpoint, err)
	}

	var info InitializeResult
	if err := json.Unmarshal(resp.Result, &info); err != nil {
		return fmt.Errorf("failed to parse initialize result: %w", err)
	}
	c.transport.setSession("", info.ProtocolVersion)

	if err := c.notify(ctx, "notifications/initialized"); err != nil {
		return fmt.Errorf("failed to confirm initialization: %w", err)
	}

	c.info = &info
	logging.Transport("MCP session established with %s %s (protocol %s)",
		info.ServerInfo.Name, info.ServerInfo.Version, info.ProtocolVersion)
	return nil
}

// ServerInfo returns the initialize result, or nil before Connect.
func (c *Client) ServerInfo() *InitializeResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.info == nil {
		return nil
	}
	info := *c.info
	return &info
}

// ListTools returns every tool the server advertises, following
// pagination cursors.
func (c *Client) ListTools(ctx context.Context) ([]ToolSchema, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	var tools []ToolSchema
	cursor := ""
	for {
		var params any
		if cursor != "" {
			params = map[string]any{"cursor": cursor}
		}
		resp, err := c.request(ctx, "tools/list", params)
		if err != nil {
			return nil, fmt.Errorf("failed to list tools: %w", err)
		}

		var page struct {
			Tools      []ToolSchema `json:"tools"`
			NextCursor string       `json:"nextCursor"`
		}
		if err := json.Unmarshal(resp.Result, &page); err != nil {
			return nil, fmt.Errorf("failed to parse tools response: %w", err)
		}
		tools = append(tools, page.Tools...)
		if page.NextCursor == "" || page.NextCursor == cursor {
			break
		}
		cursor = page.NextCursor
	}

	logging.TransportDebug("MCP server returned %d tools", len(tools))
	return tools, nil
}

// CallTool invokes a tool. Protocol-level errors are returned as
// *RPCError; tool-level failures come back with IsError set.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}

	resp, err := c.request(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return nil, err
	}

	var result CallResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to parse tool result: %w", err)
	}
	return &result, nil
}

// Invoke calls a tool and returns its result as a normalizer input. A
// JSON-RPC error object becomes a Mapping carrying an "error" key; only
// transport failures are returned as errors.
func (c *Client) Invoke(ctx context.Context, tool string, args map[string]any) (response.Raw, error) {
	logging.TransportDebug("tools/call %s", tool)

	result, err := c.CallTool(ctx, tool, args)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return response.Mapping{"error": rpcErr.Message}, nil
		}
		return nil, err
	}
	return result.Raw(), nil
}

// Close terminates the session, if any.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	c.info = nil
	c.mu.Unlock()
	return c.transport.terminate(ctx)
}

// FindTool returns the first tool whose name contains every word, ignoring
// case.
func FindTool(tools []ToolSchema, words ...string) (ToolSchema, bool) {
	for _, tool := range tools {
		name := strings.ToLower(tool.Name)
		match := true
		for _, w := range words {
			if !strings.Contains(name, strings.ToLower(w)) {
				match = false
				break
			}
		}
		if match {
			return tool, true
		}
	}
	return ToolSchema{}, false
}

// ToolNames returns the names of tools in order.
func ToolNames(tools []ToolSchema) []string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}
