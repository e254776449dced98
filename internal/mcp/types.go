// Package mcp is a client for Model Context Protocol servers that speak the
// streamable HTTP transport: JSON-RPC 2.0 messages POSTed to one endpoint,
// answered either with a JSON body or with a text/event-stream.
package mcp

import (
	"encoding/json"
	"fmt"

	"adfbridge/internal/response"
)

// ProtocolVersion is the protocol revision requested during initialize.
const ProtocolVersion = "2025-03-26"

// Header names of the streamable HTTP transport.
const (
	HeaderSessionID       = "Mcp-Session-Id"
	HeaderProtocolVersion = "MCP-Protocol-Version"
)

// ToolSchema describes one tool advertised by tools/list.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ServerInfo identifies the server implementation.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the server's answer to initialize.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
	Instructions    string         `json:"instructions,omitempty"`
}

// ContentBlock is one element of a tool result's content list.
type ContentBlock struct {
	Type     string  `json:"type"`
	Text     *string `json:"text,omitempty"`
	MimeType string  `json:"mimeType,omitempty"`
	Data     string  `json:"data,omitempty"`
}

// CallResult is the result of tools/call.
type CallResult struct {
	Content           []ContentBlock `json:"content"`
	StructuredContent any            `json:"structuredContent,omitempty"`
	IsError           bool           `json:"isError,omitempty"`
}

// Raw converts the result into the normalizer's input. Content blocks are
// preferred; a result carrying only structured content becomes a Mapping.
func (r CallResult) Raw() response.Raw {
	if len(r.Content) == 0 && r.StructuredContent != nil {
		return response.Classify(r.StructuredContent)
	}
	items := make([]response.Block, 0, len(r.Content))
	for _, c := range r.Content {
		items = append(items, response.Block{Type: c.Type, Text: c.Text})
	}
	return response.Blocks{Items: items, IsError: r.IsError}
}

// RPCError is a JSON-RPC error object returned by the server.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// rpcRequest is a JSON-RPC request or, with a nil ID, a notification.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}
