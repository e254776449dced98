package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"

	"adfbridge/internal/response"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeServer is a minimal streamable HTTP MCP server.
type fakeServer struct {
	mu         sync.Mutex
	sse        bool
	sessionID  string
	methods    []string
	headers    []http.Header
	calls      []map[string]any
	deleted    bool
	toolResult any
	toolError  *RPCError
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Method == http.MethodDelete {
		f.deleted = r.Header.Get(HeaderSessionID) == f.sessionID
		w.WriteHeader(http.StatusOK)
		return
	}

	var req struct {
		ID     *int64          `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	f.methods = append(f.methods, req.Method)
	f.headers = append(f.headers, r.Header.Clone())

	if req.Method != "initialize" && r.Header.Get(HeaderSessionID) != f.sessionID {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	if req.ID == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	out := map[string]any{"jsonrpc": "2.0", "id": *req.ID}
	switch req.Method {
	case "initialize":
		w.Header().Set(HeaderSessionID, f.sessionID)
		out["result"] = map[string]any{
			"protocolVersion": ProtocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": "fake-atlassian", "version": "0.1.0"},
		}
	case "tools/list":
		var params struct {
			Cursor string `json:"cursor"`
		}
		_ = json.Unmarshal(req.Params, &params)
		if params.Cursor == "" {
			out["result"] = map[string]any{
				"tools":      []map[string]any{{"name": "jira_get_issue"}, {"name": "jira_create_issue"}},
				"nextCursor": "page2",
			}
		} else {
			out["result"] = map[string]any{
				"tools": []map[string]any{{"name": "jira_update_issue", "description": "Update an issue"}},
			}
		}
	case "tools/call":
		var params map[string]any
		_ = json.Unmarshal(req.Params, &params)
		f.calls = append(f.calls, params)
		if f.toolError != nil {
			out["error"] = f.toolError
		} else {
			out["result"] = f.toolResult
		}
	default:
		out["error"] = map[string]any{"code": -32601, "message": "method not found"}
	}

	data, _ := json.Marshal(out)
	if f.sse {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, ": keep-alive\n\n")
		fmt.Fprintf(w, "event: message\ndata: {\"jsonrpc\":\"2.0\",\"method\":\"notifications/message\",\"params\":{}}\n\n")
		fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

type ClientSuite struct {
	suite.Suite
	fake   *fakeServer
	server *httptest.Server
	client *Client
	ctx    context.Context
	cancel context.CancelFunc
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.fake = &fakeServer{
		sessionID: "session-123",
		toolResult: map[string]any{
			"content": []map[string]any{{"type": "text", "text": `{"key":"GRW-1"}`}},
		},
	}
	s.server = httptest.NewServer(s.fake)
	s.client = NewClient(s.server.URL+"/mcp", 5*time.Second)
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 10*time.Second)
}

func (s *ClientSuite) TearDownTest() {
	s.NoError(s.client.Close(s.ctx))
	s.cancel()
	s.server.Close()
}

func (s *ClientSuite) TestHandshake() {
	s.Require().NoError(s.client.Connect(s.ctx))
	s.Require().NoError(s.client.Connect(s.ctx))

	info := s.client.ServerInfo()
	s.Require().NotNil(info)
	s.Equal("fake-atlassian", info.ServerInfo.Name)
	s.Equal([]string{"initialize", "notifications/initialized"}, s.fake.methods)

	s.Equal("session-123", s.fake.headers[1].Get(HeaderSessionID))
	s.Equal(ProtocolVersion, s.fake.headers[1].Get(HeaderProtocolVersion))
	s.Contains(s.fake.headers[0].Get("Accept"), "text/event-stream")
}

func (s *ClientSuite) TestListToolsFollowsCursor() {
	tools, err := s.client.ListTools(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"jira_get_issue", "jira_create_issue", "jira_update_issue"}, ToolNames(tools))

	tool, ok := FindTool(tools, "jira", "update")
	s.True(ok)
	s.Equal("jira_update_issue", tool.Name)
	s.Equal("Update an issue", tool.Description)

	_, ok = FindTool(tools, "confluence")
	s.False(ok)
}

func (s *ClientSuite) TestInvokeReturnsBlocks() {
	raw, err := s.client.Invoke(s.ctx, "jira_update_issue", map[string]any{
		"issue_key": "GRW-1",
		"fields":    map[string]any{"summary": "New"},
	})
	s.Require().NoError(err)

	res := response.Normalize(raw)
	s.True(res.Succeeded)
	s.Equal("GRW-1", res.Field("key"))

	s.Require().Len(s.fake.calls, 1)
	s.Equal("jira_update_issue", s.fake.calls[0]["name"])
	args := s.fake.calls[0]["arguments"].(map[string]any)
	s.Equal("GRW-1", args["issue_key"])
}

func (s *ClientSuite) TestInvokeOverEventStream() {
	s.fake.sse = true

	raw, err := s.client.Invoke(s.ctx, "jira_update_issue", map[string]any{"issue_key": "GRW-1"})
	s.Require().NoError(err)
	s.True(response.Normalize(raw).Succeeded)
}

func (s *ClientSuite) TestToolErrorFlag() {
	s.fake.toolResult = map[string]any{
		"content": []map[string]any{{"type": "text", "text": "Issue does not exist or you do not have permission"}},
		"isError": true,
	}

	raw, err := s.client.Invoke(s.ctx, "jira_update_issue", nil)
	s.Require().NoError(err)

	res := response.Normalize(raw)
	s.False(res.Succeeded)
	s.Equal("Issue does not exist or you do not have permission", res.ErrorMessage)
}

func (s *ClientSuite) TestRPCErrorBecomesErrorMapping() {
	s.fake.toolError = &RPCError{Code: -32602, Message: "Unknown tool: jira_update"}

	raw, err := s.client.Invoke(s.ctx, "jira_update", nil)
	s.Require().NoError(err)
	s.Equal(response.Mapping{"error": "Unknown tool: jira_update"}, raw)
}

func (s *ClientSuite) TestStructuredContentOnly() {
	s.fake.toolResult = map[string]any{
		"content":           []any{},
		"structuredContent": map[string]any{"key": "GRW-5"},
	}

	raw, err := s.client.Invoke(s.ctx, "jira_create_issue", nil)
	s.Require().NoError(err)
	s.Equal(response.Mapping{"key": "GRW-5"}, raw)
}

func (s *ClientSuite) TestCloseTerminatesSession() {
	s.Require().NoError(s.client.Connect(s.ctx))
	s.Require().NoError(s.client.Close(s.ctx))
	s.True(s.fake.deleted)
	s.Nil(s.client.ServerInfo())
}

func TestInvokeTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	defer client.Close(context.Background())

	_, err := client.Invoke(context.Background(), "jira_update_issue", nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "502") || !strings.Contains(err.Error(), "upstream down") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestReadEventStream(t *testing.T) {
	stream := "event: endpoint\ndata: /messages\n\n" +
		": comment\n" +
		"data: line one\ndata: line two\nid: 7\n\n" +
		"data: trailing"

	type event struct{ typ, data string }
	var got []event
	err := readEventStream(strings.NewReader(stream), func(typ, data string) bool {
		got = append(got, event{typ, data})
		return true
	})
	if err != nil {
		t.Fatalf("readEventStream: %v", err)
	}

	want := []event{
		{"endpoint", "/messages"},
		{"message", "line one\nline two"},
		{"message", "trailing"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestResponseFromStreamWithoutMatch(t *testing.T) {
	_, err := responseFromStream(strings.NewReader("data: {\"jsonrpc\":\"2.0\",\"id\":9,\"result\":{}}\n\n"), 1)
	if err == nil {
		t.Fatal("expected error for missing response")
	}
}
