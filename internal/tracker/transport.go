package tracker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"adfbridge/internal/logging"
	"adfbridge/internal/response"
)

// DefaultUpdateTool is the protocol server's partial-update tool.
const DefaultUpdateTool = "jira_update_issue"

// Credentials authenticate direct REST calls. They are passed explicitly
// and never read from the environment by this package.
type Credentials struct {
	BaseURL  string
	Username string
	APIToken string
}

// Complete reports whether every credential is set.
func (c Credentials) Complete() bool {
	return c.BaseURL != "" && c.Username != "" && c.APIToken != ""
}

// IssueURL returns the REST URL of one issue.
func (c Credentials) IssueURL(identifier string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/rest/api/3/issue/" + url.PathEscape(identifier)
}

// ToolInvoker calls a named tool on a protocol server.
type ToolInvoker interface {
	Invoke(ctx context.Context, tool string, args map[string]any) (response.Raw, error)
}

// JSONPutter performs an authenticated HTTP PUT with a JSON body.
type JSONPutter interface {
	PutJSON(ctx context.Context, url string, body any, creds Credentials) (status int, respBody []byte, err error)
}

// Transport delivers an update for one issue. The only implementations are
// those returned by ViaTool and ViaREST.
type Transport interface {
	Name() string
	deliver(ctx context.Context, identifier string, payload Payload) response.Result
}

// ViaTool routes updates through a protocol server tool. An empty toolName
// selects DefaultUpdateTool.
func ViaTool(invoker ToolInvoker, toolName string) Transport {
	if toolName == "" {
		toolName = DefaultUpdateTool
	}
	return toolTransport{invoker: invoker, tool: toolName}
}

// ViaREST routes updates straight to the tracker's REST API.
func ViaREST(putter JSONPutter, creds Credentials) Transport {
	return restTransport{putter: putter, creds: creds}
}

type toolTransport struct {
	invoker ToolInvoker
	tool    string
}

func (t toolTransport) Name() string { return "tool:" + t.tool }

func (t toolTransport) deliver(ctx context.Context, identifier string, payload Payload) response.Result {
	return invoke(ctx, t.invoker, t.tool, map[string]any{
		"issue_key": identifier,
		"fields":    map[string]any(payload),
	})
}

type restTransport struct {
	putter JSONPutter
	creds  Credentials
}

func (t restTransport) Name() string { return "rest" }

func (t restTransport) deliver(ctx context.Context, identifier string, payload Payload) response.Result {
	if t.putter == nil {
		return response.Failure("no REST client configured")
	}
	if t.creds.BaseURL == "" {
		return response.Failure("missing tracker base URL")
	}

	status, body, err := t.putter.PutJSON(ctx, t.creds.IssueURL(identifier), map[string]any{
		"fields": map[string]any(payload),
	}, t.creds)
	if err != nil {
		logging.TransportWarn("PUT %s failed: %v", identifier, err)
		return response.Failure(err.Error())
	}
	return response.Normalize(restOutcome(identifier, status, body))
}

// restOutcome expresses a REST answer as a Mapping so that it resolves
// through the same rules as tool responses.
func restOutcome(identifier string, status int, body []byte) response.Mapping {
	if status == http.StatusNoContent {
		return response.Mapping{"key": identifier, "status": status}
	}
	return response.Mapping{"error": fmt.Sprintf("HTTP %d: %s", status, strings.TrimSpace(string(body)))}
}
