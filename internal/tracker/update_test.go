package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adfbridge/internal/adf"
	"adfbridge/internal/response"
)

type toolCall struct {
	Tool string
	Args map[string]any
}

// fakeInvoker answers every call with the same raw response.
type fakeInvoker struct {
	mu    sync.Mutex
	raw   response.Raw
	err   error
	calls []toolCall
}

func (f *fakeInvoker) Invoke(_ context.Context, tool string, args map[string]any) (response.Raw, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, toolCall{Tool: tool, Args: args})
	return f.raw, f.err
}

type putCall struct {
	URL   string
	Body  any
	Creds Credentials
}

type fakePutter struct {
	status int
	body   string
	err    error
	calls  []putCall
}

func (f *fakePutter) PutJSON(_ context.Context, url string, body any, creds Credentials) (int, []byte, error) {
	f.calls = append(f.calls, putCall{URL: url, Body: body, Creds: creds})
	return f.status, []byte(f.body), f.err
}

type panickyInvoker struct{}

func (panickyInvoker) Invoke(context.Context, string, map[string]any) (response.Raw, error) {
	panic("connection reset")
}

var testCreds = Credentials{
	BaseURL:  "https://example.atlassian.net/",
	Username: "bot@example.com",
	APIToken: "secret",
}

func description() *adf.Node {
	doc := adf.Document(
		adf.Heading(2, adf.Text("Release notes")),
		adf.Paragraph(adf.Text("Fixed ", adf.Strong()), adf.Text("the login bug.")),
		adf.CodeBlock("make test", "bash"),
	)
	return &doc
}

func toJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestBuildPayloadIncludesOnlySuppliedFields(t *testing.T) {
	tests := []struct {
		name   string
		update Update
		keys   []string
	}{
		{name: "nothing", update: Update{Identifier: "GRW-1"}, keys: nil},
		{name: "summary only", update: Update{Identifier: "GRW-1", Summary: "New title"}, keys: []string{"summary"}},
		{name: "description only", update: Update{Identifier: "GRW-1", Description: description()}, keys: []string{"description"}},
		{name: "both", update: Update{Identifier: "GRW-1", Summary: "t", Description: description()}, keys: []string{"description", "summary"}},
		{name: "extra fields", update: Update{Identifier: "GRW-1", Fields: map[string]any{"labels": []string{"a"}}}, keys: []string{"labels"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := BuildPayload(tt.update)
			var keys []string
			for k, v := range p {
				keys = append(keys, k)
				assert.NotNil(t, v, "field %s", k)
			}
			assert.ElementsMatch(t, tt.keys, keys)
			assert.NotContains(t, toJSON(t, p), "null")
		})
	}
}

func TestBuildPayloadExtrasNeverOverride(t *testing.T) {
	p := BuildPayload(Update{
		Identifier:  "GRW-1",
		Summary:     "kept",
		Description: description(),
		Fields:      map[string]any{"summary": "dropped", "description": "dropped", "priority": map[string]any{"name": "High"}},
	})
	assert.Equal(t, "kept", p[FieldSummary])
	assert.IsType(t, adf.Node{}, p[FieldDescription])
	assert.Equal(t, map[string]any{"name": "High"}, p["priority"])

	p = BuildPayload(Update{Identifier: "GRW-1", Fields: map[string]any{"summary": "ignored"}})
	assert.NotContains(t, p, FieldSummary)
}

func TestBuildPayloadCopiesDescription(t *testing.T) {
	doc := description()
	p := BuildPayload(Update{Identifier: "GRW-1", Description: doc})
	before := toJSON(t, p)

	doc.Content[0].Content[0].Text = "mutated"
	doc.Content = append(doc.Content, adf.Paragraph())

	assert.Equal(t, before, toJSON(t, p))
}

func TestSubmitUpdateViaTool(t *testing.T) {
	inv := &fakeInvoker{raw: response.Blocks{Items: []response.Block{response.TextBlock(`{"key":"GRW-1"}`)}}}

	res := SubmitUpdate(context.Background(), ViaTool(inv, ""), Update{
		Identifier:  "GRW-1",
		Summary:     "New title",
		Description: description(),
	})

	require.True(t, res.Succeeded, res.ErrorMessage)
	assert.Equal(t, map[string]any{"key": "GRW-1"}, res.Payload)
	require.Len(t, inv.calls, 1)

	call := inv.calls[0]
	assert.Equal(t, DefaultUpdateTool, call.Tool)
	assert.Equal(t, "GRW-1", call.Args["issue_key"])

	var wire map[string]any
	require.NoError(t, json.Unmarshal([]byte(toJSON(t, call.Args)), &wire))
	fields := wire["fields"].(map[string]any)
	assert.Equal(t, "New title", fields["summary"])
	assert.Equal(t, "doc", fields["description"].(map[string]any)["type"])
}

func TestSubmitUpdateToolErrors(t *testing.T) {
	tests := []struct {
		name    string
		invoker ToolInvoker
		message string
	}{
		{
			name:    "remote error",
			invoker: &fakeInvoker{raw: response.Blocks{Items: []response.Block{response.TextBlock(`{"error":"no permission"}`)}}},
			message: "no permission",
		},
		{
			name:    "transport error",
			invoker: &fakeInvoker{err: errors.New("dial tcp 127.0.0.1:8000: connection refused")},
			message: "connection refused",
		},
		{
			name:    "empty mapping",
			invoker: &fakeInvoker{raw: response.Mapping{}},
			message: response.MsgNoMarker,
		},
		{
			name:    "malformed text",
			invoker: &fakeInvoker{raw: response.Blocks{Items: []response.Block{response.TextBlock(`{oops`)}}},
			message: "parse response text",
		},
		{
			name:    "invoker panics",
			invoker: panickyInvoker{},
			message: "connection reset",
		},
		{
			name:    "nil invoker",
			invoker: nil,
			message: "no tool invoker",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var res response.Result
			assert.NotPanics(t, func() {
				res = SubmitUpdate(context.Background(), ViaTool(tt.invoker, "custom_update"), Update{Identifier: "GRW-1", Summary: "x"})
			})
			assert.False(t, res.Succeeded)
			assert.Contains(t, res.ErrorMessage, tt.message)
		})
	}
}

func TestSubmitUpdateViaREST(t *testing.T) {
	t.Run("204 succeeds", func(t *testing.T) {
		putter := &fakePutter{status: 204}
		res := SubmitUpdate(context.Background(), ViaREST(putter, testCreds), Update{Identifier: "GRW-1", Description: description()})

		require.True(t, res.Succeeded, res.ErrorMessage)
		assert.Equal(t, "GRW-1", res.Field("key"))
		require.Len(t, putter.calls, 1)
		assert.Equal(t, "https://example.atlassian.net/rest/api/3/issue/GRW-1", putter.calls[0].URL)
		assert.Equal(t, testCreds, putter.calls[0].Creds)

		body := putter.calls[0].Body.(map[string]any)
		fields := body["fields"].(map[string]any)
		assert.Contains(t, fields, "description")
		assert.NotContains(t, fields, "summary")
	})

	t.Run("400 carries the body", func(t *testing.T) {
		putter := &fakePutter{status: 400, body: "bad field"}
		res := SubmitUpdate(context.Background(), ViaREST(putter, testCreds), Update{Identifier: "GRW-1", Summary: "x"})

		assert.False(t, res.Succeeded)
		assert.Contains(t, res.ErrorMessage, "bad field")
		assert.Contains(t, res.ErrorMessage, "HTTP 400")
	})

	t.Run("200 is not the success status", func(t *testing.T) {
		res := SubmitUpdate(context.Background(), ViaREST(&fakePutter{status: 200, body: "{}"}, testCreds), Update{Identifier: "GRW-1", Summary: "x"})
		assert.False(t, res.Succeeded)
	})

	t.Run("transport error", func(t *testing.T) {
		putter := &fakePutter{err: errors.New("tls handshake timeout")}
		res := SubmitUpdate(context.Background(), ViaREST(putter, testCreds), Update{Identifier: "GRW-1", Summary: "x"})
		assert.False(t, res.Succeeded)
		assert.Equal(t, "tls handshake timeout", res.ErrorMessage)
	})

	t.Run("missing base URL", func(t *testing.T) {
		putter := &fakePutter{status: 204}
		res := SubmitUpdate(context.Background(), ViaREST(putter, Credentials{}), Update{Identifier: "GRW-1", Summary: "x"})
		assert.False(t, res.Succeeded)
		assert.Empty(t, putter.calls)
	})
}

func TestSubmitUpdateRejectsBeforeSending(t *testing.T) {
	bad := adf.Document(adf.Paragraph(adf.Node{Type: adf.KindText, Text: "x", Content: []adf.Node{}}))
	misplaced := adf.Document(adf.Text("loose"))
	tests := []struct {
		name      string
		transport func(inv *fakeInvoker) Transport
		update    Update
		message   string
	}{
		{name: "empty identifier", update: Update{Summary: "x"}, message: "identifier"},
		{name: "blank identifier", update: Update{Identifier: "  ", Summary: "x"}, message: "identifier"},
		{name: "invalid description", update: Update{Identifier: "GRW-1", Description: &bad}, message: "invalid description"},
		{name: "misplaced description node", update: Update{Identifier: "GRW-1", Description: &misplaced}, message: "invalid description"},
		{name: "no fields", update: Update{Identifier: "GRW-1"}, message: "no fields"},
		{name: "no transport", transport: func(*fakeInvoker) Transport { return nil }, update: Update{Identifier: "GRW-1", Summary: "x"}, message: "no transport"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &fakeInvoker{raw: response.Mapping{"key": "GRW-1"}}
			transport := ViaTool(inv, "")
			if tt.transport != nil {
				transport = tt.transport(inv)
			}
			res := SubmitUpdate(context.Background(), transport, tt.update)
			assert.False(t, res.Succeeded)
			assert.Contains(t, res.ErrorMessage, tt.message)
			assert.Empty(t, inv.calls)
		})
	}
}

func TestSubmitUpdateIsIdempotent(t *testing.T) {
	transports := map[string]Transport{
		"tool": ViaTool(&fakeInvoker{raw: response.Blocks{Items: []response.Block{response.TextBlock(`{"key":"GRW-1","fields":{"n":1}}`)}}}, ""),
		"rest": ViaREST(&fakePutter{status: 204}, testCreds),
	}
	for name, transport := range transports {
		t.Run(name, func(t *testing.T) {
			u := Update{Identifier: "GRW-1", Summary: "same", Description: description()}
			first := SubmitUpdate(context.Background(), transport, u)
			second := SubmitUpdate(context.Background(), transport, u)
			if diff := cmp.Diff(first, second); diff != "" {
				t.Errorf("results differ (-first +second):\n%s", diff)
			}
		})
	}
}

func TestSubmitUpdateConcurrentIdentifiers(t *testing.T) {
	inv := &fakeInvoker{raw: response.Mapping{"updated": true}}
	transport := ViaTool(inv, "")

	var wg sync.WaitGroup
	results := make([]response.Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = SubmitUpdate(context.Background(), transport, Update{
				Identifier: "GRW-" + string(rune('1'+i)),
				Summary:    "parallel",
			})
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		assert.True(t, res.Succeeded)
	}
	assert.Len(t, inv.calls, len(results))
}

func TestTransportNames(t *testing.T) {
	assert.Equal(t, "tool:jira_update_issue", ViaTool(nil, "").Name())
	assert.Equal(t, "tool:custom", ViaTool(nil, "custom").Name())
	assert.Equal(t, "rest", ViaREST(nil, Credentials{}).Name())
}

func TestCredentials(t *testing.T) {
	assert.True(t, testCreds.Complete())
	assert.False(t, Credentials{BaseURL: "x"}.Complete())
	assert.Equal(t, "https://example.atlassian.net/rest/api/3/issue/GRW-7", testCreds.IssueURL("GRW-7"))
}
