// Package response turns the different shapes a remote issue-tracker call
// can answer with into one Result.
//
// The tool layer does not promise a stable shape across versions, so raw
// responses are classified into a closed set of variants (Blocks, Mapping,
// Opaque) and Normalize resolves every variant, including malformed ones,
// to a Result. Nothing in this package panics or returns an error.
package response

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Raw is one of Blocks, Mapping or Opaque.
type Raw interface {
	isRaw()
}

// Block is one content block of a tool result. Text is nil for blocks
// that carry no text (images, embedded resources).
type Block struct {
	Type string  `json:"type"`
	Text *string `json:"text,omitempty"`
}

// TextBlock returns a text block holding s.
func TextBlock(s string) Block {
	return Block{Type: "text", Text: &s}
}

// Blocks is an ordered list of content blocks, the shape MCP tools/call
// results take. IsError is set when the protocol server flagged the call
// as failed; the first block's text then describes the failure.
type Blocks struct {
	Items   []Block
	IsError bool
}

// Mapping is a plain JSON object.
type Mapping map[string]any

// Opaque is any other value.
type Opaque struct {
	Value any
}

func (Blocks) isRaw()  {}
func (Mapping) isRaw() {}
func (Opaque) isRaw()  {}

// Messages used for failures that carry no remote text.
const (
	MsgEmpty      = "unrecognized or empty response"
	MsgNoMarker   = "response carries neither a success marker nor an error"
	MsgToolFailed = "tool call failed without a message"
)

// successMarkers are keys whose presence in a Mapping signals success.
var successMarkers = []string{"key", "id", "issue"}

// successFlags are keys whose truthy value in a Mapping signals success.
var successFlags = []string{"success", "updated"}

// Normalize resolves raw into a Result. It is total: every input,
// including nil and malformed embedded JSON, yields a Result.
func Normalize(raw Raw) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Failure(fmt.Sprintf("normalize response: %v", r))
		}
	}()

	switch v := raw.(type) {
	case Blocks:
		return normalizeBlocks(v)
	case Mapping:
		return normalizeMapping(v)
	case Opaque:
		return normalizeOpaque(v.Value)
	case nil:
		return Failure(MsgEmpty)
	default:
		return normalizeOpaque(v)
	}
}

func normalizeBlocks(b Blocks) Result {
	if len(b.Items) == 0 || b.Items[0].Text == nil {
		if b.IsError {
			return Failure(MsgToolFailed)
		}
		// Not the list-of-blocks shape; fall through to the truthiness rule.
		return normalizeOpaque(b.Items)
	}

	text := *b.Items[0].Text
	if b.IsError {
		if parsed, err := parseJSON(text); err == nil {
			if msg, ok := errorMessage(parsed); ok {
				return Failure(msg)
			}
		}
		if strings.TrimSpace(text) == "" {
			return Failure(MsgToolFailed)
		}
		return Failure(text)
	}

	parsed, err := parseJSON(text)
	if err != nil {
		return Failure(fmt.Sprintf("parse response text: %v", err))
	}
	if parsed == nil {
		return Failure(MsgEmpty)
	}
	if msg, ok := errorMessage(parsed); ok {
		return Failure(msg)
	}
	return Success(parsed)
}

func normalizeMapping(m Mapping) Result {
	if msg, ok := errorMessage(map[string]any(m)); ok {
		return Failure(msg)
	}
	for _, key := range successMarkers {
		if v, ok := m[key]; ok && v != nil {
			return Success(map[string]any(m))
		}
	}
	for _, key := range successFlags {
		if truthy(m[key]) {
			return Success(map[string]any(m))
		}
	}
	return Failure(MsgNoMarker)
}

func normalizeOpaque(v any) Result {
	if truthy(v) {
		return Success(v)
	}
	return Failure(MsgEmpty)
}

func parseJSON(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}

// errorMessage extracts the "error" value of an object. String values are
// returned verbatim, anything else as compact JSON.
func errorMessage(v any) (string, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	raw, ok := m["error"]
	if !ok {
		return "", false
	}
	switch e := raw.(type) {
	case string:
		return e, true
	case nil:
		return "error", true
	default:
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Sprint(e), true
		}
		return string(data), true
	}
}

// truthy follows the usual dynamic-language notion: nil, false, zero
// numbers and empty strings, slices and maps are falsy.
func truthy(v any) bool {
	if v == nil {
		return false
	}
	if n, ok := v.(json.Number); ok {
		return n != "" && n != "0"
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return !rv.IsZero()
	default:
		return true
	}
}

// Classify maps an already-decoded value onto a variant. Lists whose first
// element is an object with a string "text" field become Blocks; objects
// become Mapping; everything else is Opaque.
func Classify(v any) Raw {
	switch t := v.(type) {
	case Raw:
		return t
	case map[string]any:
		return Mapping(t)
	case []Block:
		return Blocks{Items: t}
	case []any:
		if len(t) == 0 {
			return Opaque{Value: t}
		}
		first, ok := t[0].(map[string]any)
		if !ok {
			return Opaque{Value: t}
		}
		if _, ok := first["text"].(string); !ok {
			return Opaque{Value: t}
		}
		items := make([]Block, 0, len(t))
		for _, el := range t {
			items = append(items, blockFrom(el))
		}
		return Blocks{Items: items}
	default:
		return Opaque{Value: v}
	}
}

func blockFrom(v any) Block {
	m, ok := v.(map[string]any)
	if !ok {
		return Block{}
	}
	b := Block{}
	b.Type, _ = m["type"].(string)
	if text, ok := m["text"].(string); ok {
		b.Text = &text
	}
	return b
}

// Decode classifies wire bytes. Bytes that are not JSON are kept as an
// Opaque string.
func Decode(data []byte) Raw {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Opaque{}
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return Opaque{Value: string(trimmed)}
	}
	return Classify(v)
}
