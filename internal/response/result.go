package response

import (
	"encoding/json"
	"fmt"
)

// Result is the uniform outcome of a remote call. ErrorMessage is empty on
// success.
type Result struct {
	Succeeded    bool   `json:"succeeded"`
	Payload      any    `json:"payload,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Success returns a successful result carrying payload.
func Success(payload any) Result {
	return Result{Succeeded: true, Payload: payload}
}

// Failure returns a failed result. An empty message is replaced so callers
// always have something to display.
func Failure(message string) Result {
	if message == "" {
		message = MsgEmpty
	}
	return Result{Succeeded: false, ErrorMessage: message}
}

// Err returns nil on success and an error carrying ErrorMessage otherwise.
func (r Result) Err() error {
	if r.Succeeded {
		return nil
	}
	return fmt.Errorf("%s", r.ErrorMessage)
}

// String renders the result for display.
func (r Result) String() string {
	if !r.Succeeded {
		return "failed: " + r.ErrorMessage
	}
	if r.Payload == nil {
		return "ok"
	}
	data, err := json.Marshal(r.Payload)
	if err != nil {
		return fmt.Sprintf("ok: %v", r.Payload)
	}
	return "ok: " + string(data)
}

// Field returns a top-level string field of an object payload, or "".
func (r Result) Field(name string) string {
	m, ok := r.Payload.(map[string]any)
	if !ok {
		return ""
	}
	switch v := m[name].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%v", v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
