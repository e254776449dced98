// Package tracker submits single-issue changes to the issue tracker
// through a caller-selected Transport and reports a response.Result.
//
// Every operation acts on exactly one issue. Nothing here retries, falls
// back to another transport, or escapes a failure as a panic or error.
// Concurrent calls on different issues are independent. Concurrent calls
// on the same issue are not coordinated here; the tracker applies them
// last-write-wins. Cancelling ctx abandons the wait but a request that
// already reached the tracker may still be applied.
package tracker

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"adfbridge/internal/adf"
	"adfbridge/internal/logging"
	"adfbridge/internal/response"
)

// Payload field names.
const (
	FieldSummary     = "summary"
	FieldDescription = "description"
)

// Update describes a partial update of one issue. Zero values mean "not
// supplied": an empty Summary and a nil Description are left out of the
// payload.
type Update struct {
	Identifier  string
	Summary     string
	Description *adf.Node
	// Fields holds additional tracker fields. They never override Summary
	// or Description.
	Fields map[string]any
}

// Payload maps field names to values. Only supplied fields are present.
type Payload map[string]any

// BuildPayload assembles the outgoing fields of u. The description is a
// deep copy of u.Description.
func BuildPayload(u Update) Payload {
	p := make(Payload, len(u.Fields)+2)
	for name, value := range u.Fields {
		if name == FieldSummary || name == FieldDescription {
			logging.UpdateDebug("ignoring extra field %q for %s", name, u.Identifier)
			continue
		}
		p[name] = value
	}
	if u.Summary != "" {
		p[FieldSummary] = u.Summary
	}
	if u.Description != nil {
		p[FieldDescription] = u.Description.Clone()
	}
	return p
}

// SubmitUpdate sends u through transport in a single attempt and returns
// the normalized outcome.
func SubmitUpdate(ctx context.Context, transport Transport, u Update) (res response.Result) {
	rl := logging.WithRequestID(logging.CategoryUpdate, uuid.NewString()).
		WithField("issue", u.Identifier)

	defer func() {
		if r := recover(); r != nil {
			rl.Error("update panicked: %v", r)
			res = response.Failure(fmt.Sprintf("submit update: %v", r))
		}
	}()

	if err := checkUpdate(transport, u); err != nil {
		rl.Warn("rejected before sending: %v", err)
		return response.Failure(err.Error())
	}

	payload := BuildPayload(u)
	if len(payload) == 0 {
		rl.Warn("nothing to update")
		return response.Failure("no fields supplied for " + u.Identifier)
	}

	rl.Info("submitting %d field(s) via %s", len(payload), transport.Name())
	timer := logging.StartTimer(logging.CategoryUpdate, "update "+u.Identifier)
	res = transport.deliver(ctx, u.Identifier, payload)
	timer.Stop()

	if res.Succeeded {
		rl.Info("update succeeded")
	} else {
		rl.Warn("update failed: %s", res.ErrorMessage)
	}
	return res
}

func checkUpdate(transport Transport, u Update) error {
	if transport == nil {
		return fmt.Errorf("no transport selected")
	}
	if strings.TrimSpace(u.Identifier) == "" {
		return fmt.Errorf("issue identifier is required")
	}
	if u.Description != nil {
		if err := adf.Validate(*u.Description); err != nil {
			return fmt.Errorf("invalid description: %w", err)
		}
	}
	return nil
}
