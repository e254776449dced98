package mcp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"adfbridge/internal/logging"
)

const maxEventSize = 4 << 20

// readEventStream parses a text/event-stream body and calls handle once
// per dispatched event. Parsing stops when handle returns false.
func readEventStream(body io.Reader, handle func(eventType, data string) bool) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxEventSize)

	eventType := "message"
	var eventData bytes.Buffer

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if eventData.Len() > 0 {
				data := strings.TrimSuffix(eventData.String(), "\n")
				if !handle(eventType, data) {
					return nil
				}
			}
			eventType = "message"
			eventData.Reset()
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			eventType = value
		case "data":
			eventData.WriteString(value)
			eventData.WriteByte('\n')
		case "", "id", "retry":
			// comments and reconnection hints
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if eventData.Len() > 0 {
		handle(eventType, strings.TrimSuffix(eventData.String(), "\n"))
	}
	return nil
}

// responseFromStream returns the response to request id carried by an
// event stream. Server requests and notifications on the stream are logged
// and skipped.
func responseFromStream(body io.Reader, id int64) (*rpcResponse, error) {
	var found *rpcResponse
	var decodeErr error

	err := readEventStream(body, func(eventType, data string) bool {
		if eventType != "message" {
			logging.TransportDebug("ignored SSE event type: %s", eventType)
			return true
		}
		var msg rpcResponse
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			decodeErr = fmt.Errorf("failed to decode SSE message: %w", err)
			logging.TransportWarn("undecodable SSE message: %s", data)
			return true
		}
		if msg.ID == nil || *msg.ID != id || msg.Method != "" {
			logging.TransportDebug("skipping unsolicited SSE message %s", msg.Method)
			return true
		}
		found = &msg
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read event stream: %w", err)
	}
	if found == nil {
		if decodeErr != nil {
			return nil, decodeErr
		}
		return nil, fmt.Errorf("event stream ended without a response to request %d", id)
	}
	return found, nil
}
