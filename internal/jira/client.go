// Package jira is the direct REST transport to Jira Cloud.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"adfbridge/internal/logging"
	"adfbridge/internal/tracker"
)

// DefaultTimeout bounds one REST round trip.
const DefaultTimeout = 30 * time.Second

const maxBody = 1 << 20

// RESTClient issues authenticated JSON requests.
type RESTClient struct {
	client *http.Client
}

// NewRESTClient returns a client whose requests time out after timeout
// (DefaultTimeout when zero).
func NewRESTClient(timeout time.Duration) *RESTClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RESTClient{client: &http.Client{Timeout: timeout}}
}

// PutJSON sends body as JSON with basic auth and returns the status code
// and up to 1 MiB of the response body. Non-2xx statuses are not errors.
func (c *RESTClient) PutJSON(ctx context.Context, url string, body any, creds tracker.Credentials) (int, []byte, error) {
	return c.do(ctx, http.MethodPut, url, body, creds)
}

// GetJSON fetches url with basic auth.
func (c *RESTClient) GetJSON(ctx context.Context, url string, creds tracker.Credentials) (int, []byte, error) {
	return c.do(ctx, http.MethodGet, url, nil, creds)
}

func (c *RESTClient) do(ctx context.Context, method, url string, body any, creds tracker.Credentials) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(creds.Username, creds.APIToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	timer := logging.StartTimer(logging.CategoryTransport, method+" "+url)
	resp, err := c.client.Do(req)
	if err != nil {
		timer.Stop()
		logging.TransportError("%s %s: %v", method, url, err)
		return 0, nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	timer.Stop()
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	logging.TransportDebug("%s %s -> %d (%d bytes)", method, url, resp.StatusCode, len(data))
	return resp.StatusCode, data, nil
}

// CloseIdleConnections releases pooled connections.
func (c *RESTClient) CloseIdleConnections() {
	c.client.CloseIdleConnections()
}

var _ tracker.JSONPutter = (*RESTClient)(nil)
