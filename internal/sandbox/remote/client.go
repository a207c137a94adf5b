// Package remote calls a sandbox server over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Cyclone1070/triage/internal/sandbox"
)

const maxResponseBytes = 8 << 20

// Client invokes /invoke on a sandbox server.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return NewClientWithHTTP(baseURL, &http.Client{Timeout: timeout}, logger)
}

// NewClientWithHTTP is NewClient with a caller-supplied http.Client.
func NewClientWithHTTP(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint:   strings.TrimRight(baseURL, "/") + "/invoke",
		httpClient: httpClient,
		logger:     logger,
	}
}

// Run sends code to the server. Transport failures and non-200 statuses are
// returned as errors; a snippet that fails still yields a nil error.
func (c *Client) Run(ctx context.Context, code string) (sandbox.ExecutionOutcome, error) {
	payload, err := json.Marshal(sandbox.InvokeRequest{Command: code})
	if err != nil {
		return sandbox.ExecutionOutcome{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return sandbox.ExecutionOutcome{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return sandbox.ExecutionOutcome{}, fmt.Errorf("invoke sandbox: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return sandbox.ExecutionOutcome{}, fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("sandbox responded",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		return sandbox.ExecutionOutcome{}, fmt.Errorf("sandbox returned HTTP %d: %s", resp.StatusCode, snippet(data))
	}

	body, status, err := decodeResponse(data)
	if err != nil {
		return sandbox.ExecutionOutcome{}, err
	}
	if status != 0 && status != http.StatusOK {
		msg := body.Error
		if msg == "" {
			msg = body.Output
		}
		return sandbox.ExecutionOutcome{}, fmt.Errorf("sandbox returned status %d: %s", status, msg)
	}
	return body.Outcome(), nil
}

// decodeResponse accepts the envelope with body as an object or as a
// JSON-encoded string.
func decodeResponse(data []byte) (sandbox.InvokeBody, int, error) {
	var envelope struct {
		StatusCode int             `json:"statusCode"`
		Body       json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return sandbox.InvokeBody{}, 0, fmt.Errorf("decode response: %w", err)
	}
	if len(envelope.Body) == 0 {
		return sandbox.InvokeBody{}, envelope.StatusCode, fmt.Errorf("decode response: missing body")
	}

	raw := []byte(envelope.Body)
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return sandbox.InvokeBody{}, envelope.StatusCode, fmt.Errorf("decode response body: %w", err)
		}
		raw = []byte(s)
	}

	var body sandbox.InvokeBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return sandbox.InvokeBody{}, envelope.StatusCode, fmt.Errorf("decode response body: %w", err)
	}
	return body, envelope.StatusCode, nil
}

func snippet(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
