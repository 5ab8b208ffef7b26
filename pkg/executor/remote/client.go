// Package remote provides an Executor that forwards code to an interpreter
// service over its HTTP API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rhuss/datasci/pkg/api"
	"github.com/rhuss/datasci/pkg/debug"
)

// Client calls the interpreter service's REST API.
type Client struct {
	httpClient *http.Client
	apiKey     string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey sends key as a bearer token on every request.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a new interpreter service client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{
			// Execution timeouts are enforced by the service and by the
			// request context; this only guards against hung connections.
			Timeout: 10 * time.Minute,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Execute sends a code execution request and returns the observation.
func (c *Client) Execute(ctx context.Context, baseURL string, req api.ExecuteRequest) (*api.Observation, error) {
	var obs api.Observation
	if err := c.do(ctx, http.MethodPost, baseURL+"/execute", req, &obs); err != nil {
		return nil, err
	}
	return &obs, nil
}

// CreateSession asks the service for a new, empty session.
func (c *Client) CreateSession(ctx context.Context, baseURL string) (string, error) {
	var resp api.CreateSessionResponse
	if err := c.do(ctx, http.MethodPost, baseURL+"/sessions", struct{}{}, &resp); err != nil {
		return "", err
	}
	return resp.SessionID, nil
}

// Session fetches the description of one session.
func (c *Client) Session(ctx context.Context, baseURL, id string) (*api.SessionInfo, error) {
	var info api.SessionInfo
	if err := c.do(ctx, http.MethodGet, baseURL+"/sessions/"+url.PathEscape(id), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// DeleteSession tears a session down. Unknown sessions yield not_found.
func (c *Client) DeleteSession(ctx context.Context, baseURL, id string) error {
	return c.do(ctx, http.MethodDelete, baseURL+"/sessions/"+url.PathEscape(id)+"?strict=true", nil, nil)
}

// Health checks the service health endpoint.
func (c *Client) Health(ctx context.Context, baseURL string) error {
	return c.do(ctx, http.MethodGet, baseURL+"/health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, target string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	debug.Log("executor", "remote request", "method", method, "url", target)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return api.NewUnavailableError(fmt.Sprintf("interpreter request failed: %v", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return api.NewUnavailableError(fmt.Sprintf("read response: %v", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return api.NewTooManyRequestsError("interpreter at capacity (HTTP 429)")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp api.ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != nil {
			return errResp.Error
		}
		return api.NewServerError(fmt.Sprintf("interpreter returned HTTP %d: %s", resp.StatusCode, debug.Truncate(string(respBody), 200)))
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return api.NewServerError(fmt.Sprintf("decode response: %v", err))
	}
	return nil
}
