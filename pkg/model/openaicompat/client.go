// Package openaicompat implements model.Model against any OpenAI-compatible
// Chat Completions backend (vLLM, LiteLLM, OpenAI).
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rhuss/datasci/pkg/api"
	"github.com/rhuss/datasci/pkg/debug"
	"github.com/rhuss/datasci/pkg/model"
	"github.com/rhuss/datasci/pkg/observability"
)

// Config holds the settings of a Chat Completions backend.
type Config struct {
	// BaseURL is the server URL (e.g., "http://localhost:8000").
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Model is the model name sent with every request.
	Model string

	// Temperature and MaxTokens are omitted from requests when nil.
	Temperature *float64
	MaxTokens   *int

	// Stop sequences. Stopping at "Observation:" keeps the model from
	// inventing execution results.
	Stop []string

	// Timeout for individual HTTP requests. Defaults to 120s.
	Timeout time.Duration
}

// Client is a non-streaming Chat Completions client.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

var _ model.Model = (*Client)(nil)

// New creates a Client. BaseURL and Model are required.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("openaicompat: BaseURL is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openaicompat: Model is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Name returns the configured model name.
func (c *Client) Name() string {
	return c.cfg.Model
}

// Complete sends the conversation to /v1/chat/completions and returns the
// content of the first choice.
func (c *Client) Complete(ctx context.Context, messages []model.Message) (string, error) {
	start := time.Now()
	content, err := c.complete(ctx, messages)

	status := "ok"
	if err != nil {
		status = string(api.AsAPIError(err).Type)
	}
	observability.ModelRequestsTotal.WithLabelValues(c.cfg.Model, status).Inc()
	observability.ModelLatency.WithLabelValues(c.cfg.Model).Observe(time.Since(start).Seconds())
	return content, err
}

func (c *Client) complete(ctx context.Context, messages []model.Message) (string, error) {
	chatReq := chatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    make([]chatMessage, len(messages)),
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		Stop:        c.cfg.Stop,
		N:           1,
	}
	for i, m := range messages {
		chatReq.Messages[i] = chatMessage{Role: string(m.Role), Content: m.Content}
	}

	body, err := json.Marshal(chatReq)
	if err != nil {
		return "", api.NewServerError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}

	url := c.cfg.BaseURL + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	debug.Log("model", "chat completion request", "model", c.cfg.Model, "messages", len(messages))

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", mapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return "", mapHTTPError(httpResp)
	}

	var chatResp chatCompletionResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&chatResp); err != nil {
		return "", api.NewModelError(fmt.Sprintf("failed to parse backend response: %s", err.Error()))
	}
	if len(chatResp.Choices) == 0 {
		return "", api.NewModelError("backend returned no choices")
	}

	choice := chatResp.Choices[0]
	if chatResp.Usage != nil {
		debug.Log("model", "chat completion response",
			"finish_reason", choice.FinishReason,
			"prompt_tokens", chatResp.Usage.PromptTokens,
			"completion_tokens", chatResp.Usage.CompletionTokens)
	}
	debug.Trace("model", "completion", "content", debug.Truncate(choice.Message.Content, 2000))
	return choice.Message.Content, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
