// Package chat talks to an OpenAI-compatible chat-completions API and runs
// the function-call loop that lets the model query the record store.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Message is one chat turn on the wire.
type Message struct {
	Role         string        `json:"role"`
	Content      string        `json:"content"`
	Name         string        `json:"name,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
}

// FunctionCall is the model's request to invoke a registered function.
// Arguments is a JSON document in the shape the function declared.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// FunctionDef declares a callable function to the model.
type FunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// APIError describes a failed model call.
type APIError struct {
	Code    int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Overloaded reports whether the model side is temporarily unavailable, in
// which case the session answers politely instead of failing the turn.
func (e *APIError) Overloaded() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// ClientConfig configures the model endpoint. Zero values fall back to the
// public endpoint, the OPENAI_API_KEY environment variable, and a small
// deterministic temperature.
type ClientConfig struct {
	Endpoint    string  `json:"endpoint"`
	APIKey      string  `json:"apiKey"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	// TimeoutSeconds bounds one completion call.
	TimeoutSeconds int `json:"timeoutSeconds"`
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.Endpoint == "" {
		c.Endpoint = "https://api.openai.com/v1"
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.01
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 30
	}
	return c
}

// Client is a minimal chat-completions client.
type Client struct {
	cfg    ClientConfig
	client *http.Client
}

// NewClient creates a Client from cfg.
func NewClient(cfg ClientConfig) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// SetHTTPClient replaces the underlying HTTP client. Tests use it.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.client = client
}

type completionRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Messages    []Message     `json:"messages"`
	Functions   []FunctionDef `json:"functions,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

// Complete performs one chat-completion call and returns the assistant
// message, which may carry a function call instead of content.
func (c *Client) Complete(ctx context.Context, messages []Message, functions []FunctionDef) (*Message, error) {
	payload, err := json.Marshal(completionRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		Messages:    messages,
		Functions:   functions,
	})
	if err != nil {
		return nil, &APIError{Code: http.StatusInternalServerError, Message: "failed to encode completion request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.Endpoint, "/")+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, &APIError{Code: http.StatusBadGateway, Message: "failed to create completion request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		code := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			code = http.StatusGatewayTimeout
		}
		return nil, &APIError{Code: code, Message: "completion request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Code: http.StatusBadGateway, Message: "failed to read completion response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = resp.Status
		}
		return nil, &APIError{Code: resp.StatusCode, Message: fmt.Sprintf("completion status %d: %s", resp.StatusCode, msg)}
	}

	var cr completionResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, &APIError{Code: http.StatusBadGateway, Message: "failed to parse completion response", Err: err}
	}
	if len(cr.Choices) == 0 {
		return nil, &APIError{Code: http.StatusBadGateway, Message: "completion response has no choices"}
	}
	return &cr.Choices[0].Message, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
