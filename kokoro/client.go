package kokoro

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Dherick07/dexterous/tts"
)

const (
	// DefaultBaseURL is the base URL of a locally running
	// Kokoro-FastAPI server.
	DefaultBaseURL = "http://localhost:8880"

	// DefaultModel is the model name the speech endpoint expects.
	DefaultModel = "kokoro"

	defaultUserAgent = "dexterous"

	// maxErrorBody caps how much of an error response is read.
	maxErrorBody = 64 << 10
)

// Client talks to a Kokoro-FastAPI speech server. It implements
// tts.Synthesizer. Create one with NewClient; the zero value is not
// usable.
type Client struct {
	baseURL    string
	model      string
	userAgent  string
	httpClient *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL points the client at a non-default server.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithModel selects a non-default model name.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithUserAgent sets the User-Agent header sent on every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithHTTPClient substitutes the underlying HTTP client. The default
// client carries no timeout: a synthesis response streams for as long
// as generation takes, and deadlines are the caller's to impose
// through the request context.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient returns a client for the given server.
//
// Example:
//
//	client := kokoro.NewClient()
//	client := kokoro.NewClient(kokoro.WithBaseURL("http://speech.local:8880"))
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		userAgent:  defaultUserAgent,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// errorBody is the FastAPI error envelope. Detail is usually an
// object carrying a message, but validation failures send other
// shapes.
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

// parseError turns a non-2xx response into a ServiceError, pulling
// the human-readable message out of the detail envelope when there is
// one.
func parseError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return &tts.ServiceError{StatusCode: resp.StatusCode}
	}
	return &tts.ServiceError{
		StatusCode: resp.StatusCode,
		Message:    errorMessage(body),
	}
}

func errorMessage(body []byte) string {
	var envelope errorBody
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Detail) > 0 {
		var structured struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Detail, &structured); err == nil && structured.Message != "" {
			return structured.Message
		}
		var plain string
		if err := json.Unmarshal(envelope.Detail, &plain); err == nil && plain != "" {
			return plain
		}
	}
	return strings.TrimSpace(string(body))
}
