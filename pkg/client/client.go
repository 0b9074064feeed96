package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Client talks to the headless hcdesk HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return e.Message
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8765/api",
		// start waits for the backend handshake
		Timeout: 60 * time.Second,
	}
}

func New(config Config) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if the API is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/state", nil)
	if err != nil {
		c.logger.Debug("Failed to create request for reachability check", "error", err)
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("API unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	isReachable := resp.StatusCode == http.StatusOK
	c.logger.Debug("API reachability check", "reachable", isReachable, "status", resp.StatusCode)
	return isReachable
}

// Start asks the host to launch the backend and returns its status message.
func (c *Client) Start(ctx context.Context) (string, error) {
	var out messageResponse
	if err := c.do(ctx, http.MethodPost, "/start", nil, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

func (c *Client) URL(ctx context.Context) (string, error) {
	var out urlResponse
	if err := c.do(ctx, http.MethodGet, "/url", nil, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

func (c *Client) Status(ctx context.Context) (string, error) {
	var out statusResponse
	if err := c.do(ctx, http.MethodGet, "/status", nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (c *Client) State(ctx context.Context) (State, error) {
	var out State
	err := c.do(ctx, http.MethodGet, "/state", nil, &out)
	return out, err
}

// Stop terminates the backend; wait <= 0 uses the server default.
func (c *Client) Stop(ctx context.Context, wait time.Duration) error {
	path := "/stop"
	if wait > 0 {
		path += "?" + url.Values{"wait": {wait.String()}}.Encode()
	}
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// Save shows the host's save dialog and returns the written path.
func (c *Client) Save(ctx context.Context, req SaveRequest) (string, error) {
	var out saveResponse
	if err := c.do(ctx, http.MethodPost, "/save", req, &out); err != nil {
		return "", err
	}
	return out.Path, nil
}

func (c *Client) OpenDownloads(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/open-downloads", nil, nil)
}

// do performs an HTTP request, encoding in as JSON and decoding the response into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	u := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", u)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
		c.logger.Error("Failed to decode error response", "status", resp.StatusCode)
		return &APIError{StatusCode: resp.StatusCode}
	}
	c.logger.Debug("API request failed", "error", errorResp.Error, "status", resp.StatusCode)
	return &APIError{StatusCode: resp.StatusCode, Message: errorResp.Error}
}
