// Package client talks to a lexiz server: it posts a batch, reconstructs
// items from the frame stream as it arrives, and drives the admin endpoints.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/abhisek/lexiz/internal/guard"
	"github.com/abhisek/lexiz/internal/reconstruct"
	"github.com/abhisek/lexiz/internal/wire"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client is a lexiz HTTP client.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger

	// ReadSize bounds each body read, so updates arrive at least this often.
	ReadSize int
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient. Streams can be long, so the
// client should not set a short overall Timeout.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the logger handed to the reconstructor.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     http.DefaultClient,
		logger:   slog.Default(),
		ReadSize: 1024,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Evaluate posts items and calls fn after every frame with the updated item.
// It returns the final items once the stream ends. A dropped connection
// still returns every item seen, with unfinished ones closed as failed.
func (c *Client) Evaluate(ctx context.Context, items []wire.Item, fn func(reconstruct.Update)) ([]reconstruct.Accumulator, error) {
	body, err := json.Marshal(wire.BatchRequest{Items: items})
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/evaluate", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	r := reconstruct.New(c.logger)
	err = r.ReadAll(ctx, resp.Body, c.ReadSize, fn)
	return r.Items(), err
}

// CircuitStatus fetches the server's protection state.
func (c *Client) CircuitStatus(ctx context.Context) (*guard.Status, error) {
	return c.status(ctx, http.MethodGet, "/admin/circuit")
}

// ResetCircuit closes the server's circuit and returns the new state.
func (c *Client) ResetCircuit(ctx context.Context) (*guard.Status, error) {
	return c.status(ctx, http.MethodPost, "/admin/circuit/reset")
}

func (c *Client) status(ctx context.Context, method, path string) (*guard.Status, error) {
	resp, err := c.do(ctx, method, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var st guard.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("decode circuit status: %w", err)
	}
	return &st, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		return nil, apiError(resp)
	}
	return resp, nil
}

func apiError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
