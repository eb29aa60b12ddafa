// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sage provides the HTTP client for the Sage multi-agent chat server.
package sage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the Sage client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotRunning
	ErrTypeTimeout
	ErrTypeConnection
	ErrTypeInvalidResponse
	ErrTypeServer
	ErrTypeSessionNotFound
)

// Sentinel errors for easy checking.
var (
	ErrNotRunning      = &ClientError{Type: ErrTypeNotRunning, Message: "Sage server is not reachable"}
	ErrTimeout         = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrSessionNotFound = &ClientError{Type: ErrTypeSessionNotFound, Message: "session not found"}
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the Sage client.
type ClientConfig struct {
	// BaseURL is the Sage API base URL (default: http://127.0.0.1:8080)
	// Note: Uses explicit IPv4 address instead of localhost to avoid IPv6 resolution issues on Windows
	BaseURL string

	// Timeout for non-streaming requests (default: 30s)
	Timeout time.Duration

	// UserID identifies the local user on stream requests.
	UserID string

	// InterruptRate caps out-of-band interrupt calls per second
	// (default: 1/s, burst 2) so a held stop key cannot flood the server.
	InterruptRate rate.Limit

	// InterruptBurst is the interrupt limiter burst size.
	InterruptBurst int
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:        "http://127.0.0.1:8080",
		Timeout:        30 * time.Second,
		InterruptRate:  rate.Limit(1),
		InterruptBurst: 2,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the Sage server API.
// It provides the streaming chat endpoint plus the non-streaming
// collaborator calls (health, tools, interrupt).
//
// The Client is safe for concurrent use.
type Client struct {
	config        *ClientConfig
	httpClient    *http.Client
	streamClient  *http.Client
	interruptRate *rate.Limiter
}

// NewClient creates a new Sage client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new Sage client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	// Fill in defaults for any zero values
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:8080"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.InterruptRate == 0 {
		config.InterruptRate = rate.Limit(1)
	}
	if config.InterruptBurst == 0 {
		config.InterruptBurst = 2
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		// The stream client must not enforce a whole-request timeout:
		// a healthy session can stream for minutes. Cancellation comes
		// from the request context instead.
		streamClient:  &http.Client{},
		interruptRate: rate.NewLimiter(config.InterruptRate, config.InterruptBurst),
	}
}

// Config returns the client configuration.
func (c *Client) Config() *ClientConfig {
	return c.config
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// Health verifies that the Sage server is reachable and reports status.
func (c *Client) Health(ctx context.Context) (*SystemStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/api/health", nil)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ErrNotRunning
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ClientError{
			Type:    ErrTypeConnection,
			Message: "unexpected status from Sage server: " + resp.Status,
		}
	}

	var status SystemStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode health response", Cause: err}
	}
	return &status, nil
}

// =============================================================================
// TOOL LISTING
// =============================================================================

// ListTools retrieves the server-side tool registry.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/api/tools", nil)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ErrNotRunning
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ClientError{
			Type:    ErrTypeInvalidResponse,
			Message: "failed to list tools: " + resp.Status,
		}
	}

	var tools []ToolInfo
	if err := json.NewDecoder(resp.Body).Decode(&tools); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode tools response", Cause: err}
	}
	return tools, nil
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// OpenStream issues the streaming chat request and returns the response
// body for the stream pipeline to consume. The caller owns the body and
// must close it; cancellation flows through ctx.
func (c *Client) OpenStream(ctx context.Context, streamReq *StreamRequest) (io.ReadCloser, error) {
	if streamReq.UserID == "" {
		streamReq.UserID = c.config.UserID
	}

	body, err := json.Marshal(streamReq)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal stream request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/stream", bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, context.Canceled
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ErrNotRunning
	}

	if resp.StatusCode != http.StatusOK {
		// Read a short error body for diagnostics before giving up.
		diag, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &ClientError{
			Type:    ErrTypeServer,
			Message: "stream request rejected: " + resp.Status + " " + string(diag),
		}
	}

	return resp.Body, nil
}

// =============================================================================
// SESSION INTERRUPT
// =============================================================================

// Interrupt asks the server to stop generation for a session. This is a
// best-effort out-of-band call: it is rate limited, and failures are
// returned for logging only; the local abort never waits on it.
func (c *Client) Interrupt(ctx context.Context, sessionID, reason string) error {
	if sessionID == "" {
		return &ClientError{Type: ErrTypeSessionNotFound, Message: "interrupt without session id"}
	}
	if !c.interruptRate.Allow() {
		return &ClientError{Type: ErrTypeUnknown, Message: "interrupt suppressed by rate limit"}
	}

	body, err := json.Marshal(InterruptRequest{Message: reason})
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal interrupt request", Cause: err}
	}

	url := c.config.BaseURL + "/api/sessions/" + sessionID + "/interrupt"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ErrNotRunning
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrSessionNotFound
	default:
		return &ClientError{
			Type:    ErrTypeServer,
			Message: "interrupt rejected: " + resp.Status,
		}
	}
}
