package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// ClientConfig configures the HTTP client for provider connections.
type ClientConfig struct {
	// Timeout is the total timeout for the request.
	Timeout time.Duration
	// DialTimeout is the timeout for establishing a connection.
	DialTimeout time.Duration
	// TLSHandshakeTimeout is the timeout for TLS handshake.
	TLSHandshakeTimeout time.Duration
	// ResponseHeaderTimeout is the timeout for reading response headers.
	ResponseHeaderTimeout time.Duration
	// IdleConnTimeout is the timeout for idle connections.
	IdleConnTimeout     time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	// MaxResponseBytes bounds how much of a response body is read.
	MaxResponseBytes int64
}

// DefaultClientConfig returns a sensible default configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:               120 * time.Second,
		DialTimeout:           10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 90 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxResponseBytes:      8 << 20,
	}
}

// Client sends JSON bodies and returns status plus body. It never retries:
// retry and rotation belong to the dispatcher.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
}

// NewClient creates a new provider HTTP client.
func NewClient(config ClientConfig) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   config.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
		IdleConnTimeout:       config.IdleConnTimeout,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Transport: transport, Timeout: config.Timeout},
	}
}

// NewClientWithHTTP wraps an existing http.Client, mostly for tests.
func NewClientWithHTTP(hc *http.Client) *Client {
	cfg := DefaultClientConfig()
	return &Client{config: cfg, httpClient: hc}
}

// PostJSON posts body as JSON with a bearer token. A non-nil error means no
// response was received; the returned error is a transport *Error.
func (c *Client) PostJSON(ctx context.Context, provider, url, token string, body any) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 0, nil, err
		}
		return 0, nil, &Error{Provider: provider, Transport: true, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	limit := c.config.MaxResponseBytes
	if limit <= 0 {
		limit = 8 << 20
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return resp.StatusCode, nil, &Error{Provider: provider, Status: resp.StatusCode, Transport: true, Message: "reading response: " + err.Error(), Err: err}
	}
	return resp.StatusCode, raw, nil
}
