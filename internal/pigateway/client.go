// Package pigateway is a thin client for the Pi platform payments API.
// It never returns a Go error across its boundary: every call yields a tagged
// Result so the payment workflow decides policy, not the transport layer.
package pigateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.minepi.com/v2"

// Outcome notes for Result.Note.
const (
	// NoteOK means the provider confirmed the call.
	NoteOK = "ok"
	// NoteSandbox means no API key is configured; the call succeeded locally
	// without touching the network.
	NoteSandbox = "sandbox"
	// NoteBypassed means the provider call failed but sandbox mode treats it
	// as a permissive success.
	NoteBypassed = "bypassed"
)

// Result is the tagged outcome of a gateway call.
type Result struct {
	OK   bool
	Note string          // NoteOK, NoteSandbox or NoteBypassed when OK
	Err  string          // underlying provider/transport error when !OK
	Raw  json.RawMessage // provider response body snapshot, when any
}

// Config holds gateway client settings.
type Config struct {
	APIKey      string // empty = sandbox-only, no network calls
	BaseURL     string
	SandboxMode bool
	Timeout     time.Duration
}

// Client calls the Pi platform payments endpoints.
type Client struct {
	apiKey  string
	baseURL string
	sandbox bool
	client  *http.Client
	logger  *zap.Logger
}

// New creates a gateway client. A zero Timeout defaults to 5 seconds.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		sandbox: cfg.SandboxMode,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Sandbox reports whether provider failures are treated as successes.
func (c *Client) Sandbox() bool { return c.sandbox }

// Verify fetches the provider's view of a payment.
func (c *Client) Verify(ctx context.Context, paymentID string) Result {
	return c.call(ctx, http.MethodGet, "/payments/"+paymentID, nil)
}

// Approve tells the provider the server accepts the payment.
func (c *Client) Approve(ctx context.Context, paymentID string) Result {
	return c.call(ctx, http.MethodPost, "/payments/"+paymentID+"/approve", nil)
}

// Complete tells the provider the blockchain transaction went through.
func (c *Client) Complete(ctx context.Context, paymentID, txid string) Result {
	return c.call(ctx, http.MethodPost, "/payments/"+paymentID+"/complete", map[string]string{"txid": txid})
}

func (c *Client) call(ctx context.Context, method, path string, body any) Result {
	if c.apiKey == "" {
		// No credential configured: succeed locally, never contact the network.
		return Result{OK: true, Note: NoteSandbox}
	}

	res, err := c.do(ctx, method, path, body)
	if err != nil {
		if c.sandbox {
			c.logger.Warn("pi api call failed, sandbox bypass",
				zap.String("method", method), zap.String("path", path), zap.Error(err))
			return Result{OK: true, Note: NoteBypassed, Err: err.Error()}
		}
		c.logger.Error("pi api call failed",
			zap.String("method", method), zap.String("path", path), zap.Error(err))
		return Result{OK: false, Err: err.Error()}
	}
	return Result{OK: true, Note: NoteOK, Raw: res}
}

func (c *Client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pi api: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("pi api status %d: %s", resp.StatusCode, truncate(raw, 256))
	}
	return raw, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
