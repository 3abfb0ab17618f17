package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	// FnBootstrapSessionContext resolves the caller's current org without side effects
	FnBootstrapSessionContext = "bootstrap_session_context"
	// FnEnsureCurrentOrg may create a default organization for the caller
	FnEnsureCurrentOrg = "ensure_current_org_for_user"

	maxResponseBytes = 1 << 20
)

var (
	ErrNotConfigured = errors.New("rpc endpoint not configured")
	ErrCallFailed    = errors.New("rpc call failed")
)

// Config holds configuration for the PostgREST client
type Config struct {
	URL         string
	APIKey      string
	HTTPTimeout time.Duration
}

// Caller invokes a stored procedure as the user owning accessToken
type Caller interface {
	Call(ctx context.Context, fn, accessToken string, args any) (json.RawMessage, error)
}

// Client calls PostgREST /rpc endpoints. One Client is shared by every request.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new RPC client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 12 * time.Second
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout:   cfg.HTTPTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Call posts args to {URL}/rpc/{fn} with the caller's bearer token and returns the raw body.
// Any transport failure or non-2xx status is reported as ErrCallFailed.
func (c *Client) Call(ctx context.Context, fn, accessToken string, args any) (json.RawMessage, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	if args == nil {
		args = struct{}{}
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s args: %w", fn, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc/"+fn, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", fn, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCallFailed, fn, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read body: %v", ErrCallFailed, fn, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("rpc returned error status",
			zap.String("function", fn),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", truncate(body, 512)),
		)
		return nil, fmt.Errorf("%w: %s: status %d", ErrCallFailed, fn, resp.StatusCode)
	}

	return json.RawMessage(body), nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
