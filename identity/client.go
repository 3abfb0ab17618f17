package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/appgeocercas/api/models"
)

const maxResponseBytes = 1 << 20

// Config holds configuration for the GoTrue client
type Config struct {
	URL         string
	APIKey      string
	HTTPTimeout time.Duration
}

// userResponse is the subset of the GoTrue user object that is consumed
type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// tokenResponse represents the GoTrue token endpoint response
type tokenResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    int           `json:"expires_in"`
	TokenType    string        `json:"token_type"`
	User         *userResponse `json:"user"`
}

// Client calls a GoTrue-compatible identity provider over HTTP.
// It is built once per process and is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new identity provider client
func NewClient(cfg Config) *Client {
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
	}
}

// GetUser validates an access credential against GET /auth/v1/user
func (c *Client) GetUser(ctx context.Context, accessToken string) (*models.Identity, error) {
	if accessToken == "" {
		return nil, ErrInvalidToken
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/auth/v1/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	body, status, err := c.do(req)
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrInvalidToken, status)
	case status >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrProviderUnavailable, status)
	case status != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrInvalidToken, status)
	}

	var user userResponse
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	id, err := toIdentity(&user)
	if err != nil {
		return nil, err
	}
	id.AccessToken = accessToken

	return id, nil
}

// RefreshToken exchanges a refresh credential via the refresh_token grant
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	if refreshToken == "" {
		return nil, ErrInvalidGrant
	}

	resp, err := c.token(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, err
	}

	return resp.pair(), nil
}

// SignInWithPassword runs the password grant and returns the issued pair and user
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*models.TokenPair, *models.Identity, error) {
	resp, err := c.token(ctx, "password", map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, nil, err
	}

	if resp.User == nil {
		return nil, nil, fmt.Errorf("%w: no user in token response", ErrMalformedResponse)
	}

	id, err := toIdentity(resp.User)
	if err != nil {
		return nil, nil, err
	}
	id.AccessToken = resp.AccessToken

	return resp.pair(), id, nil
}

// SignOut revokes the session behind accessToken. An already invalid token is not an error.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/auth/v1/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	_, status, err := c.do(req)
	if err != nil {
		return err
	}

	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusNotFound:
		return nil
	default:
		return fmt.Errorf("%w: logout status %d", ErrProviderUnavailable, status)
	}
}

func (c *Client) token(ctx context.Context, grantType string, payload map[string]string) (*tokenResponse, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode token request: %w", err)
	}

	path := "/auth/v1/token?grant_type=" + url.QueryEscape(grantType)
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	body, status, err := c.do(req)
	if err != nil {
		return nil, err
	}

	switch {
	case status >= 500:
		return nil, fmt.Errorf("%w: token status %d", ErrProviderUnavailable, status)
	case status != http.StatusOK:
		return nil, fmt.Errorf("%w: token status %d", ErrInvalidGrant, status)
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if tokenResp.AccessToken == "" || tokenResp.RefreshToken == "" {
		return nil, fmt.Errorf("%w: token pair incomplete", ErrMalformedResponse)
	}

	return &tokenResp, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create provider request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	return req, nil
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read body: %v", ErrProviderUnavailable, err)
	}

	return body, resp.StatusCode, nil
}

func (r *tokenResponse) pair() *models.TokenPair {
	return &models.TokenPair{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresIn:    r.ExpiresIn,
	}
}

func toIdentity(u *userResponse) (*models.Identity, error) {
	if u.ID == "" {
		return nil, fmt.Errorf("%w: user id missing", ErrMalformedResponse)
	}

	userID, err := uuid.Parse(u.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: user id: %v", ErrMalformedResponse, err)
	}

	return &models.Identity{UserID: userID, Email: u.Email}, nil
}
