// Package api is the HTTP client for the landslide report backend. It
// implements auth.Backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/landslide-report/go-auth"
)

const (
	DefaultBaseURL   = "http://127.0.0.1:8000"
	DefaultTimeout   = 10 * time.Second
	DefaultUserAgent = "landslide-auth/1"

	RequestIDHeader = "X-Request-ID"

	pathRegister = "/register"
	pathToken    = "/token"
	pathMe       = "/users/me"

	maxBodyBytes = 1 << 20
)

// Config holds backend client configuration.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client
	Logger     auth.Logger
}

// Client talks to the registration, token and identity endpoints.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     auth.Logger
	newID      func() string
}

// New creates a new backend client.
func New(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	_, logger := auth.ResolveLogger("api", nil, cfg.Logger)

	return &Client{
		baseURL:    base,
		userAgent:  cfg.UserAgent,
		httpClient: client,
		logger:     logger,
		newID:      uuid.NewString,
	}
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

// Register implements auth.Backend. POST /register with a JSON body.
func (c *Client) Register(ctx context.Context, creds auth.Credentials) error {
	payload, err := json.Marshal(registerRequest{
		Email:    creds.Email,
		Password: creds.Password,
		Username: creds.Username,
	})
	if err != nil {
		return auth.NewError(auth.ErrValidation, err, map[string]any{"endpoint": "register"})
	}

	resp, err := c.do(ctx, "register", http.MethodPost, pathRegister, "application/json", bytes.NewReader(payload), "")
	if err != nil {
		return err
	}
	if !resp.ok() {
		return classify(resp.failure("register"))
	}
	return nil
}

// IssueToken implements auth.Backend. POST /token form encoded.
//
// The form carries email and password, plus username when it is set.
func (c *Client) IssueToken(ctx context.Context, creds auth.Credentials) (*auth.TokenGrant, error) {
	form := url.Values{
		"email":    {creds.Email},
		"password": {creds.Password},
	}
	if creds.Username != "" {
		form.Set("username", creds.Username)
	}

	resp, err := c.do(ctx, "token", http.MethodPost, pathToken, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), "")
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, classify(resp.failure("token"))
	}

	var payload tokenResponse
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		return nil, malformed("token", resp.requestID, resp.status, err, "invalid json")
	}
	if payload.AccessToken == "" {
		return nil, malformed("token", resp.requestID, resp.status, nil, "missing access_token")
	}
	identity, reason := payload.identity()
	if reason != "" {
		return nil, malformed("token", resp.requestID, resp.status, nil, reason)
	}

	return &auth.TokenGrant{
		AccessToken: payload.AccessToken,
		Identity:    identity,
	}, nil
}

// CurrentUser implements auth.Backend. GET /users/me with a bearer token.
func (c *Client) CurrentUser(ctx context.Context, token string) (*auth.Identity, error) {
	if token == "" {
		return nil, auth.NewError(auth.ErrAuthRejected, nil, map[string]any{"endpoint": "current_user", "reason": "empty token"})
	}

	resp, err := c.do(ctx, "current_user", http.MethodGet, pathMe, "", nil, token)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, classify(resp.failure("current_user"))
	}

	var payload userResponse
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		return nil, malformed("current_user", resp.requestID, resp.status, err, "invalid json")
	}
	identity, reason := payload.identity()
	if reason != "" {
		return nil, malformed("current_user", resp.requestID, resp.status, nil, reason)
	}
	return &identity, nil
}

type response struct {
	status    int
	body      []byte
	requestID string
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

func (r *response) failure(endpoint string) *ResponseError {
	return &ResponseError{
		Endpoint:  endpoint,
		Status:    r.status,
		Detail:    auth.NormalizeDetail(r.body, ""),
		RequestID: r.requestID,
	}
}

func (c *Client) do(ctx context.Context, endpoint, method, path, contentType string, body io.Reader, bearer string) (*response, error) {
	requestID := c.newID()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, transportError(endpoint, requestID, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(RequestIDHeader, requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed", "endpoint", endpoint, "request_id", requestID, "error", err)
		return nil, transportError(endpoint, requestID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, transportError(endpoint, requestID, err)
	}

	c.logger.Debug("backend request",
		"endpoint", endpoint,
		"method", method,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration", time.Since(started),
	)

	return &response{
		status:    resp.StatusCode,
		body:      data,
		requestID: requestID,
	}, nil
}

var _ auth.Backend = (*Client)(nil)
