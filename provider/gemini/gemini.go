// Package gemini fetches generated text from the Google Gemini
// generateContent endpoint, retrying failures with the retry package.
package gemini

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

	"github.com/landslide-report/go-auth"
	"github.com/landslide-report/go-auth/retry"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.5-flash-preview-05-20"

	FunFactPrompt = "Give me a fun fact about landslides"

	// UnavailableMessage is shown when every attempt failed.
	UnavailableMessage   = "Could not load a fun fact right now. Please try again later."
	NotConfiguredMessage = "Fun facts are not configured."

	maxBodyBytes = 1 << 20
)

// Config holds Gemini client configuration.
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	Retry      retry.Policy
	Logger     auth.Logger
}

// Client calls generateContent.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	policy     retry.Policy
	logger     auth.Logger
}

// New creates a new Gemini client. A zero Retry policy uses retry.DefaultPolicy.
func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Retry.MaxAttempts == 0 && cfg.Retry.InitialDelay == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	_, logger := auth.ResolveLogger("gemini", nil, cfg.Logger)

	c := &Client{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: client,
		policy:     cfg.Retry,
		logger:     logger,
	}

	if c.policy.OnRetry == nil {
		c.policy.OnRetry = func(attempt int, err error, wait time.Duration) {
			c.logger.Warn("content generation failed, retrying",
				"attempt", attempt,
				"wait", wait,
				"error", err,
			)
		}
	}
	return c
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content *content `json:"content"`
	} `json:"candidates"`
}

// GenerateContent sends prompt and returns the first candidate text.
// Every failure is retried per the configured policy; exhaustion returns
// a retry.ErrRetryExhausted clone.
func (c *Client) GenerateContent(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", auth.NewError(auth.ErrValidation, nil, map[string]any{"field": "api_key"})
	}

	payload, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", err
	}

	return retry.Do(ctx, c.policy, func(ctx context.Context, attempt int) (string, error) {
		return c.generateOnce(ctx, payload)
	})
}

// FunFact returns a generated fun fact about landslides.
func (c *Client) FunFact(ctx context.Context) (string, error) {
	return c.GenerateContent(ctx, FunFactPrompt)
}

func (c *Client) endpoint() string {
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.baseURL,
		url.PathEscape(c.model),
		url.QueryEscape(c.apiKey),
	)
}

func (c *Client) generateOnce(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return "", retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", auth.NewError(auth.ErrNetwork, err, map[string]any{"endpoint": "generate_content"})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", auth.NewError(auth.ErrNetwork, err, map[string]any{"endpoint": "generate_content"})
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		kind := "HTTP error"
		if resp.StatusCode >= 500 {
			kind = "server error"
		}
		return "", auth.NewError(auth.ErrNetwork, fmt.Errorf("%s: status %d", kind, resp.StatusCode), map[string]any{
			"endpoint": "generate_content",
			"status":   resp.StatusCode,
			"detail":   auth.NormalizeDetail(body, ""),
		})
	}

	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", auth.NewError(auth.ErrMalformedResponse, err, map[string]any{"endpoint": "generate_content"})
	}
	if len(out.Candidates) == 0 || out.Candidates[0].Content == nil || len(out.Candidates[0].Content.Parts) == 0 {
		return "", auth.NewError(auth.ErrMalformedResponse, nil, map[string]any{
			"endpoint": "generate_content",
			"reason":   "unexpected response structure",
		})
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

// UserMessage returns the text to show for a GenerateContent failure.
// Failures are never fatal to the caller.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case auth.IsValidationError(err):
		return NotConfiguredMessage
	default:
		return UnavailableMessage
	}
}
