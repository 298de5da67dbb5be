package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// CallOptions configures one chat-completion request.
type CallOptions struct {
	Temperature float64       // default 0.2
	MaxTokens   int           // default 2048
	Timeout     time.Duration // default 30s
}

// Result holds a completion with provider-reported token usage.
// Token counts come from the provider's usage block, never estimated.
type Result struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// TotalTokens is the figure charged against the user's daily quota.
func (r *Result) TotalTokens() int64 {
	return int64(r.PromptTokens + r.CompletionTokens)
}

// Client makes chat-completion calls to a provider endpoint.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an LLM HTTP client.
func NewClient(logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// Complete sends one chat request using the given provider spec and key.
// Failures carry a CallError classification for the router.
func (c *Client) Complete(ctx context.Context, spec ProviderSpec, apiKey, prompt string, opts CallOptions) (*Result, error) {
	if opts.Temperature == 0 {
		opts.Temperature = 0.2
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 2048
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	reqBody := map[string]any{
		"model": spec.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": opts.Temperature,
		"max_tokens":  opts.MaxTokens,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, spec.URL(), bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	for k, v := range spec.ExtraHeaders {
		req.Header.Set(k, v)
	}

	c.logger.Debug("making LLM request",
		"provider", spec.Name,
		"model", spec.Model,
		"prompt_length", len(prompt),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, &CallError{Kind: FailureUnavailable, Err: err}
		}
		return nil, &CallError{Kind: FailureUnavailable, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &CallError{Kind: FailureUnavailable, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		kind := FailureOther
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			kind = FailureRateLimited
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			kind = FailureAuth
		case resp.StatusCode >= 500:
			kind = FailureUnavailable
		}
		c.logger.Warn("LLM request failed",
			"provider", spec.Name,
			"status", resp.StatusCode,
		)
		return nil, &CallError{
			Kind:       kind,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("provider %s returned %d: %s", spec.Name, resp.StatusCode, truncate(body, 200)),
		}
	}

	switch spec.Format {
	case APIFormatWorkersAI:
		return parseWorkersAI(body)
	default:
		return parseOpenAI(body)
	}
}

// parseOpenAI parses the OpenAI-compatible chat-completions response.
func parseOpenAI(body []byte) (*Result, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty completion response")
	}
	return &Result{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// parseWorkersAI unwraps Cloudflare's result envelope. The inner body
// follows the OpenAI shape.
func parseWorkersAI(body []byte) (*Result, error) {
	var envelope struct {
		Success bool            `json:"success"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse workers-ai envelope: %w", err)
	}
	if envelope.Result == nil {
		// Some deployments return the OpenAI shape directly.
		return parseOpenAI(body)
	}
	if !envelope.Success {
		return nil, fmt.Errorf("workers-ai call unsuccessful")
	}
	return parseOpenAI(envelope.Result)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
