// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package model wraps a single OpenAI-compatible chat-completion endpoint
// with bounded retry. Each call is stateless and safe to issue from
// multiple goroutines; statistics stay with the caller.
package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/pdiddy/battery-extract/pkg/types"
)

// ErrUnavailable reports that the retry budget for one logical call was
// exhausted. Callers must not retry further.
var ErrUnavailable = errors.New("model endpoint unavailable")

// backoffBase controls the base duration for exponential backoff between
// attempts. Tests override this to avoid real sleeps.
var backoffBase = time.Second

const defaultMaxAttempts = 3

// Message is one chat message in an OpenAI-style conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CallResult carries the outcome of one logical completion call.
// Latency spans every attempt; token counts come from the final
// successful attempt only (failed attempts carry no usable usage data).
// Attempts is populated even when the call fails.
type CallResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
	Attempts         int
}

// TotalTokens returns prompt plus completion tokens.
func (r CallResult) TotalTokens() int {
	return r.PromptTokens + r.CompletionTokens
}

// Completer abstracts the chat-completion call so stages can take mocks
// in tests.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (CallResult, error)
}

// Client issues chat-completion requests against one configured endpoint.
type Client struct {
	cfg        types.ModelConfig
	httpClient *http.Client
}

// NewClient builds a client for the given endpoint configuration.
func NewClient(cfg types.ModelConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// request and response mirror the OpenAI chat-completion wire contract.
type request struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type response struct {
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

// Complete issues one logical request, retrying transport failures, bad
// statuses, and empty-choice responses up to the configured attempt cap
// with exponential backoff. Exhausting the cap returns a CallResult with
// Attempts and Latency filled and an error wrapping ErrUnavailable.
func (c *Client) Complete(ctx context.Context, messages []Message) (CallResult, error) {
	maxAttempts := c.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(math.Pow(2, float64(attempt-2))) * backoffBase
			select {
			case <-ctx.Done():
				return CallResult{Attempts: attempt - 1, Latency: time.Since(start)}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := c.attempt(ctx, messages)
		if err != nil {
			lastErr = err
			continue
		}

		resp.Attempts = attempt
		resp.Latency = time.Since(start)
		return resp, nil
	}

	result := CallResult{Attempts: maxAttempts, Latency: time.Since(start)}
	return result, fmt.Errorf("%w: %s after %d attempts: %v", ErrUnavailable, c.cfg.Model, maxAttempts, lastErr)
}

// attempt performs a single HTTP round trip.
func (c *Client) attempt(ctx context.Context, messages []Message) (CallResult, error) {
	body, err := json.Marshal(request{
		Model:    c.cfg.Model,
		Messages: messages,
		Stream:   false,
	})
	if err != nil {
		return CallResult{}, fmt.Errorf("marshaling request: %w", err)
	}

	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return CallResult{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return CallResult{}, fmt.Errorf("calling %s: %w", url, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return CallResult{}, fmt.Errorf("%s returned %d: %s", url, httpResp.StatusCode, string(respBody))
	}

	var parsed response
	if err := json.NewDecoder(httpResp.Body).Decode(&parsed); err != nil {
		return CallResult{}, fmt.Errorf("decoding response: %w", err)
	}

	if len(parsed.Choices) == 0 {
		return CallResult{}, fmt.Errorf("response has no choices")
	}

	return CallResult{
		Content:          parsed.Choices[0].Message.Content,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
	}, nil
}
