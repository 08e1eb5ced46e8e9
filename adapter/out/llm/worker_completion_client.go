// Package llm adapts the OpenAI chat completion API to out.CompletionService.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"outreach_worker/core/port/out"
	"outreach_worker/pkg/httputil"
	"outreach_worker/pkg/resilience"
)

const (
	DefaultModel     = "gpt-4o-mini"
	defaultMaxTokens = 256
)

type ClientConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	BaseURL   string // overrides the OpenAI endpoint, mainly for tests
}

// Client implements out.CompletionService. A client without an API key
// reports out.ErrCompletionUnavailable for every call.
type Client struct {
	client    *openai.Client
	model     string
	maxTokens int
	timeout   time.Duration
	breaker   *gobreaker.CircuitBreaker
}

var _ out.CompletionService = (*Client)(nil)

func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.maxTokens == 0 {
		c.maxTokens = defaultMaxTokens
	}
	if cfg.APIKey == "" {
		return c
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.HTTPClient = httputil.NewClient(httputil.CompletionClientConfig(cfg.Timeout))
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	c.client = openai.NewClientWithConfig(oc)

	bc := resilience.DefaultBreakerConfig("llm")
	// 429s are paced and retried by the caller
	bc.Ignore = func(err error) bool { return errors.Is(err, out.ErrRateLimited) }
	c.breaker = resilience.NewBreaker(bc)
	return c
}

// Available reports whether an API key was configured.
func (c *Client) Available() bool {
	return c.client != nil
}

func (c *Client) Complete(ctx context.Context, prompt string, temperature float64) (string, error) {
	if c.client == nil {
		return "", out.ErrCompletionUnavailable
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	result, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			Temperature: float32(temperature),
			MaxTokens:   c.maxTokens,
		})
		if err != nil {
			return "", mapError(err)
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("completion returned no choices")
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	})
	if err != nil {
		if resilience.IsOpen(err) {
			return "", fmt.Errorf("%w: %v", out.ErrCompletionUnavailable, err)
		}
		return "", err
	}
	return result.(string), nil
}

func mapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s", out.ErrRateLimited, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", out.ErrRateLimited, reqErr.Err)
	}
	return fmt.Errorf("completion: %w", err)
}
