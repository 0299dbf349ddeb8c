// Package genai calls an OpenAI-compatible chat completions endpoint.
package genai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	apperrors "github.com/sneurgaonkar/sales-ai-agents/internal/common/errors"
	httpclient "github.com/sneurgaonkar/sales-ai-agents/internal/common/http"
)

const RateLimitKey = "generation"

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	Transport   http.RoundTripper
}

type Client struct {
	client      openai.Client
	model       string
	maxTokens   int
	temperature float64
}

func NewClient(cfg Config) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		// Retries are owned by the caller so the attempt budget stays visible.
		option.WithMaxRetries(0),
	}
	if trimmed := strings.TrimRight(cfg.BaseURL, "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed+"/"))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.Transport != nil {
		opts = append(opts, option.WithHTTPClient(&http.Client{Transport: cfg.Transport}))
	}

	return &Client{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

// Error carries what a caller needs to decide on a retry.
type Error struct {
	StatusCode int
	Transient  bool
	Delay      time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("generation request failed with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("generation request failed: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// RetryAfter is the provider's requested delay, zero when none was given.
func (e *Error) RetryAfter() time.Duration { return e.Delay }

// Generate sends prompt as a single user message and returns the text of the first choice.
// Failures come back as GENERATION_FAILED, retryable when the cause is transient.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
	if c.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.maxTokens))
	}
	if c.temperature > 0 {
		params.Temperature = openai.Float(c.temperature)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		genErr := classify(err)
		return "", apperrors.NewGenerationFailedError(genErr, genErr.Transient)
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.NewGenerationFailedError(errors.New("response contained no choices"), false)
	}
	return resp.Choices[0].Message.Content, nil
}

func classify(err error) *Error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		out := &Error{
			StatusCode: apiErr.StatusCode,
			Transient:  apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode == http.StatusRequestTimeout || apiErr.StatusCode >= 500,
			Err:        err,
		}
		if apiErr.Response != nil {
			out.Delay = httpclient.ParseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
		}
		return out
	}

	if errors.Is(err, context.Canceled) {
		return &Error{Transient: false, Err: err}
	}
	if apperrors.HasCode(err, apperrors.ErrCodeRateLimitExceeded) {
		return &Error{Transient: true, Err: err}
	}

	var netErr net.Error
	transient := errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded)
	return &Error{Transient: transient, Err: err}
}
