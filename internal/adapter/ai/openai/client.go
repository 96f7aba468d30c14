// Package openai implements the Oracle port against any OpenAI-compatible
// chat completions endpoint.
package openai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"log/slog"

	"github.com/hanyue-dev/ai-essay-grader/internal/adapter/ai/tokencount"
	"github.com/hanyue-dev/ai-essay-grader/internal/config"
	"github.com/hanyue-dev/ai-essay-grader/internal/domain"
	"github.com/hanyue-dev/ai-essay-grader/internal/observability"
	"github.com/hanyue-dev/ai-essay-grader/internal/service/ratelimiter"
)

// OracleBucket is the rate-limiter bucket name shared by all Oracle calls.
const OracleBucket = "oracle"

// Client implements domain.OracleClient over HTTP chat completions.
type Client struct {
	cfg     config.Config
	hc      *http.Client
	limiter ratelimiter.Limiter
	counter *tokencount.Counter
}

// New constructs an Oracle client. limiter may be nil when call throttling
// is disabled.
func New(cfg config.Config, limiter ratelimiter.Limiter) *Client {
	timeout := cfg.OracleTimeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &Client{
		cfg: cfg,
		hc: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: limiter,
		counter: tokencount.DefaultCounter,
	}
}

func (c *Client) backoffConfig() *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()
	maxElapsedTime, initialInterval, maxInterval, multiplier := c.cfg.GetOracleBackoffConfig()
	expo.MaxElapsedTime = maxElapsedTime
	expo.InitialInterval = initialInterval
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier
	return expo
}

// waitForBudget blocks until the shared Oracle bucket has a token, or the
// context ends. A nil limiter means no throttling.
func (c *Client) waitForBudget(ctx domain.Context) error {
	if c.limiter == nil {
		return nil
	}
	for {
		allowed, retryAfter, err := c.limiter.Allow(ctx, OracleBucket, 1)
		if err != nil || allowed {
			// Limiter errors fail open; the call budget is advisory.
			return nil
		}
		if retryAfter <= 0 {
			retryAfter = time.Second
		}
		slog.Debug("oracle call throttled", slog.Duration("retry_after", retryAfter))
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", domain.ErrRateLimited, ctx.Err())
		case <-time.After(retryAfter):
		}
	}
}

type chatRequest struct {
	Model          string           `json:"model"`
	Temperature    float64          `json:"temperature"`
	MaxTokens      int              `json:"max_tokens,omitempty"`
	Messages       []domain.Message `json:"messages"`
	ResponseFormat *responseFormat  `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete calls the chat completions endpoint once, with transport-level
// retries on 5xx and network errors. 429 maps to ErrUpstreamRateLimit and a
// context deadline to ErrUpstreamTimeout; other 4xx are permanent.
func (c *Client) Complete(ctx domain.Context, messages []domain.Message, temperature float64, maxTokens int, jsonMode bool) (string, error) {
	if c.cfg.OracleAPIKey == "" {
		return "", fmt.Errorf("%w: ORACLE_API_KEY missing", domain.ErrInvalidArgument)
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("%w: empty messages", domain.ErrInvalidArgument)
	}
	if maxTokens <= 0 {
		maxTokens = c.cfg.OracleMaxTokens
	}
	if err := c.waitForBudget(ctx); err != nil {
		return "", err
	}

	req := chatRequest{
		Model:       c.cfg.OracleModel,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Messages:    messages,
	}
	if jsonMode {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	b, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("op=openai.Complete marshal: %w", err)
	}

	operation := "completion"
	if jsonMode {
		operation = "completion_json"
	}
	promptTokens := c.counter.CountMessages(messages, c.cfg.OracleModel)
	observability.OraclePromptTokens.WithLabelValues(operation).Observe(float64(promptTokens))
	slog.Debug("calling oracle",
		slog.String("model", c.cfg.OracleModel),
		slog.String("operation", operation),
		slog.Int("prompt_tokens", promptTokens),
		slog.Int("max_tokens", maxTokens))

	endpoint := c.cfg.OracleBaseURL + "/chat/completions"
	var out chatResponse
	op := func() error {
		start := time.Now()
		// Recreate the request each attempt; bodies are single-use.
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
		if err != nil {
			return backoff.Permanent(err)
		}
		r.Header.Set("Authorization", "Bearer "+c.cfg.OracleAPIKey)
		r.Header.Set("Content-Type", "application/json")
		resp, err := c.hc.Do(r)
		observability.OracleRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
		if err != nil {
			observability.OracleRequestsTotal.WithLabelValues(operation, "transport_error").Inc()
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			observability.OracleRequestsTotal.WithLabelValues(operation, "read_error").Inc()
			return err
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			observability.OracleRequestsTotal.WithLabelValues(operation, "rate_limited").Inc()
			slog.Warn("oracle rate limited",
				slog.String("operation", operation),
				slog.String("retry_after", resp.Header.Get("Retry-After")))
			return fmt.Errorf("%w: status 429", domain.ErrUpstreamRateLimit)
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			observability.OracleRequestsTotal.WithLabelValues(operation, "client_error").Inc()
			slog.Error("oracle 4xx",
				slog.String("operation", operation),
				slog.Int("status", resp.StatusCode),
				slog.String("body", snippet(bodyBytes, 512)))
			return backoff.Permanent(fmt.Errorf("oracle status %d", resp.StatusCode))
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			observability.OracleRequestsTotal.WithLabelValues(operation, "server_error").Inc()
			slog.Error("oracle non-2xx",
				slog.String("operation", operation),
				slog.Int("status", resp.StatusCode),
				slog.String("body", snippet(bodyBytes, 512)))
			return fmt.Errorf("oracle status %d", resp.StatusCode)
		}

		if err := json.Unmarshal(bodyBytes, &out); err != nil {
			observability.OracleRequestsTotal.WithLabelValues(operation, "decode_error").Inc()
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	expo := c.backoffConfig()
	bo := backoff.WithContext(expo, ctx)
	if err := backoff.Retry(op, bo); err != nil {
		if errors.Is(err, domain.ErrUpstreamRateLimit) {
			return "", err
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
		}
		return "", fmt.Errorf("op=openai.Complete: %w", err)
	}

	if out.Error != nil {
		observability.OracleRequestsTotal.WithLabelValues(operation, "api_error").Inc()
		return "", fmt.Errorf("op=openai.Complete: api error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		observability.OracleRequestsTotal.WithLabelValues(operation, "empty_choices").Inc()
		return "", fmt.Errorf("%w: empty choices", domain.ErrSchemaInvalid)
	}
	observability.OracleRequestsTotal.WithLabelValues(operation, "ok").Inc()
	return out.Choices[0].Message.Content, nil
}

func snippet(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
