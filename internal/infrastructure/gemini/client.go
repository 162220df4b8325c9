package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/totoufu/archi-input/internal/config"
	"github.com/totoufu/archi-input/internal/ports"
)

// ErrExhausted reports that every model and retry attempt failed. It
// deliberately hides the last provider-specific error.
var ErrExhausted = errors.New("gemini: all models and retry attempts exhausted")

const (
	maxAttempts = 3
	backoffStep = 8 * time.Second
)

// fallbackModels are tried in order after the configured primary model.
var fallbackModels = []string{"gemini-2.5-flash", "gemini-2.0-flash"}

// invokeFunc performs one generation call against one model.
type invokeFunc func(ctx context.Context, model string, parts []*genai.Part) (string, error)

// Client is the gateway to the Gemini API. The underlying SDK client is
// created lazily, at most once, and is safe to share afterwards.
type Client struct {
	apiKey  string
	primary string
	logger  *slog.Logger

	initOnce sync.Once
	initErr  error
	invoke   invokeFunc

	// sleep is swapped out in tests to observe backoff timing.
	sleep func(time.Duration)
}

var _ ports.ModelGateway = (*Client)(nil)

// NewClient builds a gateway from configuration. No network connection
// is made until the first Generate call.
func NewClient(cfg config.GeminiConfig, logger *slog.Logger) *Client {
	return &Client{
		apiKey:  cfg.APIKey,
		primary: cfg.Model,
		logger:  logger,
		sleep:   time.Sleep,
	}
}

func (c *Client) ensureClient(ctx context.Context) error {
	c.initOnce.Do(func() {
		if c.invoke != nil {
			return
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  c.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			c.initErr = fmt.Errorf("create gemini client: %w", err)
			return
		}
		c.invoke = func(ctx context.Context, model string, parts []*genai.Part) (string, error) {
			contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
			resp, err := client.Models.GenerateContent(ctx, model, contents, nil)
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(resp.Text()), nil
		}
	})
	return c.initErr
}

// Generate sends the prompt (and an optional inline image) to the model.
// The configured primary model is tried first, then the fixed fallback
// models, each with a bounded retry loop: a rate-limit signal sleeps
// (attempt+1)*8s and retries the same model, any other provider error
// aborts immediately. Only full exhaustion yields ErrExhausted.
func (c *Client) Generate(ctx context.Context, prompt string, image []byte, mime string) (string, error) {
	if err := c.ensureClient(ctx); err != nil {
		return "", err
	}

	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	if len(image) > 0 {
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, genai.NewPartFromBytes(image, mime))
	}

	for _, model := range c.modelOrder() {
		for attempt := 0; attempt < maxAttempts; attempt++ {
			text, err := c.invoke(ctx, model, parts)
			if err == nil {
				return text, nil
			}
			if !isRateLimited(err) {
				return "", fmt.Errorf("gemini model %s: %w", model, err)
			}

			wait := time.Duration(attempt+1) * backoffStep
			c.warn("rate limited, backing off",
				"model", model, "wait", wait, "attempt", attempt+1, "max_attempts", maxAttempts)
			c.sleep(wait)
		}
		c.warn("retries exhausted, trying next model", "model", model)
	}

	return "", ErrExhausted
}

func (c *Client) modelOrder() []string {
	order := make([]string, 0, 1+len(fallbackModels))
	if c.primary != "" {
		order = append(order, c.primary)
	}
	for _, m := range fallbackModels {
		if m != c.primary {
			order = append(order, m)
		}
	}
	return order
}

// isRateLimited recognizes the transient resource-exhausted class of
// provider errors; everything else is treated as terminal.
func isRateLimited(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED"
	}
	return false
}

func (c *Client) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
