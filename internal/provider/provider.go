// Package provider builds the shared OpenAI client and the guard (circuit
// breaker, retry, timeout) that every call to it goes through.
package provider

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/resilience"
	openai "github.com/sashabaranov/go-openai"
)

// NewClient returns a go-openai client for cfg, honouring a custom base URL
// for OpenAI-compatible gateways.
func NewClient(cfg config.OpenAIConfig) *openai.Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(oc)
}

// Guard wraps backend calls with a circuit breaker, retries and a per-call
// timeout, and classifies failures into the shared error kinds.
type Guard struct {
	name    string
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	timeout time.Duration
}

// NewGuard builds a guard named after the backend it protects. Breaker
// transitions are exported through m when it is non-nil.
func NewGuard(name string, cfg config.OpenAIConfig, m *metrics.Metrics) *Guard {
	return &Guard{
		name: name,
		breaker: resilience.NewCircuitBreaker(name, resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			IsFailure:        Retryable,
			OnStateChange: func(name string, _, to resilience.State) {
				m.SetCircuitState(name, int(to))
			},
		}),
		retry: resilience.RetryConfig{
			MaxAttempts:  cfg.MaxRetries,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Retryable:    Retryable,
		},
		timeout: cfg.RequestTimeout,
	}
}

// Call runs fn under the guard with the configured per-attempt timeout.
func (g *Guard) Call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return g.run(ctx, op, func() error {
		return resilience.WithTimeout(ctx, g.timeout, g.name+" "+op, fn)
	})
}

// Open runs fn without a per-attempt timeout. It is for calls that hand
// back a long-lived stream bound to ctx.
func (g *Guard) Open(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return g.run(ctx, op, func() error { return fn(ctx) })
}

func (g *Guard) run(ctx context.Context, op string, attempt func() error) error {
	err := g.breaker.Execute(func() error {
		return resilience.Retry(ctx, g.name+" "+op, g.retry, attempt)
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return apperrors.External(g.name+" "+op, err)
}

// Retryable reports whether err is transient: rate limits, server errors,
// timeouts and transport failures. Client errors and cancellation are not.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, resilience.ErrCircuitOpen) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return transientStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return transientStatus(reqErr.HTTPStatusCode)
	}
	return true
}

func transientStatus(code int) bool {
	return code == 0 || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
