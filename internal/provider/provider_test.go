package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/resilience"
	openai "github.com/sashabaranov/go-openai"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", &openai.APIError{HTTPStatusCode: 429}, true},
		{"server error", &openai.APIError{HTTPStatusCode: 503}, true},
		{"bad request", &openai.APIError{HTTPStatusCode: 400}, false},
		{"unauthorized request", &openai.RequestError{HTTPStatusCode: 401, Err: errors.New("no key")}, false},
		{"wrapped transport", fmt.Errorf("post: %w", errors.New("connection reset")), true},
		{"cancelled", context.Canceled, false},
		{"circuit open", resilience.ErrCircuitOpen, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGuardClassifiesFailures(t *testing.T) {
	g := NewGuard("openai", config.OpenAIConfig{MaxRetries: 1, RequestTimeout: 20 * time.Millisecond}, nil)

	err := g.Call(context.Background(), "chat", func(ctx context.Context) error {
		return &openai.APIError{HTTPStatusCode: 500, Message: "boom"}
	})
	if !errors.Is(err, apperrors.ErrExternalService) {
		t.Errorf("err = %v, want external service kind", err)
	}

	err = g.Call(context.Background(), "chat", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, apperrors.ErrTimeout) {
		t.Errorf("err = %v, want timeout kind", err)
	}
}

func TestGuardRetriesTransientErrors(t *testing.T) {
	g := NewGuard("openai", config.OpenAIConfig{MaxRetries: 2}, nil)
	calls := 0
	err := g.Call(context.Background(), "embeddings", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return &openai.APIError{HTTPStatusCode: 502}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}
