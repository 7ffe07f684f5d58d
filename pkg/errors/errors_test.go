package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("bad url %q", "x"), http.StatusBadRequest},
		{"not found", NotFound("no transcript"), http.StatusNotFound},
		{"wrapped sentinel", fmt.Errorf("ingest: %w", ErrNotFound), http.StatusNotFound},
		{"external", External("openai", io.ErrUnexpectedEOF), http.StatusBadGateway},
		{"deadline", External("openai", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatusCode(tt.err); got != tt.want {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestExternalKeepsCause(t *testing.T) {
	err := External("whisper", context.DeadlineExceeded)
	if !errors.Is(err, ErrTimeout) {
		t.Error("expected ErrTimeout kind")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected cause to stay reachable")
	}

	again := External("engine", err)
	if again != err {
		t.Error("classified errors should pass through unchanged")
	}
}

func TestExternalPassesCancellation(t *testing.T) {
	err := External("openai", context.Canceled)
	if !errors.Is(err, context.Canceled) {
		t.Fatal("expected context.Canceled")
	}
	if errors.Is(err, ErrExternalService) {
		t.Error("cancellation must not be reported as a backend failure")
	}
}
