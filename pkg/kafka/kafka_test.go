package kafka

import (
	"context"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/logger"
)

func TestEncodeAddsRequestIDHeader(t *testing.T) {
	ctx := logger.WithRequestID(context.Background(), "req-42")
	msg, err := encode(ctx, Event{Key: "vid", Value: map[string]string{"video_id": "vid"}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(msg.Key) != "vid" {
		t.Errorf("key = %q", msg.Key)
	}
	if string(msg.Value) != `{"video_id":"vid"}` {
		t.Errorf("value = %s", msg.Value)
	}
	if len(msg.Headers) != 1 || msg.Headers[0].Key != RequestIDHeader || string(msg.Headers[0].Value) != "req-42" {
		t.Errorf("headers = %+v", msg.Headers)
	}
}

func TestEncodeWithoutRequestID(t *testing.T) {
	msg, err := encode(context.Background(), Event{Key: "k", Value: 1})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(msg.Headers) != 0 {
		t.Errorf("unexpected headers %+v", msg.Headers)
	}
}

func TestDecodeJSON(t *testing.T) {
	type job struct {
		VideoID string `json:"video_id"`
	}
	got, err := DecodeJSON[job]([]byte(`{"video_id":"abc"}`))
	if err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if got.VideoID != "abc" {
		t.Errorf("VideoID = %q", got.VideoID)
	}
	if _, err := DecodeJSON[job]([]byte(`{`)); err == nil {
		t.Error("expected error for truncated payload")
	}
}
