package analytics

import (
	"context"
	"time"

	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/logger"
	"github.com/google/uuid"
)

type EventType string

const (
	EventAnswer  EventType = "answer"
	EventSummary EventType = "summary"
	EventIngest  EventType = "ingest"
)

// Outcomes shared by query and ingest events.
const (
	OutcomeOK         = "ok"
	OutcomeError      = "error"
	OutcomeEmpty      = "empty"
	OutcomeAbandoned  = "abandoned"
	OutcomeIncomplete = "incomplete"
	OutcomeSkipped    = "skipped"
)

// QueryEvent records one answer or summary request.
type QueryEvent struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	VideoID      string    `json:"video_id"`
	Question     string    `json:"question,omitempty"`
	Mode         string    `json:"mode"`
	SearchMethod string    `json:"search_method,omitempty"`
	Passages     int       `json:"passages"`
	CacheHit     bool      `json:"cache_hit"`
	Outcome      string    `json:"outcome"`
	LatencyMs    int64     `json:"latency_ms"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id,omitempty"`
}

// IngestEvent records one ingest call.
type IngestEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	VideoID   string    `json:"video_id"`
	Duration  string    `json:"duration,omitempty"`
	Chunks    int       `json:"chunks"`
	Outcome   string    `json:"outcome"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// NewQueryEvent stamps an event of type t with an id, the request id from
// ctx and the latency since start.
func NewQueryEvent(ctx context.Context, t EventType, videoID string, start time.Time) QueryEvent {
	return QueryEvent{
		ID:        uuid.NewString(),
		Type:      t,
		VideoID:   videoID,
		LatencyMs: time.Since(start).Milliseconds(),
		Timestamp: time.Now().UTC(),
		RequestID: logger.RequestID(ctx),
	}
}

func NewIngestEvent(ctx context.Context, videoID string, start time.Time) IngestEvent {
	return IngestEvent{
		ID:        uuid.NewString(),
		Type:      EventIngest,
		VideoID:   videoID,
		LatencyMs: time.Since(start).Milliseconds(),
		Timestamp: time.Now().UTC(),
		RequestID: logger.RequestID(ctx),
	}
}

// Tracker accepts events for asynchronous delivery. Track must not block.
type Tracker interface {
	Track(event any)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Track(any) {}
