package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/video"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/kafka"
	"github.com/google/uuid"
)

// Publisher queues ingest jobs for the ingester service.
type Publisher struct {
	registry Registry
	producer kafka.Publisher
	logger   *slog.Logger
}

func NewPublisher(registry Registry, producer kafka.Publisher) *Publisher {
	return &Publisher{
		registry: registry,
		producer: producer,
		logger:   slog.Default().With("component", "ingest-publisher"),
	}
}

// Enqueue publishes a job for a validated request. Videos that are already
// processed are reported as indexed without queueing. Jobs are keyed by
// video id so one video's jobs land on one partition in order.
func (p *Publisher) Enqueue(ctx context.Context, req *Request) (*Response, error) {
	videoID, err := video.ExtractID(req.URL)
	if err != nil {
		return nil, err
	}
	done, err := p.registry.HasProcessed(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("checking processed marker: %w", err)
	}
	if done {
		p.logger.Info("video already processed, not queueing", "video_id", videoID)
		return &Response{VideoID: videoID, Status: StatusIndexed}, nil
	}

	job := Job{
		JobID:       uuid.NewString(),
		VideoID:     videoID,
		URL:         req.URL,
		Options:     req.Options(),
		RequestedAt: time.Now().UTC(),
	}
	if err := p.producer.Publish(ctx, kafka.Event{Key: videoID, Value: job}); err != nil {
		return nil, fmt.Errorf("publishing ingest job: %w", err)
	}
	p.logger.Info("ingest job queued", "video_id", videoID, "job_id", job.JobID)
	return &Response{VideoID: videoID, Status: StatusQueued, JobID: job.JobID}, nil
}

// HandleJob runs queued jobs through the coordinator. Malformed payloads
// are logged and committed; pipeline failures are returned so the offset
// stays uncommitted.
func HandleJob(c *Coordinator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		job, err := kafka.DecodeJSON[Job](value)
		if err != nil {
			c.logger.Error("dropping malformed ingest job", "key", string(key), "error", err)
			return nil
		}
		if _, err := c.Ingest(ctx, job.URL, job.Options); err != nil {
			return fmt.Errorf("job %s: %w", job.JobID, err)
		}
		return nil
	}
}
