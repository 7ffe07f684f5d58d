package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/chunk"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/video"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/tracing"
	"golang.org/x/sync/singleflight"
)

// AudioSource produces a local audio file for a video, limited to d.
type AudioSource interface {
	Fetch(ctx context.Context, ref, videoID string, d Duration) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (string, error)
}

type Indexer interface {
	Add(ctx context.Context, videoID string, chunks []chunk.Chunk) error
}

// Registry records which videos finished ingestion.
type Registry interface {
	HasProcessed(ctx context.Context, videoID string) (bool, error)
	MarkProcessed(ctx context.Context, videoID string) error
}

type Coordinator struct {
	registry    Registry
	audio       AudioSource
	transcriber Transcriber
	splitter    *chunk.Splitter
	indexer     Indexer
	tracker     analytics.Tracker
	metrics     *metrics.Metrics
	group       singleflight.Group
	timeout     time.Duration
	logger      *slog.Logger
}

const defaultRunTimeout = 30 * time.Minute

func NewCoordinator(
	registry Registry,
	audio AudioSource,
	transcriber Transcriber,
	splitter *chunk.Splitter,
	indexer Indexer,
	tracker analytics.Tracker,
	m *metrics.Metrics,
) *Coordinator {
	if tracker == nil {
		tracker = analytics.Discard{}
	}
	return &Coordinator{
		registry:    registry,
		audio:       audio,
		transcriber: transcriber,
		splitter:    splitter,
		indexer:     indexer,
		tracker:     tracker,
		metrics:     m,
		timeout:     defaultRunTimeout,
		logger:      slog.Default().With("component", "ingest"),
	}
}

// WithRunTimeout bounds a single shared ingest run. Non-positive values keep
// the default.
func (c *Coordinator) WithRunTimeout(d time.Duration) *Coordinator {
	if d > 0 {
		c.timeout = d
	}
	return c
}

// Ingest makes ref answerable and returns its video id. A video already
// marked processed returns at once. The marker is written only after the
// chunks are indexed, so any failure leaves the video eligible for a clean
// retry. Concurrent calls for one video share a single run, which is
// detached from any one caller: a caller that gives up returns its own
// context error while the run continues for the others, bounded by the run
// timeout.
func (c *Coordinator) Ingest(ctx context.Context, ref string, opts Options) (string, error) {
	videoID, err := video.ExtractID(ref)
	if err != nil {
		return "", err
	}
	if opts.Duration, err = ParseDuration(string(opts.Duration)); err != nil {
		return "", err
	}
	ch := c.group.DoChan(videoID, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return nil, c.run(runCtx, ref, videoID, opts)
	})
	select {
	case res := <-ch:
		if res.Shared {
			logger.FromContext(ctx).Debug("joined in-flight ingest", "video_id", videoID)
		}
		if res.Err != nil {
			return "", res.Err
		}
		return videoID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Coordinator) run(ctx context.Context, ref, videoID string, opts Options) (err error) {
	start := time.Now()
	ctx = logger.WithVideoID(ctx, videoID)
	ctx, span := tracing.StartChildSpan(ctx, "ingest")
	defer span.End()
	log := logger.FromContext(ctx).With("component", "ingest")

	event := func(outcome string, chunks int) {
		ev := analytics.NewIngestEvent(ctx, videoID, start)
		ev.Duration = string(opts.Duration)
		ev.Outcome = outcome
		ev.Chunks = chunks
		c.tracker.Track(ev)
		c.metrics.ObserveIngest(outcomeLabel(outcome), time.Since(start).Seconds(), chunks)
	}
	defer func() {
		if err != nil {
			span.RecordError(err)
			event(analytics.OutcomeError, 0)
			log.Error("ingest failed", "error", err)
		}
	}()

	done, err := c.registry.HasProcessed(ctx, videoID)
	if err != nil {
		return fmt.Errorf("checking processed marker: %w", err)
	}
	if done {
		log.Info("video already processed")
		event(analytics.OutcomeSkipped, 0)
		return nil
	}

	log.Info("ingest started", "duration", opts.Duration, "language", opts.Language)
	audioPath, err := c.audio.Fetch(ctx, ref, videoID, opts.Duration)
	if err != nil {
		return fmt.Errorf("fetching audio: %w", err)
	}
	transcript, err := c.transcriber.Transcribe(ctx, audioPath, opts.Language)
	if err != nil {
		return fmt.Errorf("transcribing audio: %w", err)
	}
	chunks := c.splitter.Split(videoID, transcript)
	span.SetAttr("chunks", len(chunks))
	if len(chunks) == 0 {
		log.Warn("transcript is empty, indexing no chunks")
	}
	if err := c.indexer.Add(ctx, videoID, chunks); err != nil {
		return fmt.Errorf("indexing transcript: %w", err)
	}
	if err := c.registry.MarkProcessed(ctx, videoID); err != nil {
		return fmt.Errorf("marking processed: %w", err)
	}

	log.Info("ingest finished", "chunks", len(chunks), "elapsed", time.Since(start))
	event(analytics.OutcomeOK, len(chunks))
	return nil
}

func outcomeLabel(outcome string) string {
	switch outcome {
	case analytics.OutcomeOK:
		return "indexed"
	case analytics.OutcomeSkipped:
		return "skipped"
	default:
		return "error"
	}
}
